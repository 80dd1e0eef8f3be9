package session

import (
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/skein-run/skein/pkg/configs"
	"github.com/skein-run/skein/pkg/domain"
)

// validateImage checks a caller-named image against the session
// kind's allow-list. Two references match when they normalize to the
// same fully-qualified name, so "library/ubuntu:24.04" in the
// allow-list accepts "docker.io/library/ubuntu:24.04". First match
// wins. Skipped entirely when the policy allows custom images.
func validateImage(image string, policy *configs.SessionTypeConfig) error {
	if policy.AllowCustomImages() {
		return nil
	}

	requested, err := name.ParseReference(image)
	if err != nil {
		return fmt.Errorf("%w: image '%s': %s", domain.ErrValidation, image, err)
	}

	for _, allowed := range policy.RecommendedImages() {
		ref, err := name.ParseReference(allowed)
		if err != nil {
			// A broken allow-list entry cannot match anything.
			continue
		}
		if ref.Name() == requested.Name() {
			return nil
		}
	}

	return fmt.Errorf(
		"%w: image '%s' is not allowed for interactive sessions, try one of: %s",
		domain.ErrValidation, image, strings.Join(policy.RecommendedImages(), ", "),
	)
}
