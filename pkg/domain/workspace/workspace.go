// Package workspace is the on-disk capability behind runs: create a
// run's directory, measure it, remove it. Paths are always resolved
// against the configured root, symlinks are never followed.
package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/skein-run/skein/pkg/domain"
)

type Root struct {
	root string
}

func New(root string) *Root {
	return &Root{root: filepath.Clean(root)}
}

// PathOf is the workspace directory of a run. Deterministic, so no
// lookup is needed to address a workspace.
func (r *Root) PathOf(owner string, runId string) string {
	return filepath.Join(r.root, owner, runId)
}

// Create makes the run's workspace directory and returns its path.
func (r *Root) Create(owner string, runId string) (string, error) {
	path := r.PathOf(owner, runId)
	if err := r.guard(path); err != nil {
		return "", err
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return "", err
	}
	return path, nil
}

// Size sums the regular files under path. Symlinks count as
// themselves, never as their targets, so a link pointing outside the
// workspace cannot inflate usage.
func (r *Root) Size(path string) (int64, error) {
	if err := r.guard(path); err != nil {
		return 0, err
	}

	var total int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() || info.Mode()&fs.ModeSymlink != 0 {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Remove deletes the workspace tree. Removing a path that is itself a
// symlink is refused; a tree containing symlinks is fine, the links
// go but their targets stay.
func (r *Root) Remove(path string) error {
	if err := r.guard(path); err != nil {
		return err
	}

	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return fmt.Errorf("%w: %s is a symlink, not a workspace", domain.ErrValidation, path)
	}

	return os.RemoveAll(path)
}

// guard refuses paths outside the root. The root itself is not a
// workspace either.
func (r *Root) guard(path string) error {
	rel, err := filepath.Rel(r.root, filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("%w: %s is not under %s", domain.ErrValidation, path, r.root)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s escapes workspace root %s", domain.ErrValidation, path, r.root)
	}
	return nil
}
