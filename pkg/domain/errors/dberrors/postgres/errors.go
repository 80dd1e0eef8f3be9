package postgres

import (
	"fmt"

	"github.com/skein-run/skein/pkg/domain"
)

// Missing means a requested row is not in the table.
type Missing struct {
	Table    string
	Identity string
}

var _ error = Missing{}

func (m Missing) Error() string {
	return fmt.Sprintf("%s is not found in %s", m.Identity, m.Table)
}

func (m Missing) Unwrap() error {
	return domain.ErrMissing
}
