package domain

import "fmt"

// SessionKind is the closed set of interactive session types.
type SessionKind string

const (
	SessionJupyter SessionKind = "jupyter"
)

func AsSessionKind(kind string) (SessionKind, error) {
	switch kind {
	case string(SessionJupyter):
		return SessionJupyter, nil
	default:
		return "", fmt.Errorf("%w: '%s' is not an interactive session type", ErrValidation, kind)
	}
}

func (sk SessionKind) String() string {
	return string(sk)
}

// InteractiveSession is a long-lived per-run session
// (deployment + service + ingress). At most one live per run.
type InteractiveSession struct {
	Id     string
	RunId  string
	Name   string
	Kind   SessionKind
	Path   string
	Status ServiceStatus
}

func (s InteractiveSession) Equal(o InteractiveSession) bool {
	return s == o
}
