package mock

import (
	"context"
	"errors"

	"github.com/skein-run/skein/pkg/domain"
	dbmock "github.com/skein-run/skein/pkg/domain/internal/db/mock"
	kdb "github.com/skein-run/skein/pkg/domain/session/db"
)

type SessionInterface struct {
	Impl struct {
		Open  func(ctx context.Context, session domain.InteractiveSession) error
		Live  func(ctx context.Context, runId string) (domain.InteractiveSession, error)
		Close func(ctx context.Context, runId string) (domain.InteractiveSession, error)
	}

	Calls struct {
		Open  dbmock.CallLog[domain.InteractiveSession]
		Live  dbmock.CallLog[string]
		Close dbmock.CallLog[string]
	}
}

func NewSessionInterface() *SessionInterface {
	return &SessionInterface{}
}

var _ kdb.Interface = &SessionInterface{}

func (m *SessionInterface) Open(ctx context.Context, session domain.InteractiveSession) error {
	m.Calls.Open = append(m.Calls.Open, session)
	if m.Impl.Open != nil {
		return m.Impl.Open(ctx, session)
	}
	panic(errors.New("it should not be called"))
}

func (m *SessionInterface) Live(ctx context.Context, runId string) (domain.InteractiveSession, error) {
	m.Calls.Live = append(m.Calls.Live, runId)
	if m.Impl.Live != nil {
		return m.Impl.Live(ctx, runId)
	}
	panic(errors.New("it should not be called"))
}

func (m *SessionInterface) Close(ctx context.Context, runId string) (domain.InteractiveSession, error) {
	m.Calls.Close = append(m.Calls.Close, runId)
	if m.Impl.Close != nil {
		return m.Impl.Close(ctx, runId)
	}
	panic(errors.New("it should not be called"))
}
