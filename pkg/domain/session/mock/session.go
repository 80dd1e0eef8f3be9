package mock

import (
	"context"
	"testing"

	"github.com/skein-run/skein/pkg/domain"
	"github.com/skein-run/skein/pkg/domain/session"
)

type MockSessionInterface struct {
	t    *testing.T
	Impl struct {
		Open  func(ctx context.Context, r domain.Run, kind domain.SessionKind, image string) (string, error)
		Close func(ctx context.Context, runId string) error
	}
}

var _ session.Interface = &MockSessionInterface{}

func New(t *testing.T) *MockSessionInterface {
	return &MockSessionInterface{t: t}
}

func (m *MockSessionInterface) Open(ctx context.Context, r domain.Run, kind domain.SessionKind, image string) (string, error) {
	if m.Impl.Open == nil {
		m.t.Fatal("Open is not implemented")
	}
	return m.Impl.Open(ctx, r, kind, image)
}

func (m *MockSessionInterface) Close(ctx context.Context, runId string) error {
	if m.Impl.Close == nil {
		m.t.Fatal("Close is not implemented")
	}
	return m.Impl.Close(ctx, runId)
}
