package mock

import (
	"context"
	"testing"
	"time"

	"github.com/skein-run/skein/pkg/domain"
	"github.com/skein-run/skein/pkg/domain/run"
)

type MockRunInterface struct {
	t    *testing.T
	Impl struct {
		Create   func(ctx context.Context, owner string, name string, spec domain.Specification, gitRef string) (domain.Run, error)
		Get      func(ctx context.Context, runId string) (domain.Run, error)
		List     func(ctx context.Context, userId string) ([]domain.Run, error)
		Start    func(ctx context.Context, runId string, opts domain.StartOptions) error
		Stop     func(ctx context.Context, runId string) error
		Delete   func(ctx context.Context, runId string, opts domain.DeleteOptions) error
		Progress func(ctx context.Context, runId string, includeJobDetail bool) (run.ProgressSnapshot, error)
		Logs     func(ctx context.Context, runId string, steps []string) (run.LogBundle, error)
		Share    func(ctx context.Context, runId string, userId string, message string, validUntil *time.Time) error
		Unshare  func(ctx context.Context, runId string, userId string) error
	}
}

var _ run.Interface = &MockRunInterface{}

func New(t *testing.T) *MockRunInterface {
	return &MockRunInterface{t: t}
}

func (m *MockRunInterface) Create(ctx context.Context, owner string, name string, spec domain.Specification, gitRef string) (domain.Run, error) {
	if m.Impl.Create == nil {
		m.t.Fatal("Create is not implemented")
	}
	return m.Impl.Create(ctx, owner, name, spec, gitRef)
}

func (m *MockRunInterface) Get(ctx context.Context, runId string) (domain.Run, error) {
	if m.Impl.Get == nil {
		m.t.Fatal("Get is not implemented")
	}
	return m.Impl.Get(ctx, runId)
}

func (m *MockRunInterface) List(ctx context.Context, userId string) ([]domain.Run, error) {
	if m.Impl.List == nil {
		m.t.Fatal("List is not implemented")
	}
	return m.Impl.List(ctx, userId)
}

func (m *MockRunInterface) Start(ctx context.Context, runId string, opts domain.StartOptions) error {
	if m.Impl.Start == nil {
		m.t.Fatal("Start is not implemented")
	}
	return m.Impl.Start(ctx, runId, opts)
}

func (m *MockRunInterface) Stop(ctx context.Context, runId string) error {
	if m.Impl.Stop == nil {
		m.t.Fatal("Stop is not implemented")
	}
	return m.Impl.Stop(ctx, runId)
}

func (m *MockRunInterface) Delete(ctx context.Context, runId string, opts domain.DeleteOptions) error {
	if m.Impl.Delete == nil {
		m.t.Fatal("Delete is not implemented")
	}
	return m.Impl.Delete(ctx, runId, opts)
}

func (m *MockRunInterface) Progress(ctx context.Context, runId string, includeJobDetail bool) (run.ProgressSnapshot, error) {
	if m.Impl.Progress == nil {
		m.t.Fatal("Progress is not implemented")
	}
	return m.Impl.Progress(ctx, runId, includeJobDetail)
}

func (m *MockRunInterface) Logs(ctx context.Context, runId string, steps []string) (run.LogBundle, error) {
	if m.Impl.Logs == nil {
		m.t.Fatal("Logs is not implemented")
	}
	return m.Impl.Logs(ctx, runId, steps)
}

func (m *MockRunInterface) Share(ctx context.Context, runId string, userId string, message string, validUntil *time.Time) error {
	if m.Impl.Share == nil {
		m.t.Fatal("Share is not implemented")
	}
	return m.Impl.Share(ctx, runId, userId, message, validUntil)
}

func (m *MockRunInterface) Unshare(ctx context.Context, runId string, userId string) error {
	if m.Impl.Unshare == nil {
		m.t.Fatal("Unshare is not implemented")
	}
	return m.Impl.Unshare(ctx, runId, userId)
}
