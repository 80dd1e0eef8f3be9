package mock

import (
	"context"
	"io"
	"testing"

	"github.com/skein-run/skein/pkg/domain"
	"github.com/skein-run/skein/pkg/domain/cluster"
)

type MockClusterInterface struct {
	t    *testing.T
	Impl struct {
		Deploy       func(ctx context.Context, r domain.Run) error
		Teardown     func(ctx context.Context, runId string) error
		SchedulerLog func(ctx context.Context, runId string) (io.ReadCloser, error)
	}
}

var _ cluster.Interface = &MockClusterInterface{}

func New(t *testing.T) *MockClusterInterface {
	return &MockClusterInterface{t: t}
}

func (m *MockClusterInterface) Deploy(ctx context.Context, r domain.Run) error {
	if m.Impl.Deploy == nil {
		m.t.Fatal("Deploy is not implemented")
	}
	return m.Impl.Deploy(ctx, r)
}

func (m *MockClusterInterface) Teardown(ctx context.Context, runId string) error {
	if m.Impl.Teardown == nil {
		m.t.Fatal("Teardown is not implemented")
	}
	return m.Impl.Teardown(ctx, runId)
}

func (m *MockClusterInterface) SchedulerLog(ctx context.Context, runId string) (io.ReadCloser, error) {
	if m.Impl.SchedulerLog == nil {
		m.t.Fatal("SchedulerLog is not implemented")
	}
	return m.Impl.SchedulerLog(ctx, runId)
}
