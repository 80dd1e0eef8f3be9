package mock

import (
	"context"
	"io"
	"testing"

	"github.com/skein-run/skein/pkg/domain/run/k8s"
)

type MockRunInterface struct {
	t    *testing.T
	Impl struct {
		SpawnBatch  func(ctx context.Context, ex *k8s.Executable) error
		EnsureCVMFS func(ctx context.Context, repos []string) error
		RemoveBatch func(ctx context.Context, runId string) error
		RemoveJob   func(ctx context.Context, backendJobId string) error
		EngineLog   func(ctx context.Context, runId string) (io.ReadCloser, error)
	}
}

var _ k8s.Interface = &MockRunInterface{}

func New(t *testing.T) *MockRunInterface {
	return &MockRunInterface{t: t}
}

func (m *MockRunInterface) SpawnBatch(ctx context.Context, ex *k8s.Executable) error {
	if m.Impl.SpawnBatch == nil {
		m.t.Fatal("SpawnBatch is not implemented")
	}
	return m.Impl.SpawnBatch(ctx, ex)
}

func (m *MockRunInterface) EnsureCVMFS(ctx context.Context, repos []string) error {
	if m.Impl.EnsureCVMFS == nil {
		m.t.Fatal("EnsureCVMFS is not implemented")
	}
	return m.Impl.EnsureCVMFS(ctx, repos)
}

func (m *MockRunInterface) RemoveBatch(ctx context.Context, runId string) error {
	if m.Impl.RemoveBatch == nil {
		m.t.Fatal("RemoveBatch is not implemented")
	}
	return m.Impl.RemoveBatch(ctx, runId)
}

func (m *MockRunInterface) RemoveJob(ctx context.Context, backendJobId string) error {
	if m.Impl.RemoveJob == nil {
		m.t.Fatal("RemoveJob is not implemented")
	}
	return m.Impl.RemoveJob(ctx, backendJobId)
}

func (m *MockRunInterface) EngineLog(ctx context.Context, runId string) (io.ReadCloser, error) {
	if m.Impl.EngineLog == nil {
		m.t.Fatal("EngineLog is not implemented")
	}
	return m.Impl.EngineLog(ctx, runId)
}
