package mock

import (
	"context"
	"errors"

	"github.com/skein-run/skein/pkg/domain"
	dbmock "github.com/skein-run/skein/pkg/domain/internal/db/mock"
	kdb "github.com/skein-run/skein/pkg/domain/job/db"
)

type JobInterface struct {
	Impl struct {
		ByRun           func(ctx context.Context, runId string) ([]domain.Job, error)
		ByRunAndStatus  func(ctx context.Context, runId string, status domain.JobStatus) ([]domain.Job, error)
		GetCache        func(ctx context.Context, jobId string) (domain.JobCache, error)
		StoreCache      func(ctx context.Context, cache domain.JobCache) error
		PurgeCacheByRun func(ctx context.Context, runId string) ([]string, error)
	}

	Calls struct {
		ByRun          dbmock.CallLog[string]
		ByRunAndStatus dbmock.CallLog[struct {
			RunId  string
			Status domain.JobStatus
		}]
		GetCache        dbmock.CallLog[string]
		StoreCache      dbmock.CallLog[domain.JobCache]
		PurgeCacheByRun dbmock.CallLog[string]
	}
}

func NewJobInterface() *JobInterface {
	return &JobInterface{}
}

var _ kdb.Interface = &JobInterface{}

func (m *JobInterface) ByRun(ctx context.Context, runId string) ([]domain.Job, error) {
	m.Calls.ByRun = append(m.Calls.ByRun, runId)
	if m.Impl.ByRun != nil {
		return m.Impl.ByRun(ctx, runId)
	}
	panic(errors.New("it should not be called"))
}

func (m *JobInterface) ByRunAndStatus(ctx context.Context, runId string, status domain.JobStatus) ([]domain.Job, error) {
	m.Calls.ByRunAndStatus = append(m.Calls.ByRunAndStatus, struct {
		RunId  string
		Status domain.JobStatus
	}{RunId: runId, Status: status})
	if m.Impl.ByRunAndStatus != nil {
		return m.Impl.ByRunAndStatus(ctx, runId, status)
	}
	panic(errors.New("it should not be called"))
}

func (m *JobInterface) GetCache(ctx context.Context, jobId string) (domain.JobCache, error) {
	m.Calls.GetCache = append(m.Calls.GetCache, jobId)
	if m.Impl.GetCache != nil {
		return m.Impl.GetCache(ctx, jobId)
	}
	panic(errors.New("it should not be called"))
}

func (m *JobInterface) StoreCache(ctx context.Context, cache domain.JobCache) error {
	m.Calls.StoreCache = append(m.Calls.StoreCache, cache)
	if m.Impl.StoreCache != nil {
		return m.Impl.StoreCache(ctx, cache)
	}
	panic(errors.New("it should not be called"))
}

func (m *JobInterface) PurgeCacheByRun(ctx context.Context, runId string) ([]string, error) {
	m.Calls.PurgeCacheByRun = append(m.Calls.PurgeCacheByRun, runId)
	if m.Impl.PurgeCacheByRun != nil {
		return m.Impl.PurgeCacheByRun(ctx, runId)
	}
	panic(errors.New("it should not be called"))
}
