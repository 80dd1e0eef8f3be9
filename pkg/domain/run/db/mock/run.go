package mock

import (
	"context"
	"errors"

	"github.com/skein-run/skein/pkg/domain"
	dbmock "github.com/skein-run/skein/pkg/domain/internal/db/mock"
	kdb "github.com/skein-run/skein/pkg/domain/run/db"
)

type RunInterface struct {
	Impl struct {
		Create          func(ctx context.Context, run kdb.NewRun) (domain.Run, error)
		Get             func(ctx context.Context, runId string) (domain.Run, error)
		Siblings        func(ctx context.Context, owner string, name string) ([]domain.Run, error)
		List            func(ctx context.Context, userId string) ([]domain.Run, error)
		SetStarted      func(ctx context.Context, runId string, status domain.RunStatus, inputParameters map[string]any, operationalOptions map[string]any) error
		ApplyTransition func(ctx context.Context, runId string, next domain.RunStatus, appendLogs string, progress *domain.Progress) (domain.Run, error)
		MarkDeleted     func(ctx context.Context, runId string) error
		AddShare        func(ctx context.Context, share domain.Share) error
		RemoveShare     func(ctx context.Context, runId string, userId string) error
	}

	Calls struct {
		Create   dbmock.CallLog[kdb.NewRun]
		Get      dbmock.CallLog[string]
		Siblings dbmock.CallLog[struct {
			Owner string
			Name  string
		}]
		List       dbmock.CallLog[string]
		SetStarted dbmock.CallLog[struct {
			RunId              string
			Status             domain.RunStatus
			InputParameters    map[string]any
			OperationalOptions map[string]any
		}]
		ApplyTransition dbmock.CallLog[struct {
			RunId      string
			Next       domain.RunStatus
			AppendLogs string
			Progress   *domain.Progress
		}]
		MarkDeleted dbmock.CallLog[string]
		AddShare    dbmock.CallLog[domain.Share]
		RemoveShare dbmock.CallLog[struct {
			RunId  string
			UserId string
		}]
	}
}

func NewRunInterface() *RunInterface {
	return &RunInterface{}
}

var _ kdb.Interface = &RunInterface{}

func (m *RunInterface) Create(ctx context.Context, run kdb.NewRun) (domain.Run, error) {
	m.Calls.Create = append(m.Calls.Create, run)
	if m.Impl.Create != nil {
		return m.Impl.Create(ctx, run)
	}
	panic(errors.New("it should not be called"))
}

func (m *RunInterface) Get(ctx context.Context, runId string) (domain.Run, error) {
	m.Calls.Get = append(m.Calls.Get, runId)
	if m.Impl.Get != nil {
		return m.Impl.Get(ctx, runId)
	}
	panic(errors.New("it should not be called"))
}

func (m *RunInterface) Siblings(ctx context.Context, owner string, name string) ([]domain.Run, error) {
	m.Calls.Siblings = append(m.Calls.Siblings, struct {
		Owner string
		Name  string
	}{Owner: owner, Name: name})
	if m.Impl.Siblings != nil {
		return m.Impl.Siblings(ctx, owner, name)
	}
	panic(errors.New("it should not be called"))
}

func (m *RunInterface) List(ctx context.Context, userId string) ([]domain.Run, error) {
	m.Calls.List = append(m.Calls.List, userId)
	if m.Impl.List != nil {
		return m.Impl.List(ctx, userId)
	}
	panic(errors.New("it should not be called"))
}

func (m *RunInterface) SetStarted(ctx context.Context, runId string, status domain.RunStatus, inputParameters map[string]any, operationalOptions map[string]any) error {
	m.Calls.SetStarted = append(m.Calls.SetStarted, struct {
		RunId              string
		Status             domain.RunStatus
		InputParameters    map[string]any
		OperationalOptions map[string]any
	}{RunId: runId, Status: status, InputParameters: inputParameters, OperationalOptions: operationalOptions})
	if m.Impl.SetStarted != nil {
		return m.Impl.SetStarted(ctx, runId, status, inputParameters, operationalOptions)
	}
	panic(errors.New("it should not be called"))
}

func (m *RunInterface) ApplyTransition(ctx context.Context, runId string, next domain.RunStatus, appendLogs string, progress *domain.Progress) (domain.Run, error) {
	m.Calls.ApplyTransition = append(m.Calls.ApplyTransition, struct {
		RunId      string
		Next       domain.RunStatus
		AppendLogs string
		Progress   *domain.Progress
	}{RunId: runId, Next: next, AppendLogs: appendLogs, Progress: progress})
	if m.Impl.ApplyTransition != nil {
		return m.Impl.ApplyTransition(ctx, runId, next, appendLogs, progress)
	}
	panic(errors.New("it should not be called"))
}

func (m *RunInterface) MarkDeleted(ctx context.Context, runId string) error {
	m.Calls.MarkDeleted = append(m.Calls.MarkDeleted, runId)
	if m.Impl.MarkDeleted != nil {
		return m.Impl.MarkDeleted(ctx, runId)
	}
	panic(errors.New("it should not be called"))
}

func (m *RunInterface) AddShare(ctx context.Context, share domain.Share) error {
	m.Calls.AddShare = append(m.Calls.AddShare, share)
	if m.Impl.AddShare != nil {
		return m.Impl.AddShare(ctx, share)
	}
	panic(errors.New("it should not be called"))
}

func (m *RunInterface) RemoveShare(ctx context.Context, runId string, userId string) error {
	m.Calls.RemoveShare = append(m.Calls.RemoveShare, struct {
		RunId  string
		UserId string
	}{RunId: runId, UserId: userId})
	if m.Impl.RemoveShare != nil {
		return m.Impl.RemoveShare(ctx, runId, userId)
	}
	panic(errors.New("it should not be called"))
}
