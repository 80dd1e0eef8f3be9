package mock

import (
	"context"
	"errors"

	"github.com/skein-run/skein/pkg/domain"
	kdb "github.com/skein-run/skein/pkg/domain/cluster/db"
	dbmock "github.com/skein-run/skein/pkg/domain/internal/db/mock"
)

type ServiceInterface struct {
	Impl struct {
		Put       func(ctx context.Context, service domain.Service) error
		SetStatus func(ctx context.Context, runId string, name string, status domain.ServiceStatus) error
	}

	Calls struct {
		Put       dbmock.CallLog[domain.Service]
		SetStatus dbmock.CallLog[struct {
			RunId  string
			Name   string
			Status domain.ServiceStatus
		}]
	}
}

func NewServiceInterface() *ServiceInterface {
	return &ServiceInterface{}
}

var _ kdb.Interface = &ServiceInterface{}

func (m *ServiceInterface) Put(ctx context.Context, service domain.Service) error {
	m.Calls.Put = append(m.Calls.Put, service)
	if m.Impl.Put != nil {
		return m.Impl.Put(ctx, service)
	}
	panic(errors.New("it should not be called"))
}

func (m *ServiceInterface) SetStatus(ctx context.Context, runId string, name string, status domain.ServiceStatus) error {
	m.Calls.SetStatus = append(m.Calls.SetStatus, struct {
		RunId  string
		Name   string
		Status domain.ServiceStatus
	}{RunId: runId, Name: name, Status: status})
	if m.Impl.SetStatus != nil {
		return m.Impl.SetStatus(ctx, runId, name, status)
	}
	panic(errors.New("it should not be called"))
}
