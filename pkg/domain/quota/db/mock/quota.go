package mock

import (
	"context"
	"errors"

	dbmock "github.com/skein-run/skein/pkg/domain/internal/db/mock"
	kdb "github.com/skein-run/skein/pkg/domain/quota/db"
)

type QuotaInterface struct {
	Impl struct {
		Record  func(ctx context.Context, runId string, delta int64) error
		Retract func(ctx context.Context, runId string) (int64, error)
	}

	Calls struct {
		Record dbmock.CallLog[struct {
			RunId string
			Delta int64
		}]
		Retract dbmock.CallLog[string]
	}
}

func NewQuotaInterface() *QuotaInterface {
	return &QuotaInterface{}
}

var _ kdb.Interface = &QuotaInterface{}

func (m *QuotaInterface) Record(ctx context.Context, runId string, delta int64) error {
	m.Calls.Record = append(m.Calls.Record, struct {
		RunId string
		Delta int64
	}{RunId: runId, Delta: delta})
	if m.Impl.Record != nil {
		return m.Impl.Record(ctx, runId, delta)
	}
	panic(errors.New("it should not be called"))
}

func (m *QuotaInterface) Retract(ctx context.Context, runId string) (int64, error) {
	m.Calls.Retract = append(m.Calls.Retract, runId)
	if m.Impl.Retract != nil {
		return m.Impl.Retract(ctx, runId)
	}
	panic(errors.New("it should not be called"))
}
