package runs

import (
	"time"

	"github.com/skein-run/skein/pkg/domain"
	"github.com/skein-run/skein/pkg/utils/cmp"
	"github.com/skein-run/skein/pkg/utils/rfctime"
	"github.com/skein-run/skein/pkg/utils/slices"
)

type CreateRequest struct {
	Name   string               `json:"name,omitempty"`
	Spec   domain.Specification `json:"specification"`
	GitRef string               `json:"git_ref,omitempty"`
}

type StartRequest struct {
	InputParameters    map[string]any `json:"input_parameters,omitempty"`
	OperationalOptions map[string]any `json:"operational_options,omitempty"`
	Restart            bool           `json:"restart,omitempty"`
}

type ShareRequest struct {
	UserId     string           `json:"user_id"`
	Message    string           `json:"message,omitempty"`
	ValidUntil *rfctime.RFC3339 `json:"valid_until,omitempty"`
}

type SessionRequest struct {
	Type  string `json:"type"`
	Image string `json:"image,omitempty"`
}

type SessionResponse struct {
	Path string `json:"path"`
}

type Summary struct {
	RunId     string          `json:"runId"`
	Name      string          `json:"name"`
	Number    int             `json:"number"`
	Owner     string          `json:"owner"`
	Status    string          `json:"status"`
	CreatedAt rfctime.RFC3339 `json:"createdAt"`
}

func ComposeSummary(r domain.RunBody) Summary {
	return Summary{
		RunId:     r.Id,
		Name:      r.Name,
		Number:    r.Number,
		Owner:     r.Owner,
		Status:    string(r.Status),
		CreatedAt: rfctime.RFC3339(r.CreatedAt),
	}
}

func (s *Summary) Equal(o *Summary) bool {
	if s == nil || o == nil {
		return s == nil && o == nil
	}
	return s.RunId == o.RunId &&
		s.Name == o.Name &&
		s.Number == o.Number &&
		s.Owner == o.Owner &&
		s.Status == o.Status &&
		s.CreatedAt.Equal(&o.CreatedAt)
}

type ProgressBucket struct {
	JobIds []string `json:"job_ids,omitempty"`
	Total  int      `json:"total"`
}

func (b ProgressBucket) Equal(o ProgressBucket) bool {
	return b.Total == o.Total && cmp.SliceContentEq(b.JobIds, o.JobIds)
}

type Progress struct {
	Running  ProgressBucket `json:"running"`
	Finished ProgressBucket `json:"finished"`
	Failed   ProgressBucket `json:"failed"`
	Total    ProgressBucket `json:"total"`
}

func ComposeProgress(p domain.Progress) Progress {
	bucket := func(b domain.ProgressBucket) ProgressBucket {
		return ProgressBucket{JobIds: b.JobIds, Total: b.Total}
	}
	return Progress{
		Running:  bucket(p.Running),
		Finished: bucket(p.Finished),
		Failed:   bucket(p.Failed),
		Total:    bucket(p.Total),
	}
}

func (p Progress) Equal(o Progress) bool {
	return p.Running.Equal(o.Running) &&
		p.Finished.Equal(o.Finished) &&
		p.Failed.Equal(o.Failed) &&
		p.Total.Equal(o.Total)
}

type Session struct {
	Type   string `json:"type"`
	Path   string `json:"path"`
	Status string `json:"status"`
}

func (s *Session) Equal(o *Session) bool {
	if s == nil || o == nil {
		return s == nil && o == nil
	}
	return *s == *o
}

type Share struct {
	UserId     string           `json:"user_id"`
	Message    string           `json:"message,omitempty"`
	ValidUntil *rfctime.RFC3339 `json:"valid_until,omitempty"`
}

func (s Share) Equal(o Share) bool {
	return s.UserId == o.UserId &&
		s.Message == o.Message &&
		s.ValidUntil.Equal(o.ValidUntil)
}

type Detail struct {
	Summary
	Progress   Progress         `json:"progress"`
	Session    *Session         `json:"session,omitempty"`
	SharedWith []Share          `json:"shared_with,omitempty"`
	DiskUsage  int64            `json:"disk_usage"`
	StartedAt  *rfctime.RFC3339 `json:"startedAt,omitempty"`
	FinishedAt *rfctime.RFC3339 `json:"finishedAt,omitempty"`
	StoppedAt  *rfctime.RFC3339 `json:"stoppedAt,omitempty"`
}

func ComposeDetail(r domain.Run) Detail {
	var sess *Session
	if s := r.Session; s != nil {
		sess = &Session{
			Type:   string(s.Kind),
			Path:   s.Path,
			Status: string(s.Status),
		}
	}

	return Detail{
		Summary:  ComposeSummary(r.RunBody),
		Progress: ComposeProgress(r.Progress),
		Session:  sess,
		SharedWith: slices.Map(r.SharedWith, func(s domain.Share) Share {
			return Share{
				UserId:     s.UserId,
				Message:    s.Message,
				ValidUntil: timestamp(s.ValidUntil),
			}
		}),
		DiskUsage:  r.DiskUsage,
		StartedAt:  timestamp(r.StartedAt),
		FinishedAt: timestamp(r.FinishedAt),
		StoppedAt:  timestamp(r.StoppedAt),
	}
}

func (r *Detail) Equal(o *Detail) bool {
	if r == nil || o == nil {
		return r == nil && o == nil
	}
	return r.Summary.Equal(&o.Summary) &&
		r.Progress.Equal(o.Progress) &&
		r.Session.Equal(o.Session) &&
		cmp.SliceContentEqWith(
			r.SharedWith, o.SharedWith,
			func(a, b Share) bool { return a.Equal(b) },
		) &&
		r.DiskUsage == o.DiskUsage &&
		r.StartedAt.Equal(o.StartedAt) &&
		r.FinishedAt.Equal(o.FinishedAt) &&
		r.StoppedAt.Equal(o.StoppedAt)
}

type JobDetail struct {
	Id           string           `json:"id"`
	Name         string           `json:"name"`
	Status       string           `json:"status"`
	BackendJobId string           `json:"backend_job_id,omitempty"`
	StartedAt    *rfctime.RFC3339 `json:"startedAt,omitempty"`
	FinishedAt   *rfctime.RFC3339 `json:"finishedAt,omitempty"`
}

func ComposeJobDetail(j domain.Job) JobDetail {
	return JobDetail{
		Id:           j.Id,
		Name:         j.Name,
		Status:       string(j.Status),
		BackendJobId: j.BackendJobId,
		StartedAt:    timestamp(j.StartedAt),
		FinishedAt:   timestamp(j.FinishedAt),
	}
}

type StatusResponse struct {
	RunId    string      `json:"runId"`
	Status   string      `json:"status"`
	Progress Progress    `json:"progress"`
	Jobs     []JobDetail `json:"jobs,omitempty"`
}

func ComposeStatus(runId string, status domain.RunStatus, p domain.Progress, jobs []domain.Job) StatusResponse {
	return StatusResponse{
		RunId:    runId,
		Status:   string(status),
		Progress: ComposeProgress(p),
		Jobs:     slices.Map(jobs, ComposeJobDetail),
	}
}

type JobLog struct {
	JobDetail
	Logs string `json:"logs"`
}

type LogsResponse struct {
	RunId        string   `json:"runId"`
	WorkflowLogs string   `json:"workflow_logs"`
	Jobs         []JobLog `json:"jobs"`
}

func ComposeLogs(runId string, workflowLogs string, jobs []domain.Job) LogsResponse {
	return LogsResponse{
		RunId:        runId,
		WorkflowLogs: workflowLogs,
		Jobs: slices.Map(jobs, func(j domain.Job) JobLog {
			return JobLog{JobDetail: ComposeJobDetail(j), Logs: j.LogText}
		}),
	}
}

func timestamp(t *time.Time) *rfctime.RFC3339 {
	if t == nil {
		return nil
	}
	ts := rfctime.RFC3339(*t)
	return &ts
}
