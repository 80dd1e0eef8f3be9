package domain

import "time"

// JobStatus is the lifecycle of one child job dispatched by the
// job-controller sidecar.
type JobStatus string

const (
	JobCreated  JobStatus = "created"
	JobQueued   JobStatus = "queued"
	JobRunning  JobStatus = "running"
	JobFinished JobStatus = "finished"
	JobFailed   JobStatus = "failed"
	JobStopped  JobStatus = "stopped"
)

// Job is one child job spawned for a run.
type Job struct {
	Id           string
	RunId        string
	Status       JobStatus
	BackendJobId string
	Name         string
	Image        string
	Command      string
	LogText      string
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// JobCache remembers the fingerprints under which a job's result was
// produced, for reuse by the execution engine.
type JobCache struct {
	JobId string

	// Hash over the job spec and workflow document.
	ParametersFingerprint string

	// Hash over the workspace file-access state.
	WorkspaceFingerprint string

	// Where the archived result lives.
	ResultPath string
}

// CachingInfo is what a status event carries when a job's result
// became cache-eligible.
type CachingInfo struct {
	JobId             string `json:"job_id"`
	JobSpec           string `json:"job_spec"`
	WorkflowJSON      string `json:"workflow_json"`
	WorkflowWorkspace string `json:"workflow_workspace"`
	ResultPath        string `json:"result_path"`
}
