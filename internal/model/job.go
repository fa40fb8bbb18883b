package model

import "time"

// JobType identifies the kind of background work a job performs.
type JobType string

const JobTypeAIGroupGeneration JobType = "ai_group_generation"

// JobStatus is the overall state of a background job. Transitions are
// monotonic: a job never leaves completed or failed.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// StageStatus is the state of a single named stage within a job.
type StageStatus string

const (
	StageStatusPending    StageStatus = "pending"
	StageStatusInProgress StageStatus = "in_progress"
	StageStatusCompleted  StageStatus = "completed"
)

// JobStage is one named phase of a background job, persisted so a polling
// client gets fine-grained progress.
type JobStage struct {
	Name     string      `json:"name"`
	Status   StageStatus `json:"status"`
	Progress int         `json:"progress"`
}

// Job is a persisted background job record. Progress is a 0-100 checkpoint
// value and is non-decreasing within a job's lifetime.
type Job struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Type        JobType           `json:"type"`
	Status      JobStatus         `json:"status"`
	Progress    int               `json:"progress"`
	Stages      []JobStage        `json:"stages"`
	Result      *GroupingResult   `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	StageErrors map[string]string `json:"stage_errors,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Terminal reports whether the job has reached a final state.
func (j Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
