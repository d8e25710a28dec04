package model

import (
	"time"

	"github.com/google/uuid"
)

// JobStage identifies one step of the project processing pipeline.
type JobStage string

const (
	StageProfile        JobStage = "profile"
	StageGenerateKPIs   JobStage = "generate_kpis" // alias of profile, kept for routing clarity
	StageComputeKPIs    JobStage = "compute_kpis"
	StageGenerateReport JobStage = "generate_report"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusQueued                         JobStatus = "queued"
	JobStatusRunning                        JobStatus = "running"
	JobStatusAwaitingKPIApproval            JobStatus = "awaiting_kpi_approval"
	JobStatusAwaitingRecommendationApproval JobStatus = "awaiting_recommendation_approval"
	JobStatusComplete                       JobStatus = "complete"
	JobStatusFailed                         JobStatus = "failed"
)

// Terminal reports whether a job in this status will make no further
// progress on its own. Approval gates count: progression past them happens
// through a new job, never by resuming the old one.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusComplete, JobStatusFailed,
		JobStatusAwaitingKPIApproval, JobStatusAwaitingRecommendationApproval:
		return true
	}
	return false
}

// Job is one pipeline invocation at one stage. A full pipeline run for a
// project spans multiple jobs chained by stage.
type Job struct {
	ID        string    `json:"job_id"`
	ProjectID string    `json:"project_id"`
	Stage     JobStage  `json:"stage"`
	Status    JobStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewJob creates a queued job for a project stage.
func NewJob(projectID string, stage JobStage) Job {
	now := time.Now().UTC()
	return Job{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Stage:     stage,
		Status:    JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobMessage is the queue payload for one unit of work. It is never
// persisted; the queue delivers it at least once.
type JobMessage struct {
	JobID     string   `json:"job_id"`
	ProjectID string   `json:"project_id"`
	Stage     JobStage `json:"stage"`
	DatasetID string   `json:"dataset_id,omitempty"`
}
