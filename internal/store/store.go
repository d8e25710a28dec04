package store

import (
	"context"

	"github.com/argus-advisory/advisor-cli/internal/model"
)

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	ProjectID string          `json:"project_id,omitempty"`
	Status    model.JobStatus `json:"status,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Offset    int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for projects, datasets, jobs,
// KPIs and advisory reports. Get methods return (nil, nil) when the entity
// does not exist; update methods return an error instead.
type Store interface {
	// Projects
	CreateProject(ctx context.Context, p model.Project) error
	GetProject(ctx context.Context, projectID string) (*model.Project, error)
	ListProjects(ctx context.Context) ([]model.Project, error)

	// Datasets
	CreateDataset(ctx context.Context, d model.Dataset) error
	GetDataset(ctx context.Context, datasetID string) (*model.Dataset, error)
	ListDatasets(ctx context.Context, projectID string) ([]model.Dataset, error)
	UpdateDatasetProfile(ctx context.Context, datasetID string, profile *model.DatasetProfile) error

	// Jobs
	CreateJob(ctx context.Context, j model.Job) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)

	// KPIs
	CreateKPI(ctx context.Context, k model.KPI) error
	GetKPI(ctx context.Context, kpiID string) (*model.KPI, error)
	ListKPIs(ctx context.Context, projectID string, status model.KPIStatus) ([]model.KPI, error)
	UpdateKPIStatus(ctx context.Context, kpiID string, status model.KPIStatus) error
	UpdateKPIResult(ctx context.Context, kpiID string, result model.KPIResult) error

	// Reports
	CreateReport(ctx context.Context, r model.AdvisoryReport) error
	GetReport(ctx context.Context, reportID string) (*model.AdvisoryReport, error)
	LatestReport(ctx context.Context, projectID string) (*model.AdvisoryReport, error)
	UpdateReportRecommendations(ctx context.Context, reportID string, recs []model.Recommendation) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
