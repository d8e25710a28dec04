package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-advisory/advisor-cli/internal/blob"
	"github.com/argus-advisory/advisor-cli/internal/model"
	"github.com/argus-advisory/advisor-cli/internal/queue"
	"github.com/argus-advisory/advisor-cli/pkg/advisor"
)

const salesCSV = `revenue,category,date
100,A,2024-01-01
200,B,2024-01-02
150,A,2024-01-03
300,B,2024-01-04
250,A,2024-01-05
400,B,2024-01-06
50,A,2024-01-07
175,B,2024-01-08
325,A,2024-01-09
275,B,2024-01-10
`

type fixture struct {
	store    *fakeStore
	queue    *queue.MemoryQueue
	blobs    *fakeBlob
	advisor  *fakeAdvisor
	exporter *fakeExporter
	worker   *Worker
	project  model.Project
	dataset  model.Dataset
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		store: newFakeStore(),
		queue: queue.NewMemory(),
		blobs: newFakeBlob(),
		advisor: &fakeAdvisor{
			summary: "Sells things in two categories.",
			proposals: []model.KPIProposal{
				{Name: "Total Revenue", Plan: model.Plan{Metric: model.MetricSum, Column: "revenue"}},
				{Name: "Orders", Plan: model.Plan{Metric: model.MetricCount}},
			},
			draft: &advisor.ReportDraft{
				BusinessModelSummary: "Two-category retail.",
				Recommendations: []model.Recommendation{
					{Title: "Focus on B", Description: "B outsells A", RequiresApproval: true},
				},
			},
		},
		exporter: &fakeExporter{},
	}

	f.project = model.NewProject("Corner Coffee", "a small shop")
	require.NoError(t, f.store.CreateProject(ctx, f.project))

	f.dataset = model.NewDataset(f.project.ID, "sales.csv", blob.DatasetKey(f.project.ID, "d1", "sales.csv"))
	require.NoError(t, f.store.CreateDataset(ctx, f.dataset))
	require.NoError(t, f.blobs.Upload(ctx, f.dataset.BlobKey, []byte(salesCSV), "text/csv"))

	f.worker = New(f.store, f.queue, f.blobs, f.advisor,
		Options{PollWait: 50 * time.Millisecond, ErrorBackoff: 10 * time.Millisecond},
		WithExporter(f.exporter),
	)
	return f
}

// deliver creates a job, enqueues its message, and runs it through handle.
func (f *fixture) deliver(t *testing.T, stage model.JobStage) model.Job {
	t.Helper()
	ctx := context.Background()

	job := model.NewJob(f.project.ID, stage)
	require.NoError(t, f.store.CreateJob(ctx, job))
	require.NoError(t, f.queue.Enqueue(ctx, model.JobMessage{
		JobID:     job.ID,
		ProjectID: job.ProjectID,
		Stage:     stage,
	}))

	deliveries, err := f.queue.Receive(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)

	f.worker.handle(ctx, deliveries[0])
	return job
}

func (f *fixture) jobStatus(t *testing.T, jobID string) model.Job {
	t.Helper()
	job, err := f.store.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.NotNil(t, job)
	return *job
}

func TestProfileStage(t *testing.T) {
	f := newFixture(t)
	job := f.deliver(t, model.StageProfile)

	got := f.jobStatus(t, job.ID)
	assert.Equal(t, model.JobStatusAwaitingKPIApproval, got.Status)
	assert.Empty(t, got.Error)

	ds, err := f.store.GetDataset(context.Background(), f.dataset.ID)
	require.NoError(t, err)
	require.NotNil(t, ds.Profile)
	assert.Equal(t, 10, ds.Profile.RowCount)
	assert.Equal(t, 3, ds.Profile.ColumnCount)

	kpis, err := f.store.ListKPIs(context.Background(), f.project.ID, model.KPIStatusProposed)
	require.NoError(t, err)
	require.Len(t, kpis, 2)
	assert.Equal(t, "Total Revenue", kpis[0].Name)

	pending, inflight := f.queue.Depth()
	assert.Zero(t, pending)
	assert.Zero(t, inflight)
}

func TestGenerateKPIsStageAliasesProfile(t *testing.T) {
	f := newFixture(t)
	job := f.deliver(t, model.StageGenerateKPIs)
	assert.Equal(t, model.JobStatusAwaitingKPIApproval, f.jobStatus(t, job.ID).Status)
}

func TestProfileStage_AdvisorFailure(t *testing.T) {
	f := newFixture(t)
	f.advisor.err = assert.AnError

	job := f.deliver(t, model.StageProfile)

	got := f.jobStatus(t, job.ID)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.NotEmpty(t, got.Error)

	// Failed or not, the message is acknowledged.
	pending, inflight := f.queue.Depth()
	assert.Zero(t, pending)
	assert.Zero(t, inflight)
}

func TestComputeStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	kpi := model.NewKPI(f.project.ID, model.KPIProposal{
		Name: "Total Revenue",
		Plan: model.Plan{Metric: model.MetricSum, Column: "revenue", GroupBy: []string{"category"}},
	})
	kpi.Status = model.KPIStatusApproved
	require.NoError(t, f.store.CreateKPI(ctx, kpi))

	job := f.deliver(t, model.StageComputeKPIs)
	assert.Equal(t, model.JobStatusComplete, f.jobStatus(t, job.ID).Status)

	stored, err := f.store.GetKPI(ctx, kpi.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Value)
	assert.InDelta(t, 2225.0, *stored.Value, 1e-9)
	assert.Equal(t, "B", stored.ValueLabel)
	require.Len(t, stored.ValueBreakdown, 2)
	assert.NotNil(t, stored.ComputedAt)

	// A report job is chained: created queued and enqueued exactly once.
	reportJobs := f.store.jobsInStage(f.project.ID, model.StageGenerateReport)
	require.Len(t, reportJobs, 1)
	assert.Equal(t, model.JobStatusQueued, reportJobs[0].Status)

	pending, _ := f.queue.Depth()
	assert.Equal(t, 1, pending)
	deliveries, err := f.queue.Receive(ctx, 1, time.Second)
	require.NoError(t, err)
	assert.Equal(t, model.StageGenerateReport, deliveries[0].Message.Stage)
	assert.Equal(t, reportJobs[0].ID, deliveries[0].Message.JobID)
}

func TestComputeStage_NoApprovedKPIs(t *testing.T) {
	f := newFixture(t)

	job := f.deliver(t, model.StageComputeKPIs)

	assert.Equal(t, model.JobStatusComplete, f.jobStatus(t, job.ID).Status)
	assert.Zero(t, f.blobs.downloads, "dataset storage must not be touched")
	assert.Empty(t, f.store.jobsInStage(f.project.ID, model.StageGenerateReport))
	pending, _ := f.queue.Depth()
	assert.Zero(t, pending)
}

func TestReportStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	kpi := model.NewKPI(f.project.ID, model.KPIProposal{
		Name: "Total Revenue",
		Plan: model.Plan{Metric: model.MetricSum, Column: "revenue"},
	})
	kpi.Status = model.KPIStatusApproved
	require.NoError(t, f.store.CreateKPI(ctx, kpi))
	value := 2225.0
	require.NoError(t, f.store.UpdateKPIResult(ctx, kpi.ID, model.KPIResult{
		Value:      &value,
		ComputedAt: time.Now().UTC(),
	}))

	job := f.deliver(t, model.StageGenerateReport)
	assert.Equal(t, model.JobStatusComplete, f.jobStatus(t, job.ID).Status)

	report, err := f.store.LatestReport(ctx, f.project.ID)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, "Two-category retail.", report.BusinessModelSummary)
	require.Len(t, report.Recommendations, 1)

	// Artifact copied to blob storage under the canonical key.
	assert.Equal(t, blob.ReportKey(f.project.ID, report.ID), report.BlobKey)
	artifact, err := f.blobs.Download(ctx, report.BlobKey)
	require.NoError(t, err)
	var stored model.AdvisoryReport
	require.NoError(t, json.Unmarshal(artifact, &stored))
	assert.Equal(t, report.ID, stored.ID)

	assert.Equal(t, []string{report.ID}, f.exporter.exported)
}

func TestReportStage_AbsentValueKPIsExcluded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Computed, but the plan produced nothing: the column does not exist.
	kpi := model.NewKPI(f.project.ID, model.KPIProposal{
		Name: "Profit Margin",
		Plan: model.Plan{Metric: model.MetricSum, Column: "profit"},
	})
	kpi.Status = model.KPIStatusApproved
	require.NoError(t, f.store.CreateKPI(ctx, kpi))
	require.NoError(t, f.store.UpdateKPIResult(ctx, kpi.ID, model.KPIResult{
		ComputedAt: time.Now().UTC(),
	}))

	job := f.deliver(t, model.StageGenerateReport)
	assert.Equal(t, model.JobStatusComplete, f.jobStatus(t, job.ID).Status)

	assert.Empty(t, f.advisor.lastReportContext().KPIs)

	report, err := f.store.LatestReport(ctx, f.project.ID)
	require.NoError(t, err)
	require.NotNil(t, report)
}

func TestReportStage_NoComputedKPIsStillReports(t *testing.T) {
	f := newFixture(t)
	job := f.deliver(t, model.StageGenerateReport)
	assert.Equal(t, model.JobStatusComplete, f.jobStatus(t, job.ID).Status)

	report, err := f.store.LatestReport(context.Background(), f.project.ID)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, "Two-category retail.", report.BusinessModelSummary)
}

func TestReportStage_ExporterFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.exporter.err = assert.AnError

	kpi := model.NewKPI(f.project.ID, model.KPIProposal{
		Name: "Orders",
		Plan: model.Plan{Metric: model.MetricCount},
	})
	kpi.Status = model.KPIStatusApproved
	require.NoError(t, f.store.CreateKPI(ctx, kpi))
	value := 10.0
	require.NoError(t, f.store.UpdateKPIResult(ctx, kpi.ID, model.KPIResult{
		Value:      &value,
		ComputedAt: time.Now().UTC(),
	}))

	job := f.deliver(t, model.StageGenerateReport)
	assert.Equal(t, model.JobStatusComplete, f.jobStatus(t, job.ID).Status)
}

func TestDuplicateDeliveryIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job := model.NewJob(f.project.ID, model.StageProfile)
	job.Status = model.JobStatusAwaitingKPIApproval
	require.NoError(t, f.store.CreateJob(ctx, job))
	require.NoError(t, f.queue.Enqueue(ctx, model.JobMessage{
		JobID: job.ID, ProjectID: job.ProjectID, Stage: model.StageProfile,
	}))

	deliveries, err := f.queue.Receive(ctx, 1, time.Second)
	require.NoError(t, err)
	f.worker.handle(ctx, deliveries[0])

	summarize, propose, _ := f.advisor.calls()
	assert.Zero(t, summarize)
	assert.Zero(t, propose)
	assert.Equal(t, model.JobStatusAwaitingKPIApproval, f.jobStatus(t, job.ID).Status)

	pending, inflight := f.queue.Depth()
	assert.Zero(t, pending)
	assert.Zero(t, inflight)
}

func TestUnknownJobIsAcked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.queue.Enqueue(ctx, model.JobMessage{
		JobID: "ghost", ProjectID: f.project.ID, Stage: model.StageProfile,
	}))
	deliveries, err := f.queue.Receive(ctx, 1, time.Second)
	require.NoError(t, err)

	f.worker.handle(ctx, deliveries[0])

	pending, inflight := f.queue.Depth()
	assert.Zero(t, pending)
	assert.Zero(t, inflight)
}

func TestUnknownStageFailsJob(t *testing.T) {
	f := newFixture(t)
	job := f.deliver(t, model.JobStage("teleport"))

	got := f.jobStatus(t, job.ID)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Contains(t, got.Error, "unknown stage")
}

func TestRunProcessesUntilCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	job := model.NewJob(f.project.ID, model.StageProfile)
	require.NoError(t, f.store.CreateJob(ctx, job))
	require.NoError(t, f.queue.Enqueue(ctx, model.JobMessage{
		JobID: job.ID, ProjectID: job.ProjectID, Stage: model.StageProfile,
	}))

	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		j, err := f.store.GetJob(context.Background(), job.ID)
		return err == nil && j != nil && j.Status == model.JobStatusAwaitingKPIApproval
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

func TestShutdownMidMessageFinishesJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Backends that honor context would otherwise abort the status writes,
	// stranding an acked message's job in a non-terminal status.
	w := New(&cancelStore{Store: f.store}, f.queue, f.blobs, f.advisor,
		Options{PollWait: 50 * time.Millisecond, ErrorBackoff: 10 * time.Millisecond},
	)

	job := model.NewJob(f.project.ID, model.StageProfile)
	require.NoError(t, f.store.CreateJob(ctx, job))
	require.NoError(t, f.queue.Enqueue(ctx, model.JobMessage{
		JobID: job.ID, ProjectID: job.ProjectID, Stage: model.StageProfile,
	}))
	deliveries, err := f.queue.Receive(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)

	// The shutdown signal lands after the message was accepted.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	w.handle(cancelled, deliveries[0])

	got := f.jobStatus(t, job.ID)
	assert.Equal(t, model.JobStatusAwaitingKPIApproval, got.Status)
	assert.Empty(t, got.Error)

	pending, inflight := f.queue.Depth()
	assert.Zero(t, pending)
	assert.Zero(t, inflight)
}
