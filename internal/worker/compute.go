package worker

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/argus-advisory/advisor-cli/internal/engine"
	"github.com/argus-advisory/advisor-cli/internal/model"
)

// handleCompute evaluates every approved KPI against the project table and
// persists the results, absent values included. On success it chains a
// report job. Zero approved KPIs completes the job without touching
// dataset storage.
func (w *Worker) handleCompute(ctx context.Context, job model.Job) (model.JobStatus, error) {
	approved, err := w.store.ListKPIs(ctx, job.ProjectID, model.KPIStatusApproved)
	if err != nil {
		return "", eris.Wrapf(err, "worker: list approved KPIs for project %s", job.ProjectID)
	}
	if len(approved) == 0 {
		zap.L().Info("worker: no approved KPIs, nothing to compute",
			zap.String("project_id", job.ProjectID),
		)
		return model.JobStatusComplete, nil
	}

	t, err := w.loadProjectTable(ctx, job.ProjectID)
	if err != nil {
		return "", err
	}

	for _, kpi := range approved {
		result := engine.Compute(t, kpi.Plan)
		if err := w.store.UpdateKPIResult(ctx, kpi.ID, result); err != nil {
			return "", eris.Wrapf(err, "worker: store result for KPI %s", kpi.ID)
		}
		zap.L().Debug("worker: KPI computed",
			zap.String("kpi_id", kpi.ID),
			zap.String("name", kpi.Name),
			zap.Bool("has_value", result.Value != nil),
		)
	}

	next := model.NewJob(job.ProjectID, model.StageGenerateReport)
	if err := w.store.CreateJob(ctx, next); err != nil {
		return "", eris.Wrap(err, "worker: create report job")
	}
	if err := w.queue.Enqueue(ctx, model.JobMessage{
		JobID:     next.ID,
		ProjectID: next.ProjectID,
		Stage:     next.Stage,
	}); err != nil {
		return "", eris.Wrap(err, "worker: enqueue report job")
	}

	zap.L().Info("worker: KPIs computed, report job enqueued",
		zap.String("project_id", job.ProjectID),
		zap.Int("kpis", len(approved)),
		zap.String("report_job_id", next.ID),
	)
	return model.JobStatusComplete, nil
}
