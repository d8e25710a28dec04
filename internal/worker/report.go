package worker

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/argus-advisory/advisor-cli/internal/blob"
	"github.com/argus-advisory/advisor-cli/internal/model"
	"github.com/argus-advisory/advisor-cli/internal/profiler"
	"github.com/argus-advisory/advisor-cli/pkg/advisor"
)

// handleReport drafts the advisory narrative from computed KPIs, persists
// the report, and copies the raw artifact to blob storage.
func (w *Worker) handleReport(ctx context.Context, job model.Job) (model.JobStatus, error) {
	project, err := w.store.GetProject(ctx, job.ProjectID)
	if err != nil {
		return "", eris.Wrapf(err, "worker: load project %s", job.ProjectID)
	}
	if project == nil {
		return "", eris.Errorf("worker: project %s not found", job.ProjectID)
	}

	approved, err := w.store.ListKPIs(ctx, job.ProjectID, model.KPIStatusApproved)
	if err != nil {
		return "", eris.Wrapf(err, "worker: list KPIs for project %s", job.ProjectID)
	}
	// Only KPIs that computed to a usable value feed the narrative. A KPI
	// whose plan produced nothing is computed-but-absent and stays out.
	computed := approved[:0]
	for _, k := range approved {
		if k.Value != nil {
			computed = append(computed, k)
		}
	}
	if len(computed) == 0 {
		zap.L().Info("worker: no computed KPI values, reporting without metrics",
			zap.String("project_id", job.ProjectID),
		)
	}

	t, err := w.loadProjectTable(ctx, job.ProjectID)
	if err != nil {
		return "", err
	}

	draft, err := w.advisor.GenerateReport(ctx, advisor.ReportContext{
		Project: advisor.ProjectContext{
			Name:                project.Name,
			BusinessDescription: project.BusinessDescription,
			Profile:             profiler.Profile(t),
		},
		KPIs: computed,
	})
	if err != nil {
		return "", err
	}

	report := model.NewAdvisoryReport(project.ID)
	report.BusinessModelSummary = draft.BusinessModelSummary
	report.Risks = draft.Risks
	report.ComplianceNotes = draft.ComplianceNotes
	report.Forecasts = draft.Forecasts
	report.Recommendations = draft.Recommendations
	report.BlobKey = blob.ReportKey(project.ID, report.ID)

	artifact, err := json.Marshal(report)
	if err != nil {
		return "", eris.Wrap(err, "worker: marshal report artifact")
	}
	if err := w.blobs.Upload(ctx, report.BlobKey, artifact, "application/json"); err != nil {
		return "", eris.Wrapf(err, "worker: upload report artifact %s", report.BlobKey)
	}

	if err := w.store.CreateReport(ctx, report); err != nil {
		return "", eris.Wrapf(err, "worker: store report %s", report.ID)
	}
	zap.L().Info("worker: report stored",
		zap.String("project_id", project.ID),
		zap.String("report_id", report.ID),
		zap.Int("recommendations", len(report.Recommendations)),
	)

	if w.exporter != nil {
		if err := w.exporter.Export(ctx, project.Name, &report); err != nil {
			// Export is best effort; the report is already persisted.
			zap.L().Warn("worker: report export failed",
				zap.String("report_id", report.ID),
				zap.Error(err),
			)
		}
	}

	return model.JobStatusComplete, nil
}
