package worker

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/argus-advisory/advisor-cli/internal/model"
	"github.com/argus-advisory/advisor-cli/internal/profiler"
	"github.com/argus-advisory/advisor-cli/internal/table"
	"github.com/argus-advisory/advisor-cli/pkg/advisor"
)

// handleProfile loads the project's datasets, profiles each one, and asks
// the advisor for a business-model summary plus KPI proposals. Proposals
// are persisted in proposed status; the job then waits on human approval.
func (w *Worker) handleProfile(ctx context.Context, job model.Job) (model.JobStatus, error) {
	project, err := w.store.GetProject(ctx, job.ProjectID)
	if err != nil {
		return "", eris.Wrapf(err, "worker: load project %s", job.ProjectID)
	}
	if project == nil {
		return "", eris.Errorf("worker: project %s not found", job.ProjectID)
	}

	datasets, tables, err := w.loadProjectTables(ctx, job.ProjectID)
	if err != nil {
		return "", err
	}

	for i, d := range datasets {
		p := profiler.Profile(tables[i])
		if err := w.store.UpdateDatasetProfile(ctx, d.ID, &p); err != nil {
			return "", eris.Wrapf(err, "worker: store profile for dataset %s", d.ID)
		}
	}

	combined := profiler.Profile(table.Concat(tables...))
	pc := advisor.ProjectContext{
		Name:                project.Name,
		BusinessDescription: project.BusinessDescription,
		Profile:             combined,
	}

	summary, err := w.advisor.SummarizeBusinessModel(ctx, pc)
	if err != nil {
		return "", err
	}
	zap.L().Info("worker: business model summarized",
		zap.String("project_id", project.ID),
		zap.String("summary", summary),
	)

	proposals, err := w.advisor.ProposeKPIs(ctx, pc, w.opts.MaxKPIs)
	if err != nil {
		return "", err
	}

	for _, p := range proposals {
		if err := w.store.CreateKPI(ctx, model.NewKPI(project.ID, p)); err != nil {
			return "", eris.Wrapf(err, "worker: store proposal %q", p.Name)
		}
	}
	zap.L().Info("worker: KPI proposals stored",
		zap.String("project_id", project.ID),
		zap.Int("count", len(proposals)),
	)

	return model.JobStatusAwaitingKPIApproval, nil
}
