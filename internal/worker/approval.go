package worker

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/argus-advisory/advisor-cli/internal/model"
	"github.com/argus-advisory/advisor-cli/internal/queue"
	"github.com/argus-advisory/advisor-cli/internal/store"
)

// Approvals applies human approval decisions. It is the only path past the
// pipeline's approval gates: approving KPIs enqueues the compute stage,
// and approving recommendations edits a stored report in place.
type Approvals struct {
	store store.Store
	queue queue.Queue
}

// NewApprovals builds the approval service.
func NewApprovals(st store.Store, q queue.Queue) *Approvals {
	return &Approvals{store: st, queue: q}
}

// KPIApprovalResult summarizes one bulk approval call.
type KPIApprovalResult struct {
	Approved int    `json:"approved"`
	Rejected int    `json:"rejected"`
	JobID    string `json:"job_id,omitempty"`
}

// ApproveKPIs applies a mapping of KPI id to approved/rejected. When at
// least one KPI becomes approved, exactly one compute job is created and
// enqueued; its id is returned in the result.
func (a *Approvals) ApproveKPIs(ctx context.Context, projectID string, decisions map[string]model.KPIStatus) (*KPIApprovalResult, error) {
	if len(decisions) == 0 {
		return nil, eris.New("worker: no approval decisions given")
	}

	result := &KPIApprovalResult{}
	for kpiID, status := range decisions {
		if status != model.KPIStatusApproved && status != model.KPIStatusRejected {
			return nil, eris.Errorf("worker: decision for KPI %s must be approved or rejected, got %q", kpiID, status)
		}
		if err := a.store.UpdateKPIStatus(ctx, kpiID, status); err != nil {
			return nil, eris.Wrapf(err, "worker: update KPI %s", kpiID)
		}
		if status == model.KPIStatusApproved {
			result.Approved++
		} else {
			result.Rejected++
		}
	}

	if result.Approved > 0 {
		job := model.NewJob(projectID, model.StageComputeKPIs)
		if err := a.store.CreateJob(ctx, job); err != nil {
			return nil, eris.Wrap(err, "worker: create compute job")
		}
		if err := a.queue.Enqueue(ctx, model.JobMessage{
			JobID:     job.ID,
			ProjectID: job.ProjectID,
			Stage:     job.Stage,
		}); err != nil {
			return nil, eris.Wrap(err, "worker: enqueue compute job")
		}
		result.JobID = job.ID
	}

	zap.L().Info("worker: KPI approvals applied",
		zap.String("project_id", projectID),
		zap.Int("approved", result.Approved),
		zap.Int("rejected", result.Rejected),
		zap.String("compute_job_id", result.JobID),
	)
	return result, nil
}

// ApproveRecommendations applies a mapping of recommendation index to an
// approval boolean, in place on a stored report. Out-of-range indexes are
// rejected before anything is written.
func (a *Approvals) ApproveRecommendations(ctx context.Context, reportID string, decisions map[int]bool) (*model.AdvisoryReport, error) {
	if len(decisions) == 0 {
		return nil, eris.New("worker: no approval decisions given")
	}

	report, err := a.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, eris.Wrapf(err, "worker: load report %s", reportID)
	}
	if report == nil {
		return nil, eris.Errorf("worker: report %s not found", reportID)
	}

	for idx := range decisions {
		if idx < 0 || idx >= len(report.Recommendations) {
			return nil, eris.Errorf("worker: recommendation index %d out of range", idx)
		}
	}
	for idx, approved := range decisions {
		v := approved
		report.Recommendations[idx].Approved = &v
	}

	if err := a.store.UpdateReportRecommendations(ctx, reportID, report.Recommendations); err != nil {
		return nil, eris.Wrapf(err, "worker: update report %s", reportID)
	}
	return report, nil
}
