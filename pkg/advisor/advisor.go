// Package advisor is the LLM collaborator for the pipeline: it summarizes
// business models, proposes KPI plans, and drafts advisory reports. All
// methods return structured data parsed and validated from model output;
// callers never see raw completions.
package advisor

import (
	"context"

	"github.com/argus-advisory/advisor-cli/internal/model"
)

// ProjectContext carries what the prompts need to know about a project
// and its data.
type ProjectContext struct {
	Name                string
	BusinessDescription string
	Profile             model.DatasetProfile
}

// ReportContext extends the project context with computed KPI results for
// report drafting.
type ReportContext struct {
	Project ProjectContext
	KPIs    []model.KPI
}

// ReportDraft is the advisory narrative produced by GenerateReport. The
// worker wraps it in a persisted report with ids and blob keys.
type ReportDraft struct {
	BusinessModelSummary string                 `json:"business_model_summary"`
	Risks                []model.RiskSignal     `json:"risks"`
	ComplianceNotes      []model.ComplianceNote `json:"compliance_notes"`
	Forecasts            []model.Forecast       `json:"forecasts"`
	Recommendations      []model.Recommendation `json:"recommendations"`
}

// Client defines the advisory operations used by the worker and the
// custom-KPI endpoint.
type Client interface {
	// SummarizeBusinessModel returns a short prose summary of how the
	// business makes money, grounded in the dataset profile.
	SummarizeBusinessModel(ctx context.Context, pc ProjectContext) (string, error)

	// ProposeKPIs returns up to maxKPIs validated KPI proposals whose plans
	// reference only profiled columns.
	ProposeKPIs(ctx context.Context, pc ProjectContext, maxKPIs int) ([]model.KPIProposal, error)

	// ProposeCustomKPI turns a natural-language metric request into one
	// validated proposal.
	ProposeCustomKPI(ctx context.Context, pc ProjectContext, request string) (*model.KPIProposal, error)

	// GenerateReport drafts the advisory narrative from computed KPIs.
	GenerateReport(ctx context.Context, rc ReportContext) (*ReportDraft, error)
}
