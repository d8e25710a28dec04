package model

import (
	"time"

	"github.com/google/uuid"
)

// RiskSignal is one risk called out by the advisory narrative.
type RiskSignal struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"` // low, medium, high
}

// ComplianceNote flags a regulation the business may need to act on.
type ComplianceNote struct {
	Regulation     string `json:"regulation"`
	Observation    string `json:"observation"`
	ActionRequired bool   `json:"action_required"`
}

// Forecast is a forward-looking trend statement for one KPI.
type Forecast struct {
	KPIName     string `json:"kpi_name"`
	HorizonDays int    `json:"horizon_days"`
	Trend       string `json:"trend"` // up, down, flat
	Narrative   string `json:"narrative"`
}

// Recommendation is an advisory action item. Approved stays nil until a
// human decides; the recommendation-approval call flips it in place.
type Recommendation struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	RequiresApproval bool   `json:"requires_approval"`
	Approved         *bool  `json:"approved,omitempty"`
}

// AdvisoryReport is the structured narrative produced by the report stage.
// BlobKey points at the raw JSON artifact copied to blob storage.
type AdvisoryReport struct {
	ID                   string           `json:"report_id"`
	ProjectID            string           `json:"project_id"`
	BusinessModelSummary string           `json:"business_model_summary"`
	Risks                []RiskSignal     `json:"risks"`
	ComplianceNotes      []ComplianceNote `json:"compliance_notes"`
	Forecasts            []Forecast       `json:"forecasts"`
	Recommendations      []Recommendation `json:"recommendations"`
	BlobKey              string           `json:"blob_key,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
}

// NewAdvisoryReport creates a report shell for a project.
func NewAdvisoryReport(projectID string) AdvisoryReport {
	return AdvisoryReport{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		CreatedAt: time.Now().UTC(),
	}
}
