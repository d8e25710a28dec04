package model

import (
	"time"

	"github.com/google/uuid"
)

// KPIStatus is the lifecycle state of a KPI proposal.
type KPIStatus string

const (
	KPIStatusProposed KPIStatus = "proposed"
	KPIStatusApproved KPIStatus = "approved"
	KPIStatusRejected KPIStatus = "rejected"
)

// BreakdownEntry is one group's share of a grouped KPI, sorted into the
// stored breakdown by value descending. Pct is nil when the group total
// is zero.
type BreakdownEntry struct {
	Label string   `json:"label"`
	Value float64  `json:"value"`
	Pct   *float64 `json:"pct,omitempty"`
}

// KPI is a proposed or computed key performance indicator. Proposal fields
// come from the generation collaborator; result fields are written by the
// compute stage and may legitimately be absent.
type KPI struct {
	ID          string    `json:"kpi_id"`
	ProjectID   string    `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Rationale   string    `json:"rationale"`
	Formula     string    `json:"formula"`
	Plan        Plan      `json:"plan"`
	Target      *float64  `json:"target,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	Status      KPIStatus `json:"status"`

	Value          *float64         `json:"value,omitempty"`
	ValueLabel     string           `json:"value_label,omitempty"`
	ValueBreakdown []BreakdownEntry `json:"value_breakdown,omitempty"`
	ComputedAt     *time.Time       `json:"computed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// KPIProposal is one proposal from the generation collaborator, before it
// is persisted as a KPI.
type KPIProposal struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Rationale   string   `json:"rationale"`
	Formula     string   `json:"formula"`
	Plan        Plan     `json:"plan"`
	Target      *float64 `json:"target,omitempty"`
	Unit        string   `json:"unit,omitempty"`
}

// NewKPI creates a KPI in proposed status from a proposal.
func NewKPI(projectID string, p KPIProposal) KPI {
	return KPI{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Name:        p.Name,
		Description: p.Description,
		Rationale:   p.Rationale,
		Formula:     p.Formula,
		Plan:        p.Plan,
		Target:      p.Target,
		Unit:        p.Unit,
		Status:      KPIStatusProposed,
		CreatedAt:   time.Now().UTC(),
	}
}

// KPIResult holds the computed result fields written back to a KPI by the
// compute stage. A nil Value means the plan produced no usable result,
// which is persisted as-is rather than treated as an error.
type KPIResult struct {
	Value          *float64         `json:"value,omitempty"`
	ValueLabel     string           `json:"value_label,omitempty"`
	ValueBreakdown []BreakdownEntry `json:"value_breakdown,omitempty"`
	ComputedAt     time.Time        `json:"computed_at"`
}
