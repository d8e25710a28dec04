package model

// Metric identifies the aggregation a plan computes.
type Metric string

const (
	MetricSum             Metric = "sum"
	MetricMean            Metric = "mean"
	MetricCount           Metric = "count"
	MetricCountDistinct   Metric = "count_distinct"
	MetricRatio           Metric = "ratio"
	MetricGrowthRate      Metric = "growth_rate"
	MetricMeanDaysBetween Metric = "mean_days_between"
)

// Metrics is the set of metrics the engine understands.
var Metrics = map[Metric]bool{
	MetricSum:             true,
	MetricMean:            true,
	MetricCount:           true,
	MetricCountDistinct:   true,
	MetricRatio:           true,
	MetricGrowthRate:      true,
	MetricMeanDaysBetween: true,
}

// Additive reports whether the headline value of a grouped KPI should be
// the total across groups rather than the maximum group value. Sums and
// counts add up across a partition; ratios, means and rates do not.
func (m Metric) Additive() bool {
	return m == MetricSum || m == MetricCount
}

// Operator is a filter comparison operator.
type Operator string

const (
	OpEq  Operator = "eq"
	OpNe  Operator = "ne"
	OpGt  Operator = "gt"
	OpLt  Operator = "lt"
	OpGte Operator = "gte"
	OpLte Operator = "lte"
	OpIn  Operator = "in"
)

// Operators is the set of filter operators the evaluator understands.
// Anything outside this set is skipped at evaluation time and rejected
// at proposal time.
var Operators = map[Operator]bool{
	OpEq: true, OpNe: true, OpGt: true, OpLt: true,
	OpGte: true, OpLte: true, OpIn: true,
}

// Filter is a single column predicate. Filters on a plan combine with
// logical AND.
type Filter struct {
	Column   string   `json:"column"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Plan is the declarative description of one metric computation: which
// metric, over which column(s), after which filters, optionally grouped
// and optionally restricted to a trailing time window. A Plan is immutable
// once attached to a KPI; derived plans are copies.
type Plan struct {
	Metric            Metric   `json:"metric"`
	Column            string   `json:"column,omitempty"`
	NumeratorColumn   string   `json:"numerator_column,omitempty"`
	DenominatorColumn string   `json:"denominator_column,omitempty"`
	Filters           []Filter `json:"filters,omitempty"`
	GroupBy           []string `json:"group_by,omitempty"`
	TimeColumn        string   `json:"time_column,omitempty"`
	TimeWindowDays    int      `json:"time_window_days,omitempty"`
}

// WithoutGroups returns a copy of the plan with grouping cleared. The
// grouped aggregator uses this to recurse into the scalar engine per group
// without sharing mutable plan state.
func (p Plan) WithoutGroups() Plan {
	p.GroupBy = nil
	return p
}

// Validate checks the structural invariants enforced at proposal time:
// known metric, known filter operators, and both ratio columns present
// when the metric is a ratio. The engine itself degrades gracefully on
// malformed plans; this exists so bad proposals never get stored.
func (p Plan) Validate() error {
	if !Metrics[p.Metric] {
		return &PlanError{Reason: "unsupported metric " + string(p.Metric)}
	}
	for _, f := range p.Filters {
		if !Operators[f.Operator] {
			return &PlanError{Reason: "unsupported filter operator " + string(f.Operator)}
		}
	}
	if p.Metric == MetricRatio && (p.NumeratorColumn == "" || p.DenominatorColumn == "") {
		return &PlanError{Reason: "ratio metric requires numerator_column and denominator_column"}
	}
	return nil
}

// PlanError reports a structurally invalid plan.
type PlanError struct {
	Reason string
}

func (e *PlanError) Error() string {
	return "invalid plan: " + e.Reason
}
