package engine

import (
	"time"

	"github.com/argus-advisory/advisor-cli/internal/model"
	"github.com/argus-advisory/advisor-cli/internal/table"
)

// Compute runs one KPI plan end to end and returns the result fields the
// compute stage persists: headline value, winning group label and the
// sorted breakdown. Each piece may be absent; absence is persisted, not
// raised.
//
// Headline policy for grouped plans: the maximum group value by default,
// but the breakdown total for additive metrics (sum, count) so a grouped
// revenue KPI still reads as total revenue.
func Compute(t *table.Table, plan model.Plan) model.KPIResult {
	res := model.KPIResult{ComputedAt: time.Now().UTC()}

	reduced := Reduce(t, plan)
	if reduced.Empty() {
		return res
	}

	if len(plan.GroupBy) > 0 {
		values := groupedValues(reduced, plan)
		if len(values) > 0 {
			res.ValueBreakdown = breakdownFromValues(values)

			best := maxGroup(values)
			res.ValueLabel = best.label
			if plan.Metric.Additive() {
				var total float64
				for _, gv := range values {
					total += gv.value
				}
				res.Value = ptr(total)
			} else {
				res.Value = ptr(best.value)
			}
			return res
		}
		// Grouping unusable; fall back to ungrouped evaluation.
	}

	res.Value = scalarMetric(reduced, plan)
	return res
}
