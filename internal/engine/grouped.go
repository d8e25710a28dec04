package engine

import (
	"github.com/argus-advisory/advisor-cli/internal/model"
	"github.com/argus-advisory/advisor-cli/internal/table"
)

// groupValue is one group's evaluated result, in first-appearance order.
type groupValue struct {
	label string
	value float64
}

// groupedValues partitions an already-reduced table by the plan's grouping
// columns and computes the per-group metric. Grouping columns absent from
// the table are dropped; if none remain, or no group yields a usable
// value, it returns nil and the caller falls back to ungrouped evaluation.
//
// Derived metrics (ratio, growth_rate, mean_days_between) recurse into the
// scalar engine with grouping cleared, so grouped and ungrouped evaluation
// share one set of semantics. Filters and the time window are not
// re-applied inside groups; the table was reduced exactly once already.
func groupedValues(t *table.Table, plan model.Plan) []groupValue {
	columns := make([]string, 0, len(plan.GroupBy))
	for _, c := range plan.GroupBy {
		if t.HasColumn(c) {
			columns = append(columns, c)
		}
	}
	if len(columns) == 0 {
		return nil
	}

	var out []groupValue
	for _, g := range t.Partition(columns) {
		v := groupMetric(g.Table, plan)
		if v == nil {
			continue
		}
		out = append(out, groupValue{label: table.KeyLabel(g.Key), value: *v})
	}
	return out
}

func groupMetric(sub *table.Table, plan model.Plan) *float64 {
	switch plan.Metric {
	case model.MetricCount:
		return ptr(float64(sub.Len()))

	case model.MetricCountDistinct:
		if plan.Column == "" || !sub.HasColumn(plan.Column) {
			return nil
		}
		col, _ := sub.Column(plan.Column)
		return ptr(float64(distinctCount(col)))

	case model.MetricSum:
		if plan.Column == "" || !sub.HasColumn(plan.Column) {
			return nil
		}
		col, _ := sub.Column(plan.Column)
		sum, _ := numericSum(col)
		return ptr(sum)

	case model.MetricMean:
		if plan.Column != "" && sub.HasColumn(plan.Column) {
			col, _ := sub.Column(plan.Column)
			return numericMean(col)
		}
		if plan.NumeratorColumn != "" && plan.DenominatorColumn != "" {
			return meanDayDiff(sub, plan.DenominatorColumn, plan.NumeratorColumn)
		}
		return nil

	case model.MetricRatio, model.MetricGrowthRate, model.MetricMeanDaysBetween:
		return evaluateReduced(sub, plan.WithoutGroups())

	default:
		return nil
	}
}

// groupedHeadline is the representative value of a grouped evaluation: the
// maximum over all group values. Additive metrics override this with the
// breakdown total at the compute layer.
func groupedHeadline(t *table.Table, plan model.Plan) *float64 {
	values := groupedValues(t, plan)
	if len(values) == 0 {
		return nil
	}
	return ptr(maxGroup(values).value)
}

// maxGroup returns the group with the maximum value. Ties keep the first
// group encountered. values must be non-empty.
func maxGroup(values []groupValue) groupValue {
	best := values[0]
	for _, gv := range values[1:] {
		if gv.value > best.value {
			best = gv
		}
	}
	return best
}
