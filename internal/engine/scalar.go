package engine

import (
	"math"

	"go.uber.org/zap"

	"github.com/argus-advisory/advisor-cli/internal/model"
	"github.com/argus-advisory/advisor-cli/internal/table"
)

// Evaluate runs a plan against a table and returns its scalar result, or
// nil when the plan produces no usable value. This is the full pipeline:
// reduce, then grouped headline when the plan groups, then the scalar
// metric. Absence is a result, not an error.
func Evaluate(t *table.Table, plan model.Plan) *float64 {
	return evaluateReduced(Reduce(t, plan), plan)
}

// evaluateReduced dispatches a metric over an already-reduced table.
// Grouped recursion re-enters here with grouping cleared so filters and
// the time window are never applied twice.
func evaluateReduced(t *table.Table, plan model.Plan) *float64 {
	if t.Empty() {
		zap.L().Warn("plan reduced to empty table", zap.String("metric", string(plan.Metric)))
		return nil
	}

	if len(plan.GroupBy) > 0 {
		if v := groupedHeadline(t, plan); v != nil {
			return v
		}
		// No usable grouping: evaluate ungrouped.
	}

	return scalarMetric(t, plan)
}

func scalarMetric(t *table.Table, plan model.Plan) *float64 {
	switch plan.Metric {
	case model.MetricCount:
		return ptr(float64(t.Len()))

	case model.MetricCountDistinct:
		col, ok := columnOrWarn(t, plan.Column, "count_distinct")
		if !ok {
			return nil
		}
		return ptr(float64(distinctCount(col)))

	case model.MetricSum:
		col, ok := columnOrWarn(t, plan.Column, "sum")
		if !ok {
			return nil
		}
		sum, _ := numericSum(col)
		return ptr(sum)

	case model.MetricMean:
		if plan.Column != "" && t.HasColumn(plan.Column) {
			col, _ := t.Column(plan.Column)
			return numericMean(col)
		}
		if plan.NumeratorColumn != "" && plan.DenominatorColumn != "" {
			return meanDayDiff(t, plan.DenominatorColumn, plan.NumeratorColumn)
		}
		zap.L().Warn("mean plan has neither a column nor a date pair")
		return nil

	case model.MetricRatio:
		return ratioMetric(t, plan)

	case model.MetricMeanDaysBetween:
		if plan.NumeratorColumn == "" || plan.DenominatorColumn == "" {
			zap.L().Warn("mean_days_between plan missing columns")
			return nil
		}
		return meanDayDiff(t, plan.DenominatorColumn, plan.NumeratorColumn)

	case model.MetricGrowthRate:
		return growthRateMetric(t, plan)

	default:
		zap.L().Warn("unknown metric", zap.String("metric", string(plan.Metric)))
		return nil
	}
}

func ratioMetric(t *table.Table, plan model.Plan) *float64 {
	if plan.NumeratorColumn == "" || plan.DenominatorColumn == "" {
		zap.L().Warn("ratio plan missing numerator or denominator")
		return nil
	}
	num, numOK := t.Column(plan.NumeratorColumn)
	den, denOK := t.Column(plan.DenominatorColumn)
	if !numOK || !denOK {
		zap.L().Warn("ratio column not found",
			zap.String("numerator", plan.NumeratorColumn),
			zap.String("denominator", plan.DenominatorColumn))
		return nil
	}
	n := aggregateSeries(num)
	d := aggregateSeries(den)
	if d == 0 {
		zap.L().Warn("ratio has zero denominator")
		return nil
	}
	return ptr(n / d)
}

func growthRateMetric(t *table.Table, plan model.Plan) *float64 {
	if plan.Column == "" || !t.HasColumn(plan.Column) {
		return nil
	}
	if plan.TimeColumn == "" || !t.HasColumn(plan.TimeColumn) {
		return nil
	}

	sorted := sortByTime(t, plan.TimeColumn)
	first, firstOK := table.Number(sorted.Cell(0, plan.Column))
	last, lastOK := table.Number(sorted.Cell(sorted.Len()-1, plan.Column))
	if !firstOK || !lastOK {
		zap.L().Warn("growth_rate endpoints are not numeric", zap.String("column", plan.Column))
		return nil
	}
	if first == 0 {
		return nil
	}
	return ptr((last - first) / math.Abs(first))
}

// sortByTime orders rows ascending by the parsed time column, stable, with
// unparsable timestamps sinking to the end.
func sortByTime(t *table.Table, timeColumn string) *table.Table {
	return t.SortBy(func(i, j int) bool {
		ti, iok := table.Time(t.Cell(i, timeColumn))
		tj, jok := table.Time(t.Cell(j, timeColumn))
		if iok && jok {
			return ti.Before(tj)
		}
		return iok && !jok
	})
}

// meanDayDiff returns the mean elapsed days between two timestamp columns,
// start to end, skipping rows where either side does not parse.
func meanDayDiff(t *table.Table, startColumn, endColumn string) *float64 {
	if !t.HasColumn(startColumn) || !t.HasColumn(endColumn) {
		return nil
	}
	var total float64
	var n int
	for r := 0; r < t.Len(); r++ {
		start, sok := table.Time(t.Cell(r, startColumn))
		end, eok := table.Time(t.Cell(r, endColumn))
		if !sok || !eok {
			continue
		}
		total += end.Sub(start).Seconds() / 86400.0
		n++
	}
	if n == 0 {
		return nil
	}
	return ptr(total / float64(n))
}

// aggregateSeries is the ratio fallback: the numeric sum when the series
// has any numeric values, otherwise the distinct count. This lets a ratio
// divide a currency sum by a count of unique ids in a non-numeric column.
func aggregateSeries(values []any) float64 {
	if sum, any := numericSum(values); any {
		return sum
	}
	return float64(distinctCount(values))
}

func numericSum(values []any) (sum float64, any bool) {
	for _, v := range values {
		if f, ok := table.Number(v); ok {
			sum += f
			any = true
		}
	}
	return sum, any
}

func numericMean(values []any) *float64 {
	sum, any := numericSum(values)
	if !any {
		return nil
	}
	var n int
	for _, v := range values {
		if _, ok := table.Number(v); ok {
			n++
		}
	}
	return ptr(sum / float64(n))
}

func distinctCount(values []any) int {
	seen := make(map[string]struct{})
	for _, v := range values {
		if v == nil {
			continue
		}
		seen[table.CellString(v)] = struct{}{}
	}
	return len(seen)
}

func columnOrWarn(t *table.Table, name, metric string) ([]any, bool) {
	if name == "" || !t.HasColumn(name) {
		zap.L().Warn("metric column not found", zap.String("metric", metric), zap.String("column", name))
		return nil, false
	}
	col, _ := t.Column(name)
	return col, true
}

func ptr(f float64) *float64 {
	return &f
}
