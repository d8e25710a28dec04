// Package engine executes KPI plans against in-memory tables. The LLM
// proposes a structured plan (metric, filters, grouping, time window) and
// this package interprets it deterministically; nothing here evaluates
// free-form expressions.
package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/argus-advisory/advisor-cli/internal/model"
	"github.com/argus-advisory/advisor-cli/internal/table"
)

// Reduce applies a plan's time window and filters, in that order, and
// returns the surviving rows. A missing time column, an unparsable time
// column, a filter on an absent column or an unknown operator are all
// skipped with a warning, never fatal. An empty result is a valid state.
func Reduce(t *table.Table, plan model.Plan) *table.Table {
	t = applyTimeWindow(t, plan)
	return applyFilters(t, plan.Filters)
}

func applyTimeWindow(t *table.Table, plan model.Plan) *table.Table {
	if plan.TimeColumn == "" || plan.TimeWindowDays <= 0 {
		return t
	}
	if !t.HasColumn(plan.TimeColumn) {
		zap.L().Warn("time column not found, skipping window", zap.String("column", plan.TimeColumn))
		return t
	}

	times := make([]time.Time, t.Len())
	valid := make([]bool, t.Len())
	var latest time.Time
	var any bool
	for r := 0; r < t.Len(); r++ {
		ts, ok := table.Time(t.Cell(r, plan.TimeColumn))
		if !ok {
			continue
		}
		times[r], valid[r] = ts, true
		if !any || ts.After(latest) {
			latest, any = ts, true
		}
	}
	if !any {
		zap.L().Warn("time column has no parsable timestamps, skipping window",
			zap.String("column", plan.TimeColumn))
		return t
	}

	cutoff := latest.AddDate(0, 0, -plan.TimeWindowDays)
	return t.Filter(func(r int) bool {
		return valid[r] && !times[r].Before(cutoff)
	})
}

func applyFilters(t *table.Table, filters []model.Filter) *table.Table {
	for _, f := range filters {
		if !t.HasColumn(f.Column) {
			zap.L().Warn("filter column not found, skipping", zap.String("column", f.Column))
			continue
		}
		pred, ok := predicate(f)
		if !ok {
			zap.L().Warn("unknown filter operator, skipping", zap.String("operator", string(f.Operator)))
			continue
		}
		col := f.Column
		t = t.Filter(func(r int) bool {
			return pred(t.Cell(r, col))
		})
	}
	return t
}

func predicate(f model.Filter) (func(cell any) bool, bool) {
	switch f.Operator {
	case model.OpEq:
		return func(cell any) bool { return table.Equal(cell, f.Value) }, true
	case model.OpNe:
		return func(cell any) bool { return !table.Equal(cell, f.Value) }, true
	case model.OpGt:
		return cmpPred(f.Value, func(c int) bool { return c > 0 }), true
	case model.OpLt:
		return cmpPred(f.Value, func(c int) bool { return c < 0 }), true
	case model.OpGte:
		return cmpPred(f.Value, func(c int) bool { return c >= 0 }), true
	case model.OpLte:
		return cmpPred(f.Value, func(c int) bool { return c <= 0 }), true
	case model.OpIn:
		values, ok := f.Value.([]any)
		if !ok {
			values = []any{f.Value}
		}
		return func(cell any) bool {
			for _, v := range values {
				if table.Equal(cell, v) {
					return true
				}
			}
			return false
		}, true
	default:
		return nil, false
	}
}

func cmpPred(value any, keep func(c int) bool) func(cell any) bool {
	return func(cell any) bool {
		c, ok := table.Compare(cell, value)
		return ok && keep(c)
	}
}
