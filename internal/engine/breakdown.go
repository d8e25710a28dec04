package engine

import (
	"sort"

	"github.com/argus-advisory/advisor-cli/internal/model"
	"github.com/argus-advisory/advisor-cli/internal/table"
)

// BuildBreakdown reduces the table by the plan, groups it, and returns the
// per-group values sorted descending with their percentage of the group
// total. Returns nil when reduction empties the table or grouping yields
// no usable groups. Pct is omitted when the total is zero.
func BuildBreakdown(t *table.Table, plan model.Plan) []model.BreakdownEntry {
	reduced := Reduce(t, plan)
	if reduced.Empty() {
		return nil
	}
	return breakdownFromValues(groupedValues(reduced, plan))
}

func breakdownFromValues(values []groupValue) []model.BreakdownEntry {
	if len(values) == 0 {
		return nil
	}

	var total float64
	for _, gv := range values {
		total += gv.value
	}

	sorted := append([]groupValue(nil), values...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].value > sorted[j].value
	})

	entries := make([]model.BreakdownEntry, 0, len(sorted))
	for _, gv := range sorted {
		e := model.BreakdownEntry{Label: gv.label, Value: gv.value}
		if total != 0 {
			pct := gv.value / total * 100
			e.Pct = &pct
		}
		entries = append(entries, e)
	}
	return entries
}
