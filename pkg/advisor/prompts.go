package advisor

import (
	"fmt"
	"strings"

	"github.com/argus-advisory/advisor-cli/internal/model"
)

const systemPrompt = `You are a pragmatic business analyst embedded in a KPI
analytics pipeline. You reason from the dataset profile you are given and
never invent columns that are not in it. You respond with exactly the JSON
shape requested, with no prose before or after the JSON.`

const planSchema = `Each "plan" object must follow this schema:
{
  "metric": one of "sum", "mean", "count", "count_distinct", "ratio", "growth_rate", "mean_days_between",
  "column": source column (omit for ratio),
  "numerator_column" and "denominator_column": required for ratio only,
  "filters": optional list of {"column", "operator", "value"}, operator one of eq, ne, gt, lt, gte, lte, in,
  "group_by": optional list of columns to break the metric down by,
  "time_column" and "time_window_days": optional trailing window restriction
}
Every column a plan references must appear in the dataset profile.`

func summaryPrompt(pc ProjectContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n", pc.Name)
	if pc.BusinessDescription != "" {
		fmt.Fprintf(&b, "The owner describes the business as: %s\n", pc.BusinessDescription)
	}
	b.WriteString("\nDataset profile:\n")
	b.WriteString(renderProfile(pc.Profile))
	b.WriteString(`
Summarize how this business appears to make money, in 2-4 sentences grounded
in the columns above. Respond as JSON: {"summary": "..."}`)
	return b.String()
}

func proposalPrompt(pc ProjectContext, maxKPIs int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n", pc.Name)
	if pc.BusinessDescription != "" {
		fmt.Fprintf(&b, "Business description: %s\n", pc.BusinessDescription)
	}
	b.WriteString("\nDataset profile:\n")
	b.WriteString(renderProfile(pc.Profile))
	fmt.Fprintf(&b, `
Propose up to %d KPIs that this business should track, each computable from
the profiled columns. Respond as JSON:
{"kpis": [{"name", "description", "rationale", "formula", "plan", "target", "unit"}]}
"target" is an optional number, "unit" an optional short string like "USD" or "%%".
%s`, maxKPIs, planSchema)
	return b.String()
}

func customKPIPrompt(pc ProjectContext, request string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n", pc.Name)
	b.WriteString("\nDataset profile:\n")
	b.WriteString(renderProfile(pc.Profile))
	fmt.Fprintf(&b, `
The owner asked for this metric: %q
Translate it into exactly one KPI computable from the profiled columns.
Respond as JSON:
{"kpi": {"name", "description", "rationale", "formula", "plan", "target", "unit"}}
%s`, request, planSchema)
	return b.String()
}

func reportPrompt(rc ReportContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n", rc.Project.Name)
	if rc.Project.BusinessDescription != "" {
		fmt.Fprintf(&b, "Business description: %s\n", rc.Project.BusinessDescription)
	}
	b.WriteString("\nDataset profile:\n")
	b.WriteString(renderProfile(rc.Project.Profile))
	b.WriteString("\nComputed KPIs:\n")
	b.WriteString(renderKPIs(rc.KPIs))
	b.WriteString(`
Write an advisory report for the owner. Respond as JSON:
{
  "business_model_summary": "...",
  "risks": [{"title", "description", "severity"}],            // severity: low, medium, high
  "compliance_notes": [{"regulation", "observation", "action_required"}],
  "forecasts": [{"kpi_name", "horizon_days", "trend", "narrative"}],  // trend: up, down, flat
  "recommendations": [{"title", "description", "requires_approval"}]
}
Ground every claim in the KPI values above. Set requires_approval true for
any recommendation that commits money or changes customer-facing behavior.`)
	return b.String()
}

// renderProfile formats a dataset profile as compact prompt text, one line
// per column.
func renderProfile(p model.DatasetProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d rows, %d columns\n", p.RowCount, p.ColumnCount)
	for _, c := range p.Columns {
		fmt.Fprintf(&b, "- %s (%s)", c.Name, c.DType)
		if c.IsDate {
			b.WriteString(" [date]")
		}
		if c.IsID {
			b.WriteString(" [id]")
		}
		fmt.Fprintf(&b, ": %d unique, %.0f%% null", c.UniqueCount, c.NullPct*100)
		if c.Min != nil && c.Max != nil {
			fmt.Fprintf(&b, ", range %g..%g", *c.Min, *c.Max)
		}
		if len(c.SampleValues) > 0 {
			samples := make([]string, 0, len(c.SampleValues))
			for _, v := range c.SampleValues {
				samples = append(samples, fmt.Sprintf("%v", v))
			}
			fmt.Fprintf(&b, ", e.g. %s", strings.Join(samples, ", "))
		}
		b.WriteByte('\n')
	}
	if len(p.DateColumns) > 0 {
		fmt.Fprintf(&b, "Date columns: %s\n", strings.Join(p.DateColumns, ", "))
	}
	if len(p.PotentialJoinKeys) > 0 {
		fmt.Fprintf(&b, "Potential join keys: %s\n", strings.Join(p.PotentialJoinKeys, ", "))
	}
	return b.String()
}

// renderKPIs formats computed KPIs for the report prompt. KPIs without a
// value are listed as not computable so the narrative can mention them.
func renderKPIs(kpis []model.KPI) string {
	var b strings.Builder
	for _, k := range kpis {
		fmt.Fprintf(&b, "- %s", k.Name)
		if k.Value != nil {
			fmt.Fprintf(&b, " = %g", *k.Value)
			if k.Unit != "" {
				fmt.Fprintf(&b, " %s", k.Unit)
			}
			if k.ValueLabel != "" {
				fmt.Fprintf(&b, " (top group: %s)", k.ValueLabel)
			}
		} else {
			b.WriteString(" = not computable from the data")
		}
		if k.Target != nil {
			fmt.Fprintf(&b, ", target %g", *k.Target)
		}
		if len(k.ValueBreakdown) > 0 {
			parts := make([]string, 0, len(k.ValueBreakdown))
			for _, e := range k.ValueBreakdown {
				parts = append(parts, fmt.Sprintf("%s=%g", e.Label, e.Value))
			}
			fmt.Fprintf(&b, "; breakdown %s", strings.Join(parts, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
