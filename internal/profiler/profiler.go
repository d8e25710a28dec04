// Package profiler summarizes a dataset's structure: column types,
// missingness, cardinality and the date/id heuristics the KPI proposal
// prompt depends on.
package profiler

import (
	"regexp"
	"strings"

	"github.com/argus-advisory/advisor-cli/internal/model"
	"github.com/argus-advisory/advisor-cli/internal/table"
)

const (
	sampleSize = 20

	// A column not named like a timestamp still counts as a date column
	// when 70% of its sampled values parse as dates.
	dateParseThreshold = 0.7

	// A column not named like an id still counts as a join key at 95%
	// uniqueness.
	idUniquenessThreshold = 0.95
)

var (
	dateNameRe = regexp.MustCompile(`(?i)(date|time|timestamp|created|updated|_at$|^at$|dt|day|month|year|period)`)
	idNameRe   = regexp.MustCompile(`(?i)(^id$|_id$|_key$|uuid|guid)`)
)

// Profile walks every column of the table and builds the dataset summary.
// An empty table yields a profile with zero rows and no columns flagged.
func Profile(t *table.Table) model.DatasetProfile {
	p := model.DatasetProfile{
		RowCount:    t.Len(),
		ColumnCount: len(t.Columns()),
	}

	for _, name := range t.Columns() {
		col, _ := t.Column(name)
		cp := profileColumn(name, col)
		p.Columns = append(p.Columns, cp)
		if cp.IsDate {
			p.DateColumns = append(p.DateColumns, name)
		}
		if cp.IsID {
			p.PotentialJoinKeys = append(p.PotentialJoinKeys, name)
		}
	}

	return p
}

func profileColumn(name string, values []any) model.ColumnProfile {
	cp := model.ColumnProfile{Name: name, DType: "text"}

	var nonNull []any
	for _, v := range values {
		if v == nil {
			cp.NullCount++
			continue
		}
		nonNull = append(nonNull, v)
	}
	if len(values) > 0 {
		cp.NullPct = float64(cp.NullCount) / float64(len(values)) * 100
	}

	cp.UniqueCount = distinct(nonNull)
	cp.SampleValues = sample(nonNull, 5)

	min, max, mean, numericCount := numericStats(nonNull)
	if numericCount > 0 && numericCount == len(nonNull) {
		cp.DType = "number"
		cp.Min = &min
		cp.Max = &max
		cp.Mean = &mean
	}

	cp.IsDate = isDateColumn(name, nonNull, cp.DType == "number")
	cp.IsID = isIDColumn(name, nonNull, cp.UniqueCount)
	return cp
}

// isDateColumn flags a column by name, or, for text columns, by content:
// enough sampled values parsing as timestamps. Numeric columns are never
// content-flagged; a column of plain year-like numbers is not a timestamp.
func isDateColumn(name string, nonNull []any, numeric bool) bool {
	if dateNameRe.MatchString(name) {
		return true
	}
	if numeric || len(nonNull) == 0 {
		return false
	}
	sampled := sample(nonNull, sampleSize)
	parsed := 0
	for _, v := range sampled {
		if _, ok := table.Time(v); ok {
			parsed++
		}
	}
	return float64(parsed)/float64(len(sampled)) >= dateParseThreshold
}

// isIDColumn flags a column by name, or by near-total uniqueness.
func isIDColumn(name string, nonNull []any, uniqueCount int) bool {
	if idNameRe.MatchString(name) {
		return true
	}
	if len(nonNull) == 0 {
		return false
	}
	return float64(uniqueCount)/float64(len(nonNull)) >= idUniquenessThreshold
}

func numericStats(values []any) (min, max, mean float64, count int) {
	var sum float64
	for _, v := range values {
		f, ok := table.Number(v)
		if !ok {
			continue
		}
		if count == 0 || f < min {
			min = f
		}
		if count == 0 || f > max {
			max = f
		}
		sum += f
		count++
	}
	if count > 0 {
		mean = sum / float64(count)
	}
	return min, max, mean, count
}

func distinct(values []any) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[table.CellString(v)] = struct{}{}
	}
	return len(seen)
}

// sample returns up to n leading values, stringifying long text so the
// profile stays compact when serialized into a prompt.
func sample(values []any, n int) []any {
	if len(values) < n {
		n = len(values)
	}
	out := make([]any, 0, n)
	for _, v := range values[:n] {
		if s, ok := v.(string); ok && len(s) > 64 {
			v = strings.TrimSpace(s[:64])
		}
		out = append(out, v)
	}
	return out
}
