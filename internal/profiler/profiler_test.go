package profiler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-advisory/advisor-cli/internal/table"
)

func ordersTable() *table.Table {
	t := table.New([]string{"order_id", "customer", "amount", "order_date", "notes"})
	for i := 0; i < 10; i++ {
		var notes any
		if i%2 == 0 {
			notes = "ok"
		}
		t.AppendRow([]any{
			fmt.Sprintf("ord-%03d", i),
			fmt.Sprintf("cust-%d", i%3),
			float64(100 + i*10),
			fmt.Sprintf("2024-01-%02d", i+1),
			notes,
		})
	}
	return t
}

func TestProfile_Shape(t *testing.T) {
	p := Profile(ordersTable())
	assert.Equal(t, 10, p.RowCount)
	assert.Equal(t, 5, p.ColumnCount)
	require.Len(t, p.Columns, 5)
}

func TestProfile_NumericColumn(t *testing.T) {
	p := Profile(ordersTable())

	var found bool
	for _, c := range p.Columns {
		if c.Name != "amount" {
			continue
		}
		found = true
		assert.Equal(t, "number", c.DType)
		require.NotNil(t, c.Min)
		require.NotNil(t, c.Max)
		require.NotNil(t, c.Mean)
		assert.Equal(t, 100.0, *c.Min)
		assert.Equal(t, 190.0, *c.Max)
		assert.InDelta(t, 145.0, *c.Mean, 1e-9)
	}
	assert.True(t, found)
}

func TestProfile_DateColumn(t *testing.T) {
	p := Profile(ordersTable())
	assert.Equal(t, []string{"order_date"}, p.DateColumns)
}

func TestProfile_DateNameAloneFlags(t *testing.T) {
	tbl := table.New([]string{"updated_at"})
	tbl.AppendRow([]any{"alice"})
	tbl.AppendRow([]any{"bob"})
	p := Profile(tbl)
	assert.Equal(t, []string{"updated_at"}, p.DateColumns)
}

func TestProfile_DateValuesWithoutDateName(t *testing.T) {
	tbl := table.New([]string{"when"})
	for i := 1; i <= 10; i++ {
		tbl.AppendRow([]any{fmt.Sprintf("2024-03-%02d", i)})
	}
	p := Profile(tbl)
	assert.Equal(t, []string{"when"}, p.DateColumns)
}

func TestProfile_NumericColumnNeverDateByContent(t *testing.T) {
	tbl := table.New([]string{"units"})
	tbl.AppendRow([]any{1999.0})
	tbl.AppendRow([]any{2001.0})
	p := Profile(tbl)
	assert.Empty(t, p.DateColumns)
}

func TestProfile_JoinKeys(t *testing.T) {
	p := Profile(ordersTable())
	// order_id by name; amount and order_date by full uniqueness.
	assert.Equal(t, []string{"order_id", "amount", "order_date"}, p.PotentialJoinKeys)
}

func TestProfile_IDNameAloneFlags(t *testing.T) {
	tbl := table.New([]string{"region_id"})
	for i := 0; i < 10; i++ {
		tbl.AppendRow([]any{"r1"})
	}
	p := Profile(tbl)
	assert.Equal(t, []string{"region_id"}, p.PotentialJoinKeys)
}

func TestProfile_UniqueColumnIsJoinKey(t *testing.T) {
	tbl := table.New([]string{"customer_ref", "segment"})
	for i := 0; i < 10; i++ {
		tbl.AppendRow([]any{fmt.Sprintf("c-%04d", i), "retail"})
	}
	p := Profile(tbl)
	assert.Equal(t, []string{"customer_ref"}, p.PotentialJoinKeys)
}

func TestProfile_NullCounting(t *testing.T) {
	p := Profile(ordersTable())

	for _, c := range p.Columns {
		if c.Name != "notes" {
			continue
		}
		assert.Equal(t, 5, c.NullCount)
		assert.InDelta(t, 50.0, c.NullPct, 1e-9)
		assert.Equal(t, "text", c.DType)
		assert.Equal(t, 1, c.UniqueCount)
	}
}

func TestProfile_MixedColumnStaysText(t *testing.T) {
	tbl := table.New([]string{"amount"})
	tbl.AppendRow([]any{10.0})
	tbl.AppendRow([]any{"n/a"})
	p := Profile(tbl)

	require.Len(t, p.Columns, 1)
	assert.Equal(t, "text", p.Columns[0].DType)
	assert.Nil(t, p.Columns[0].Min)
}

func TestProfile_EmptyTable(t *testing.T) {
	p := Profile(table.New([]string{"a"}))
	assert.Equal(t, 0, p.RowCount)
	assert.Equal(t, 1, p.ColumnCount)
	require.Len(t, p.Columns, 1)
	assert.Equal(t, 0, p.Columns[0].NullCount)
	assert.False(t, p.Columns[0].IsDate)
}

func TestProfile_SampleValuesCapped(t *testing.T) {
	tbl := table.New([]string{"name"})
	for i := 0; i < 12; i++ {
		tbl.AppendRow([]any{fmt.Sprintf("v%d", i)})
	}
	p := Profile(tbl)
	assert.Len(t, p.Columns[0].SampleValues, 5)
}
