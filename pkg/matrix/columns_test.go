package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/opsboard/pkg/rbac"
)

var universe = []string{"order_no", "customer", "amount"}

func TestToggleColumn_FromWildcardExpands(t *testing.T) {
	sel := ToggleColumn(rbac.AllColumns(), "customer", universe)

	explicit, ok := sel.(rbac.ExplicitColumns)
	require.True(t, ok, "expected explicit selection, got %T", sel)
	assert.Equal(t, []string{"amount", "order_no"}, explicit.Columns())
}

func TestToggleColumn_ReaddingCollapsesToWildcard(t *testing.T) {
	sel := ToggleColumn(rbac.AllColumns(), "amount", universe)
	require.False(t, sel.IsWildcard())

	sel = ToggleColumn(sel, "amount", universe)
	assert.True(t, sel.IsWildcard())
}

func TestToggleColumn_AddingEveryColumnYieldsWildcard(t *testing.T) {
	var sel rbac.ColumnSelection = rbac.NoColumns()
	for i, col := range universe {
		sel = ToggleColumn(sel, col, universe)
		if i < len(universe)-1 {
			assert.False(t, sel.IsWildcard(), "after %d columns", i+1)
		}
	}
	assert.True(t, sel.IsWildcard())
}

func TestToggleColumn_RemovingLastColumnKeepsEmptySet(t *testing.T) {
	sel := ToggleColumn(rbac.ColumnsOf("amount"), "amount", universe)

	explicit, ok := sel.(rbac.ExplicitColumns)
	require.True(t, ok)
	assert.Zero(t, explicit.Len())
	assert.False(t, sel.Allows("amount"))
}

func TestToggleColumn_SingleColumnUniverse(t *testing.T) {
	sel := ToggleColumn(rbac.AllColumns(), "only", []string{"only"})
	explicit, ok := sel.(rbac.ExplicitColumns)
	require.True(t, ok)
	assert.Zero(t, explicit.Len())

	assert.True(t, ToggleColumn(sel, "only", []string{"only"}).IsWildcard())
}

func TestToggleColumn_NilSelection(t *testing.T) {
	sel := ToggleColumn(nil, "amount", universe)
	assert.True(t, sel.Allows("amount"))
	assert.False(t, sel.IsWildcard())
}

func TestToggleAll(t *testing.T) {
	sel := ToggleAll(rbac.AllColumns())
	explicit, ok := sel.(rbac.ExplicitColumns)
	require.True(t, ok)
	assert.Zero(t, explicit.Len())

	assert.True(t, ToggleAll(sel).IsWildcard())
	assert.True(t, ToggleAll(rbac.ColumnsOf("amount")).IsWildcard())
	assert.True(t, ToggleAll(nil).IsWildcard())
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		name     string
		sel      rbac.ColumnSelection
		universe []string
		wildcard bool
	}{
		{"full set collapses", rbac.ColumnsOf(universe...), universe, true},
		{"partial set kept", rbac.ColumnsOf("amount"), universe, false},
		{"empty set kept", rbac.NoColumns(), universe, false},
		{"empty universe never collapses", rbac.NoColumns(), nil, false},
		{"same size but different members", rbac.ColumnsOf("amount", "customer", "other"), universe, false},
		{"wildcard kept", rbac.AllColumns(), universe, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wildcard, Canonical(tt.sel, tt.universe).IsWildcard())
		})
	}
}

func TestUnknownColumns(t *testing.T) {
	assert.Empty(t, unknownColumns(rbac.AllColumns(), universe))
	assert.Empty(t, unknownColumns(rbac.ColumnsOf("amount"), universe))
	assert.Equal(t, []string{"salary", "zz"}, unknownColumns(rbac.ColumnsOf("amount", "zz", "salary"), universe))
}
