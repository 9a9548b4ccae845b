package matrix

import (
	"github.com/platinummonkey/opsboard/pkg/rbac"
)

// ToggleColumn flips one column of sel over the resource's column universe.
// Toggling a column out of Wildcard expands to every other column. A result
// that covers the whole universe collapses back to Wildcard; an empty result
// stays the explicit empty set.
func ToggleColumn(sel rbac.ColumnSelection, column string, universe []string) rbac.ColumnSelection {
	var next rbac.ExplicitColumns

	switch s := sel.(type) {
	case rbac.Wildcard:
		next = rbac.ColumnsOf(universe...).Without(column)
	case rbac.ExplicitColumns:
		if s.Allows(column) {
			next = s.Without(column)
		} else {
			next = s.With(column)
		}
	default:
		next = rbac.ColumnsOf(column)
	}

	return Canonical(next, universe)
}

// ToggleAll flips between Wildcard and the empty set
func ToggleAll(sel rbac.ColumnSelection) rbac.ColumnSelection {
	if sel != nil && sel.IsWildcard() {
		return rbac.NoColumns()
	}
	return rbac.AllColumns()
}

// Canonical collapses an explicit set covering the whole non-empty universe
// to Wildcard and returns every other selection unchanged
func Canonical(sel rbac.ColumnSelection, universe []string) rbac.ColumnSelection {
	explicit, ok := sel.(rbac.ExplicitColumns)
	if !ok || len(universe) == 0 || explicit.Len() < len(universe) {
		return sel
	}
	for _, c := range universe {
		if !explicit.Allows(c) {
			return sel
		}
	}
	return rbac.AllColumns()
}

// unknownColumns returns the members of sel missing from universe
func unknownColumns(sel rbac.ColumnSelection, universe []string) []string {
	explicit, ok := sel.(rbac.ExplicitColumns)
	if !ok {
		return nil
	}
	known := make(map[string]bool, len(universe))
	for _, c := range universe {
		known[c] = true
	}
	var unknown []string
	for _, c := range explicit.Columns() {
		if !known[c] {
			unknown = append(unknown, c)
		}
	}
	return unknown
}
