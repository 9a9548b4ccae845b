package rbac

import (
	"encoding/json"
	"fmt"
	"sort"
)

// WildcardColumn is the persisted marker for "every column of the resource"
const WildcardColumn = "*"

// ColumnSelection is either Wildcard or ExplicitColumns. The interface is
// sealed so a type switch over the two cases is exhaustive.
type ColumnSelection interface {
	// Allows reports whether column is visible under this selection
	Allows(column string) bool

	// IsWildcard reports whether this is the Wildcard case
	IsWildcard() bool

	isColumnSelection()
}

// Wildcard selects every column of the resource, including columns added later
type Wildcard struct{}

func (Wildcard) Allows(string) bool { return true }
func (Wildcard) IsWildcard() bool   { return true }
func (Wildcard) isColumnSelection() {}
func (Wildcard) String() string     { return WildcardColumn }

// ExplicitColumns selects a fixed set of columns. The empty set is valid and
// means no column is visible.
type ExplicitColumns struct {
	set map[string]struct{}
}

func (e ExplicitColumns) Allows(column string) bool {
	_, ok := e.set[column]
	return ok
}

func (ExplicitColumns) IsWildcard() bool   { return false }
func (ExplicitColumns) isColumnSelection() {}

// Len returns the number of selected columns
func (e ExplicitColumns) Len() int {
	return len(e.set)
}

// Columns returns the selected columns sorted by name
func (e ExplicitColumns) Columns() []string {
	cols := make([]string, 0, len(e.set))
	for c := range e.set {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// With returns a copy of the set with column added
func (e ExplicitColumns) With(column string) ExplicitColumns {
	next := e.clone()
	next.set[column] = struct{}{}
	return next
}

// Without returns a copy of the set with column removed
func (e ExplicitColumns) Without(column string) ExplicitColumns {
	next := e.clone()
	delete(next.set, column)
	return next
}

func (e ExplicitColumns) clone() ExplicitColumns {
	set := make(map[string]struct{}, len(e.set)+1)
	for c := range e.set {
		set[c] = struct{}{}
	}
	return ExplicitColumns{set: set}
}

func (e ExplicitColumns) String() string {
	return fmt.Sprintf("%v", e.Columns())
}

// AllColumns returns the Wildcard selection
func AllColumns() ColumnSelection {
	return Wildcard{}
}

// NoColumns returns the empty explicit selection
func NoColumns() ExplicitColumns {
	return ExplicitColumns{set: map[string]struct{}{}}
}

// ColumnsOf returns an explicit selection of the given columns. Duplicates are ignored.
func ColumnsOf(columns ...string) ExplicitColumns {
	set := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		set[c] = struct{}{}
	}
	return ExplicitColumns{set: set}
}

// SameColumns reports whether two selections are the same case with the same members
func SameColumns(a, b ColumnSelection) bool {
	switch av := a.(type) {
	case Wildcard:
		return b.IsWildcard()
	case ExplicitColumns:
		bv, ok := b.(ExplicitColumns)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for c := range av.set {
			if !bv.Allows(c) {
				return false
			}
		}
		return true
	}
	return false
}

// EncodeColumns serializes a selection as ["*"] or a sorted list of names
func EncodeColumns(sel ColumnSelection) ([]byte, error) {
	switch s := sel.(type) {
	case nil:
		return []byte("[]"), nil
	case Wildcard:
		return json.Marshal([]string{WildcardColumn})
	case ExplicitColumns:
		return json.Marshal(s.Columns())
	default:
		return nil, fmt.Errorf("unknown column selection %T", sel)
	}
}

// DecodeColumns parses the persisted form. Any "*" element yields Wildcard;
// a null or empty value yields the empty explicit set.
func DecodeColumns(data []byte) (ColumnSelection, error) {
	if len(data) == 0 {
		return NoColumns(), nil
	}

	var cols []string
	if err := json.Unmarshal(data, &cols); err != nil {
		return nil, fmt.Errorf("failed to unmarshal allowed columns: %w", err)
	}

	for _, c := range cols {
		if c == WildcardColumn {
			return Wildcard{}, nil
		}
	}
	return ColumnsOf(cols...), nil
}
