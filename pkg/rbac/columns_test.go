package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnSelection_Allows(t *testing.T) {
	assert.True(t, AllColumns().Allows("anything"))
	assert.True(t, AllColumns().IsWildcard())

	sel := ColumnsOf("name", "phone", "name")
	assert.Equal(t, 2, sel.Len())
	assert.True(t, sel.Allows("phone"))
	assert.False(t, sel.Allows("salary"))
	assert.False(t, sel.IsWildcard())

	assert.False(t, NoColumns().Allows("name"))
}

func TestExplicitColumns_WithWithoutCopy(t *testing.T) {
	base := ColumnsOf("name")
	added := base.With("email")
	removed := added.Without("name")

	assert.Equal(t, []string{"name"}, base.Columns())
	assert.Equal(t, []string{"email", "name"}, added.Columns())
	assert.Equal(t, []string{"email"}, removed.Columns())
	assert.Equal(t, "[email name]", added.String())
}

func TestSameColumns(t *testing.T) {
	assert.True(t, SameColumns(AllColumns(), AllColumns()))
	assert.True(t, SameColumns(ColumnsOf("a", "b"), ColumnsOf("b", "a")))
	assert.False(t, SameColumns(ColumnsOf("a"), ColumnsOf("a", "b")))
	assert.False(t, SameColumns(AllColumns(), ColumnsOf("a")))
	assert.False(t, SameColumns(ColumnsOf("a"), AllColumns()))
	assert.True(t, SameColumns(NoColumns(), ColumnsOf()))
}

func TestEncodeDecodeColumns(t *testing.T) {
	data, err := EncodeColumns(AllColumns())
	require.NoError(t, err)
	assert.JSONEq(t, `["*"]`, string(data))

	data, err = EncodeColumns(ColumnsOf("phone", "name"))
	require.NoError(t, err)
	assert.JSONEq(t, `["name","phone"]`, string(data))

	data, err = EncodeColumns(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	tests := []struct {
		in       string
		wildcard bool
		columns  []string
	}{
		{`["*"]`, true, nil},
		{`["name","*"]`, true, nil},
		{`["name"]`, false, []string{"name"}},
		{`[]`, false, []string{}},
		{`null`, false, []string{}},
		{``, false, []string{}},
	}
	for _, tt := range tests {
		sel, err := DecodeColumns([]byte(tt.in))
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.wildcard, sel.IsWildcard(), tt.in)
		if !tt.wildcard {
			assert.Equal(t, tt.columns, sel.(ExplicitColumns).Columns(), tt.in)
		}
	}

	_, err = DecodeColumns([]byte(`{"a":1}`))
	assert.Error(t, err)
}

func TestResourcePermission_Columns(t *testing.T) {
	var p ResourcePermission
	assert.Equal(t, 0, p.Columns().(ExplicitColumns).Len())

	p.AllowedColumns = AllColumns()
	assert.True(t, p.Columns().IsWildcard())
}

func TestFlags(t *testing.T) {
	var f Flags
	for _, action := range Actions() {
		assert.True(t, action.Valid())
		assert.False(t, f.Get(action))
		assert.True(t, f.With(action, true).Get(action))
	}
	assert.False(t, Action("approve").Valid())
	assert.False(t, Flags{CanView: true}.Get(Action("approve")))
	assert.Equal(t, Flags{CanEdit: true}, Flags{}.With(ActionEdit, true).With(Action("approve"), true))
}
