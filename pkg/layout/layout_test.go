package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStruct(t *testing.T) {
	s := StructOf("struct pair", 8, 4,
		Field{Name: "a", Offset: 0, Layout: Int32},
		Field{Name: "count", Offset: 4, Layout: Int32})
	require.NoError(t, s.Validate())

	bad := StructOf("struct bad", 6, 4,
		Field{Name: "a", Offset: 0, Layout: Int32},
		Field{Name: "b", Offset: 4, Layout: Int32})
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside of the struct")

	missing := StructOf("struct missing", 4, 4, Field{Name: "a"})
	require.Error(t, missing.Validate())
}

func TestValidateSelfReferential(t *testing.T) {
	node := StructOf("struct node", 16, 8)
	node.Fields = []Field{
		{Name: "value", Offset: 0, Layout: Int64},
		{Name: "next", Offset: 8, Layout: PointerTo(node, 8)},
	}
	require.NoError(t, node.Validate())
	assert.Equal(t, "struct node*", node.Fields[1].Layout.String())
}

func TestValidateArray(t *testing.T) {
	require.NoError(t, ArrayOf(Int32, 4).Validate())
	arr := &ValueLayout{Kind: Array, Size: 8, Elem: Int32, Len: 4}
	require.Error(t, arr.Validate())
}

func TestSame(t *testing.T) {
	assert.True(t, Same(PointerTo(Int32, 8), PointerTo(Int32, 8)))
	assert.False(t, Same(PointerTo(Int32, 8), PointerTo(Int64, 8)))
	assert.False(t, Same(Int32, Uint32))
	assert.True(t, Same(ArrayOf(CharLayout, 3), ArrayOf(CharLayout, 3)))
}

func TestPredicates(t *testing.T) {
	assert.True(t, Int8.IsSigned())
	assert.True(t, CharLayout.IsSigned())
	assert.False(t, Uint64.IsSigned())
	assert.True(t, BoolLayout.IsInteger())
	assert.True(t, Float32.IsFloat())
	assert.False(t, Float32.IsInteger())
	assert.True(t, Unknown.IsUnknown())
	assert.Equal(t, uint64(4), PointerTo(Int32, 8).ElemSize())
	assert.Equal(t, "int32[4]", ArrayOf(Int32, 4).String())

	f, ok := IncompleteStruct("struct opaque").FieldByName("x")
	assert.False(t, ok)
	assert.Nil(t, f.Layout)
}
