package proc

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/go-delve/dlveval/pkg/layout"
)

func TestPromote(t *testing.T) {
	cint := &layout.ValueLayout{Name: "int", Size: 4, Align: 4, Kind: layout.Scalar, Encoding: layout.Signed}
	for _, tc := range []struct {
		x, y, want *layout.ValueLayout
	}{
		{layout.Int32, layout.Int32, layout.Int32},
		{layout.Int8, layout.Int32, layout.Int32},
		{layout.Uint8, layout.Int16, layout.Int16},
		{layout.Int32, layout.Uint32, layout.Uint32},
		{layout.Uint64, layout.Int64, layout.Uint64},
		{layout.Int64, layout.Uint32, layout.Int64},
		{layout.CharLayout, layout.CharLayout, layout.Int8},
		{layout.BoolLayout, layout.CharLayout, layout.Uint8},
		{cint, layout.Int32, cint},
		{layout.Int32, cint, layout.Int32},
		{layout.Int32, layout.Float32, layout.Float32},
		{layout.Float32, layout.Float64, layout.Float64},
		{layout.Float64, layout.Uint64, layout.Float64},
	} {
		assert.Same(t, tc.want, promote(tc.x, tc.y), "%s and %s", tc.x, tc.y)
	}
}

func TestConvert(t *testing.T) {
	le := binary.LittleEndian
	for _, tc := range []struct {
		v    *Value
		to   *layout.ValueLayout
		want uint64
	}{
		{newScalar(layout.Int32, 0xffffffff, le), layout.Int64, 0xffffffffffffffff},
		{newScalar(layout.Uint32, 0xffffffff, le), layout.Int64, 0xffffffff},
		{newScalar(layout.Int32, 300, le), layout.Uint8, 44},
		{newScalar(layout.Int32, 2, le), layout.BoolLayout, 1},
		{newFloat(layout.Float64, -2.5, le), layout.Int32, 0xfffffffe},
		{newFloat(layout.Float64, 3.9, le), layout.Uint8, 3},
	} {
		got, err := convert(tc.v, tc.to)
		assert.NoError(t, err)
		assert.Equal(t, tc.want, got, "%v to %s", tc.v, tc.to)
	}

	_, err := convert(newLazy(layout.StructOf("s", 4, 4), 0x10, le), layout.Int32)
	assert.Equal(t, TypeMismatch, KindOf(err))
}

func TestEncodeBits(t *testing.T) {
	assert.Equal(t, []byte{0x34, 0x12}, encodeBits(0x1234, 2, binary.LittleEndian))
	assert.Equal(t, []byte{0x12, 0x34}, encodeBits(0x1234, 2, binary.BigEndian))
	assert.Equal(t, []byte{}, encodeBits(0x1234, 0, binary.LittleEndian))
	assert.Equal(t, uint64(0x1234), decodeBits([]byte{0x12, 0x34}, binary.BigEndian))
	assert.Equal(t, int64(-1), signExtend(0xff, layout.Int8))
	assert.Equal(t, int64(255), signExtend(0xff, layout.Uint8))
}

func TestEvalErrorMessage(t *testing.T) {
	e := &EvalError{Kind: NoSuchMember, Msg: "struct counter has no member named 'nope'", Expr: "g_counter.nope + 1", Pos: 0, End: 14}
	assert.Equal(t, `struct counter has no member named 'nope' at offset 0 in expression "g_counter.nope + 1" ("g_counter.nope")`, e.Error())

	e = &EvalError{Kind: SyntaxError, Msg: "expected operand, found end of expression", Expr: "1 +", Pos: 3, End: 3}
	assert.Equal(t, `expected operand, found end of expression at offset 3 in expression "1 +"`, e.Error())

	e = newError(Timeout, "")
	assert.Equal(t, "evaluation timeout", e.Error())
}
