package proc

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-delve/dlveval/pkg/layout"
)

// ValueKind is the variant of a Value.
type ValueKind uint8

const (
	ScalarValue ValueKind = iota
	PointerValue
	AggregateValue
)

func (k ValueKind) String() string {
	switch k {
	case ScalarValue:
		return "scalar"
	case PointerValue:
		return "pointer"
	case AggregateValue:
		return "aggregate"
	}
	return "unknown"
}

type location uint8

const (
	locNone location = iota
	locMemory
	locRegister
)

// Value is the result of evaluating an expression, or of any of its
// sub-expressions. It is one of
//
//	Scalar(bits, layout)
//	Pointer(address, pointee layout)
//	Aggregate(address, layout)
//
// depending on the kind of its layout. A Value that lives in target memory
// is lazy: its contents are not read until the Value is materialized, so
// that constructing *p for an invalid p never fails by itself.
//
// Values are immutable, every operation produces a new one.
type Value struct {
	Layout *layout.ValueLayout

	loc    location
	addr   uint64
	reg    string
	thread int

	order binary.ByteOrder
	// data holds the contents of the value once materialized. For
	// aggregates it may be shorter than the layout size, see Truncated.
	data []byte
}

// Kind returns the variant of v.
func (v *Value) Kind() ValueKind {
	if v.Layout == nil {
		return ScalarValue
	}
	switch v.Layout.Kind {
	case layout.Pointer:
		return PointerValue
	case layout.Struct, layout.Array:
		return AggregateValue
	}
	return ScalarValue
}

// Address returns the address v lives at, if it lives in target memory.
func (v *Value) Address() (uint64, bool) {
	return v.addr, v.loc == locMemory
}

// Register returns the register v was read from, if any.
func (v *Value) Register() (string, bool) {
	return v.reg, v.loc == locRegister
}

// Materialized reports whether the contents of v have been read.
func (v *Value) Materialized() bool {
	return v.data != nil
}

// Truncated reports whether only part of an aggregate was loaded.
func (v *Value) Truncated() bool {
	return v.data != nil && uint64(len(v.data)) < v.Layout.Size
}

// Bytes returns a copy of the contents of v, nil if v is not materialized.
func (v *Value) Bytes() []byte {
	if v.data == nil {
		return nil
	}
	return append([]byte(nil), v.data...)
}

// Bits returns the raw bits of a materialized scalar or pointer, zero
// extended to 64 bits.
func (v *Value) Bits() uint64 {
	return decodeBits(v.data, v.order)
}

// Int returns the value of a materialized integer, sign extended if its
// layout is signed.
func (v *Value) Int() int64 {
	return signExtend(v.Bits(), v.Layout)
}

// Uint returns the value of a materialized integer.
func (v *Value) Uint() uint64 {
	return v.Bits()
}

// Float returns the value of a materialized floating point scalar.
func (v *Value) Float() float64 {
	if v.Layout.Size == 4 {
		return float64(math.Float32frombits(uint32(v.Bits())))
	}
	return math.Float64frombits(v.Bits())
}

// Target returns the address a materialized pointer points to.
func (v *Value) Target() uint64 {
	return v.Bits()
}

// Pointee returns the layout of the values pointed to by a pointer, or the
// element layout of an array.
func (v *Value) Pointee() *layout.ValueLayout {
	if v.Layout == nil || v.Layout.Elem == nil {
		return layout.Unknown
	}
	return v.Layout.Elem
}

func (v *Value) String() string {
	switch v.loc {
	case locMemory:
		if v.data == nil {
			return fmt.Sprintf("(%s) @%#x <not loaded>", v.Layout, v.addr)
		}
	case locRegister:
		return fmt.Sprintf("(%s) %#x in %s", v.Layout, v.Bits(), v.reg)
	}
	if v.data == nil {
		return fmt.Sprintf("(%s) <not loaded>", v.Layout)
	}
	s, err := v.Render(FormatDecimal)
	if err != nil {
		return fmt.Sprintf("(%s) <%v>", v.Layout, err)
	}
	return fmt.Sprintf("(%s) %s", v.Layout, s)
}

// newScalar returns a materialized value holding bits, truncated to the
// size of l.
func newScalar(l *layout.ValueLayout, bits uint64, order binary.ByteOrder) *Value {
	return &Value{Layout: l, order: order, data: encodeBits(bits, l.Size, order)}
}

func newFloat(l *layout.ValueLayout, f float64, order binary.ByteOrder) *Value {
	if l.Size == 4 {
		return newScalar(l, uint64(math.Float32bits(float32(f))), order)
	}
	return newScalar(l, math.Float64bits(f), order)
}

// newLazy returns an unmaterialized value of layout l at addr.
func newLazy(l *layout.ValueLayout, addr uint64, order binary.ByteOrder) *Value {
	return &Value{Layout: l, loc: locMemory, addr: addr, order: order}
}

func newRegisterValue(l *layout.ValueLayout, thread int, reg string, bits uint64, order binary.ByteOrder) *Value {
	v := newScalar(l, bits, order)
	v.loc = locRegister
	v.thread = thread
	v.reg = reg
	return v
}

// withData returns a copy of v materialized with data.
func (v *Value) withData(data []byte) *Value {
	r := *v
	r.data = data
	return &r
}

// member returns the value of the member of an aggregate at the given
// offset. If v is materialized the member is materialized from v's bytes,
// otherwise it is lazy.
func (v *Value) member(off uint64, l *layout.ValueLayout) *Value {
	r := &Value{Layout: l, order: v.order}
	if v.loc == locMemory {
		r.loc, r.addr = locMemory, v.addr+off
	}
	if v.data != nil && off+l.Size <= uint64(len(v.data)) {
		r.data = v.data[off : off+l.Size : off+l.Size]
	}
	return r
}

func encodeBits(bits uint64, size uint64, order binary.ByteOrder) []byte {
	var buf [8]byte
	if size > 8 {
		size = 8
	}
	order.PutUint64(buf[:], bits)
	out := make([]byte, size)
	if order == binary.ByteOrder(binary.BigEndian) {
		copy(out, buf[8-size:])
	} else {
		copy(out, buf[:size])
	}
	return out
}

func decodeBits(data []byte, order binary.ByteOrder) uint64 {
	if len(data) > 8 {
		data = data[:8]
	}
	var buf [8]byte
	if order == binary.ByteOrder(binary.BigEndian) {
		copy(buf[8-len(data):], data)
		return binary.BigEndian.Uint64(buf[:])
	}
	copy(buf[:], data)
	return binary.LittleEndian.Uint64(buf[:])
}

// truncate returns bits truncated to the size of l.
func truncate(bits uint64, l *layout.ValueLayout) uint64 {
	if l.Size >= 8 || l.Size == 0 {
		return bits
	}
	return bits & (1<<(l.Size*8) - 1)
}

// signExtend interprets bits as a value of layout l and extends it to 64 bits.
func signExtend(bits uint64, l *layout.ValueLayout) int64 {
	bits = truncate(bits, l)
	if !l.IsSigned() || l.Size >= 8 || l.Size == 0 {
		return int64(bits)
	}
	shift := 64 - l.Size*8
	return int64(bits<<shift) >> shift
}
