package proc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-delve/dlveval/pkg/layout"
)

// Format selects how Render prints a value.
type Format uint8

const (
	FormatDecimal Format = iota
	FormatHex
	FormatChar
	FormatPointer
	FormatStruct
)

var formatNames = [...]string{
	FormatDecimal: "decimal",
	FormatHex:     "hex",
	FormatChar:    "char",
	FormatPointer: "pointer",
	FormatStruct:  "struct",
}

func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return fmt.Sprintf("Format(%d)", uint8(f))
}

// ParseFormat parses the name of a format. Single letter abbreviations
// (d, x, c, p, s) are accepted.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "decimal", "d", "dec":
		return FormatDecimal, nil
	case "hex", "x":
		return FormatHex, nil
	case "char", "c":
		return FormatChar, nil
	case "pointer", "p", "ptr":
		return FormatPointer, nil
	case "struct", "s":
		return FormatStruct, nil
	}
	return FormatDecimal, fmt.Errorf("unknown format %q", s)
}

var errNotMaterialized = errors.New("value not loaded")

// Render returns a textual representation of v. Only the contents already
// loaded into v are used, Render never reads target memory.
func (v *Value) Render(format Format) (string, error) {
	if v.data == nil {
		return "", errNotMaterialized
	}
	var buf bytes.Buffer
	v.writeTo(&buf, format, true)
	return buf.String(), nil
}

func (v *Value) writeTo(buf io.Writer, format Format, top bool) {
	if v.data == nil || uint64(len(v.data)) < v.Layout.Size && v.Kind() != AggregateValue {
		fmt.Fprint(buf, "<unreadable>")
		return
	}
	switch v.Kind() {
	case PointerValue:
		v.writePointerTo(buf, format, top)
	case AggregateValue:
		if format == FormatPointer && top {
			if addr, ok := v.Address(); ok {
				fmt.Fprintf(buf, "(%s*) %#x", v.Layout, addr)
				return
			}
		}
		if v.Layout.Kind == layout.Array {
			v.writeArrayTo(buf, format)
		} else {
			v.writeStructTo(buf, format)
		}
	default:
		v.writeScalarTo(buf, format)
	}
}

func (v *Value) writePointerTo(buf io.Writer, format Format, top bool) {
	switch format {
	case FormatDecimal:
		fmt.Fprint(buf, strconv.FormatUint(v.Target(), 10))
	case FormatPointer:
		if top {
			fmt.Fprintf(buf, "(%s) %#x", v.Layout, v.Target())
			return
		}
		fallthrough
	default:
		fmt.Fprintf(buf, "%#x", v.Target())
	}
}

func (v *Value) writeScalarTo(buf io.Writer, format Format) {
	l := v.Layout
	switch format {
	case FormatHex, FormatPointer:
		fmt.Fprintf(buf, "%#x", truncate(v.Bits(), l))
		return
	case FormatChar:
		if l.IsInteger() {
			fmt.Fprint(buf, strconv.QuoteRuneToASCII(rune(v.Int())))
			return
		}
	}
	switch {
	case l.IsFloat():
		f := v.Float()
		bitSize := 64
		if l.Size == 4 {
			bitSize = 32
		}
		if math.IsInf(f, 1) {
			fmt.Fprint(buf, "+Inf")
			return
		}
		fmt.Fprint(buf, strconv.FormatFloat(f, 'g', -1, bitSize))
	case l.Encoding == layout.Bool:
		fmt.Fprint(buf, strconv.FormatBool(v.Bits() != 0))
	case l.IsSigned():
		fmt.Fprint(buf, strconv.FormatInt(v.Int(), 10))
	default:
		fmt.Fprint(buf, strconv.FormatUint(truncate(v.Bits(), l), 10))
	}
}

func (v *Value) writeStructTo(buf io.Writer, format Format) {
	if v.Layout.Incomplete {
		fmt.Fprint(buf, "{...}")
		return
	}
	fmt.Fprint(buf, "{")
	for i, f := range v.Layout.Fields {
		if i > 0 {
			fmt.Fprint(buf, ", ")
		}
		fmt.Fprintf(buf, "%s: ", f.Name)
		v.member(f.Offset, f.Layout).writeTo(buf, leafFormat(format), false)
	}
	fmt.Fprint(buf, "}")
}

func (v *Value) writeArrayTo(buf io.Writer, format Format) {
	elem := v.Layout.Elem
	fmt.Fprint(buf, "[")
	for i := uint64(0); i < v.Layout.Len; i++ {
		if i > 0 {
			fmt.Fprint(buf, ", ")
		}
		off := i * elem.Size
		if off+elem.Size > uint64(len(v.data)) {
			fmt.Fprintf(buf, "...+%d more", v.Layout.Len-i)
			break
		}
		v.member(off, elem).writeTo(buf, leafFormat(format), false)
	}
	fmt.Fprint(buf, "]")
}

// leafFormat is the format used for the members of an aggregate.
func leafFormat(format Format) Format {
	if format == FormatStruct {
		return FormatDecimal
	}
	return format
}
