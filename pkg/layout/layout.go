// Package layout describes the in-memory shape of values in the inferior:
// size, alignment, kind and, for structs, the ordered list of fields.
package layout

import (
	"fmt"
	"strings"
)

// Kind is the coarse classification of a layout.
type Kind uint8

const (
	Scalar Kind = iota
	Pointer
	Struct
	Array
)

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Pointer:
		return "pointer"
	case Struct:
		return "struct"
	case Array:
		return "array"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Encoding says how the bits of a scalar are interpreted.
type Encoding uint8

const (
	EncUnknown Encoding = iota
	Signed
	Unsigned
	Float
	Bool
	Char
)

func (e Encoding) String() string {
	switch e {
	case Signed:
		return "signed"
	case Unsigned:
		return "unsigned"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case Char:
		return "char"
	}
	return "unknown"
}

// Field is a member of a struct layout.
type Field struct {
	Name   string
	Offset uint64
	Layout *ValueLayout
}

// ValueLayout describes a type as laid out in target memory.
//
// For Pointer layouts Elem is the pointee, for Array layouts Elem is the
// element type and Len the number of elements. Pointer Elem may refer back
// to an enclosing layout (self-referential structs).
type ValueLayout struct {
	Name       string
	Size       uint64
	Align      uint32
	Kind       Kind
	Encoding   Encoding
	Fields     []Field
	Elem       *ValueLayout
	Len        uint64
	Incomplete bool
}

// Unknown is the sentinel layout carried by values whose type could not be
// determined.
var Unknown = &ValueLayout{Name: "<unknown>", Kind: Scalar, Encoding: EncUnknown}

// IsUnknown reports whether l is the Unknown sentinel (or nil).
func (l *ValueLayout) IsUnknown() bool {
	return l == nil || l == Unknown
}

func (l *ValueLayout) IsInteger() bool {
	if l == nil || l.Kind != Scalar {
		return false
	}
	switch l.Encoding {
	case Signed, Unsigned, Bool, Char:
		return true
	}
	return false
}

func (l *ValueLayout) IsFloat() bool {
	return l != nil && l.Kind == Scalar && l.Encoding == Float
}

// IsSigned reports whether integer values of this layout are sign extended.
func (l *ValueLayout) IsSigned() bool {
	return l != nil && l.Kind == Scalar && (l.Encoding == Signed || l.Encoding == Char)
}

// ElemSize returns the size of the pointee or element type, zero if unknown.
func (l *ValueLayout) ElemSize() uint64 {
	if l == nil || l.Elem == nil {
		return 0
	}
	return l.Elem.Size
}

// FieldByName returns the field called name.
func (l *ValueLayout) FieldByName(name string) (Field, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Same reports whether a and b describe the same type. Layouts coming from
// the same provider are compared by identity first, then structurally by
// name, kind, size and encoding (pointees compared recursively).
func Same(a, b *ValueLayout) bool {
	for depth := 0; depth < 16; depth++ {
		if a == b {
			return true
		}
		if a == nil || b == nil {
			return false
		}
		if a.Name != b.Name || a.Kind != b.Kind || a.Size != b.Size || a.Encoding != b.Encoding || a.Len != b.Len {
			return false
		}
		if a.Kind != Pointer && a.Kind != Array {
			return true
		}
		a, b = a.Elem, b.Elem
	}
	return false
}

func (l *ValueLayout) String() string {
	if l == nil {
		return Unknown.Name
	}
	if l.Name != "" {
		return l.Name
	}
	switch l.Kind {
	case Pointer:
		return l.Elem.String() + "*"
	case Array:
		return fmt.Sprintf("%s[%d]", l.Elem.String(), l.Len)
	case Struct:
		var buf strings.Builder
		buf.WriteString("struct {")
		for i, f := range l.Fields {
			if i > 0 {
				buf.WriteString(";")
			}
			fmt.Fprintf(&buf, " %s %s", f.Layout.String(), f.Name)
		}
		buf.WriteString(" }")
		return buf.String()
	}
	return fmt.Sprintf("%s%d", l.Encoding, l.Size*8)
}

// Validate checks that every field lies within its struct, that every
// field and array element layout is present and, recursively, that they
// are valid themselves. Pointer targets are not descended into.
func (l *ValueLayout) Validate() error {
	return l.validate(make(map[*ValueLayout]bool))
}

func (l *ValueLayout) validate(seen map[*ValueLayout]bool) error {
	if l == nil {
		return fmt.Errorf("missing layout")
	}
	if seen[l] {
		return nil
	}
	seen[l] = true
	switch l.Kind {
	case Pointer:
		if l.Elem == nil {
			return fmt.Errorf("pointer type %s has no pointee layout", l)
		}
	case Array:
		if l.Elem == nil {
			return fmt.Errorf("array type %s has no element layout", l)
		}
		if l.Elem.Size != 0 && l.Len > l.Size/l.Elem.Size {
			return fmt.Errorf("array type %s: %d elements of size %d exceed size %d", l, l.Len, l.Elem.Size, l.Size)
		}
		return l.Elem.validate(seen)
	case Struct:
		for _, f := range l.Fields {
			if f.Layout == nil {
				return fmt.Errorf("field %s of %s has no layout", f.Name, l)
			}
			end := f.Offset + f.Layout.Size
			if end < f.Offset || end > l.Size {
				return fmt.Errorf("field %s of %s at offset %d (size %d) is outside of the struct (size %d)", f.Name, l, f.Offset, f.Layout.Size, l.Size)
			}
			if err := f.Layout.validate(seen); err != nil {
				return err
			}
		}
	}
	return nil
}
