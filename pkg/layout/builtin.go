package layout

// Predeclared scalar layouts.
var (
	Int8    = &ValueLayout{Name: "int8", Size: 1, Align: 1, Kind: Scalar, Encoding: Signed}
	Int16   = &ValueLayout{Name: "int16", Size: 2, Align: 2, Kind: Scalar, Encoding: Signed}
	Int32   = &ValueLayout{Name: "int32", Size: 4, Align: 4, Kind: Scalar, Encoding: Signed}
	Int64   = &ValueLayout{Name: "int64", Size: 8, Align: 8, Kind: Scalar, Encoding: Signed}
	Uint8   = &ValueLayout{Name: "uint8", Size: 1, Align: 1, Kind: Scalar, Encoding: Unsigned}
	Uint16  = &ValueLayout{Name: "uint16", Size: 2, Align: 2, Kind: Scalar, Encoding: Unsigned}
	Uint32  = &ValueLayout{Name: "uint32", Size: 4, Align: 4, Kind: Scalar, Encoding: Unsigned}
	Uint64  = &ValueLayout{Name: "uint64", Size: 8, Align: 8, Kind: Scalar, Encoding: Unsigned}
	Float32 = &ValueLayout{Name: "float32", Size: 4, Align: 4, Kind: Scalar, Encoding: Float}
	Float64 = &ValueLayout{Name: "float64", Size: 8, Align: 8, Kind: Scalar, Encoding: Float}

	CharLayout = &ValueLayout{Name: "char", Size: 1, Align: 1, Kind: Scalar, Encoding: Char}
	BoolLayout = &ValueLayout{Name: "bool", Size: 1, Align: 1, Kind: Scalar, Encoding: Bool}
)

// Int returns the predeclared signed integer layout of the given byte size.
func Int(size uint64) *ValueLayout {
	switch size {
	case 1:
		return Int8
	case 2:
		return Int16
	case 4:
		return Int32
	case 8:
		return Int64
	}
	return nil
}

// Uint returns the predeclared unsigned integer layout of the given byte size.
func Uint(size uint64) *ValueLayout {
	switch size {
	case 1:
		return Uint8
	case 2:
		return Uint16
	case 4:
		return Uint32
	case 8:
		return Uint64
	}
	return nil
}

// FloatOf returns the predeclared floating point layout of the given byte size.
func FloatOf(size uint64) *ValueLayout {
	switch size {
	case 4:
		return Float32
	case 8:
		return Float64
	}
	return nil
}

// PointerTo returns a pointer layout of ptrSize bytes pointing to elem.
func PointerTo(elem *ValueLayout, ptrSize uint64) *ValueLayout {
	return &ValueLayout{Size: ptrSize, Align: uint32(ptrSize), Kind: Pointer, Encoding: Unsigned, Elem: elem}
}

// ArrayOf returns a layout for n contiguous elements of elem.
func ArrayOf(elem *ValueLayout, n uint64) *ValueLayout {
	return &ValueLayout{Size: elem.Size * n, Align: elem.Align, Kind: Array, Elem: elem, Len: n}
}

// StructOf returns a struct layout with the given fields. Offsets are
// taken as given; size and alignment are those of the debug info.
func StructOf(name string, size uint64, align uint32, fields ...Field) *ValueLayout {
	return &ValueLayout{Name: name, Size: size, Align: align, Kind: Struct, Fields: fields}
}

// IncompleteStruct returns the layout of a forward declared struct whose
// members are not known.
func IncompleteStruct(name string) *ValueLayout {
	return &ValueLayout{Name: name, Kind: Struct, Incomplete: true}
}
