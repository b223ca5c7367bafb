package proc

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Arch describes the CPU architecture of the inferior, as far as
// evaluating expressions is concerned.
type Arch struct {
	Name string
	// PCRegister is the name of the program counter register.
	PCRegister string

	ptrSize   int
	byteOrder binary.ByteOrder
}

// PtrSize returns the size of a pointer, in bytes.
func (a *Arch) PtrSize() int {
	return a.ptrSize
}

// ByteOrder returns the byte order of integers in memory.
func (a *Arch) ByteOrder() binary.ByteOrder {
	return a.byteOrder
}

func (a *Arch) String() string {
	return a.Name
}

// AMD64Arch returns the description of the AMD64 architecture.
func AMD64Arch() *Arch {
	return &Arch{Name: "amd64", PCRegister: "rip", ptrSize: 8, byteOrder: binary.LittleEndian}
}

// I386Arch returns the description of the 386 architecture.
func I386Arch() *Arch {
	return &Arch{Name: "386", PCRegister: "eip", ptrSize: 4, byteOrder: binary.LittleEndian}
}

// ARM64Arch returns the description of the ARM64 architecture.
func ARM64Arch() *Arch {
	return &Arch{Name: "arm64", PCRegister: "pc", ptrSize: 8, byteOrder: binary.LittleEndian}
}

// PPC64LEArch returns the description of the little endian PPC64 architecture.
func PPC64LEArch() *Arch {
	return &Arch{Name: "ppc64le", PCRegister: "pc", ptrSize: 8, byteOrder: binary.LittleEndian}
}

// S390XArch returns the description of the s390x architecture, the only big
// endian one.
func S390XArch() *Arch {
	return &Arch{Name: "s390x", PCRegister: "pc", ptrSize: 8, byteOrder: binary.BigEndian}
}

// ArchByName returns the architecture called name.
func ArchByName(name string) (*Arch, error) {
	switch strings.ToLower(name) {
	case "amd64", "x86_64", "":
		return AMD64Arch(), nil
	case "386", "i386", "x86":
		return I386Arch(), nil
	case "arm64", "aarch64":
		return ARM64Arch(), nil
	case "ppc64le":
		return PPC64LEArch(), nil
	case "s390x":
		return S390XArch(), nil
	}
	return nil, fmt.Errorf("unknown architecture %q", name)
}

// ArchProvider is implemented by backends that know the architecture of
// the inferior. Backends that do not implement it are assumed to be AMD64.
type ArchProvider interface {
	Arch() *Arch
}
