package snapshot

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/go-delve/dlveval/pkg/layout"
	"github.com/go-delve/dlveval/pkg/proc"
)

// File is the YAML description of a snapshot.
//
//	arch: amd64
//	types:
//	  - {id: node, kind: struct, size: 16, align: 8, fields: [{name: val, offset: 0, type: int32}, {name: next, offset: 8, type: node_ptr}]}
//	  - {id: node_ptr, kind: pointer, elem: node}
//	memory:
//	  - {addr: 0x1000, data: "2a000000 00000000 00000000 00000000", writable: true}
//	globals:
//	  - {name: head, type: node, addr: 0x1000}
type File struct {
	Arch    string               `yaml:"arch"`
	Types   []TypeDesc           `yaml:"types"`
	Memory  []RegionDesc         `yaml:"memory"`
	Threads []ThreadDesc         `yaml:"threads"`
	Statics map[string][]VarDesc `yaml:"statics"`
	Globals []VarDesc            `yaml:"globals"`
}

// TypeDesc describes a type. Kind is one of int, uint, float, bool, char,
// pointer, struct or array.
type TypeDesc struct {
	ID         string      `yaml:"id"`
	Name       string      `yaml:"name"`
	Kind       string      `yaml:"kind"`
	Size       uint64      `yaml:"size"`
	Align      uint32      `yaml:"align"`
	Elem       string      `yaml:"elem"`
	Len        uint64      `yaml:"len"`
	Incomplete bool        `yaml:"incomplete"`
	Fields     []FieldDesc `yaml:"fields"`
}

type FieldDesc struct {
	Name   string `yaml:"name"`
	Offset uint64 `yaml:"offset"`
	Type   string `yaml:"type"`
}

// RegionDesc describes a mapped memory region. Data is hex encoded,
// whitespace is ignored. If Size is larger than the data the rest of the
// region is zero filled.
type RegionDesc struct {
	Addr     uint64 `yaml:"addr"`
	Data     string `yaml:"data"`
	Size     uint64 `yaml:"size"`
	Writable bool   `yaml:"writable"`
}

type ThreadDesc struct {
	ID        int               `yaml:"id"`
	Registers map[string]uint64 `yaml:"registers"`
	Frames    []FrameDesc       `yaml:"frames"`
}

type FrameDesc struct {
	Function string    `yaml:"function"`
	File     string    `yaml:"file"`
	Locals   []VarDesc `yaml:"locals"`
	Params   []VarDesc `yaml:"params"`
}

// VarDesc describes a variable. A variable with a register lives in that
// register, one with a const is a constant, one with an address lives in
// memory; a variable with none of the three has been optimized away.
type VarDesc struct {
	Name     string  `yaml:"name"`
	Type     string  `yaml:"type"`
	Addr     *uint64 `yaml:"addr"`
	Register string  `yaml:"register"`
	Const    *uint64 `yaml:"const"`
}

func (v VarDesc) symbol() proc.SymbolInfo {
	sym := proc.SymbolInfo{Name: v.Name, Type: proc.TypeID(v.Type)}
	switch {
	case v.Register != "":
		sym.Storage, sym.Register = proc.StorageRegister, v.Register
	case v.Const != nil:
		sym.Storage, sym.Const = proc.StorageConstant, *v.Const
	default:
		sym.Storage = proc.StorageMemory
		if v.Addr != nil {
			sym.Addr, sym.HasAddr = *v.Addr, true
		}
	}
	return sym
}

// Load reads a snapshot from the YAML file at path.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a snapshot from its YAML description.
func Parse(data []byte) (*Snapshot, error) {
	var f File
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("unable to decode snapshot: %v", err)
	}
	return f.Build()
}

// Build creates the snapshot described by f.
func (f *File) Build() (*Snapshot, error) {
	arch, err := proc.ArchByName(f.Arch)
	if err != nil {
		return nil, err
	}
	s := New(arch)

	layouts, err := buildLayouts(f.Types, uint64(arch.PtrSize()))
	if err != nil {
		return nil, err
	}
	for id, l := range layouts {
		s.AddType(proc.TypeID(id), l)
	}

	for _, r := range f.Memory {
		data, err := hex.DecodeString(strings.Join(strings.Fields(r.Data), ""))
		if err != nil {
			return nil, fmt.Errorf("region at %#x: %v", r.Addr, err)
		}
		if uint64(len(data)) < r.Size {
			data = append(data, make([]byte, r.Size-uint64(len(data)))...)
		}
		if err := s.Map(r.Addr, data, r.Writable); err != nil {
			return nil, err
		}
	}

	for _, td := range f.Threads {
		if _, dup := s.threads[td.ID]; dup {
			return nil, fmt.Errorf("duplicate thread %d", td.ID)
		}
		s.AddThread(td.ID, td.Registers)
		for _, fd := range td.Frames {
			fr, err := s.AddFrame(td.ID, fd.Function, fd.File)
			if err != nil {
				return nil, err
			}
			for _, v := range fd.Locals {
				fr.AddLocal(v.symbol())
			}
			for _, v := range fd.Params {
				fr.AddParam(v.symbol())
			}
		}
	}

	for file, vars := range f.Statics {
		for _, v := range vars {
			s.AddStatic(file, v.symbol())
		}
	}
	for _, v := range f.Globals {
		s.AddGlobal(v.symbol())
	}
	return s, nil
}

// buildLayouts converts type descriptions into layouts. Types may refer to
// each other in any order, and pointers may form cycles.
func buildLayouts(types []TypeDesc, ptrSize uint64) (map[string]*layout.ValueLayout, error) {
	layouts := make(map[string]*layout.ValueLayout, len(types))
	for _, td := range types {
		if td.ID == "" {
			return nil, fmt.Errorf("type without id")
		}
		if _, dup := layouts[td.ID]; dup {
			return nil, fmt.Errorf("duplicate type %s", td.ID)
		}
		l := &layout.ValueLayout{Name: td.Name, Size: td.Size, Align: td.Align, Len: td.Len, Incomplete: td.Incomplete}
		switch td.Kind {
		case "int", "signed":
			l.Kind, l.Encoding = layout.Scalar, layout.Signed
		case "uint", "unsigned":
			l.Kind, l.Encoding = layout.Scalar, layout.Unsigned
		case "float":
			l.Kind, l.Encoding = layout.Scalar, layout.Float
		case "bool":
			l.Kind, l.Encoding = layout.Scalar, layout.Bool
		case "char":
			l.Kind, l.Encoding = layout.Scalar, layout.Char
		case "pointer":
			l.Kind, l.Encoding = layout.Pointer, layout.Unsigned
			if l.Size == 0 {
				l.Size = ptrSize
			}
		case "struct":
			l.Kind = layout.Struct
		case "array":
			l.Kind = layout.Array
		default:
			return nil, fmt.Errorf("type %s: unknown kind %q", td.ID, td.Kind)
		}
		if l.Name == "" && l.Kind != layout.Pointer && l.Kind != layout.Array {
			l.Name = td.ID
		}
		if l.Align == 0 && l.Kind != layout.Struct && l.Kind != layout.Array {
			l.Align = uint32(l.Size)
		}
		layouts[td.ID] = l
	}

	lookup := func(id string) (*layout.ValueLayout, error) {
		if l, ok := layouts[id]; ok {
			return l, nil
		}
		if l, ok := predeclared[id]; ok {
			return l, nil
		}
		return nil, fmt.Errorf("unknown type %q", id)
	}

	for _, td := range types {
		l := layouts[td.ID]
		if td.Elem != "" {
			elem, err := lookup(td.Elem)
			if err != nil {
				return nil, fmt.Errorf("type %s: %v", td.ID, err)
			}
			l.Elem = elem
		} else if l.Kind == layout.Pointer {
			// void *
			l.Elem = layout.Unknown
		}
		for _, fd := range td.Fields {
			fl, err := lookup(fd.Type)
			if err != nil {
				return nil, fmt.Errorf("type %s, field %s: %v", td.ID, fd.Name, err)
			}
			l.Fields = append(l.Fields, layout.Field{Name: fd.Name, Offset: fd.Offset, Layout: fl})
		}
	}

	for id, l := range layouts {
		if err := sizeArray(l, 0); err != nil {
			return nil, fmt.Errorf("type %s: %v", id, err)
		}
		if l.Kind == layout.Array && l.Align == 0 && l.Elem != nil {
			l.Align = l.Elem.Align
		}
	}
	return layouts, nil
}

// sizeArray computes the size of arrays declared without one.
func sizeArray(l *layout.ValueLayout, depth int) error {
	if l.Kind != layout.Array || l.Size != 0 || l.Elem == nil {
		return nil
	}
	if depth > 32 {
		return fmt.Errorf("array nesting too deep")
	}
	if err := sizeArray(l.Elem, depth+1); err != nil {
		return err
	}
	l.Size = l.Elem.Size * l.Len
	return nil
}
