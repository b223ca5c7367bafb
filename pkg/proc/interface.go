package proc

import (
	"github.com/go-delve/dlveval/pkg/layout"
)

// TargetProcess is the process-control capability the evaluator consumes.
// It represents a halted inferior; implementations may be backed by a
// live process, a core file or a recorded snapshot.
//
// Errors returned by the memory methods may wrap Unreadable or ReadOnly to
// classify the failure, any other error is treated as a ProcessError by the
// MemoryView.
type TargetProcess interface {
	// ReadMemory reads len(buf) bytes at addr and returns the number of
	// bytes read. Reading less than len(buf) bytes is a fault.
	ReadMemory(buf []byte, addr uint64) (n int, err error)
	WriteMemory(addr uint64, data []byte) (written int, err error)

	GetRegister(thread int, name string) (uint64, error)
	SetRegister(thread int, name string, value uint64) error

	// CurrentGeneration returns the number of times the process was resumed
	// or stepped. It must increase by exactly one per resume or step.
	CurrentGeneration() uint64
}

// Resumer is implemented by backends that can resume the inferior.
type Resumer interface {
	Resume() error
	Step(thread int) error
}

// Storage says where the value of a symbol lives.
type Storage uint8

const (
	StorageMemory Storage = iota
	StorageRegister
	StorageConstant
)

func (s Storage) String() string {
	switch s {
	case StorageMemory:
		return "memory"
	case StorageRegister:
		return "register"
	case StorageConstant:
		return "constant"
	}
	return "unknown"
}

// SymbolClass is the scope class in which a name was found. Classes are
// listed in resolution order.
type SymbolClass uint8

const (
	ClassLocal SymbolClass = iota
	ClassParam
	ClassFileStatic
	ClassGlobal
)

var resolutionOrder = [...]SymbolClass{ClassLocal, ClassParam, ClassFileStatic, ClassGlobal}

func (c SymbolClass) String() string {
	switch c {
	case ClassLocal:
		return "local"
	case ClassParam:
		return "param"
	case ClassFileStatic:
		return "static"
	case ClassGlobal:
		return "global"
	}
	return "unknown"
}

// Scope identifies where a name is being looked up.
type Scope struct {
	Thread     int
	Frame      int
	Generation uint64
	// Class restricts a provider lookup to one scope class.
	Class SymbolClass
}

// TypeID identifies a type in the debug information.
type TypeID string

// SymbolInfo is what a SymbolProvider knows about a name.
type SymbolInfo struct {
	Name    string
	Type    TypeID
	Storage Storage
	// Addr is only meaningful if HasAddr is set; memory symbols without an
	// address have been optimized away.
	Addr     uint64
	HasAddr  bool
	Register string
	Const    uint64
}

// SymbolProvider is the debug information capability the evaluator
// consumes.
type SymbolProvider interface {
	// ResolveName looks name up in the scope class scope.Class, for the
	// given thread and frame. It returns nil, nil if the name is not
	// defined there.
	ResolveName(name string, scope Scope) (*SymbolInfo, error)
	LayoutOf(id TypeID) (*layout.ValueLayout, error)
}

// SymbolLister is implemented by providers that can enumerate the names
// visible in a scope class.
type SymbolLister interface {
	Names(scope Scope) []string
}

// AddressLookup is implemented by providers that can map an address back
// to the global symbol containing it.
type AddressLookup interface {
	SymbolAt(addr uint64) (sym *SymbolInfo, off uint64, ok bool)
}

// ThreadLister is implemented by backends that can enumerate the threads
// of the inferior.
type ThreadLister interface {
	ThreadIDs() []int
}
