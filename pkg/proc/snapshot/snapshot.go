// Package snapshot implements a halted inferior from a recorded image of
// its memory, registers and debug information.
//
// A Snapshot is either built programmatically or loaded from a YAML file
// (see Load). It implements every capability the evaluator consumes, and
// can simulate resuming the process, which only advances its generation
// (and runs the resume hook, if one is installed).
package snapshot

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/atomic"

	"github.com/go-delve/dlveval/pkg/layout"
	"github.com/go-delve/dlveval/pkg/proc"
)

// Frame is a stack frame of a thread.
type Frame struct {
	Function string
	File     string

	locals map[string]*proc.SymbolInfo
	params map[string]*proc.SymbolInfo
}

type thread struct {
	id     int
	regs   map[string]uint64
	frames []*Frame
}

// Snapshot is a recorded, halted process. It is safe for concurrent use.
type Snapshot struct {
	arch *proc.Arch

	mu      sync.RWMutex
	mem     splicedMemory
	types   map[proc.TypeID]*layout.ValueLayout
	threads map[int]*thread
	statics map[string]map[string]*proc.SymbolInfo
	globals map[string]*proc.SymbolInfo

	gen   *atomic.Uint64
	reads *atomic.Uint64

	resumeHook func(s *Snapshot, thread int) error
}

// New returns an empty snapshot of a process of architecture arch.
func New(arch *proc.Arch) *Snapshot {
	if arch == nil {
		arch = proc.AMD64Arch()
	}
	return &Snapshot{
		arch:    arch,
		types:   make(map[proc.TypeID]*layout.ValueLayout),
		threads: make(map[int]*thread),
		statics: make(map[string]map[string]*proc.SymbolInfo),
		globals: make(map[string]*proc.SymbolInfo),
		gen:     atomic.NewUint64(0),
		reads:   atomic.NewUint64(0),
	}
}

// Arch returns the architecture of the process.
func (s *Snapshot) Arch() *proc.Arch {
	return s.arch
}

// AddType registers l as the layout of type id.
func (s *Snapshot) AddType(id proc.TypeID, l *layout.ValueLayout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types[id] = l
}

// Map maps a copy of data at addr. Later mappings override earlier ones
// where they overlap.
func (s *Snapshot) Map(addr uint64, data []byte, writable bool) error {
	if len(data) == 0 {
		return nil
	}
	if last := addr + uint64(len(data)) - 1; last < addr {
		return fmt.Errorf("region of %d bytes at %#x wraps around the address space", len(data), addr)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mem.add(region{addr: addr, data: append([]byte(nil), data...), writable: writable})
	return nil
}

// AddThread adds a thread with the given register values.
func (s *Snapshot) AddThread(id int, regs map[string]uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := make(map[string]uint64, len(regs))
	for k, v := range regs {
		r[k] = v
	}
	s.threads[id] = &thread{id: id, regs: r}
}

// AddFrame appends a frame to the stack of thread, frame 0 being the
// innermost, and returns it. The variables of a frame must be added before
// the snapshot is shared between goroutines.
func (s *Snapshot) AddFrame(tid int, function, file string) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	th, ok := s.threads[tid]
	if !ok {
		return nil, fmt.Errorf("no thread %d", tid)
	}
	f := &Frame{
		Function: function,
		File:     file,
		locals:   make(map[string]*proc.SymbolInfo),
		params:   make(map[string]*proc.SymbolInfo),
	}
	th.frames = append(th.frames, f)
	return f, nil
}

// AddLocal adds a local variable to f.
func (f *Frame) AddLocal(sym proc.SymbolInfo) {
	f.locals[sym.Name] = &sym
}

// AddParam adds a function parameter to f.
func (f *Frame) AddParam(sym proc.SymbolInfo) {
	f.params[sym.Name] = &sym
}

// AddStatic adds a variable with file scope.
func (s *Snapshot) AddStatic(file string, sym proc.SymbolInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.statics[file]
	if m == nil {
		m = make(map[string]*proc.SymbolInfo)
		s.statics[file] = m
	}
	m[sym.Name] = &sym
}

// AddGlobal adds a global variable.
func (s *Snapshot) AddGlobal(sym proc.SymbolInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globals[sym.Name] = &sym
}

// SetResumeHook installs fn to be called, with the process about to run,
// every time the process is resumed or stepped. thread is -1 for Resume.
// An error returned by fn is returned by Resume or Step, the generation is
// advanced regardless.
func (s *Snapshot) SetResumeHook(fn func(s *Snapshot, thread int) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumeHook = fn
}

// ReadCount returns the number of ReadMemory calls served so far.
func (s *Snapshot) ReadCount() uint64 {
	return s.reads.Load()
}

// Peek returns a copy of n bytes at addr, without counting as a read.
func (s *Snapshot) Peek(addr uint64, n int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf := make([]byte, n)
	if _, err := s.mem.read(buf, addr); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadMemory implements proc.TargetProcess.
func (s *Snapshot) ReadMemory(buf []byte, addr uint64) (int, error) {
	s.reads.Inc()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mem.read(buf, addr)
}

// WriteMemory implements proc.TargetProcess. Writes touching a region not
// mapped writable fail with proc.ReadOnly and change nothing.
func (s *Snapshot) WriteMemory(addr uint64, data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mem.write(addr, data)
}

func (s *Snapshot) lookupThread(tid int) (*thread, error) {
	th, ok := s.threads[tid]
	if !ok {
		return nil, fmt.Errorf("no thread %d: %w", tid, proc.ProcessError)
	}
	return th, nil
}

// GetRegister implements proc.TargetProcess.
func (s *Snapshot) GetRegister(tid int, name string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	th, err := s.lookupThread(tid)
	if err != nil {
		return 0, err
	}
	v, ok := th.regs[name]
	if !ok {
		return 0, fmt.Errorf("thread %d has no register %s: %w", tid, name, proc.NotFound)
	}
	return v, nil
}

// SetRegister implements proc.TargetProcess.
func (s *Snapshot) SetRegister(tid int, name string, value uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	th, err := s.lookupThread(tid)
	if err != nil {
		return err
	}
	if _, ok := th.regs[name]; !ok {
		return fmt.Errorf("thread %d has no register %s: %w", tid, name, proc.NotFound)
	}
	th.regs[name] = value
	return nil
}

// CurrentGeneration implements proc.TargetProcess.
func (s *Snapshot) CurrentGeneration() uint64 {
	return s.gen.Load()
}

// Resume implements proc.Resumer.
func (s *Snapshot) Resume() error {
	return s.resume(-1)
}

// Step implements proc.Resumer.
func (s *Snapshot) Step(tid int) error {
	s.mu.RLock()
	_, err := s.lookupThread(tid)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return s.resume(tid)
}

func (s *Snapshot) resume(tid int) error {
	s.mu.RLock()
	hook := s.resumeHook
	s.mu.RUnlock()
	defer s.gen.Inc()
	if hook != nil {
		return hook(s, tid)
	}
	return nil
}

// ThreadIDs implements proc.ThreadLister.
func (s *Snapshot) ThreadIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Frames returns the stack of thread tid.
func (s *Snapshot) Frames(tid int) ([]*Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	th, err := s.lookupThread(tid)
	if err != nil {
		return nil, err
	}
	return append([]*Frame(nil), th.frames...), nil
}

func (s *Snapshot) frame(scope proc.Scope) (*Frame, error) {
	if len(s.threads) == 0 {
		return nil, nil
	}
	th, err := s.lookupThread(scope.Thread)
	if err != nil {
		return nil, err
	}
	if scope.Frame < 0 || scope.Frame >= len(th.frames) {
		return nil, fmt.Errorf("thread %d has no frame %d: %w", scope.Thread, scope.Frame, proc.ProcessError)
	}
	return th.frames[scope.Frame], nil
}

// symbols returns the symbols of the scope class scope.Class.
func (s *Snapshot) symbols(scope proc.Scope) (map[string]*proc.SymbolInfo, error) {
	if scope.Class == proc.ClassGlobal {
		return s.globals, nil
	}
	f, err := s.frame(scope)
	if err != nil || f == nil {
		return nil, err
	}
	switch scope.Class {
	case proc.ClassLocal:
		return f.locals, nil
	case proc.ClassParam:
		return f.params, nil
	case proc.ClassFileStatic:
		return s.statics[f.File], nil
	}
	return nil, nil
}

// ResolveName implements proc.SymbolProvider.
func (s *Snapshot) ResolveName(name string, scope proc.Scope) (*proc.SymbolInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	syms, err := s.symbols(scope)
	if err != nil {
		return nil, err
	}
	sym, ok := syms[name]
	if !ok {
		return nil, nil
	}
	r := *sym
	return &r, nil
}

// Names implements proc.SymbolLister.
func (s *Snapshot) Names(scope proc.Scope) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	syms, err := s.symbols(scope)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(syms))
	for name := range syms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LayoutOf implements proc.SymbolProvider. Types not registered with
// AddType are looked up among the predeclared layouts; unknown types have
// a nil layout.
func (s *Snapshot) LayoutOf(id proc.TypeID) (*layout.ValueLayout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if l, ok := s.types[id]; ok {
		return l, nil
	}
	return predeclared[string(id)], nil
}

// SymbolAt implements proc.AddressLookup. It returns the global variable
// with the highest address at or below addr.
func (s *Snapshot) SymbolAt(addr uint64) (*proc.SymbolInfo, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *proc.SymbolInfo
	for _, sym := range s.globals {
		if sym.Storage != proc.StorageMemory || !sym.HasAddr || sym.Addr > addr {
			continue
		}
		if best == nil || sym.Addr > best.Addr || sym.Addr == best.Addr && sym.Name < best.Name {
			best = sym
		}
	}
	if best == nil {
		return nil, 0, false
	}
	r := *best
	return &r, addr - best.Addr, true
}

var predeclared = map[string]*layout.ValueLayout{
	"int8":    layout.Int8,
	"int16":   layout.Int16,
	"int32":   layout.Int32,
	"int64":   layout.Int64,
	"uint8":   layout.Uint8,
	"uint16":  layout.Uint16,
	"uint32":  layout.Uint32,
	"uint64":  layout.Uint64,
	"float32": layout.Float32,
	"float64": layout.Float64,
	"char":    layout.CharLayout,
	"bool":    layout.BoolLayout,
}
