package proc

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/atomic"

	"github.com/go-delve/dlveval/pkg/logflags"
)

// MemoryView is a read cache over the memory of a TargetProcess.
//
// Memory is cached one page at a time, each page tagged with the process
// generation it was read at. A page is only served to requests presenting
// the same generation the process is currently at; requests presenting any
// other generation fail with StaleContext. Writes are never cached and drop
// every page they overlap.
//
// A MemoryView is safe for concurrent use.
type MemoryView struct {
	proc     TargetProcess
	pageSize uint64
	pages    *lru.Cache

	lastGen       *atomic.Uint64
	hits, misses  *atomic.Uint64
	backendReads  *atomic.Uint64
	uncachedReads *atomic.Uint64
	log           logflags.Logger
}

type memPage struct {
	gen  uint64
	data []byte
}

// NewMemoryView returns a MemoryView caching up to cacheSize pages of
// pageSize bytes each.
func NewMemoryView(p TargetProcess, pageSize, cacheSize int) (*MemoryView, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("invalid page size %d", pageSize)
	}
	pages, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &MemoryView{
		proc:          p,
		pageSize:      uint64(pageSize),
		pages:         pages,
		lastGen:       atomic.NewUint64(p.CurrentGeneration()),
		hits:          atomic.NewUint64(0),
		misses:        atomic.NewUint64(0),
		backendReads:  atomic.NewUint64(0),
		uncachedReads: atomic.NewUint64(0),
		log:           logflags.MemoryLogger(),
	}, nil
}

// MemoryStats reports cache activity.
type MemoryStats struct {
	Hits, Misses  uint64
	BackendReads  uint64
	UncachedReads uint64
	CachedPages   int
}

func (m *MemoryView) Stats() MemoryStats {
	return MemoryStats{
		Hits:          m.hits.Load(),
		Misses:        m.misses.Load(),
		BackendReads:  m.backendReads.Load(),
		UncachedReads: m.uncachedReads.Load(),
		CachedPages:   m.pages.Len(),
	}
}

// Invalidate drops every cached page.
func (m *MemoryView) Invalidate() {
	m.pages.Purge()
}

// checkGeneration fails with StaleContext unless gen is the current
// generation of the process. Observing a new generation purges the cache.
func (m *MemoryView) checkGeneration(gen uint64) error {
	cur := m.proc.CurrentGeneration()
	if m.lastGen.Load() != cur {
		if old := m.lastGen.Swap(cur); old != cur {
			m.log.Debugf("generation %d -> %d, purging %d pages", old, cur, m.pages.Len())
			m.pages.Purge()
		}
	}
	if cur != gen {
		return newError(StaleContext, "process resumed (generation %d, current %d)", gen, cur)
	}
	return nil
}

// Read returns length bytes of memory at addr, as seen at generation gen.
func (m *MemoryView) Read(gen, addr uint64, length int) ([]byte, error) {
	if err := m.checkGeneration(gen); err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, newError(Unreadable, "negative read length %d", length)
	}
	out := make([]byte, length)
	if length == 0 {
		return out, nil
	}
	if addr+uint64(length)-1 < addr {
		return nil, newError(Unreadable, "read of %d bytes at %#x wraps around the address space", length, addr)
	}

	off := uint64(0)
	for off < uint64(length) {
		a := addr + off
		base := a - a%m.pageSize
		chunk := base + m.pageSize - a
		if rem := uint64(length) - off; chunk > rem {
			chunk = rem
		}
		if data, ok := m.page(gen, base); ok {
			copy(out[off:off+chunk], data[a-base:])
		} else {
			// The page is not entirely mapped, read exactly what was asked.
			m.uncachedReads.Inc()
			if err := m.readDirect(out[off:off+chunk], a); err != nil {
				return nil, err
			}
		}
		off += chunk
	}

	// The process may have been resumed while the backend was read.
	if err := m.checkGeneration(gen); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MemoryView) page(gen, base uint64) ([]byte, bool) {
	if v, ok := m.pages.Get(base); ok {
		p := v.(*memPage)
		if p.gen == gen {
			m.hits.Inc()
			return p.data, true
		}
	}
	m.misses.Inc()
	if base+m.pageSize-1 < base {
		return nil, false
	}
	data := make([]byte, m.pageSize)
	m.backendReads.Inc()
	n, err := m.proc.ReadMemory(data, base)
	if err != nil || n != len(data) {
		return nil, false
	}
	m.pages.Add(base, &memPage{gen: gen, data: data})
	return data, true
}

func (m *MemoryView) readDirect(buf []byte, addr uint64) error {
	m.backendReads.Inc()
	n, err := m.proc.ReadMemory(buf, addr)
	if err != nil {
		m.log.Debugf("read of %d bytes at %#x failed: %v", len(buf), addr, err)
		return classifyMemoryError(err, Unreadable, "could not read %d bytes at %#x", len(buf), addr)
	}
	if n != len(buf) {
		m.log.Debugf("short read at %#x: %d of %d bytes", addr, n, len(buf))
		return newError(Unreadable, "could not read %d bytes at %#x (short read of %d bytes)", len(buf), addr, n)
	}
	return nil
}

// Write writes data at addr. The write bypasses the cache and invalidates
// every cached page it overlaps, so that subsequent reads observe it.
func (m *MemoryView) Write(gen, addr uint64, data []byte) error {
	if err := m.checkGeneration(gen); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	last := addr + uint64(len(data)) - 1
	if last < addr {
		return newError(Unreadable, "write of %d bytes at %#x wraps around the address space", len(data), addr)
	}
	defer m.invalidateRange(addr, last)
	n, err := m.proc.WriteMemory(addr, data)
	if err != nil {
		m.log.Debugf("write of %d bytes at %#x failed: %v", len(data), addr, err)
		return classifyMemoryError(err, Unreadable, "could not write %d bytes at %#x", len(data), addr)
	}
	if n != len(data) {
		return newError(Unreadable, "could not write %d bytes at %#x (short write of %d bytes)", len(data), addr, n)
	}
	return nil
}

// invalidateRange drops the cached pages overlapping [start, last].
func (m *MemoryView) invalidateRange(start, last uint64) {
	for base := start - start%m.pageSize; ; base += m.pageSize {
		m.pages.Remove(base)
		if next := base + m.pageSize; next-1 >= last || next < base {
			break
		}
	}
}

// classifyMemoryError converts a backend error into an *EvalError. Errors
// wrapping ReadOnly or ProcessError keep their kind, everything else is
// classified as def.
func classifyMemoryError(err error, def ErrorKind, format string, args ...interface{}) *EvalError {
	kind := def
	switch {
	case errors.Is(err, ReadOnly):
		kind = ReadOnly
	case errors.Is(err, ProcessError):
		kind = ProcessError
	case errors.Is(err, StaleContext):
		kind = StaleContext
	}
	return wrapError(kind, err, format, args...)
}
