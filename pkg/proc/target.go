package proc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"github.com/go-delve/dlveval/pkg/config"
	"github.com/go-delve/dlveval/pkg/logflags"
)

var (
	// ErrCannotResume is returned by Continue and Step when the backend
	// can not resume the inferior.
	ErrCannotResume = errors.New("process can not be resumed")

	// ErrNoSuchThread is returned when selecting a thread that does not
	// exist.
	ErrNoSuchThread = errors.New("no such thread")
)

// Target represents the process being debugged. It owns the memory cache
// and symbol resolver shared by every evaluation session on the process,
// and the process writer lock: reads of the inferior take its shared side,
// writes and resuming take the exclusive side.
type Target struct {
	proc     TargetProcess
	syms     SymbolProvider
	arch     *Arch
	cfg      *config.Config
	mem      *MemoryView
	resolver *SymbolResolver

	lock sync.RWMutex

	// currentThread and currentFrame are the defaults used by the
	// terminal when evaluating expressions.
	selMu         sync.Mutex
	currentThread int
	currentFrame  int

	sessions *atomic.Uint64

	log logflags.Logger
}

// NewTarget returns a Target for the process p described by the debug
// information syms. A nil cfg uses the default configuration.
func NewTarget(p TargetProcess, syms SymbolProvider, cfg *config.Config) (*Target, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.Fill()
	mem, err := NewMemoryView(p, cfg.PageSize, cfg.PageCacheSize)
	if err != nil {
		return nil, fmt.Errorf("could not create memory cache: %w", err)
	}
	resolver, err := NewSymbolResolver(syms, cfg.SymbolCacheSize, cfg.LayoutCacheSize)
	if err != nil {
		return nil, fmt.Errorf("could not create symbol cache: %w", err)
	}
	t := &Target{
		proc:     p,
		syms:     syms,
		arch:     AMD64Arch(),
		cfg:      cfg,
		mem:      mem,
		resolver: resolver,
		sessions: atomic.NewUint64(0),
		log:      logflags.TargetLogger(),
	}
	if ap, ok := p.(ArchProvider); ok {
		t.arch = ap.Arch()
	} else if ap, ok := syms.(ArchProvider); ok {
		t.arch = ap.Arch()
	}
	if tl, ok := p.(ThreadLister); ok {
		if ids := tl.ThreadIDs(); len(ids) > 0 {
			t.currentThread = ids[0]
		}
	}
	t.log.Debugf("new target: arch %s, generation %d", t.arch, p.CurrentGeneration())
	return t, nil
}

// Arch returns the architecture of the inferior.
func (t *Target) Arch() *Arch {
	return t.arch
}

// Config returns the configuration the target was created with.
func (t *Target) Config() *config.Config {
	return t.cfg
}

// Memory returns the memory cache of the target.
func (t *Target) Memory() *MemoryView {
	return t.mem
}

// Resolver returns the symbol resolver of the target.
func (t *Target) Resolver() *SymbolResolver {
	return t.resolver
}

// Generation returns the current generation of the process.
func (t *Target) Generation() uint64 {
	return t.proc.CurrentGeneration()
}

// NewSession returns an evaluation session bound to thread, frame and the
// current generation of the process.
func (t *Target) NewSession(thread, frame int) *Session {
	t.lock.RLock()
	gen := t.proc.CurrentGeneration()
	t.lock.RUnlock()
	id := t.sessions.Inc()
	return &Session{
		ID:    id,
		t:     t,
		scope: Scope{Thread: thread, Frame: frame, Generation: gen},
		log:   logflags.SessionLogger().WithField("session", id),
	}
}

// Evaluate evaluates expr in the given thread and frame and returns its
// materialized value. Failures are of type *EvalError.
func (t *Target) Evaluate(ctx context.Context, expr string, thread, frame int) (*Value, error) {
	return t.NewSession(thread, frame).Run(ctx, expr)
}

// Continue resumes the inferior. Every session created before the call
// fails with StaleContext at its next access to the process.
func (t *Target) Continue() error {
	r, ok := t.proc.(Resumer)
	if !ok {
		return ErrCannotResume
	}
	return t.resume("continue", r.Resume)
}

// Step single steps thread.
func (t *Target) Step(thread int) error {
	r, ok := t.proc.(Resumer)
	if !ok {
		return ErrCannotResume
	}
	return t.resume("step", func() error { return r.Step(thread) })
}

func (t *Target) resume(what string, fn func() error) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	before := t.proc.CurrentGeneration()
	err := fn()
	t.mem.Invalidate()
	t.resolver.Invalidate()
	t.log.Debugf("%s: generation %d -> %d", what, before, t.proc.CurrentGeneration())
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	t.selMu.Lock()
	t.currentFrame = 0
	t.selMu.Unlock()
	return nil
}

// ReadMemory reads n bytes at addr through the memory cache.
func (t *Target) ReadMemory(addr uint64, n int) ([]byte, error) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.mem.Read(t.proc.CurrentGeneration(), addr, n)
}

// Symbolize describes addr as symbol+offset.
func (t *Target) Symbolize(addr uint64) string {
	return t.resolver.Symbolize(addr)
}

// Complete returns the names visible in thread and frame starting with
// prefix.
func (t *Target) Complete(prefix string, thread, frame int) []string {
	return t.resolver.Complete(prefix, Scope{Thread: thread, Frame: frame, Generation: t.Generation()})
}

// Threads returns the ids of the threads of the inferior, nil if the
// backend can not enumerate them.
func (t *Target) Threads() []int {
	if tl, ok := t.proc.(ThreadLister); ok {
		return tl.ThreadIDs()
	}
	return nil
}

// CurrentThread returns the selected thread and frame.
func (t *Target) CurrentThread() (thread, frame int) {
	t.selMu.Lock()
	defer t.selMu.Unlock()
	return t.currentThread, t.currentFrame
}

// SwitchThread selects thread tid, resetting the selected frame.
func (t *Target) SwitchThread(tid int) error {
	if ids := t.Threads(); ids != nil {
		found := false
		for _, id := range ids {
			if id == tid {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %d", ErrNoSuchThread, tid)
		}
	}
	t.selMu.Lock()
	defer t.selMu.Unlock()
	t.currentThread, t.currentFrame = tid, 0
	return nil
}

// SwitchFrame selects a frame of the current thread.
func (t *Target) SwitchFrame(frame int) error {
	if frame < 0 {
		return fmt.Errorf("invalid frame %d", frame)
	}
	t.selMu.Lock()
	defer t.selMu.Unlock()
	t.currentFrame = frame
	return nil
}

// DefaultFormat returns the configured format for printing values.
func (t *Target) DefaultFormat() Format {
	f, err := ParseFormat(t.cfg.DefaultFormat)
	if err != nil {
		return FormatDecimal
	}
	return f
}
