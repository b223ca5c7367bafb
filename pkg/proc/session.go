package proc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-delve/dlveval/pkg/logflags"
	"github.com/go-delve/dlveval/pkg/proc/evalast"
)

// ErrSessionUsed is returned by Run when called on a session that already
// ran an evaluation.
var ErrSessionUsed = errors.New("evaluation session already used")

// SessionState is the state of an evaluation session.
type SessionState uint8

const (
	SessionIdle SessionState = iota
	SessionParsing
	SessionEvaluating
	SessionDone
	SessionFailed
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionParsing:
		return "parsing"
	case SessionEvaluating:
		return "evaluating"
	case SessionDone:
		return "done"
	case SessionFailed:
		return "failed"
	}
	return "unknown"
}

// Session is a single evaluation of an expression, bound to the thread,
// frame and process generation it was created for.
type Session struct {
	ID    uint64
	t     *Target
	scope Scope

	mu     sync.Mutex
	state  SessionState
	result *Value
	err    error

	log logflags.Logger
}

// Scope returns the thread, frame and generation the session is bound to.
func (s *Session) Scope() Scope {
	return s.scope
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the outcome of Run: the materialized value if the session
// is done, the error if it failed.
func (s *Session) Result() (*Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) fail(err error) (*Value, error) {
	s.mu.Lock()
	s.state, s.err = SessionFailed, err
	s.mu.Unlock()
	s.log.Debugf("failed: %v", err)
	return nil, err
}

// Run parses and evaluates expr. The returned value is materialized:
// scalars and pointers completely, aggregates up to the configured
// max-aggregate-bytes. If the process was resumed at any point since the
// session was created Run fails with StaleContext.
//
// Run can only be called once, further calls return ErrSessionUsed.
func (s *Session) Run(ctx context.Context, expr string) (*Value, error) {
	s.mu.Lock()
	if s.state != SessionIdle {
		s.mu.Unlock()
		return nil, ErrSessionUsed
	}
	s.state = SessionParsing
	s.mu.Unlock()
	s.log.Debugf("evaluating %q in thread %d frame %d at generation %d", expr, s.scope.Thread, s.scope.Frame, s.scope.Generation)

	cfg := s.t.cfg
	root, err := evalast.ParseDepth(expr, maxParseDepth(cfg.MaxFuel))
	if err != nil {
		return s.fail(syntaxError(expr, err, cfg.MaxFuel))
	}

	s.setState(SessionEvaluating)
	ev := &evaluator{
		ctx:         ctx,
		expr:        expr,
		scope:       s.scope,
		proc:        s.t.proc,
		mem:         s.t.mem,
		resolver:    s.t.resolver,
		arch:        s.t.arch,
		lock:        &s.t.lock,
		fuel:        cfg.MaxFuel,
		maxFuel:     cfg.MaxFuel,
		checkBounds: cfg.CheckArrayBounds,
		log:         logflags.EvaluatorLogger(),
	}
	v, err := ev.eval(root)
	if err != nil {
		return s.fail(err)
	}
	v, err = ev.load(v, uint64(cfg.MaxAggregateBytes))
	if err != nil {
		return s.fail(ev.attribute(err, root))
	}
	if err := ev.checkGeneration(); err != nil {
		return s.fail(err)
	}

	s.mu.Lock()
	s.state, s.result = SessionDone, v
	s.mu.Unlock()
	s.log.Debugf("done: %v", v)
	return v, nil
}

// maxParseDepth bounds the parser's recursion by the fuel budget. Each
// node on the path to the deepest leaf costs at most three levels of
// recursion and one step of fuel, so an expression nested deeper than this
// can not be evaluated within maxFuel steps.
func maxParseDepth(maxFuel int) int {
	const ceiling = 1 << 26
	if maxFuel <= 0 || maxFuel > (ceiling-3)/3 {
		return ceiling
	}
	return 3*maxFuel + 3
}

func syntaxError(expr string, err error, maxFuel int) *EvalError {
	var perr *evalast.Error
	if errors.As(err, &perr) {
		if perr.TooDeep {
			return &EvalError{Kind: Timeout, Msg: fmt.Sprintf("expression nested too deeply to be evaluated within %d steps", maxFuel), Expr: expr, Pos: perr.Pos, End: perr.Pos}
		}
		return &EvalError{Kind: SyntaxError, Msg: perr.Msg, Expr: expr, Pos: perr.Pos, End: perr.Pos}
	}
	return &EvalError{Kind: SyntaxError, Err: err, Expr: expr, Pos: -1}
}
