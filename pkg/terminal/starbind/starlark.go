package starbind

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	startime "go.starlark.net/lib/time"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/go-delve/dlveval/pkg/proc"
)

const (
	dlvCommandBuiltinName = "dlv_command"
	readFileBuiltinName   = "read_file"
	writeFileBuiltinName  = "write_file"
	commandPrefix         = "command_"
	dlvContextName        = "dlv_context"
	curScopeBuiltinName   = "cur_scope"
	helpBuiltinName       = "help"
	evalBuiltinName       = "eval"
	readMemoryBuiltinName = "read_memory"
	symbolizeBuiltinName  = "symbolize"
	threadsBuiltinName    = "threads"
	contBuiltinName       = "cont"
	stepBuiltinName       = "step"
)

func init() {
	resolve.AllowNestedDef = true
	resolve.AllowLambda = true
	resolve.AllowFloat = true
	resolve.AllowSet = true
	resolve.AllowBitwise = true
	resolve.AllowRecursion = true
	resolve.AllowGlobalReassign = true
}

// Context is the context in which starlark scripts are evaluated.
// It gives access to the target, to the terminal commands and to the
// current thread and frame.
type Context interface {
	Target() *proc.Target
	RegisterCommand(name, helpMsg string, cmdfn func(args string) error)
	CallCommand(cmdstr string) error
	Scope() (thread, frame int)
}

// Env is the environment used to evaluate starlark scripts.
type Env struct {
	env       starlark.StringDict
	contextMu sync.Mutex
	thread    *starlark.Thread
	cancelfn  context.CancelFunc

	ctx Context
	out EchoWriter
}

type builtinFn func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

// New creates a new starlark binding environment.
func New(ctx Context, out EchoWriter) *Env {
	env := &Env{
		ctx: ctx,
		out: out,
		env: starlark.StringDict{},
	}

	// Make the "time" module available to Starlark scripts.
	starlark.Universe["time"] = startime.Module

	doc := map[string]string{}
	builtin := func(name, args, descr string, fn builtinFn) {
		env.env[name] = starlark.NewBuiltin(name, fn)
		doc[name] = name + args + "\n\n" + name + " " + descr
	}

	builtin(dlvCommandBuiltinName, "(Command)", "runs a terminal command.", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := isCancelled(thread); err != nil {
			return starlark.None, err
		}
		argstrs := make([]string, len(args))
		for i := range args {
			a, ok := args[i].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("argument of dlv_command is not a string")
			}
			argstrs[i] = string(a)
		}
		err := env.ctx.CallCommand(strings.Join(argstrs, " "))
		return starlark.None, decorateError(thread, err)
	})

	builtin(readFileBuiltinName, "(Path)", "reads a file.", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var path string
		if err := starlark.UnpackArgs(readFileBuiltinName, args, kwargs, "path", &path); err != nil {
			return nil, decorateError(thread, err)
		}
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, decorateError(thread, err)
		}
		return starlark.String(string(buf)), nil
	})

	builtin(writeFileBuiltinName, "(Path, Text)", "writes text to the specified file.", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) != 2 {
			return nil, decorateError(thread, fmt.Errorf("wrong number of arguments"))
		}
		path, ok := args[0].(starlark.String)
		if !ok {
			return nil, decorateError(thread, fmt.Errorf("first argument of write_file was not a string"))
		}
		text := args[1].String()
		if s, ok := args[1].(starlark.String); ok {
			text = string(s)
		}
		err := os.WriteFile(string(path), []byte(text), 0640)
		return starlark.None, decorateError(thread, err)
	})

	builtin(curScopeBuiltinName, "()", "returns the current thread and frame.", func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		thread, frame := env.ctx.Scope()
		return starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
			"Thread": starlark.MakeInt(thread),
			"Frame":  starlark.MakeInt(frame),
		}), nil
	})

	builtin(evalBuiltinName, "(Expr, Thread=None, Frame=None)", "evaluates an expression in the given thread and frame, by default the current ones. Scalars and pointers are returned as numbers, structs and arrays as values whose members and elements are evaluated on access.", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := isCancelled(thread); err != nil {
			return starlark.None, err
		}
		var expr string
		var threadArg, frameArg starlark.Value = starlark.None, starlark.None
		if err := starlark.UnpackArgs(evalBuiltinName, args, kwargs, "expr", &expr, "thread?", &threadArg, "frame?", &frameArg); err != nil {
			return nil, decorateError(thread, err)
		}
		tid, frame := env.ctx.Scope()
		var err error
		if tid, err = optionalInt(threadArg, tid); err != nil {
			return nil, decorateError(thread, err)
		}
		if frame, err = optionalInt(frameArg, frame); err != nil {
			return nil, decorateError(thread, err)
		}
		v, err := env.evaluate(thread, expr, tid, frame)
		if err != nil {
			return nil, decorateError(thread, err)
		}
		return env.valueToStarlark(v, expr, tid, frame), nil
	})

	builtin(readMemoryBuiltinName, "(Addr, Len)", "reads Len bytes of memory at Addr and returns them as a list of integers.", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var addr starlark.Int
		var n int
		if err := starlark.UnpackArgs(readMemoryBuiltinName, args, kwargs, "addr", &addr, "len", &n); err != nil {
			return nil, decorateError(thread, err)
		}
		a, ok := addr.Uint64()
		if !ok {
			return nil, decorateError(thread, fmt.Errorf("invalid address %v", addr))
		}
		if n < 0 {
			return nil, decorateError(thread, fmt.Errorf("invalid length %d", n))
		}
		data, err := env.ctx.Target().ReadMemory(a, n)
		if err != nil {
			return nil, decorateError(thread, err)
		}
		r := make([]starlark.Value, len(data))
		for i := range data {
			r[i] = starlark.MakeInt(int(data[i]))
		}
		return starlark.NewList(r), nil
	})

	builtin(symbolizeBuiltinName, "(Addr)", "describes an address as symbol+offset, returns None if no symbol contains it.", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var addr starlark.Int
		if err := starlark.UnpackArgs(symbolizeBuiltinName, args, kwargs, "addr", &addr); err != nil {
			return nil, decorateError(thread, err)
		}
		a, ok := addr.Uint64()
		if !ok {
			return nil, decorateError(thread, fmt.Errorf("invalid address %v", addr))
		}
		if s := env.ctx.Target().Symbolize(a); s != "" {
			return starlark.String(s), nil
		}
		return starlark.None, nil
	})

	builtin(threadsBuiltinName, "()", "returns the list of thread ids.", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		ids := env.ctx.Target().Threads()
		r := make([]starlark.Value, len(ids))
		for i := range ids {
			r[i] = starlark.MakeInt(ids[i])
		}
		return starlark.NewList(r), nil
	})

	builtin(contBuiltinName, "()", "resumes the inferior and returns the new generation.", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		tgt := env.ctx.Target()
		if err := tgt.Continue(); err != nil {
			return nil, decorateError(thread, err)
		}
		return starlark.MakeUint64(tgt.Generation()), nil
	})

	builtin(stepBuiltinName, "(Thread=None)", "single steps a thread, by default the current one, and returns the new generation.", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var threadArg starlark.Value = starlark.None
		if err := starlark.UnpackArgs(stepBuiltinName, args, kwargs, "thread?", &threadArg); err != nil {
			return nil, decorateError(thread, err)
		}
		tid, _ := env.ctx.Scope()
		tid, err := optionalInt(threadArg, tid)
		if err != nil {
			return nil, decorateError(thread, err)
		}
		tgt := env.ctx.Target()
		if err := tgt.Step(tid); err != nil {
			return nil, decorateError(thread, err)
		}
		return starlark.MakeUint64(tgt.Generation()), nil
	})

	builtin(helpBuiltinName, "(Object)", "prints help for Object.", func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		switch len(args) {
		case 0:
			fmt.Fprintln(env.out, "Available builtins:")
			bins := make([]string, 0, len(env.env))
			for name, value := range env.env {
				if _, ok := value.(*starlark.Builtin); ok {
					bins = append(bins, name)
				}
			}
			sort.Strings(bins)
			for _, bin := range bins {
				fmt.Fprintf(env.out, "\t%s\n", bin)
			}
		case 1:
			switch x := args[0].(type) {
			case *starlark.Builtin:
				if doc[x.Name()] != "" {
					fmt.Fprintf(env.out, "%s\n", doc[x.Name()])
				} else {
					fmt.Fprintf(env.out, "no help for builtin %s\n", x.Name())
				}
			case *starlark.Function:
				fmt.Fprintf(env.out, "user defined function %s\n", x.Name())
				if doc := x.Doc(); doc != "" {
					fmt.Fprintln(env.out, doc)
				}
			default:
				fmt.Fprintf(env.out, "no help for object of type %T\n", args[0])
			}
		default:
			fmt.Fprintln(env.out, "wrong number of arguments ", len(args))
		}
		return starlark.None, nil
	})

	return env
}

func optionalInt(v starlark.Value, def int) (int, error) {
	if v == starlark.None {
		return def, nil
	}
	return starlark.AsInt32(v)
}

// evaluate runs expr on the target. Cancelling the script interrupts the
// evaluation.
func (env *Env) evaluate(thread *starlark.Thread, expr string, tid, frame int) (*proc.Value, error) {
	ctx, ok := thread.Local(dlvContextName).(context.Context)
	if !ok {
		ctx = context.Background()
	}
	return env.ctx.Target().Evaluate(ctx, expr, tid, frame)
}

// Redirect redirects starlark output to out.
func (env *Env) Redirect(out EchoWriter) {
	env.out = out
	if env.thread != nil {
		env.thread.Print = env.printFunc()
	}
}

func (env *Env) printFunc() func(_ *starlark.Thread, msg string) {
	return func(_ *starlark.Thread, msg string) { fmt.Fprintln(env.out, msg) }
}

// Execute executes a script. Path is the name of the file to execute and
// source is the source code to execute.
// Source can be either a []byte, a string or a io.Reader. If source is nil
// Execute will execute the file specified by 'path'.
// After the file is executed if a function named mainFnName exists it will be called, passing args to it.
func (env *Env) Execute(path string, source interface{}, mainFnName string, args []interface{}) (_ starlark.Value, _err error) {
	defer func() {
		err := recover()
		if err == nil {
			return
		}
		_err = fmt.Errorf("panic executing starlark script: %v", err)
		fmt.Fprintf(env.out, "panic executing starlark script: %v\n", err)
		for i := 0; ; i++ {
			pc, file, line, ok := runtime.Caller(i)
			if !ok {
				break
			}
			fname := "<unknown>"
			fn := runtime.FuncForPC(pc)
			if fn != nil {
				fname = fn.Name()
			}
			fmt.Fprintf(env.out, "%s\n\tin %s:%d\n", fname, file, line)
		}
	}()

	thread := env.newThread()
	globals, err := starlark.ExecFile(thread, path, source, env.env)
	if err != nil {
		return starlark.None, err
	}

	err = env.exportGlobals(globals)
	if err != nil {
		return starlark.None, err
	}

	return env.callMain(thread, globals, mainFnName, args)
}

// exportGlobals saves globals with a name starting with a capital letter
// into the environment and creates commands from globals with a name
// starting with "command_"
func (env *Env) exportGlobals(globals starlark.StringDict) error {
	for name, val := range globals {
		switch {
		case strings.HasPrefix(name, commandPrefix):
			err := env.createCommand(name, val)
			if err != nil {
				return err
			}
		case name[0] >= 'A' && name[0] <= 'Z':
			env.env[name] = val
		}
	}
	return nil
}

// Cancel cancels the execution of a currently running script or function.
func (env *Env) Cancel() {
	if env == nil {
		return
	}
	env.contextMu.Lock()
	if env.cancelfn != nil {
		env.cancelfn()
		env.cancelfn = nil
	}
	if env.thread != nil {
		env.thread.Cancel("user interrupt")
	}
	env.contextMu.Unlock()
}

func (env *Env) newThread() *starlark.Thread {
	thread := &starlark.Thread{
		Print: env.printFunc(),
	}
	env.contextMu.Lock()
	var ctx context.Context
	ctx, env.cancelfn = context.WithCancel(context.Background())
	env.thread = thread
	env.contextMu.Unlock()
	thread.SetLocal(dlvContextName, ctx)
	return thread
}

func (env *Env) createCommand(name string, val starlark.Value) error {
	fnval, ok := val.(*starlark.Function)
	if !ok {
		return nil
	}

	name = name[len(commandPrefix):]

	helpMsg := fnval.Doc()
	if helpMsg == "" {
		helpMsg = "user defined"
	}

	if fnval.NumParams() == 1 {
		if p0, _ := fnval.Param(0); p0 == "args" {
			env.ctx.RegisterCommand(name, helpMsg, func(args string) error {
				_, err := starlark.Call(env.newThread(), fnval, starlark.Tuple{starlark.String(args)}, nil)
				return err
			})
			return nil
		}
	}

	env.ctx.RegisterCommand(name, helpMsg, func(args string) error {
		thread := env.newThread()
		argval, err := starlark.Eval(thread, "<input>", "("+args+")", env.env)
		if err != nil {
			return err
		}
		argtuple, ok := argval.(starlark.Tuple)
		if !ok {
			argtuple = starlark.Tuple{argval}
		}
		_, err = starlark.Call(thread, fnval, argtuple, nil)
		return err
	})
	return nil
}

// callMain calls the main function in globals, if one was defined.
func (env *Env) callMain(thread *starlark.Thread, globals starlark.StringDict, mainFnName string, args []interface{}) (starlark.Value, error) {
	if mainFnName == "" {
		return starlark.None, nil
	}
	mainval := globals[mainFnName]
	if mainval == nil {
		return starlark.None, nil
	}
	mainfn, ok := mainval.(*starlark.Function)
	if !ok {
		return starlark.None, fmt.Errorf("%s is not a function", mainFnName)
	}
	if mainfn.NumParams() != len(args) {
		return starlark.None, fmt.Errorf("wrong number of arguments for %s", mainFnName)
	}
	argtuple := make(starlark.Tuple, len(args))
	for i := range args {
		v, err := goToStarlark(args[i])
		if err != nil {
			return starlark.None, err
		}
		argtuple[i] = v
	}
	return starlark.Call(thread, mainfn, argtuple, nil)
}

func isCancelled(thread *starlark.Thread) error {
	if ctx, ok := thread.Local(dlvContextName).(context.Context); ok {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

func decorateError(thread *starlark.Thread, err error) error {
	if err == nil {
		return nil
	}
	pos := thread.CallFrame(1).Pos
	if pos.Col > 0 {
		return fmt.Errorf("%s:%d:%d: %v", pos.Filename(), pos.Line, pos.Col, err)
	}
	return fmt.Errorf("%s:%d: %v", pos.Filename(), pos.Line, err)
}

// EchoWriter is an io.Writer that can also write to a transcript.
type EchoWriter interface {
	io.Writer
	Echo(string)
	Flush()
}
