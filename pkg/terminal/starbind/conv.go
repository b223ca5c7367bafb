package starbind

import (
	"fmt"
	"strconv"

	"go.starlark.net/starlark"

	"github.com/go-delve/dlveval/pkg/layout"
	"github.com/go-delve/dlveval/pkg/proc"
)

// valueToStarlark converts the result of evaluating expr. Scalars and
// pointers become starlark numbers. Aggregates are wrapped so that their
// members and elements are evaluated, in the same thread and frame, when
// a script accesses them.
func (env *Env) valueToStarlark(v *proc.Value, expr string, thread, frame int) starlark.Value {
	switch v.Kind() {
	case proc.PointerValue:
		return starlark.MakeUint64(v.Target())
	case proc.AggregateValue:
		return &aggregateValue{env: env, v: v, expr: expr, thread: thread, frame: frame}
	}
	switch v.Layout.Encoding {
	case layout.Bool:
		return starlark.Bool(v.Bits() != 0)
	case layout.Float:
		return starlark.Float(v.Float())
	case layout.Signed, layout.Char:
		return starlark.MakeInt64(v.Int())
	}
	return starlark.MakeUint64(v.Bits())
}

// aggregateValue is a struct or array, field access and indexing evaluate
// "(expr).field" and "(expr)[i]" on the target.
type aggregateValue struct {
	env           *Env
	v             *proc.Value
	expr          string
	thread, frame int
}

var (
	_ starlark.HasAttrs  = &aggregateValue{}
	_ starlark.Indexable = &aggregateValue{}
	_ starlark.Mapping   = &aggregateValue{}
)

func (a *aggregateValue) String() string {
	s, err := a.v.Render(proc.FormatDecimal)
	if err != nil {
		return fmt.Sprintf("<%s: %v>", a.v.Layout, err)
	}
	return s
}

func (a *aggregateValue) Type() string {
	return a.v.Layout.String()
}

func (a *aggregateValue) Freeze() {}

func (a *aggregateValue) Truth() starlark.Bool {
	return true
}

func (a *aggregateValue) Hash() (uint32, error) {
	return 0, fmt.Errorf("can not hash %s", a.v.Layout)
}

func (a *aggregateValue) sub(expr string) (starlark.Value, error) {
	thread := &starlark.Thread{}
	if a.env.thread != nil {
		thread = a.env.thread
	}
	v, err := a.env.evaluate(thread, expr, a.thread, a.frame)
	if err != nil {
		return nil, err
	}
	return a.env.valueToStarlark(v, expr, a.thread, a.frame), nil
}

// Attr returns the member called name of a struct. The special attribute
// "address" is the address of the value.
func (a *aggregateValue) Attr(name string) (starlark.Value, error) {
	if name == "address" {
		if addr, ok := a.v.Address(); ok {
			return starlark.MakeUint64(addr), nil
		}
		return starlark.None, nil
	}
	if a.v.Layout.Kind != layout.Struct {
		return nil, nil
	}
	if _, ok := a.v.Layout.FieldByName(name); !ok {
		return nil, nil
	}
	return a.sub("(" + a.expr + ")." + name)
}

func (a *aggregateValue) AttrNames() []string {
	names := []string{"address"}
	if a.v.Layout.Kind == layout.Struct {
		for _, f := range a.v.Layout.Fields {
			names = append(names, f.Name)
		}
	}
	return names
}

func (a *aggregateValue) Len() int {
	if a.v.Layout.Kind != layout.Array {
		return 0
	}
	return int(a.v.Layout.Len)
}

// Index returns element i, or None if it can not be evaluated. Scripts
// index through Get, which reports the error instead.
func (a *aggregateValue) Index(i int) starlark.Value {
	r, err := a.element(i)
	if err != nil {
		return starlark.None
	}
	return r
}

// Get implements a[k], the interpreter consults it before Index. Range
// and evaluation errors are raised in the script.
func (a *aggregateValue) Get(k starlark.Value) (starlark.Value, bool, error) {
	if a.v.Layout.Kind != layout.Array {
		return nil, false, fmt.Errorf("%s is not indexable", a.v.Layout)
	}
	i, err := starlark.AsInt32(k)
	if err != nil {
		return nil, false, fmt.Errorf("%s index: %v", a.v.Layout, err)
	}
	n := a.Len()
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return nil, false, fmt.Errorf("index %v out of range [0:%d]", k, n)
	}
	r, err := a.element(i)
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

func (a *aggregateValue) element(i int) (starlark.Value, error) {
	return a.sub("(" + a.expr + ")[" + strconv.Itoa(i) + "]")
}

// goToStarlark converts the arguments of a script's main function.
func goToStarlark(v interface{}) (starlark.Value, error) {
	switch v := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return v, nil
	case bool:
		return starlark.Bool(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case uint64:
		return starlark.MakeUint64(v), nil
	case float64:
		return starlark.Float(v), nil
	case string:
		return starlark.String(v), nil
	case []string:
		r := make([]starlark.Value, len(v))
		for i := range v {
			r[i] = starlark.String(v[i])
		}
		return starlark.NewList(r), nil
	}
	return nil, fmt.Errorf("can not convert %T to a starlark value", v)
}
