package proc

import (
	"context"
	"encoding/binary"
	"math"
	"math/bits"
	"sync"

	"github.com/go-delve/dlveval/pkg/layout"
	"github.com/go-delve/dlveval/pkg/logflags"
	"github.com/go-delve/dlveval/pkg/proc/evalast"
)

// evaluator walks the syntax tree of a single expression, producing Values.
// It is owned by one Session and is not safe for concurrent use.
type evaluator struct {
	ctx   context.Context
	expr  string
	scope Scope

	proc     TargetProcess
	mem      *MemoryView
	resolver *SymbolResolver
	arch     *Arch
	lock     *sync.RWMutex

	fuel, maxFuel int
	checkBounds   bool

	log logflags.Logger
}

func (e *evaluator) order() binary.ByteOrder {
	return e.arch.ByteOrder()
}

// text returns the source text of node.
func (e *evaluator) text(node evalast.Node) string {
	p, end := node.Pos(), node.End()
	if p < 0 || p > end || end > len(e.expr) {
		return ""
	}
	return e.expr[p:end]
}

// attribute records node as the failing sub-expression of err, unless a
// more specific node was already recorded.
func (e *evaluator) attribute(err error, node evalast.Node) *EvalError {
	ee := asEvalError(err, ProcessError)
	if ee.Pos >= 0 {
		return ee
	}
	r := *ee
	r.Expr, r.Pos, r.End = e.expr, node.Pos(), node.End()
	return &r
}

// step consumes one unit of fuel.
func (e *evaluator) step() error {
	e.fuel--
	if e.fuel < 0 {
		return newError(Timeout, "evaluation exceeded its budget of %d steps", e.maxFuel)
	}
	if err := e.ctx.Err(); err != nil {
		return wrapError(Timeout, err, "evaluation interrupted")
	}
	return nil
}

func (e *evaluator) eval(node evalast.Node) (*Value, error) {
	if err := e.step(); err != nil {
		return nil, e.attribute(err, node)
	}
	v, err := e.evalNode(node)
	if err != nil {
		return nil, e.attribute(err, node)
	}
	return v, nil
}

func (e *evaluator) evalNode(node evalast.Node) (*Value, error) {
	switch n := node.(type) {
	case *evalast.Ident:
		return e.evalIdent(n)
	case *evalast.Register:
		return e.evalRegister(n)
	case *evalast.IntLit:
		return e.intLiteral(n), nil
	case *evalast.FloatLit:
		return newFloat(layout.Float64, n.Value, e.order()), nil
	case *evalast.CharLit:
		return newScalar(layout.CharLayout, uint64(n.Value), e.order()), nil
	case *evalast.Paren:
		return e.eval(n.X)
	case *evalast.Unary:
		switch n.Op {
		case evalast.MUL:
			return e.evalDeref(n)
		case evalast.AND:
			return e.evalAddrOf(n)
		}
		return e.evalUnary(n)
	case *evalast.Binary:
		if n.Op == evalast.LAND || n.Op == evalast.LOR {
			return e.evalLogical(n)
		}
		return e.evalBinary(n)
	case *evalast.Ternary:
		return e.evalTernary(n)
	case *evalast.Selector:
		return e.evalSelector(n)
	case *evalast.Index:
		return e.evalIndex(n)
	case *evalast.Call:
		return e.evalCall(n)
	case *evalast.Assign:
		return e.evalAssign(n)
	}
	return nil, newError(SyntaxError, "expression %T not supported", node)
}

func (e *evaluator) readMemory(addr uint64, n int) ([]byte, error) {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.mem.Read(e.scope.Generation, addr, n)
}

func (e *evaluator) writeMemory(addr uint64, data []byte) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.log.Debugf("writing %d bytes at %#x", len(data), addr)
	return e.mem.Write(e.scope.Generation, addr, data)
}

func (e *evaluator) checkGeneration() error {
	if cur := e.proc.CurrentGeneration(); cur != e.scope.Generation {
		return newError(StaleContext, "process resumed (generation %d, current %d)", e.scope.Generation, cur)
	}
	return nil
}

func (e *evaluator) getRegister(name string) (uint64, error) {
	e.lock.RLock()
	defer e.lock.RUnlock()
	if err := e.checkGeneration(); err != nil {
		return 0, err
	}
	v, err := e.proc.GetRegister(e.scope.Thread, name)
	if err != nil {
		return 0, classifyError(err, ProcessError, "could not read register %s of thread %d", name, e.scope.Thread)
	}
	return v, nil
}

func (e *evaluator) setRegister(name string, value uint64) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if err := e.checkGeneration(); err != nil {
		return err
	}
	e.log.Debugf("setting register %s of thread %d to %#x", name, e.scope.Thread, value)
	if err := e.proc.SetRegister(e.scope.Thread, name, value); err != nil {
		return classifyError(err, ProcessError, "could not write register %s of thread %d", name, e.scope.Thread)
	}
	return nil
}

// load materializes v. At most limit bytes of an aggregate are read.
func (e *evaluator) load(v *Value, limit uint64) (*Value, error) {
	if v.data != nil || v.loc != locMemory {
		return v, nil
	}
	l := v.Layout
	if l.IsUnknown() {
		return nil, newError(IncompleteType, "cannot load value of unknown type at %#x", v.addr)
	}
	if l.Incomplete {
		return v.withData([]byte{}), nil
	}
	size := l.Size
	if v.Kind() == AggregateValue && size > limit {
		size = limit
	}
	if size > math.MaxInt32 {
		return nil, newError(Unreadable, "value of %d bytes at %#x is too large to load", size, v.addr)
	}
	data, err := e.readMemory(v.addr, int(size))
	if err != nil {
		return nil, err
	}
	return v.withData(data), nil
}

// rvalue converts v into a materialized scalar or pointer, arrays decaying
// into a pointer to their first element.
func (e *evaluator) rvalue(v *Value) (*Value, error) {
	if v.Layout.Kind == layout.Array {
		addr, ok := v.Address()
		if !ok {
			return nil, newError(TypeMismatch, "array of type %s has no address", v.Layout)
		}
		return e.pointerTo(v.Layout.Elem, addr), nil
	}
	if v.Kind() == AggregateValue {
		return nil, newError(TypeMismatch, "%s is not a scalar type", v.Layout)
	}
	if v.Layout.IsUnknown() {
		return nil, newError(TypeMismatch, "value has unknown type")
	}
	return e.load(v, 0)
}

// operand evaluates node and returns its rvalue.
func (e *evaluator) operand(node evalast.Node) (*Value, error) {
	v, err := e.eval(node)
	if err != nil {
		return nil, err
	}
	v, err = e.rvalue(v)
	if err != nil {
		return nil, e.attribute(err, node)
	}
	return v, nil
}

func (e *evaluator) pointerTo(elem *layout.ValueLayout, addr uint64) *Value {
	return newScalar(layout.PointerTo(elem, uint64(e.arch.PtrSize())), addr, e.order())
}

func (e *evaluator) boolean(b bool) *Value {
	if b {
		return newScalar(layout.Int32, 1, e.order())
	}
	return newScalar(layout.Int32, 0, e.order())
}

func (e *evaluator) evalIdent(n *evalast.Ident) (*Value, error) {
	sym, err := e.resolver.Lookup(n.Name, e.scope)
	if err != nil {
		return nil, err
	}
	l := e.resolver.TypeOf(sym)
	switch sym.Storage {
	case StorageConstant:
		return newScalar(l, sym.Const, e.order()), nil
	case StorageRegister:
		v, err := e.getRegister(sym.Register)
		if err != nil {
			return nil, err
		}
		return newRegisterValue(l, e.scope.Thread, sym.Register, v, e.order()), nil
	}
	if !sym.HasAddr {
		return nil, newError(Unreadable, "%s has been optimized away", n.Name)
	}
	return newLazy(l, sym.Addr, e.order()), nil
}

func (e *evaluator) evalRegister(n *evalast.Register) (*Value, error) {
	v, err := e.getRegister(n.Name)
	if err != nil {
		return nil, err
	}
	return newRegisterValue(layout.Uint(uint64(e.arch.PtrSize())), e.scope.Thread, n.Name, v, e.order()), nil
}

// intLiteral types an integer literal as the first of int32, int64 and
// uint64 that can represent it.
func (e *evaluator) intLiteral(n *evalast.IntLit) *Value {
	switch {
	case n.Value <= math.MaxInt32:
		return newScalar(layout.Int32, n.Value, e.order())
	case n.Value <= math.MaxInt64:
		return newScalar(layout.Int64, n.Value, e.order())
	}
	return newScalar(layout.Uint64, n.Value, e.order())
}

// Evaluates expressions *<subexpr>. No memory is read for the pointee.
func (e *evaluator) evalDeref(n *evalast.Unary) (*Value, error) {
	x, err := e.eval(n.X)
	if err != nil {
		return nil, err
	}
	switch x.Layout.Kind {
	case layout.Array:
		addr, ok := x.Address()
		if !ok {
			return nil, newError(TypeMismatch, "array %s has no address", e.text(n.X))
		}
		return newLazy(x.Layout.Elem, addr, e.order()), nil
	case layout.Pointer:
		x, err = e.load(x, 0)
		if err != nil {
			return nil, e.attribute(err, n.X)
		}
		return newLazy(x.Pointee(), x.Target(), e.order()), nil
	}
	return nil, newError(TypeMismatch, "expression %s (%s) cannot be dereferenced", e.text(n.X), x.Layout)
}

// Evaluates expressions &<subexpr>
func (e *evaluator) evalAddrOf(n *evalast.Unary) (*Value, error) {
	x, err := e.eval(n.X)
	if err != nil {
		return nil, err
	}
	addr, ok := x.Address()
	if !ok {
		return nil, newError(TypeMismatch, "cannot take the address of %s", e.text(n.X))
	}
	return e.pointerTo(x.Layout, addr), nil
}

func (e *evaluator) evalUnary(n *evalast.Unary) (*Value, error) {
	x, err := e.operand(n.X)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case evalast.SUB:
		switch {
		case x.Layout.IsFloat():
			return newFloat(x.Layout, -x.Float(), e.order()), nil
		case x.Layout.IsInteger():
			return newScalar(x.Layout, -x.Bits(), e.order()), nil
		}
	case evalast.NOT:
		return e.boolean(!truth(x)), nil
	}
	return nil, newError(TypeMismatch, "operator %s can not be applied to %s", n.Op, x.Layout)
}

func (e *evaluator) evalLogical(n *evalast.Binary) (*Value, error) {
	x, err := e.operand(n.X)
	if err != nil {
		return nil, err
	}
	t := truth(x)
	if n.Op == evalast.LAND && !t {
		return e.boolean(false), nil
	}
	if n.Op == evalast.LOR && t {
		return e.boolean(true), nil
	}
	y, err := e.operand(n.Y)
	if err != nil {
		return nil, err
	}
	return e.boolean(truth(y)), nil
}

func (e *evaluator) evalTernary(n *evalast.Ternary) (*Value, error) {
	cond, err := e.operand(n.Cond)
	if err != nil {
		return nil, err
	}
	if truth(cond) {
		return e.eval(n.Then)
	}
	return e.eval(n.Else)
}

func (e *evaluator) evalBinary(n *evalast.Binary) (*Value, error) {
	x, err := e.operand(n.X)
	if err != nil {
		return nil, err
	}
	y, err := e.operand(n.Y)
	if err != nil {
		return nil, err
	}
	if x.Kind() == PointerValue || y.Kind() == PointerValue {
		return e.pointerOp(n.Op, x, y)
	}
	if !isNumeric(x.Layout) || !isNumeric(y.Layout) {
		return nil, newError(TypeMismatch, "operator %s not defined on %s and %s", n.Op, x.Layout, y.Layout)
	}
	l := promote(x.Layout, y.Layout)
	if l.IsFloat() {
		return e.floatOp(n.Op, l, toFloat(x), toFloat(y))
	}
	return e.intOp(n.Op, l, extend(x), extend(y))
}

func (e *evaluator) floatOp(op evalast.Token, l *layout.ValueLayout, a, b float64) (*Value, error) {
	var r float64
	switch op {
	case evalast.ADD:
		r = a + b
	case evalast.SUB:
		r = a - b
	case evalast.MUL:
		r = a * b
	case evalast.QUO:
		r = a / b
	case evalast.EQL:
		return e.boolean(a == b), nil
	case evalast.NEQ:
		return e.boolean(a != b), nil
	case evalast.LSS:
		return e.boolean(a < b), nil
	case evalast.LEQ:
		return e.boolean(a <= b), nil
	case evalast.GTR:
		return e.boolean(a > b), nil
	case evalast.GEQ:
		return e.boolean(a >= b), nil
	default:
		return nil, newError(TypeMismatch, "operator %s not defined on %s", op, l)
	}
	return newFloat(l, r, e.order()), nil
}

// intOp applies op to a and b, both already extended to 64 bits, with the
// semantics of integers of layout l.
func (e *evaluator) intOp(op evalast.Token, l *layout.ValueLayout, a, b uint64) (*Value, error) {
	signed := l.IsSigned()
	sa, sb := signExtend(a, l), signExtend(b, l)
	ua, ub := truncate(a, l), truncate(b, l)
	if op.IsComparison() {
		var r bool
		switch op {
		case evalast.EQL:
			r = ua == ub
		case evalast.NEQ:
			r = ua != ub
		case evalast.LSS:
			r = signed && sa < sb || !signed && ua < ub
		case evalast.LEQ:
			r = signed && sa <= sb || !signed && ua <= ub
		case evalast.GTR:
			r = signed && sa > sb || !signed && ua > ub
		case evalast.GEQ:
			r = signed && sa >= sb || !signed && ua >= ub
		}
		return e.boolean(r), nil
	}

	var r uint64
	switch op {
	case evalast.ADD:
		r = a + b
	case evalast.SUB:
		r = a - b
	case evalast.MUL:
		r = a * b
	case evalast.QUO, evalast.REM:
		if ub == 0 {
			return nil, newError(DivideByZero, "integer division by zero")
		}
		switch {
		case signed && op == evalast.QUO:
			r = uint64(sa / sb)
		case signed:
			r = uint64(sa % sb)
		case op == evalast.QUO:
			r = ua / ub
		default:
			r = ua % ub
		}
	default:
		return nil, newError(TypeMismatch, "operator %s not defined on %s", op, l)
	}
	return newScalar(l, r, e.order()), nil
}

func (e *evaluator) pointerOp(op evalast.Token, x, y *Value) (*Value, error) {
	xp, yp := x.Kind() == PointerValue, y.Kind() == PointerValue
	if op.IsComparison() {
		if !xp && !x.Layout.IsInteger() || !yp && !y.Layout.IsInteger() {
			return nil, newError(TypeMismatch, "cannot compare %s and %s", x.Layout, y.Layout)
		}
		return e.intOp(op, layout.Uint64, extend(x), extend(y))
	}
	switch {
	case op == evalast.ADD && xp && !yp:
		return e.pointerOffset(x, y, false)
	case op == evalast.ADD && !xp && yp:
		return e.pointerOffset(y, x, false)
	case op == evalast.SUB && xp && !yp:
		return e.pointerOffset(x, y, true)
	case op == evalast.SUB && xp && yp:
		return e.pointerDiff(x, y)
	}
	return nil, newError(TypeMismatch, "operator %s not defined on %s and %s", op, x.Layout, y.Layout)
}

// pointerOffset returns p + i, or p - i if neg is set, scaled by the size
// of the pointee.
func (e *evaluator) pointerOffset(p, i *Value, neg bool) (*Value, error) {
	idx, err := indexOf(i)
	if err != nil {
		return nil, err
	}
	if neg {
		if idx == math.MinInt64 {
			return nil, newError(AddressOverflow, "pointer offset %d overflows", idx)
		}
		idx = -idx
	}
	elem := p.Pointee()
	if elem.IsUnknown() || elem.Incomplete {
		return nil, newError(IncompleteType, "arithmetic on pointer to incomplete type %s", elem)
	}
	addr, ok := e.offsetAddr(p.Target(), idx, elem.Size)
	if !ok {
		return nil, newError(AddressOverflow, "%#x + %d*%d overflows the address space", p.Target(), idx, elem.Size)
	}
	return newScalar(p.Layout, addr, e.order()), nil
}

func (e *evaluator) pointerDiff(x, y *Value) (*Value, error) {
	if !layout.Same(x.Pointee(), y.Pointee()) {
		return nil, newError(TypeMismatch, "mismatched pointer types %s and %s", x.Layout, y.Layout)
	}
	size := x.Pointee().Size
	if size == 0 {
		return nil, newError(IncompleteType, "arithmetic on pointer to incomplete type %s", x.Pointee())
	}
	d := int64(x.Target()-y.Target()) / int64(size)
	return newScalar(layout.Int64, uint64(d), e.order()), nil
}

// offsetAddr computes base + idx*size, reporting whether the result is a
// valid address of the target.
func (e *evaluator) offsetAddr(base uint64, idx int64, size uint64) (uint64, bool) {
	mag := uint64(idx)
	if idx < 0 {
		mag = -mag
	}
	hi, delta := bits.Mul64(mag, size)
	if hi != 0 {
		return 0, false
	}
	var r, c uint64
	if idx < 0 {
		r, c = bits.Sub64(base, delta, 0)
	} else {
		r, c = bits.Add64(base, delta, 0)
	}
	if c != 0 {
		return 0, false
	}
	if ps := e.arch.PtrSize(); ps < 8 && r>>(uint(ps)*8) != 0 {
		return 0, false
	}
	return r, true
}

func (e *evaluator) evalSelector(n *evalast.Selector) (*Value, error) {
	x, err := e.eval(n.X)
	if err != nil {
		return nil, err
	}
	if n.Arrow {
		if x.Kind() != PointerValue {
			return nil, newError(TypeMismatch, "%s (type %s) is not a pointer, use . to access its members", e.text(n.X), x.Layout)
		}
		x, err = e.load(x, 0)
		if err != nil {
			return nil, e.attribute(err, n.X)
		}
		x = newLazy(x.Pointee(), x.Target(), e.order())
	} else if x.Kind() == PointerValue {
		return nil, newError(TypeMismatch, "%s (type %s) is a pointer, use -> to access its members", e.text(n.X), x.Layout)
	}

	l := x.Layout
	if l.Kind != layout.Struct {
		return nil, newError(TypeMismatch, "%s (type %s) is not a struct", e.text(n.X), l)
	}
	if l.Incomplete {
		return nil, newError(IncompleteType, "cannot access member '%s' of incomplete type '%s'", n.Sel, l)
	}
	f, ok := l.FieldByName(n.Sel)
	if !ok {
		return nil, newError(NoSuchMember, "%s has no member named '%s'", l, n.Sel)
	}
	if addr, ok := x.Address(); ok && addr+f.Offset < addr {
		return nil, newError(AddressOverflow, "member %s at %#x+%d overflows the address space", n.Sel, addr, f.Offset)
	}
	return x.member(f.Offset, f.Layout), nil
}

func (e *evaluator) evalIndex(n *evalast.Index) (*Value, error) {
	x, err := e.eval(n.X)
	if err != nil {
		return nil, err
	}
	i, err := e.operand(n.Index)
	if err != nil {
		return nil, err
	}
	idx, err := indexOf(i)
	if err != nil {
		return nil, e.attribute(err, n.Index)
	}

	switch x.Layout.Kind {
	case layout.Pointer:
		x, err = e.load(x, 0)
		if err != nil {
			return nil, e.attribute(err, n.X)
		}
		return e.element(x.Pointee(), x.Target(), idx)
	case layout.Array:
		l := x.Layout
		if e.checkBounds && l.Len > 0 && (idx < 0 || uint64(idx) >= l.Len) {
			return nil, newError(IndexOutOfBounds, "index %d out of bounds [0, %d)", idx, l.Len)
		}
		if addr, ok := x.Address(); ok {
			return e.element(l.Elem, addr, idx)
		}
		if off := uint64(idx) * l.Elem.Size; idx >= 0 && x.data != nil && off+l.Elem.Size <= uint64(len(x.data)) {
			return x.member(off, l.Elem), nil
		}
		return nil, newError(TypeMismatch, "array %s has no address", e.text(n.X))
	}
	return nil, newError(TypeMismatch, "expression %s (%s) cannot be indexed", e.text(n.X), x.Layout)
}

// element returns the lazy value of element idx of an array of elem
// starting at base.
func (e *evaluator) element(elem *layout.ValueLayout, base uint64, idx int64) (*Value, error) {
	if elem.IsUnknown() || elem.Incomplete {
		return nil, newError(IncompleteType, "cannot index pointer to incomplete type %s", elem)
	}
	addr, ok := e.offsetAddr(base, idx, elem.Size)
	if !ok {
		return nil, newError(AddressOverflow, "%#x + %d*%d overflows the address space", base, idx, elem.Size)
	}
	return newLazy(elem, addr, e.order()), nil
}

// evalCall evaluates the sizeof and alignof builtins. Functions of the
// inferior can not be called.
func (e *evaluator) evalCall(n *evalast.Call) (*Value, error) {
	fn, ok := n.Fun.(*evalast.Ident)
	if !ok || fn.Name != "sizeof" && fn.Name != "alignof" {
		return nil, newError(TypeMismatch, "cannot call %s: function calls are not supported", e.text(n.Fun))
	}
	if len(n.Args) != 1 {
		return nil, newError(TypeMismatch, "%s takes exactly one argument, %d given", fn.Name, len(n.Args))
	}
	arg, err := e.eval(n.Args[0])
	if err != nil {
		return nil, err
	}
	l := arg.Layout
	if l.IsUnknown() || l.Incomplete {
		return nil, newError(IncompleteType, "%s applied to incomplete type %s", fn.Name, l)
	}
	if fn.Name == "alignof" {
		return newScalar(layout.Uint64, uint64(l.Align), e.order()), nil
	}
	return newScalar(layout.Uint64, l.Size, e.order()), nil
}

func (e *evaluator) evalAssign(n *evalast.Assign) (*Value, error) {
	lhs, err := e.eval(n.LHS)
	if err != nil {
		return nil, err
	}
	addr, inMem := lhs.Address()
	reg, inReg := lhs.Register()
	if !inMem && !inReg {
		return nil, newError(TypeMismatch, "cannot assign to %s", e.text(n.LHS))
	}
	l := lhs.Layout
	if lhs.Kind() == AggregateValue || l.IsUnknown() {
		return nil, newError(TypeMismatch, "cannot assign to %s of type %s", e.text(n.LHS), l)
	}
	rhs, err := e.operand(n.RHS)
	if err != nil {
		return nil, err
	}
	v, err := convert(rhs, l)
	if err != nil {
		return nil, e.attribute(err, n.RHS)
	}

	if inMem {
		if err := e.writeMemory(addr, encodeBits(v, l.Size, e.order())); err != nil {
			return nil, err
		}
		return e.load(newLazy(l, addr, e.order()), 0)
	}

	if l.Size < 8 {
		cur, err := e.getRegister(reg)
		if err != nil {
			return nil, err
		}
		mask := uint64(1)<<(l.Size*8) - 1
		v = cur&^mask | v&mask
	}
	if err := e.setRegister(reg, v); err != nil {
		return nil, err
	}
	v, err = e.getRegister(reg)
	if err != nil {
		return nil, err
	}
	return newRegisterValue(l, e.scope.Thread, reg, v, e.order()), nil
}

func isNumeric(l *layout.ValueLayout) bool {
	return l.IsInteger() || l.IsFloat()
}

// truth reports whether a scalar or pointer is non zero.
func truth(v *Value) bool {
	if v.Layout.IsFloat() {
		return v.Float() != 0
	}
	return truncate(v.Bits(), v.Layout) != 0
}

// extend returns the bits of an integer or pointer, sign or zero extended
// to 64 bits according to its layout.
func extend(v *Value) uint64 {
	if v.Layout.IsSigned() {
		return uint64(v.Int())
	}
	return truncate(v.Bits(), v.Layout)
}

func toFloat(v *Value) float64 {
	switch {
	case v.Layout.IsFloat():
		return v.Float()
	case v.Layout.IsSigned():
		return float64(v.Int())
	}
	return float64(truncate(v.Bits(), v.Layout))
}

// indexOf returns the value of an integer used as an index or offset.
func indexOf(v *Value) (int64, error) {
	if !v.Layout.IsInteger() {
		return 0, newError(TypeMismatch, "index of type %s is not an integer", v.Layout)
	}
	if v.Layout.IsSigned() {
		return v.Int(), nil
	}
	u := truncate(v.Bits(), v.Layout)
	if u > math.MaxInt64 {
		return 0, newError(AddressOverflow, "index %d overflows the address space", u)
	}
	return int64(u), nil
}

// promote returns the layout binary operations on x and y are carried out
// in. Integers widen to the larger operand; with equal widths unsigned
// wins. Mixed integer and floating point operands promote to floating
// point.
func promote(x, y *layout.ValueLayout) *layout.ValueLayout {
	if x.IsFloat() || y.IsFloat() {
		switch {
		case !x.IsFloat():
			return y
		case !y.IsFloat():
			return x
		case y.Size > x.Size:
			return y
		}
		return x
	}
	size, signed := x.Size, x.IsSigned()
	switch {
	case y.Size > size:
		size, signed = y.Size, y.IsSigned()
	case y.Size == size:
		signed = signed && y.IsSigned()
	}
	for _, l := range [...]*layout.ValueLayout{x, y} {
		if l.Size == size && (signed && l.Encoding == layout.Signed || !signed && l.Encoding == layout.Unsigned) {
			return l
		}
	}
	var r *layout.ValueLayout
	if signed {
		r = layout.Int(size)
	} else {
		r = layout.Uint(size)
	}
	if r == nil {
		if signed {
			return layout.Int64
		}
		return layout.Uint64
	}
	return r
}

// convert returns the bits of v converted to a value of layout l.
func convert(v *Value, l *layout.ValueLayout) (uint64, error) {
	src := v.Layout
	switch {
	case l.IsFloat():
		if !isNumeric(src) {
			break
		}
		f := toFloat(v)
		if l.Size == 4 {
			return uint64(math.Float32bits(float32(f))), nil
		}
		return math.Float64bits(f), nil
	case l.Kind == layout.Scalar && l.Encoding == layout.Bool:
		if v.Kind() == PointerValue || isNumeric(src) {
			if truth(v) {
				return 1, nil
			}
			return 0, nil
		}
	case l.Kind == layout.Pointer:
		if v.Kind() == PointerValue || src.IsInteger() {
			return truncate(extend(v), l), nil
		}
	case l.IsInteger():
		if src.IsFloat() {
			f := v.Float()
			if l.IsSigned() || f < 0 {
				return truncate(uint64(int64(f)), l), nil
			}
			return truncate(uint64(f), l), nil
		}
		if v.Kind() == PointerValue || src.IsInteger() {
			return truncate(extend(v), l), nil
		}
	}
	return 0, newError(TypeMismatch, "cannot convert %s to %s", src, l)
}

// classifyError converts an error of a backend into an *EvalError, using
// def unless err carries an ErrorKind.
func classifyError(err error, def ErrorKind, format string, args ...interface{}) *EvalError {
	if k := KindOf(err); k != 0 {
		def = k
	}
	return wrapError(def, err, format, args...)
}
