package evalast

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sexpr prints n fully parenthesized.
func sexpr(n Node) string {
	switch n := n.(type) {
	case *Ident:
		return n.Name
	case *Register:
		return "$" + n.Name
	case *IntLit:
		return fmt.Sprintf("%d", n.Value)
	case *FloatLit:
		return fmt.Sprintf("%g", n.Value)
	case *CharLit:
		return fmt.Sprintf("c%d", n.Value)
	case *Paren:
		return sexpr(n.X)
	case *Unary:
		return fmt.Sprintf("(%s %s)", n.Op, sexpr(n.X))
	case *Binary:
		return fmt.Sprintf("(%s %s %s)", n.Op, sexpr(n.X), sexpr(n.Y))
	case *Ternary:
		return fmt.Sprintf("(? %s %s %s)", sexpr(n.Cond), sexpr(n.Then), sexpr(n.Else))
	case *Selector:
		op := "."
		if n.Arrow {
			op = "->"
		}
		return fmt.Sprintf("(%s %s %s)", op, sexpr(n.X), n.Sel)
	case *Index:
		return fmt.Sprintf("([] %s %s)", sexpr(n.X), sexpr(n.Index))
	case *Call:
		args := make([]string, len(n.Args))
		for i := range n.Args {
			args[i] = sexpr(n.Args[i])
		}
		return fmt.Sprintf("(call %s %s)", sexpr(n.Fun), strings.Join(args, " "))
	case *Assign:
		return fmt.Sprintf("(= %s %s)", sexpr(n.LHS), sexpr(n.RHS))
	}
	return fmt.Sprintf("<%T>", n)
}

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		expr, want string
	}{
		{"x", "x"},
		{"$rax", "$rax"},
		{"0x10", "16"},
		{"1.5", "1.5"},
		{"'A'", "c65"},
		{"'\\n'", "c10"},
		{"'\\0'", "c0"},
		{"'\\12'", "c10"},
		{"'\\101'", "c65"},
		{"'\\x41'", "c65"},
		{"'\\''", "c39"},
		{"'\\0' + 'A'", "(+ c0 c65)"},
		{"1 + 2 * 3", "(+ 1 (* 2 3))"},
		{"(1 + 2) * 3", "(* (+ 1 2) 3)"},
		{"a - b - c", "(- (- a b) c)"},
		{"a / b % c", "(% (/ a b) c)"},
		{"a < b == c > d", "(== (< a b) (> c d))"},
		{"a || b && c", "(|| a (&& b c))"},
		{"a == b && c != d", "(&& (== a b) (!= c d))"},
		{"a<-1", "(< a (- 1))"},
		{"-a * b", "(* (- a) b)"},
		{"!*p", "(! (* p))"},
		{"&s.f", "(& (. s f))"},
		{"*p->next", "(* (-> p next))"},
		{"a.b->c[1].d", "(. ([] (-> (. a b) c) 1) d)"},
		{"a[i + 1][j]", "([] ([] a (+ i 1)) j)"},
		{"sizeof(x)", "(call sizeof x)"},
		{"f()", "(call f )"},
		{"f(a, b + 1)", "(call f a (+ b 1))"},
		{"a = b = 3", "(= a (= b 3))"},
		{"c ? a : b", "(? c a b)"},
		{"c ? x ? 1 : 2 : d ? 3 : 4", "(? c (? x 1 2) (? d 3 4))"},
		{"p = c ? a : b", "(= p (? c a b))"},
		{"type.range", "(. type range)"},
		{"$pc + 4", "(+ $pc 4)"},
		{"x\n+ 1", "(+ x 1)"},
	} {
		t.Run(tc.expr, func(t *testing.T) {
			n, err := Parse(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.want, sexpr(n))
		})
	}
}

func TestParsePositions(t *testing.T) {
	n, err := Parse("a.bc + p->q[10]")
	require.NoError(t, err)
	bin := n.(*Binary)
	assert.Equal(t, 0, bin.Pos())
	assert.Equal(t, 15, bin.End())
	assert.Equal(t, 5, bin.OpPos)

	sel := bin.X.(*Selector)
	assert.Equal(t, 0, sel.Pos())
	assert.Equal(t, 4, sel.End())
	assert.Equal(t, 1, sel.OpPos)

	idx := bin.Y.(*Index)
	assert.Equal(t, 7, idx.Pos())
	assert.Equal(t, 15, idx.End())
	arrow := idx.X.(*Selector)
	assert.True(t, arrow.Arrow)
	assert.Equal(t, 8, arrow.OpPos)
	assert.Equal(t, 11, arrow.End())

	n, err = Parse("  $rsp")
	require.NoError(t, err)
	assert.Equal(t, 2, n.Pos())
	assert.Equal(t, 6, n.End())

	n, err = Parse("(x)")
	require.NoError(t, err)
	assert.Equal(t, 0, n.Pos())
	assert.Equal(t, 3, n.End())
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		expr string
		pos  int
		msg  string
	}{
		{"", 0, "expected operand, found end of expression"},
		{"1 +", 3, "expected operand, found end of expression"},
		{"a b", 2, "unexpected identifier b after expression"},
		{"(a", 2, "expected ')', found end of expression"},
		{"a[1", 3, "expected ']', found end of expression"},
		{"a.1", 1, ""},
		{"a->", 3, "expected member name, found end of expression"},
		{"c ? a", 5, "expected ':', found end of expression"},
		{"f(a b)", 4, "expected ')', found identifier b"},
		{"99999999999999999999", 0, "integer literal 99999999999999999999 out of range"},
		{"'\\u1234'", 0, "character literal '\\u1234' does not fit in a char"},
		{"'\\400'", 0, "invalid character literal '\\400'"},
		{"'\\0123'", 0, "invalid character literal '\\0123'"},
		{"a + 'bc'", 4, "invalid character literal 'bc'"},
		{"a $", 2, "expected register name after '$'"},
		{"$ rax", 0, "expected register name after '$'"},
		{"\"str\"", 0, "string literals are not supported"},
		{"a << 2", 2, "operator << not supported"},
		{"a) + 1", 1, "unexpected ')' after expression"},
	} {
		t.Run(tc.expr, func(t *testing.T) {
			_, err := Parse(tc.expr)
			require.Error(t, err)
			perr, ok := err.(*Error)
			require.True(t, ok, "error %v is %T", err, err)
			assert.Equal(t, tc.pos, perr.Pos)
			if tc.msg != "" {
				assert.Equal(t, tc.msg, perr.Msg)
			}
		})
	}
}

func TestParseDepth(t *testing.T) {
	nest := func(n int) string {
		return strings.Repeat("(", n) + "x" + strings.Repeat(")", n)
	}

	_, err := Parse(nest(1000))
	require.NoError(t, err)
	_, err = Parse(strings.Repeat("!", 2000) + "x")
	require.NoError(t, err)
	_, err = Parse(strings.Repeat("a[", 1000) + "0" + strings.Repeat("]", 1000))
	require.NoError(t, err)

	const limit = 64
	_, err = ParseDepth(nest(limit/2-1), limit)
	require.NoError(t, err)
	for _, expr := range []string{
		nest(limit),
		strings.Repeat("!", limit+1) + "x",
		"a" + strings.Repeat("[0]", limit+1),
	} {
		_, err := ParseDepth(expr, limit)
		require.Error(t, err)
		perr := err.(*Error)
		assert.Equal(t, "expression nested too deeply", perr.Msg)
		assert.True(t, perr.TooDeep)
	}

	_, err = ParseDepth("(x", limit)
	require.Error(t, err)
	assert.False(t, err.(*Error).TooDeep)
}
