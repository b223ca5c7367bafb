// Package evalast parses debugger expressions into a syntax tree.
//
// The accepted language is a small C-like expression grammar, from lowest
// to highest precedence:
//
//	assignment     = ternary [ "=" assignment ] .
//	ternary        = logicalOr [ "?" ternary ":" ternary ] .
//	logicalOr      = logicalAnd { "||" logicalAnd } .
//	logicalAnd     = equality { "&&" equality } .
//	equality       = relational { ( "==" | "!=" ) relational } .
//	relational     = additive { ( "<" | "<=" | ">" | ">=" ) additive } .
//	additive       = multiplicative { ( "+" | "-" ) multiplicative } .
//	multiplicative = unary { ( "*" | "/" | "%" ) unary } .
//	unary          = ( "*" | "&" | "-" | "!" ) unary | postfix .
//	postfix        = primary { "." ident | "->" ident | "[" assignment "]" | "(" [ args ] ")" } .
//	primary        = ident | "$" ident | int_lit | float_lit | char_lit | "(" assignment ")" .
package evalast

// Node is an expression syntax tree node. Pos and End are byte offsets
// into the source expression.
type Node interface {
	Pos() int
	End() int
	exprNode()
}

type (
	// Ident is a variable name.
	Ident struct {
		NamePos int
		Name    string
	}

	// Register is a direct register reference, $name.
	Register struct {
		Dollar int
		Name   string
	}

	IntLit struct {
		ValuePos int
		Lit      string
		Value    uint64
	}

	FloatLit struct {
		ValuePos int
		Lit      string
		Value    float64
	}

	CharLit struct {
		ValuePos int
		Lit      string
		Value    rune
	}

	Paren struct {
		Lparen, Rparen int
		X              Node
	}

	Unary struct {
		OpPos int
		Op    Token
		X     Node
	}

	Binary struct {
		X     Node
		OpPos int
		Op    Token
		Y     Node
	}

	Ternary struct {
		Cond, Then, Else Node
	}

	// Selector is X.Sel, or X->Sel if Arrow is set.
	Selector struct {
		X      Node
		Arrow  bool
		OpPos  int
		Sel    string
		SelEnd int
	}

	Index struct {
		X      Node
		Lbrack int
		Index  Node
		Rbrack int
	}

	Call struct {
		Fun    Node
		Lparen int
		Args   []Node
		Rparen int
	}

	Assign struct {
		LHS   Node
		OpPos int
		RHS   Node
	}
)

func (n *Ident) Pos() int    { return n.NamePos }
func (n *Register) Pos() int { return n.Dollar }
func (n *IntLit) Pos() int   { return n.ValuePos }
func (n *FloatLit) Pos() int { return n.ValuePos }
func (n *CharLit) Pos() int  { return n.ValuePos }
func (n *Paren) Pos() int    { return n.Lparen }
func (n *Unary) Pos() int    { return n.OpPos }
func (n *Binary) Pos() int   { return n.X.Pos() }
func (n *Ternary) Pos() int  { return n.Cond.Pos() }
func (n *Selector) Pos() int { return n.X.Pos() }
func (n *Index) Pos() int    { return n.X.Pos() }
func (n *Call) Pos() int     { return n.Fun.Pos() }
func (n *Assign) Pos() int   { return n.LHS.Pos() }

func (n *Ident) End() int    { return n.NamePos + len(n.Name) }
func (n *Register) End() int { return n.Dollar + 1 + len(n.Name) }
func (n *IntLit) End() int   { return n.ValuePos + len(n.Lit) }
func (n *FloatLit) End() int { return n.ValuePos + len(n.Lit) }
func (n *CharLit) End() int  { return n.ValuePos + len(n.Lit) }
func (n *Paren) End() int    { return n.Rparen + 1 }
func (n *Unary) End() int    { return n.X.End() }
func (n *Binary) End() int   { return n.Y.End() }
func (n *Ternary) End() int  { return n.Else.End() }
func (n *Selector) End() int { return n.SelEnd }
func (n *Index) End() int    { return n.Rbrack + 1 }
func (n *Call) End() int     { return n.Rparen + 1 }
func (n *Assign) End() int   { return n.RHS.End() }

func (*Ident) exprNode()    {}
func (*Register) exprNode() {}
func (*IntLit) exprNode()   {}
func (*FloatLit) exprNode() {}
func (*CharLit) exprNode()  {}
func (*Paren) exprNode()    {}
func (*Unary) exprNode()    {}
func (*Binary) exprNode()   {}
func (*Ternary) exprNode()  {}
func (*Selector) exprNode() {}
func (*Index) exprNode()    {}
func (*Call) exprNode()     {}
func (*Assign) exprNode()   {}
