package evalast

import (
	"fmt"
	"strconv"
)

// DefaultMaxDepth is the recursion limit used by Parse.
const DefaultMaxDepth = 1 << 16

type parser struct {
	lex      *lexer
	depth    int
	maxDepth int
}

// Parse parses expr. Errors are of type *Error.
func Parse(expr string) (Node, error) {
	return ParseDepth(expr, DefaultMaxDepth)
}

// ParseDepth parses expr, recursing at most maxDepth times. An expression
// nested deeper than that fails with an *Error whose TooDeep field is set.
// Each level of nesting costs between one and three levels of recursion.
func ParseDepth(expr string, maxDepth int) (node Node, err error) {
	p := &parser{lex: newLexer(expr), maxDepth: maxDepth}
	if err := p.next(); err != nil {
		return nil, err
	}
	node, err = p.parseAssign()
	if err != nil {
		return nil, err
	}
	if p.lex.tok != EOF {
		return nil, p.errorf("unexpected %s after expression", p.describe())
	}
	return node, nil
}

func (p *parser) next() error {
	return p.lex.next()
}

func (p *parser) errorf(format string, args ...interface{}) *Error {
	return &Error{Pos: p.lex.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) describe() string {
	switch p.lex.tok {
	case EOF:
		return "end of expression"
	case IDENT:
		return fmt.Sprintf("identifier %s", p.lex.lit)
	case INT, FLOAT, CHAR:
		return fmt.Sprintf("literal %s", p.lex.lit)
	case REGISTER:
		return "register $" + p.lex.lit
	}
	return fmt.Sprintf("'%s'", p.lex.tok)
}

func (p *parser) expect(tok Token) (int, error) {
	pos := p.lex.pos
	if p.lex.tok != tok {
		return pos, p.errorf("expected '%s', found %s", tok, p.describe())
	}
	return pos, p.next()
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > p.maxDepth {
		err := p.errorf("expression nested too deeply")
		err.TooDeep = true
		return err
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) parseAssign() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	lhs, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if p.lex.tok != ASSIGN {
		return lhs, nil
	}
	pos := p.lex.pos
	if err := p.next(); err != nil {
		return nil, err
	}
	rhs, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	return &Assign{LHS: lhs, OpPos: pos, RHS: rhs}, nil
}

func (p *parser) parseTernary() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	cond, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	if p.lex.tok != QUESTION {
		return cond, nil
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	then, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	els, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return &Ternary{Cond: cond, Then: then, Else: els}, nil
}

// binaryLevels lists the binary operators from lowest to highest
// precedence. All of them are left associative.
var binaryLevels = [][]Token{
	{LOR},
	{LAND},
	{EQL, NEQ},
	{LSS, LEQ, GTR, GEQ},
	{ADD, SUB},
	{MUL, QUO, REM},
}

func (p *parser) atLevel(level int) bool {
	for _, tok := range binaryLevels[level] {
		if p.lex.tok == tok {
			return true
		}
	}
	return false
}

func (p *parser) parseOperand(level int) (Node, error) {
	if level+1 < len(binaryLevels) {
		return p.parseBinary(level + 1)
	}
	return p.parseUnary()
}

func (p *parser) parseBinary(level int) (Node, error) {
	x, err := p.parseOperand(level)
	if err != nil {
		return nil, err
	}
	for p.atLevel(level) {
		op, pos := p.lex.tok, p.lex.pos
		if err := p.next(); err != nil {
			return nil, err
		}
		y, err := p.parseOperand(level)
		if err != nil {
			return nil, err
		}
		x = &Binary{X: x, OpPos: pos, Op: op, Y: y}
	}
	return x, nil
}

func (p *parser) parseUnary() (Node, error) {
	switch p.lex.tok {
	case MUL, AND, SUB, NOT:
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		op, pos := p.lex.tok, p.lex.pos
		if err := p.next(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{OpPos: pos, Op: op, X: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Node, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.lex.tok {
		case PERIOD, ARROW:
			arrow, pos := p.lex.tok == ARROW, p.lex.pos
			if err := p.next(); err != nil {
				return nil, err
			}
			if p.lex.tok != IDENT {
				return nil, p.errorf("expected member name, found %s", p.describe())
			}
			sel := &Selector{X: x, Arrow: arrow, OpPos: pos, Sel: p.lex.lit, SelEnd: p.lex.pos + len(p.lex.lit)}
			if err := p.next(); err != nil {
				return nil, err
			}
			x = sel
		case LBRACK:
			lbrack := p.lex.pos
			if err := p.next(); err != nil {
				return nil, err
			}
			idx, err := p.parseAssign()
			if err != nil {
				return nil, err
			}
			rbrack, err := p.expect(RBRACK)
			if err != nil {
				return nil, err
			}
			x = &Index{X: x, Lbrack: lbrack, Index: idx, Rbrack: rbrack}
		case LPAREN:
			call := &Call{Fun: x, Lparen: p.lex.pos}
			if err := p.next(); err != nil {
				return nil, err
			}
			for p.lex.tok != RPAREN {
				arg, err := p.parseAssign()
				if err != nil {
					return nil, err
				}
				call.Args = append(call.Args, arg)
				if p.lex.tok != COMMA {
					break
				}
				if err := p.next(); err != nil {
					return nil, err
				}
			}
			rparen, err := p.expect(RPAREN)
			if err != nil {
				return nil, err
			}
			call.Rparen = rparen
			x = call
		default:
			return x, nil
		}
		// Long postfix chains are nested as deeply as parenthesized
		// expressions once evaluated.
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
	}
}

func (p *parser) parsePrimary() (Node, error) {
	pos, lit := p.lex.pos, p.lex.lit
	var node Node
	switch p.lex.tok {
	case IDENT:
		node = &Ident{NamePos: pos, Name: lit}
	case REGISTER:
		node = &Register{Dollar: pos, Name: lit}
	case INT:
		v, err := strconv.ParseUint(lit, 0, 64)
		if err != nil {
			return nil, p.errorf("integer literal %s out of range", lit)
		}
		node = &IntLit{ValuePos: pos, Lit: lit, Value: v}
	case FLOAT:
		v, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return nil, p.errorf("invalid floating point literal %s", lit)
		}
		node = &FloatLit{ValuePos: pos, Lit: lit, Value: v}
	case CHAR:
		v, err := unquoteChar(lit)
		if err != nil {
			return nil, p.errorf("invalid character literal %s", lit)
		}
		if v > 0xff {
			return nil, p.errorf("character literal %s does not fit in a char", lit)
		}
		node = &CharLit{ValuePos: pos, Lit: lit, Value: v}
	case LPAREN:
		if err := p.next(); err != nil {
			return nil, err
		}
		x, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		rparen, err := p.expect(RPAREN)
		if err != nil {
			return nil, err
		}
		return &Paren{Lparen: pos, Rparen: rparen, X: x}, nil
	default:
		return nil, p.errorf("expected operand, found %s", p.describe())
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	return node, nil
}
