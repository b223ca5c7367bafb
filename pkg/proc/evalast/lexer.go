package evalast

import (
	"fmt"
	"go/scanner"
	"go/token"
	"strconv"
	"strings"
)

// Error is a syntax error at byte offset Pos of the expression.
type Error struct {
	Pos int
	Msg string

	// TooDeep is set when the expression exceeded the nesting limit.
	TooDeep bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Pos, e.Msg)
}

type rawToken struct {
	pos int
	tok token.Token
	lit string
}

// lexer produces Tokens from the expression source. Scanning is delegated
// to go/scanner, whose lexical grammar for numbers, characters and
// identifiers matches the one of the expression language; the few tokens
// Go does not have (?, $name and ->) are recognized here.
type lexer struct {
	src  string
	file *token.File
	s    scanner.Scanner

	scanErr *Error
	pending []rawToken

	// chars maps the offset of every character literal to its text.
	chars map[int]string

	// current token
	pos int
	tok Token
	lit string
}

func newLexer(src string) *lexer {
	l := &lexer{src: src}
	// Automatic semicolon insertion must not split expressions over lines.
	clean := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, src)
	clean, l.chars = maskCharLiterals(clean)
	fset := token.NewFileSet()
	l.file = fset.AddFile("expr", -1, len(clean))
	l.s.Init(l.file, []byte(clean), func(pos token.Position, msg string) {
		if l.scanErr == nil {
			l.scanErr = &Error{Pos: pos.Offset, Msg: msg}
		}
	}, 0)
	return l
}

func (l *lexer) scanRaw() rawToken {
	if n := len(l.pending); n > 0 {
		t := l.pending[n-1]
		l.pending = l.pending[:n-1]
		return t
	}
	pos, tok, lit := l.s.Scan()
	return rawToken{pos: l.file.Offset(pos), tok: tok, lit: lit}
}

func (l *lexer) unscan(t rawToken) {
	l.pending = append(l.pending, t)
}

var simpleTokens = map[token.Token]Token{
	token.ADD:    ADD,
	token.SUB:    SUB,
	token.MUL:    MUL,
	token.QUO:    QUO,
	token.REM:    REM,
	token.AND:    AND,
	token.LAND:   LAND,
	token.LOR:    LOR,
	token.NOT:    NOT,
	token.EQL:    EQL,
	token.NEQ:    NEQ,
	token.LSS:    LSS,
	token.LEQ:    LEQ,
	token.GTR:    GTR,
	token.GEQ:    GEQ,
	token.ASSIGN: ASSIGN,
	token.COLON:  COLON,
	token.COMMA:  COMMA,
	token.PERIOD: PERIOD,
	token.LPAREN: LPAREN,
	token.RPAREN: RPAREN,
	token.LBRACK: LBRACK,
	token.RBRACK: RBRACK,
	token.INT:    INT,
	token.FLOAT:  FLOAT,
	token.CHAR:   CHAR,
	token.IDENT:  IDENT,
}

// next advances to the next token. It returns an error for anything that
// is not a token of the expression language.
func (l *lexer) next() error {
	t := l.scanRaw()
	if l.scanErr != nil && !(t.tok == token.ILLEGAL && (t.lit == "?" || t.lit == "$")) {
		return l.scanErr
	}
	l.scanErr = nil
	l.pos, l.lit = t.pos, t.lit

	switch {
	case t.tok == token.EOF:
		l.tok = EOF
		return nil
	case t.tok == token.SEMICOLON && t.lit == "\n":
		// inserted by the scanner at the end of the input
		l.tok = EOF
		return nil
	case t.tok == token.SUB:
		n := l.scanRaw()
		if n.tok == token.GTR && n.pos == t.pos+1 {
			l.tok, l.lit = ARROW, "->"
			return nil
		}
		l.unscan(n)
		l.tok = SUB
		return nil
	case t.tok == token.ARROW:
		// x<-1 is x < -1
		l.unscan(rawToken{pos: t.pos + 1, tok: token.SUB})
		l.tok, l.lit = LSS, "<"
		return nil
	case t.tok == token.ILLEGAL && t.lit == "?":
		l.tok = QUESTION
		return nil
	case t.tok == token.ILLEGAL && t.lit == "$":
		n := l.scanRaw()
		if l.scanErr != nil {
			return l.scanErr
		}
		name := n.lit
		if n.tok.IsKeyword() {
			name = n.tok.String()
		} else if n.tok != token.IDENT {
			return &Error{Pos: t.pos, Msg: "expected register name after '$'"}
		}
		if n.pos != t.pos+1 {
			return &Error{Pos: t.pos, Msg: "expected register name after '$'"}
		}
		l.tok, l.lit = REGISTER, name
		return nil
	case t.tok.IsKeyword():
		// Go keywords are ordinary identifiers in the inferior's language.
		l.tok, l.lit = IDENT, t.tok.String()
		return nil
	case t.tok == token.STRING:
		return &Error{Pos: t.pos, Msg: "string literals are not supported"}
	}
	if t.tok == token.CHAR {
		if lit, ok := l.chars[t.pos]; ok {
			l.lit = lit
		}
	}
	if tok, ok := simpleTokens[t.tok]; ok {
		l.tok = tok
		if t.lit == "" {
			l.lit = t.tok.String()
		}
		return nil
	}
	if t.tok.IsOperator() {
		return &Error{Pos: t.pos, Msg: fmt.Sprintf("operator %s not supported", t.tok)}
	}
	return &Error{Pos: t.pos, Msg: fmt.Sprintf("unexpected %q", t.lit)}
}

// maskCharLiterals replaces every character literal of src with 'x'
// padded to the same length, so that go/scanner accepts C escapes that Go
// does not have, like '\0'. The literals are returned by offset.
func maskCharLiterals(src string) (string, map[int]string) {
	var chars map[int]string
	buf := []byte(src)
	for i := 0; i < len(buf); i++ {
		if buf[i] != '\'' {
			continue
		}
		end := -1
		for j := i + 1; j < len(buf); j++ {
			if buf[j] == '\\' {
				j++
				continue
			}
			if buf[j] == '\'' {
				end = j
				break
			}
		}
		if end < 0 {
			break
		}
		if end-i < 2 {
			// '' is left to the scanner to report
			i = end
			continue
		}
		if chars == nil {
			chars = make(map[int]string)
		}
		chars[i] = src[i : end+1]
		buf[i+1], buf[i+2] = 'x', '\''
		for k := i + 3; k <= end; k++ {
			buf[k] = ' '
		}
		i = end
	}
	return string(buf), chars
}

// unquoteChar decodes the character literal lit, quotes included. Besides
// the escapes of strconv.UnquoteChar it accepts octal escapes of one to
// three digits, as C does.
func unquoteChar(lit string) (rune, error) {
	if len(lit) < 3 || lit[0] != '\'' || lit[len(lit)-1] != '\'' {
		return 0, strconv.ErrSyntax
	}
	body := lit[1 : len(lit)-1]
	if len(body) >= 2 && body[0] == '\\' && isOctal(body[1]) {
		digits := body[1:]
		if len(digits) > 3 {
			return 0, strconv.ErrSyntax
		}
		var v rune
		for i := 0; i < len(digits); i++ {
			if !isOctal(digits[i]) {
				return 0, strconv.ErrSyntax
			}
			v = v*8 + rune(digits[i]-'0')
		}
		if v > 0xff {
			return 0, strconv.ErrRange
		}
		return v, nil
	}
	v, _, tail, err := strconv.UnquoteChar(body, '\'')
	if err != nil {
		return 0, err
	}
	if tail != "" {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}

func isOctal(c byte) bool {
	return c >= '0' && c <= '7'
}
