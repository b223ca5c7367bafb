package evalast

import "strconv"

// Token is a lexical token of the expression language.
type Token uint8

const (
	ILLEGAL Token = iota
	EOF

	IDENT
	REGISTER
	INT
	FLOAT
	CHAR

	ADD // +
	SUB // -
	MUL // *
	QUO // /
	REM // %

	AND  // &
	LAND // &&
	LOR  // ||
	NOT  // !

	EQL // ==
	NEQ // !=
	LSS // <
	LEQ // <=
	GTR // >
	GEQ // >=

	ASSIGN   // =
	QUESTION // ?
	COLON    // :
	COMMA    // ,
	PERIOD   // .
	ARROW    // ->

	LPAREN // (
	RPAREN // )
	LBRACK // [
	RBRACK // ]
)

var tokens = [...]string{
	ILLEGAL:  "ILLEGAL",
	EOF:      "EOF",
	IDENT:    "IDENT",
	REGISTER: "REGISTER",
	INT:      "INT",
	FLOAT:    "FLOAT",
	CHAR:     "CHAR",
	ADD:      "+",
	SUB:      "-",
	MUL:      "*",
	QUO:      "/",
	REM:      "%",
	AND:      "&",
	LAND:     "&&",
	LOR:      "||",
	NOT:      "!",
	EQL:      "==",
	NEQ:      "!=",
	LSS:      "<",
	LEQ:      "<=",
	GTR:      ">",
	GEQ:      ">=",
	ASSIGN:   "=",
	QUESTION: "?",
	COLON:    ":",
	COMMA:    ",",
	PERIOD:   ".",
	ARROW:    "->",
	LPAREN:   "(",
	RPAREN:   ")",
	LBRACK:   "[",
	RBRACK:   "]",
}

func (tok Token) String() string {
	if int(tok) < len(tokens) {
		return tokens[tok]
	}
	return "token(" + strconv.Itoa(int(tok)) + ")"
}

// IsComparison reports whether tok is an equality or relational operator.
func (tok Token) IsComparison() bool {
	switch tok {
	case EQL, NEQ, LSS, LEQ, GTR, GEQ:
		return true
	}
	return false
}
