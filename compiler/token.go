package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token kinds for the Rat25S lexer
// ---------------------------------------------------------------------------

// TokenKind classifies a lexeme.
type TokenKind int

const (
	KindUnknown TokenKind = iota
	KindKeyword
	KindOperator
	KindSeparator
	KindIdentifier
	KindInteger
	KindReal

	// KindEOF marks the end of input. It is returned by NextToken but never
	// appears in the slice produced by Tokenize.
	KindEOF
)

var kindNames = map[TokenKind]string{
	KindUnknown:    "unknown",
	KindKeyword:    "keyword",
	KindOperator:   "operator",
	KindSeparator:  "separator",
	KindIdentifier: "identifier",
	KindInteger:    "integer",
	KindReal:       "real",
	KindEOF:        "EOF",
}

func (k TokenKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TokenKind(%d)", k)
}

// Position represents a source location in the original text, comments included.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token represents a lexical token.
type Token struct {
	Kind   TokenKind
	Lexeme string
	Pos    Position
}

// String renders the token the way the token table shows it.
func (t Token) String() string {
	if t.Kind == KindEOF {
		return "EOF"
	}
	return fmt.Sprintf("%-10s %s", t.Kind, t.Lexeme)
}

// Is reports whether the token has the given kind and lexeme.
func (t Token) Is(kind TokenKind, lexeme string) bool {
	return t.Kind == kind && t.Lexeme == lexeme
}

// Reserved words, operators and separators of Rat25S.
var (
	keywords = map[string]bool{
		"while": true, "endwhile": true,
		"if": true, "endif": true, "else": true,
		"integer": true, "boolean": true,
		"true": true, "false": true,
		"return": true, "print": true, "scan": true,
	}

	operators = map[string]bool{
		"=": true, "+": true, "-": true, "*": true, "/": true,
		"<": true, "<=": true, ">": true, ">=": true,
		"==": true, "!=": true, "=>": true,
	}

	separators = map[string]bool{
		"(": true, ")": true, "{": true, "}": true,
		";": true, ",": true, "[": true, "]": true,
		"$$": true,
	}
)

// IsKeyword reports whether s is a reserved word.
func IsKeyword(s string) bool { return keywords[s] }

// Keywords returns the reserved words in no particular order.
func Keywords() []string {
	out := make([]string, 0, len(keywords))
	for kw := range keywords {
		out = append(out, kw)
	}
	return out
}

// IsOperator reports whether s is an operator lexeme.
func IsOperator(s string) bool { return operators[s] }

// IsSeparator reports whether s is a separator lexeme.
func IsSeparator(s string) bool { return separators[s] }

// classify assigns a kind to a scanned lexeme: reserved sets first, then
// the identifier/integer/real patterns.
func classify(lexeme string) TokenKind {
	switch {
	case keywords[lexeme]:
		return KindKeyword
	case operators[lexeme]:
		return KindOperator
	case separators[lexeme]:
		return KindSeparator
	case isIdentifier(lexeme):
		return KindIdentifier
	case isInteger(lexeme):
		return KindInteger
	case isReal(lexeme):
		return KindReal
	}
	return KindUnknown
}

func isIdentifier(s string) bool {
	if s == "" || !isLetter(rune(s[0])) {
		return false
	}
	for i := 1; i < len(s); i++ {
		r := rune(s[i])
		if !isLetter(r) && !isDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

func isInteger(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(rune(s[i])) {
			return false
		}
	}
	return true
}

func isReal(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return isInteger(s[:i]) && isInteger(s[i+1:])
		}
	}
	return false
}
