package compiler

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for Rat25S
// ---------------------------------------------------------------------------

// Lexer tokenizes Rat25S source code. Block comments are removed before
// scanning, so a comment never separates or produces a token; positions are
// still reported against the original text.
type Lexer struct {
	input string    // original source
	text  string    // source with comments removed
	pos   int       // current position in text
	spans []segment // text offset -> input offset
	lines []int     // input offsets of line starts
}

// segment maps a run of stripped text back to the original input.
type segment struct {
	textStart  int
	inputStart int
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.text, l.spans = stripComments(input)
	l.lines = []int{0}
	for i := 0; i < len(input); i++ {
		if input[i] == '\n' {
			l.lines = append(l.lines, i+1)
		}
	}
	return l
}

// Tokenize scans the whole input and returns the tokens in source order.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		if tok.Kind == KindEOF {
			return tokens
		}
		tokens = append(tokens, tok)
	}
}

// stripComments removes every [* ... *] block, shortest match first. An
// opening [* without a closing *] is left in place and scans as ordinary
// characters.
func stripComments(input string) (string, []segment) {
	var sb strings.Builder
	spans := []segment{{textStart: 0, inputStart: 0}}
	i := 0
	for {
		open := strings.Index(input[i:], "[*")
		if open < 0 {
			break
		}
		open += i
		end := strings.Index(input[open+2:], "*]")
		if end < 0 {
			break
		}
		end += open + 2 + 2
		sb.WriteString(input[i:open])
		i = end
		spans = append(spans, segment{textStart: sb.Len(), inputStart: i})
	}
	sb.WriteString(input[i:])
	return sb.String(), spans
}

// position maps an offset in the stripped text to a source position.
func (l *Lexer) position(textOffset int) Position {
	k := sort.Search(len(l.spans), func(i int) bool {
		return l.spans[i].textStart > textOffset
	}) - 1
	offset := l.spans[k].inputStart + (textOffset - l.spans[k].textStart)

	line := sort.Search(len(l.lines), func(i int) bool {
		return l.lines[i] > offset
	}) - 1
	return Position{
		Offset: offset,
		Line:   line + 1,
		Column: utf8.RuneCountInString(l.input[l.lines[line]:offset]) + 1,
	}
}

// peekAt returns the byte at pos+n, or 0 past the end.
func (l *Lexer) peekAt(n int) byte {
	if l.pos+n >= len(l.text) {
		return 0
	}
	return l.text[l.pos+n]
}

// NextToken returns the next token, or a KindEOF token at end of input.
func (l *Lexer) NextToken() Token {
	l.skipUnmatched()

	start := l.pos
	pos := l.position(start)
	ch := l.peekAt(0)

	switch {
	case l.pos >= len(l.text):
		return Token{Kind: KindEOF, Pos: pos}

	case ch == '$' && l.peekAt(1) == '$':
		l.pos += 2

	case ch == '=' && l.peekAt(1) == '>':
		l.pos += 2

	case isLetter(rune(ch)):
		l.pos++
		for isLetter(rune(l.peekAt(0))) || isDigit(rune(l.peekAt(0))) || l.peekAt(0) == '_' {
			l.pos++
		}

	case isDigit(rune(ch)):
		l.readNumber()

	case strings.IndexByte("=+-*/<>!", ch) >= 0:
		l.pos++
		if l.peekAt(0) == '=' {
			l.pos++
		}

	case strings.IndexByte("();,{}[]", ch) >= 0:
		l.pos++
	}

	lexeme := l.text[start:l.pos]
	return Token{Kind: classify(lexeme), Lexeme: lexeme, Pos: pos}
}

// readNumber reads an integer, or a real when a decimal point is followed
// by at least one digit.
func (l *Lexer) readNumber() {
	for isDigit(rune(l.peekAt(0))) {
		l.pos++
	}
	if l.peekAt(0) == '.' && isDigit(rune(l.peekAt(1))) {
		l.pos++
		for isDigit(rune(l.peekAt(0))) {
			l.pos++
		}
	}
}

// startsToken reports whether some token pattern can begin at the current
// position.
func (l *Lexer) startsToken() bool {
	ch := l.peekAt(0)
	switch {
	case ch == '$':
		return l.peekAt(1) == '$'
	case isLetter(rune(ch)), isDigit(rune(ch)):
		return true
	default:
		return strings.IndexByte("=+-*/<>!();,{}[]", ch) >= 0
	}
}

// skipUnmatched skips whitespace and any character no token pattern
// matches, such as '@' or a lone '$'.
func (l *Lexer) skipUnmatched() {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.text) || l.startsToken() {
			return
		}
		_, size := utf8.DecodeRuneInString(l.text[l.pos:])
		l.pos += size
	}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.text) {
		switch l.text[l.pos] {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			l.pos++
		default:
			return
		}
	}
}

// Helper functions

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
