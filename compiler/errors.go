package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories. Every error returned by Compile wraps exactly one of
// these and can be tested with errors.Is.
var (
	ErrLexicalAmbiguity     = errors.New("lexical ambiguity")
	ErrSyntax               = errors.New("syntax error")
	ErrDuplicateDeclaration = errors.New("duplicate declaration")
	ErrUseBeforeDeclaration = errors.New("use before declaration")
	ErrInstructionOverflow  = errors.New("instruction overflow")

	// ErrNotFound is returned by SymbolTable.Lookup.
	ErrNotFound = errors.New("identifier not found")

	// Logic errors in code generation. A well-formed parser never surfaces these.
	ErrInvalidPatch  = errors.New("invalid patch")
	ErrUnpatchedJump = errors.New("unpatched jump")
)

// CompileError is the single terminating error of a failed run.
type CompileError struct {
	Err      error  // wraps one of the category errors
	Message  string // human-readable detail
	Expected string // expected token description, empty for semantic errors
	Found    *Token // offending token, nil at end of input
	Index    int    // index of the offending token in the stream
}

func (e *CompileError) Error() string {
	var sb strings.Builder
	sb.WriteString(Category(e.Err))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	fmt.Fprintf(&sb, " (at token index %d: %s)", e.Index, describe(e.Found))
	return sb.String()
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Pos returns the position of the offending token, or the zero Position at
// end of input.
func (e *CompileError) Pos() Position {
	if e.Found == nil {
		return Position{}
	}
	return e.Found.Pos
}

// Category names the error category of err, or "" for nil.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLexicalAmbiguity):
		return "LexicalAmbiguity"
	case errors.Is(err, ErrSyntax):
		return "SyntaxError"
	case errors.Is(err, ErrDuplicateDeclaration):
		return "DuplicateDeclaration"
	case errors.Is(err, ErrUseBeforeDeclaration):
		return "UseBeforeDeclaration"
	case errors.Is(err, ErrInstructionOverflow):
		return "InstructionOverflow"
	}
	return "InternalError"
}

// describe renders a token for diagnostics.
func describe(tok *Token) string {
	if tok == nil {
		return "end of input"
	}
	return fmt.Sprintf("%s '%s' at %s", tok.Kind, tok.Lexeme, tok.Pos)
}
