package compiler

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileTables(t *testing.T) {
	res, err := Compile("$$ integer x; boolean done; $$ x = 5; $$", DefaultOptions())
	require.NoError(t, err)

	tokens := strings.Split(strings.TrimRight(res.TokenTable(), "\n"), "\n")
	assert.Equal(t, "Token         Lexeme", tokens[0])
	assert.Equal(t, "----------------------", tokens[1])
	assert.Equal(t, "separator  $$", tokens[2])
	assert.Equal(t, "keyword    integer", tokens[3])
	assert.Len(t, tokens, 2+len(res.Tokens))

	symbols := strings.Split(strings.TrimRight(res.SymbolTable(), "\n"), "\n")
	assert.Equal(t, []string{
		"Identifier      Memory Address     Type",
		"----------------------------------------",
		"x              10000             integer",
		"done           10001             boolean",
	}, symbols)

	assert.Equal(t,
		"[ 1]   PUSHI  5           \n"+
			"[ 2]   STO    10000         ; x = <expr>\n",
		res.Listing())
}

func TestCompileFailureKeepsTokensOnly(t *testing.T) {
	res, err := Compile("$$ integer x; $$ y = 1; $$", DefaultOptions())
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Len(t, res.Tokens, 10)
	assert.NotEmpty(t, res.Trace)
	assert.Nil(t, res.Symbols)
	assert.Nil(t, res.Instructions)
}

func TestCompileRunsAreIndependent(t *testing.T) {
	src := "$$ integer a; $$ a = 1; $$"
	first, err := Compile(src, DefaultOptions())
	require.NoError(t, err)

	// A failing run in between must not leak declarations or instructions.
	_, err = Compile("$$ integer a, b; $$ b = 2; c = 1; $$", DefaultOptions())
	require.Error(t, err)

	second, err := Compile(src, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, first.Symbols, second.Symbols)
	assert.Equal(t, first.Instructions, second.Instructions)
	assert.Equal(t, first.Trace, second.Trace)
}

func TestCompileZeroCapacityUsesDefault(t *testing.T) {
	opts := DefaultOptions()
	opts.Capacity = 0
	_, err := Compile("$$ integer a; $$ a = 1; $$", opts)
	assert.NoError(t, err)
}

func TestCategory(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrLexicalAmbiguity, "LexicalAmbiguity"},
		{&CompileError{Err: ErrSyntax}, "SyntaxError"},
		{fmt.Errorf("wrapped: %w", &CompileError{Err: ErrDuplicateDeclaration}), "DuplicateDeclaration"},
		{ErrUseBeforeDeclaration, "UseBeforeDeclaration"},
		{ErrInstructionOverflow, "InstructionOverflow"},
		{ErrUnpatchedJump, "InternalError"},
		{errors.New("other"), "InternalError"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Category(tc.err))
	}
}

func TestCompileErrorAtEndOfInput(t *testing.T) {
	ce := &CompileError{Err: ErrSyntax, Message: "expected separator '$$', found end of input", Index: 1}
	assert.Equal(t, Position{}, ce.Pos())
	assert.Equal(t, "SyntaxError: expected separator '$$', found end of input (at token index 1: end of input)", ce.Error())
	assert.True(t, errors.Is(ce, ErrSyntax))
}
