package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/rat25s/compiler"
)

const docURI = protocol.DocumentUri("file:///prog.rat")

// newTestLSP returns a server and a context whose notifications are
// delivered on the returned channel.
func newTestLSP(t *testing.T) (*LspServer, *glsp.Context, chan protocol.PublishDiagnosticsParams) {
	t.Helper()
	s := NewLSP(compiler.DefaultOptions())
	t.Cleanup(s.worker.Stop)

	notes := make(chan protocol.PublishDiagnosticsParams, 8)
	ctx := &glsp.Context{
		Notify: func(method string, params any) {
			if method == protocol.ServerTextDocumentPublishDiagnostics {
				notes <- params.(protocol.PublishDiagnosticsParams)
			}
		},
	}
	return s, ctx, notes
}

func nextDiagnostics(t *testing.T, notes chan protocol.PublishDiagnosticsParams) protocol.PublishDiagnosticsParams {
	t.Helper()
	select {
	case p := <-notes:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no diagnostics published")
		return protocol.PublishDiagnosticsParams{}
	}
}

func openDoc(t *testing.T, s *LspServer, ctx *glsp.Context, text string) {
	t.Helper()
	require.NoError(t, s.textDocumentDidOpen(ctx, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: docURI, LanguageID: "rat25s", Version: 1, Text: text},
	}))
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestDiagnostics_CleanDocument(t *testing.T) {
	s, ctx, notes := newTestLSP(t)
	openDoc(t, s, ctx, "$$ integer x; $$ x = 5; $$")

	p := nextDiagnostics(t, notes)
	assert.Equal(t, docURI, p.URI)
	assert.Empty(t, p.Diagnostics)
}

func TestDiagnostics_AtOffendingToken(t *testing.T) {
	s, ctx, notes := newTestLSP(t)
	openDoc(t, s, ctx, "$$\ninteger x;\n$$\n  y = 5;\n$$")

	p := nextDiagnostics(t, notes)
	require.Len(t, p.Diagnostics, 1)
	d := p.Diagnostics[0]
	assert.Equal(t, protocol.Range{
		Start: protocol.Position{Line: 3, Character: 2},
		End:   protocol.Position{Line: 3, Character: 3},
	}, d.Range)
	assert.Contains(t, d.Message, "UseBeforeDeclaration")
	require.NotNil(t, d.Severity)
	assert.Equal(t, protocol.DiagnosticSeverityError, *d.Severity)
}

func TestDiagnostics_AtEndOfInput(t *testing.T) {
	s, ctx, notes := newTestLSP(t)
	openDoc(t, s, ctx, "$$ integer i; $$\n{ i = 1;")

	p := nextDiagnostics(t, notes)
	require.Len(t, p.Diagnostics, 1)
	end := protocol.Position{Line: 1, Character: 8}
	assert.Equal(t, protocol.Range{Start: end, End: end}, p.Diagnostics[0].Range)
}

func TestDiagnostics_ChangeAndClose(t *testing.T) {
	s, ctx, notes := newTestLSP(t)
	openDoc(t, s, ctx, "$$ integer x; $$ x = ; $$")
	require.Len(t, nextDiagnostics(t, notes).Diagnostics, 1)

	require.NoError(t, s.textDocumentDidChange(ctx, &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: docURI},
			Version:                2,
		},
		ContentChanges: []any{protocol.TextDocumentContentChangeEventWhole{Text: "$$ integer x; $$ x = 1; $$"}},
	}))
	assert.Empty(t, nextDiagnostics(t, notes).Diagnostics)

	require.NoError(t, s.textDocumentDidClose(ctx, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: docURI},
	}))
	assert.Empty(t, nextDiagnostics(t, notes).Diagnostics)
	assert.Nil(t, s.analysis(docURI))
}

// ---------------------------------------------------------------------------
// Language features
// ---------------------------------------------------------------------------

func TestHover_DeclaredIdentifier(t *testing.T) {
	s, ctx, notes := newTestLSP(t)
	openDoc(t, s, ctx, "$$ integer x, count; $$ count = 5; $$")
	nextDiagnostics(t, notes)

	h, err := s.textDocumentHover(ctx, &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: docURI},
			Position:     protocol.Position{Line: 0, Character: 26},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, h)
	content := h.Contents.(protocol.MarkupContent)
	assert.Equal(t, "**count** `integer`\n\nMemory address: 10001", content.Value)

	h, err = s.textDocumentHover(ctx, &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: docURI},
			Position:     protocol.Position{Line: 0, Character: 1},
		},
	})
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestDefinitionAndReferences(t *testing.T) {
	s, ctx, notes := newTestLSP(t)
	openDoc(t, s, ctx, "$$\ninteger n;\n$$\nn = 1;\nprint(n);\n$$")
	nextDiagnostics(t, notes)

	at := protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: docURI},
		Position:     protocol.Position{Line: 4, Character: 6},
	}

	def, err := s.textDocumentDefinition(ctx, &protocol.DefinitionParams{TextDocumentPositionParams: at})
	require.NoError(t, err)
	loc := def.(protocol.Location)
	assert.Equal(t, protocol.Position{Line: 1, Character: 8}, loc.Range.Start)

	refs, err := s.textDocumentReferences(ctx, &protocol.ReferenceParams{TextDocumentPositionParams: at})
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, protocol.UInteger(3), refs[1].Range.Start.Line)
	assert.Equal(t, protocol.UInteger(4), refs[2].Range.Start.Line)
}

func TestCompletion(t *testing.T) {
	s, ctx, notes := newTestLSP(t)
	text := "$$ integer wins, width; $$ w"
	openDoc(t, s, ctx, text)
	nextDiagnostics(t, notes)

	result, err := s.textDocumentCompletion(ctx, &protocol.CompletionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: docURI},
			Position:     protocol.Position{Line: 0, Character: protocol.UInteger(len(text))},
		},
	})
	require.NoError(t, err)

	var labels []string
	for _, item := range result.([]protocol.CompletionItem) {
		labels = append(labels, item.Label)
	}
	// The document does not compile, so no symbols are known yet.
	assert.Equal(t, []string{"while"}, labels)
}

// ---------------------------------------------------------------------------
// Position helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix(t *testing.T) {
	assert.Equal(t, "cou", extractPrefix("x = cou", protocol.Position{Line: 0, Character: 7}))
	assert.Equal(t, "", extractPrefix("x = ", protocol.Position{Line: 0, Character: 4}))
	assert.Equal(t, "", extractPrefix("", protocol.Position{Line: 3, Character: 0}))
}

func TestTokenRangeAndTokenAt(t *testing.T) {
	tokens := compiler.Tokenize("$$\n  while")
	r := tokenRange(tokens[1])
	assert.Equal(t, protocol.Position{Line: 1, Character: 2}, r.Start)
	assert.Equal(t, protocol.Position{Line: 1, Character: 7}, r.End)

	assert.Equal(t, "while", tokenAt(tokens, protocol.Position{Line: 1, Character: 4}).Lexeme)
	assert.Nil(t, tokenAt(tokens, protocol.Position{Line: 1, Character: 7}))
	assert.Nil(t, tokenAt(tokens, protocol.Position{Line: 0, Character: 5}))
}

func TestEndOfText(t *testing.T) {
	assert.Equal(t, protocol.Position{Line: 0, Character: 0}, endOfText(""))
	assert.Equal(t, protocol.Position{Line: 2, Character: 3}, endOfText("a\nb\nabc"))
}
