// Package server implements the Rat25S language server.
package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/rat25s/compiler"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "rat25s-lsp"

var log = commonlog.GetLogger("rat25s.lsp")

// LspServer compiles open documents and reports the first error of each as
// a diagnostic. Analyses are cached on an AnalysisWorker.
type LspServer struct {
	worker *AnalysisWorker

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server compiling documents with opts.
func NewLSP(opts compiler.Options) *LspServer {
	s := &LspServer{
		worker:  NewAnalysisWorker(opts),
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)
	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	defer s.worker.Stop()
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("Rat25S LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	s.worker.Do(func(c *Cache) interface{} {
		c.Forget(uri)
		return nil
	})

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Language features ---

// analysis returns the cached analysis of uri.
func (s *LspServer) analysis(uri protocol.DocumentUri) *Analysis {
	result, err := s.worker.Do(func(c *Cache) interface{} {
		a, ok := c.Get(uri)
		if !ok {
			return nil
		}
		return a
	})
	if err != nil || result == nil {
		return nil
	}
	return result.(*Analysis)
}

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	uri := params.TextDocument.URI

	s.mu.Lock()
	text, ok := s.docs[string(uri)]
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}

	a := s.analysis(uri)
	if a == nil {
		return nil, nil
	}
	return complete(a, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	a := s.analysis(params.TextDocument.URI)
	if a == nil {
		return nil, nil
	}
	return hover(a, params.Position), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	a := s.analysis(uri)
	if a == nil {
		return nil, nil
	}

	refs := references(a, params.Position)
	if len(refs) == 0 {
		return nil, nil
	}
	return protocol.Location{URI: uri, Range: tokenRange(refs[0])}, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	a := s.analysis(uri)
	if a == nil {
		return nil, nil
	}

	var locations []protocol.Location
	for _, tok := range references(a, params.Position) {
		locations = append(locations, protocol.Location{URI: uri, Range: tokenRange(tok)})
	}
	return locations, nil
}

// complete offers keywords and declared identifiers starting with prefix.
func complete(a *Analysis, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem

	keywordKind := protocol.CompletionItemKindKeyword
	var keywords []string
	for _, kw := range compiler.Keywords() {
		if strings.HasPrefix(kw, prefix) {
			keywords = append(keywords, kw)
		}
	}
	sort.Strings(keywords)
	for _, kw := range keywords {
		items = append(items, protocol.CompletionItem{Label: kw, Kind: &keywordKind})
	}

	variableKind := protocol.CompletionItemKindVariable
	for _, sym := range a.Symbols {
		if strings.HasPrefix(sym.Name, prefix) {
			detail := sym.Type
			items = append(items, protocol.CompletionItem{Label: sym.Name, Kind: &variableKind, Detail: &detail})
		}
	}
	return items
}

// hover describes the declared identifier under pos.
func hover(a *Analysis, pos protocol.Position) *protocol.Hover {
	tok := tokenAt(a.Result.Tokens, pos)
	if tok == nil || tok.Kind != compiler.KindIdentifier {
		return nil
	}
	for _, sym := range a.Symbols {
		if sym.Name != tok.Lexeme {
			continue
		}
		r := tokenRange(*tok)
		return &protocol.Hover{
			Contents: protocol.MarkupContent{
				Kind:  protocol.MarkupKindMarkdown,
				Value: fmt.Sprintf("**%s** `%s`\n\nMemory address: %d", sym.Name, sym.Type, sym.Address),
			},
			Range: &r,
		}
	}
	return nil
}

// references returns every identifier token with the same lexeme as the
// one under pos, in source order. The first is the declaration.
func references(a *Analysis, pos protocol.Position) []compiler.Token {
	tok := tokenAt(a.Result.Tokens, pos)
	if tok == nil || tok.Kind != compiler.KindIdentifier {
		return nil
	}
	var refs []compiler.Token
	for _, t := range a.Result.Tokens {
		if t.Kind == compiler.KindIdentifier && t.Lexeme == tok.Lexeme {
			refs = append(refs, t)
		}
	}
	return refs
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	result, err := s.worker.Do(func(c *Cache) interface{} {
		return c.Analyze(uri, text)
	})
	if err != nil {
		log.Errorf("analyze %s: %s", uri, err)
		return
	}

	diagnostics := diagnose(result.(*Analysis))
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// diagnose converts the analysis error, if any, into one diagnostic at the
// offending token, or at the end of the document when input ran out.
func diagnose(a *Analysis) []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}
	if a.Err == nil {
		return diagnostics
	}

	var rng protocol.Range
	var ce *compiler.CompileError
	if errors.As(a.Err, &ce) && ce.Found != nil {
		rng = tokenRange(*ce.Found)
	} else {
		end := endOfText(a.Text)
		rng = protocol.Range{Start: end, End: end}
	}

	severity := protocol.DiagnosticSeverityError
	source := lspName
	return append(diagnostics, protocol.Diagnostic{
		Range:    rng,
		Severity: &severity,
		Source:   &source,
		Message:  a.Err.Error(),
	})
}

// --- Position helpers ---

// tokenRange converts a token's 1-based position into an LSP range.
func tokenRange(tok compiler.Token) protocol.Range {
	start := protocol.Position{
		Line:      protocol.UInteger(tok.Pos.Line - 1),
		Character: protocol.UInteger(tok.Pos.Column - 1),
	}
	end := start
	end.Character += protocol.UInteger(utf8.RuneCountInString(tok.Lexeme))
	return protocol.Range{Start: start, End: end}
}

// tokenAt returns the token covering pos.
func tokenAt(tokens []compiler.Token, pos protocol.Position) *compiler.Token {
	for i := range tokens {
		r := tokenRange(tokens[i])
		if r.Start.Line == pos.Line && r.Start.Character <= pos.Character && pos.Character < r.End.Character {
			return &tokens[i]
		}
	}
	return nil
}

func endOfText(text string) protocol.Position {
	lines := strings.Split(text, "\n")
	last := lines[len(lines)-1]
	return protocol.Position{
		Line:      protocol.UInteger(len(lines) - 1),
		Character: protocol.UInteger(utf8.RuneCountInString(last)),
	}
}

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			start--
		} else {
			break
		}
	}

	if start == col {
		return ""
	}

	return line[start:col]
}

func boolPtr(b bool) *bool {
	return &b
}
