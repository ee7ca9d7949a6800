package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser with inline code generation
// ---------------------------------------------------------------------------

// Parser recognizes a Rat25S program from a token slice. Declarations and
// lookups go to its SymbolTable and instructions to its InstructionStream
// while productions are recognized; both belong to this Parser alone, so
// separate runs never share state. Parsing stops at the first error.
type Parser struct {
	tokens []Token
	pos    int // index of the current token
	opts   Options

	symbols *SymbolTable
	code    *InstructionStream
	trace   []string
}

// NewParser creates a parser with a fresh symbol table and instruction stream.
func NewParser(tokens []Token, opts Options) *Parser {
	opts = opts.normalize()
	return &Parser{
		tokens:  tokens,
		opts:    opts,
		symbols: NewSymbolTable(opts.BaseAddress),
		code:    NewInstructionStream(opts.Capacity),
	}
}

// Symbols returns the run's symbol table.
func (p *Parser) Symbols() *SymbolTable {
	return p.symbols
}

// Code returns the run's instruction stream.
func (p *Parser) Code() *InstructionStream {
	return p.code
}

// Trace returns production announcements and matched tokens in traversal order.
func (p *Parser) Trace() []string {
	return p.trace
}

// Parse recognizes a complete program.
func (p *Parser) Parse() error {
	if err := p.parseProgram(); err != nil {
		return err
	}
	if err := p.code.Verify(); err != nil {
		return p.wrap(err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Token helpers
// ---------------------------------------------------------------------------

// cur returns the current token, or nil at end of input.
func (p *Parser) cur() *Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos]
}

// peek returns the token after the current one without consuming anything.
func (p *Parser) peek() *Token {
	if p.pos+1 >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos+1]
}

// at reports whether the current token has the given kind and lexeme.
func (p *Parser) at(kind TokenKind, lexeme string) bool {
	tok := p.cur()
	return tok != nil && tok.Is(kind, lexeme)
}

// atKind reports whether the current token has the given kind.
func (p *Parser) atKind(kind TokenKind) bool {
	tok := p.cur()
	return tok != nil && tok.Kind == kind
}

// match consumes the current token if it has the expected kind and, when
// lexeme is non-empty, the expected lexeme.
func (p *Parser) match(kind TokenKind, lexeme string) error {
	tok := p.cur()
	if tok != nil && tok.Kind == kind && (lexeme == "" || tok.Lexeme == lexeme) {
		p.trace = append(p.trace, fmt.Sprintf("Token: %s Lexeme: %s", title(tok.Kind.String()), tok.Lexeme))
		p.pos++
		return nil
	}

	expected := kind.String()
	if lexeme != "" {
		expected += " '" + lexeme + "'"
	}
	msg := fmt.Sprintf("expected %s, found %s", expected, describe(tok))
	if p.pos == 0 && lexeme == "$$" {
		msg += ". The program must begin with the '$$' delimiter."
	}
	return p.syntaxError(expected, msg)
}

// announce records the production being recognized.
func (p *Parser) announce(rule string) {
	if p.opts.TraceProductions {
		p.trace = append(p.trace, rule)
	}
}

// syntaxError reports a mismatch at the current token. An unknown token is
// reported as a lexical ambiguity, since no production accepts it.
func (p *Parser) syntaxError(expected, msg string) *CompileError {
	err := ErrSyntax
	if p.atKind(KindUnknown) {
		err = ErrLexicalAmbiguity
	}
	return &CompileError{Err: err, Message: msg, Expected: expected, Found: p.cur(), Index: p.pos}
}

// semanticError reports a declaration error at the current token.
func (p *Parser) semanticError(err error, format string, args ...interface{}) *CompileError {
	return &CompileError{Err: err, Message: fmt.Sprintf(format, args...), Found: p.cur(), Index: p.pos}
}

// wrap attaches the current position to an error from the symbol table or
// instruction stream.
func (p *Parser) wrap(err error) *CompileError {
	return &CompileError{Err: err, Message: err.Error(), Found: p.cur(), Index: p.pos}
}

// emit appends an instruction, converting capacity overflow into a CompileError.
func (p *Parser) emit(op Opcode, comment string, operands ...int) (int, error) {
	pos, err := p.code.EmitComment(op, comment, operands...)
	if err != nil {
		return 0, p.wrap(err)
	}
	return pos, nil
}

// lookup resolves an identifier that must already be declared.
func (p *Parser) lookup(name string) (Symbol, error) {
	sym, err := p.symbols.Lookup(name)
	if err != nil {
		return Symbol{}, p.semanticError(ErrUseBeforeDeclaration, "identifier '%s' used without declaration", name)
	}
	return sym, nil
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ---------------------------------------------------------------------------
// Program and declarations
// ---------------------------------------------------------------------------

const programDelimiter = "$$"

// parseProgram parses $$ <Opt Declaration List> $$ <Statement List> $$
func (p *Parser) parseProgram() error {
	p.announce("<Rat25S> -> $$ <Opt Declaration List> $$ <Statement List> $$")

	if err := p.match(KindSeparator, programDelimiter); err != nil {
		return err
	}
	if err := p.skipDelimiterRun(); err != nil {
		return err
	}
	if err := p.parseOptDeclarationList(); err != nil {
		return err
	}
	if p.at(KindSeparator, programDelimiter) {
		if err := p.match(KindSeparator, programDelimiter); err != nil {
			return err
		}
		if err := p.skipDelimiters(); err != nil {
			return err
		}
	}
	if err := p.parseStatementList(programDelimiter); err != nil {
		return err
	}
	if err := p.match(KindSeparator, programDelimiter); err != nil {
		return err
	}
	if tok := p.cur(); tok != nil {
		return p.syntaxError("end of input", fmt.Sprintf("expected end of input after the closing '$$', found %s", describe(tok)))
	}
	return nil
}

// skipDelimiterRun consumes a run of repeated delimiters after the opening
// one, but only when another token follows the run. A run that reaches end
// of input still has to supply the middle and closing delimiters.
func (p *Parser) skipDelimiterRun() error {
	end := p.pos
	for end < len(p.tokens) && p.tokens[end].Is(KindSeparator, programDelimiter) {
		end++
	}
	if end == p.pos || end >= len(p.tokens) {
		return nil
	}
	for p.pos < end {
		if err := p.match(KindSeparator, programDelimiter); err != nil {
			return err
		}
	}
	return nil
}

// skipDelimiters consumes repeated delimiters after the middle one, always
// leaving the last one in the stream for the closing match.
func (p *Parser) skipDelimiters() error {
	for p.at(KindSeparator, programDelimiter) && p.peek() != nil {
		if err := p.match(KindSeparator, programDelimiter); err != nil {
			return err
		}
	}
	return nil
}

// isQualifier reports whether tok starts a declaration.
func isQualifier(tok *Token) bool {
	return tok != nil && tok.Kind == KindKeyword && (tok.Lexeme == "integer" || tok.Lexeme == "boolean")
}

// parseOptDeclarationList parses <Declaration List> | ε
func (p *Parser) parseOptDeclarationList() error {
	p.announce("<Opt Declaration List> -> <Declaration List> | ε")
	if !isQualifier(p.cur()) {
		p.announce("<Opt Declaration List> -> ε")
		return nil
	}
	return p.parseDeclarationList()
}

// parseDeclarationList parses <Declaration> ; { <Declaration> ; }
func (p *Parser) parseDeclarationList() error {
	p.announce("<Declaration List> -> <Declaration> ; | <Declaration> ; <Declaration List>")
	for {
		if err := p.parseDeclaration(); err != nil {
			return err
		}
		if err := p.match(KindSeparator, ";"); err != nil {
			return err
		}
		if !isQualifier(p.cur()) {
			return nil
		}
	}
}

// parseDeclaration parses <Qualifier> <IDs>
func (p *Parser) parseDeclaration() error {
	p.announce("<Declaration> -> <Qualifier> <IDs>")
	tok := p.cur()
	if err := p.parseQualifier(); err != nil {
		return err
	}
	return p.parseIDs(tok.Lexeme)
}

// parseQualifier parses integer | boolean
func (p *Parser) parseQualifier() error {
	p.announce("<Qualifier> -> integer | boolean")
	if !isQualifier(p.cur()) {
		return p.syntaxError("type qualifier", fmt.Sprintf("expected type qualifier, found %s", describe(p.cur())))
	}
	return p.match(KindKeyword, "")
}

// parseIDs parses <Identifier> { , <Identifier> }. With a non-empty
// declType each identifier is declared; otherwise each must already exist.
func (p *Parser) parseIDs(declType string) error {
	p.announce("<IDs> -> <Identifier> | <Identifier> , <IDs>")
	for {
		tok := p.cur()
		if tok == nil || tok.Kind != KindIdentifier {
			return p.syntaxError("identifier", fmt.Sprintf("expected identifier, found %s", describe(tok)))
		}
		if declType != "" {
			if _, err := p.symbols.Declare(tok.Lexeme, declType); err != nil {
				return p.semanticError(ErrDuplicateDeclaration, "identifier '%s' is already declared", tok.Lexeme)
			}
		} else if _, err := p.lookup(tok.Lexeme); err != nil {
			return err
		}
		if err := p.match(KindIdentifier, ""); err != nil {
			return err
		}
		if !p.at(KindSeparator, ",") {
			return nil
		}
		if err := p.match(KindSeparator, ","); err != nil {
			return err
		}
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// statementKind enumerates the statement forms a lookahead token can start.
type statementKind int

const (
	stmtInvalid statementKind = iota
	stmtCompound
	stmtAssign
	stmtIf
	stmtWhile
	stmtReturn
	stmtPrint
	stmtScan
)

var statementKeywords = map[string]statementKind{
	"if":     stmtIf,
	"while":  stmtWhile,
	"return": stmtReturn,
	"print":  stmtPrint,
	"scan":   stmtScan,
}

// statementKindOf classifies the statement started by tok.
func statementKindOf(tok *Token) statementKind {
	if tok == nil {
		return stmtInvalid
	}
	switch tok.Kind {
	case KindSeparator:
		if tok.Lexeme == "{" {
			return stmtCompound
		}
	case KindKeyword:
		return statementKeywords[tok.Lexeme]
	case KindIdentifier:
		return stmtAssign
	}
	return stmtInvalid
}

// parseStatementList parses statements until a terminator lexeme or end of input.
func (p *Parser) parseStatementList(terminators ...string) error {
	p.announce("<Statement List> -> <Statement> | <Statement> <Statement List>")
	for {
		tok := p.cur()
		if tok == nil {
			return nil
		}
		for _, t := range terminators {
			if tok.Lexeme == t {
				return nil
			}
		}
		if err := p.parseStatement(); err != nil {
			return err
		}
	}
}

// parseStatement dispatches on the lookahead token.
func (p *Parser) parseStatement() error {
	switch statementKindOf(p.cur()) {
	case stmtCompound:
		return p.parseCompound()
	case stmtAssign:
		return p.parseAssign()
	case stmtIf:
		return p.parseIf()
	case stmtWhile:
		return p.parseWhile()
	case stmtReturn:
		return p.parseReturn()
	case stmtPrint:
		return p.parsePrint()
	case stmtScan:
		return p.parseScan()
	}

	tok := p.cur()
	if tok != nil && tok.Kind == KindKeyword {
		return p.syntaxError("statement", fmt.Sprintf("unexpected keyword in statement: %s", tok.Lexeme))
	}
	return p.syntaxError("statement", fmt.Sprintf("unexpected token in statement: %s", describe(tok)))
}

// parseCompound parses { <Statement List> }
func (p *Parser) parseCompound() error {
	p.announce("<Compound> -> { <Statement List> }")
	if err := p.match(KindSeparator, "{"); err != nil {
		return err
	}
	if err := p.parseStatementList("}"); err != nil {
		return err
	}
	return p.match(KindSeparator, "}")
}

// parseAssign parses <Identifier> = <Expression> ;
func (p *Parser) parseAssign() error {
	p.announce("<Assign> -> <Identifier> = <Expression> ;")
	name := p.cur().Lexeme
	sym, err := p.lookup(name)
	if err != nil {
		return err
	}
	if err := p.match(KindIdentifier, ""); err != nil {
		return err
	}
	if err := p.match(KindOperator, "="); err != nil {
		return err
	}
	if err := p.parseExpression(); err != nil {
		return err
	}
	if err := p.match(KindSeparator, ";"); err != nil {
		return err
	}
	_, err = p.emit(OpSto, name+" = <expr>", sym.Address)
	return err
}

// parseScan parses scan ( <Identifier> ) ;
func (p *Parser) parseScan() error {
	p.announce("<Scan> -> scan ( <Identifier> ) ;")
	if err := p.match(KindKeyword, "scan"); err != nil {
		return err
	}
	if err := p.match(KindSeparator, "("); err != nil {
		return err
	}
	if !p.atKind(KindIdentifier) {
		return p.syntaxError("identifier", fmt.Sprintf("expected identifier, found %s", describe(p.cur())))
	}
	sym, err := p.lookup(p.cur().Lexeme)
	if err != nil {
		return err
	}
	if err := p.match(KindIdentifier, ""); err != nil {
		return err
	}
	if err := p.match(KindSeparator, ")"); err != nil {
		return err
	}
	if err := p.match(KindSeparator, ";"); err != nil {
		return err
	}
	if _, err := p.emit(OpSin, ""); err != nil {
		return err
	}
	_, err = p.emit(OpPopM, "", sym.Address)
	return err
}

// parsePrint parses print ( <Expression> ) ;
func (p *Parser) parsePrint() error {
	p.announce("<Print> -> print ( <Expression> ) ;")
	if err := p.match(KindKeyword, "print"); err != nil {
		return err
	}
	if err := p.match(KindSeparator, "("); err != nil {
		return err
	}
	if err := p.parseExpression(); err != nil {
		return err
	}
	if err := p.match(KindSeparator, ")"); err != nil {
		return err
	}
	if err := p.match(KindSeparator, ";"); err != nil {
		return err
	}
	_, err := p.emit(OpSout, "")
	return err
}

// parseWhile parses while ( <Condition> ) { <Statement List> } endwhile
//
// Code shape:
//
//	<condition>
//	L: LABEL
//	   JMP0 exit   ; reserved, patched once the body is emitted
//	   <body>
//	   JMP  L
//	exit:
func (p *Parser) parseWhile() error {
	p.announce("<While> -> while ( <Condition> ) { <Statement List> } endwhile")
	if err := p.match(KindKeyword, "while"); err != nil {
		return err
	}
	if err := p.match(KindSeparator, "("); err != nil {
		return err
	}
	if err := p.parseCondition(); err != nil {
		return err
	}
	if err := p.match(KindSeparator, ")"); err != nil {
		return err
	}

	label, err := p.emit(OpLabel, "")
	if err != nil {
		return err
	}
	exit, err := p.code.Reserve(OpJmp0)
	if err != nil {
		return p.wrap(err)
	}

	if err := p.match(KindSeparator, "{"); err != nil {
		return err
	}
	if err := p.parseStatementList("}"); err != nil {
		return err
	}
	if err := p.match(KindSeparator, "}"); err != nil {
		return err
	}

	if _, err := p.emit(OpJmp, "", label); err != nil {
		return err
	}
	if err := p.code.Patch(exit, OpJmp0, p.code.PC()); err != nil {
		return p.wrap(err)
	}

	return p.match(KindKeyword, "endwhile")
}

// parseIf parses if ( <Condition> ) <Statement> [ else <Statement> ] endif
//
// Only the condition's comparison is emitted; no jumps skip either branch.
func (p *Parser) parseIf() error {
	p.announce("<If> -> if ( <Condition> ) <Statement> [ else <Statement> ] endif")
	if err := p.match(KindKeyword, "if"); err != nil {
		return err
	}
	if err := p.match(KindSeparator, "("); err != nil {
		return err
	}
	if err := p.parseCondition(); err != nil {
		return err
	}
	if err := p.match(KindSeparator, ")"); err != nil {
		return err
	}
	if err := p.parseStatement(); err != nil {
		return err
	}
	if p.at(KindKeyword, "else") {
		if err := p.match(KindKeyword, "else"); err != nil {
			return err
		}
		if err := p.parseStatement(); err != nil {
			return err
		}
	}
	return p.match(KindKeyword, "endif")
}

// parseReturn parses return [ <Expression> ] ;
func (p *Parser) parseReturn() error {
	p.announce("<Return> -> return [ <Expression> ] ;")
	if err := p.match(KindKeyword, "return"); err != nil {
		return err
	}
	if p.cur() != nil && !p.at(KindSeparator, ";") {
		if err := p.parseExpression(); err != nil {
			return err
		}
	}
	return p.match(KindSeparator, ";")
}

// ---------------------------------------------------------------------------
// Conditions and expressions
// ---------------------------------------------------------------------------

var relops = map[string]Opcode{
	"<":  OpCmpLT,
	">":  OpCmpGT,
	"==": OpCmpEQ,
	"!=": OpCmpNE,
	"<=": OpCmpLE,
	">=": OpCmpGE,
}

var arithmetic = map[string]Opcode{
	"+": OpAdd,
	"-": OpSub,
	"*": OpMul,
	"/": OpDiv,
}

// termOps are the opcodes of the precedence tier's multiplicative operators.
var termOps = map[string]Opcode{
	"*": OpMulTerm,
	"/": OpDivTerm,
}

// parseCondition parses <Expression> <Relop> <Expression>
func (p *Parser) parseCondition() error {
	p.announce("<Condition> -> <Expression> <Relop> <Expression>")
	if err := p.parseExpression(); err != nil {
		return err
	}

	tok := p.cur()
	if tok == nil || tok.Kind != KindOperator {
		return p.syntaxError("relational operator", fmt.Sprintf("expected relational operator, found %s", describe(tok)))
	}
	op, ok := relops[tok.Lexeme]
	if !ok {
		return p.syntaxError("relational operator", fmt.Sprintf("expected relational operator, found %s", describe(tok)))
	}
	relop := tok.Lexeme
	if err := p.match(KindOperator, ""); err != nil {
		return err
	}

	if err := p.parseExpression(); err != nil {
		return err
	}
	_, err := p.emit(op, "compare "+relop)
	return err
}

// arithmeticOp returns the opcode of the current token when it is one of ops.
func (p *Parser) arithmeticOp(ops ...string) (string, Opcode, bool) {
	tok := p.cur()
	if tok == nil || tok.Kind != KindOperator {
		return "", 0, false
	}
	for _, o := range ops {
		if tok.Lexeme == o {
			return o, arithmetic[o], true
		}
	}
	return "", 0, false
}

// parseExpression parses <Primary> { (+|-|*|/) <Expression> }
//
// Each operator's right operand is a full expression, so operators
// associate to the right with no precedence between them. With
// Options.Precedence the term/factor tier is used instead.
func (p *Parser) parseExpression() error {
	if p.opts.Precedence {
		return p.parseSum()
	}

	p.announce("<Expression> -> <Primary> { (+|-|*|/) <Expression> }")
	if err := p.parsePrimary(); err != nil {
		return err
	}
	for {
		_, op, ok := p.arithmeticOp("+", "-", "*", "/")
		if !ok {
			return nil
		}
		if err := p.match(KindOperator, ""); err != nil {
			return err
		}
		if err := p.parseExpression(); err != nil {
			return err
		}
		if _, err := p.emit(op, ""); err != nil {
			return err
		}
	}
}

// parseSum parses <Term> { (+|-) <Term> }
func (p *Parser) parseSum() error {
	p.announce("<Expression> -> <Term> { (+|-) <Term> }")
	if err := p.parseTerm(); err != nil {
		return err
	}
	for {
		_, op, ok := p.arithmeticOp("+", "-")
		if !ok {
			return nil
		}
		if err := p.match(KindOperator, ""); err != nil {
			return err
		}
		if err := p.parseTerm(); err != nil {
			return err
		}
		if _, err := p.emit(op, ""); err != nil {
			return err
		}
	}
}

// parseTerm parses <Factor> { (*|/) <Factor> }
func (p *Parser) parseTerm() error {
	p.announce("<Term> -> <Factor> { (*|/) <Factor> }")
	if err := p.parseFactor(); err != nil {
		return err
	}
	for {
		lexeme, _, ok := p.arithmeticOp("*", "/")
		if !ok {
			return nil
		}
		if err := p.match(KindOperator, ""); err != nil {
			return err
		}
		if err := p.parseFactor(); err != nil {
			return err
		}
		if _, err := p.emit(termOps[lexeme], "op "+lexeme); err != nil {
			return err
		}
	}
}

// parseFactor parses - <Primary> | <Primary>
func (p *Parser) parseFactor() error {
	if !p.at(KindOperator, "-") {
		return p.parsePrimary()
	}
	p.announce("<Factor> -> - <Primary>")
	if err := p.match(KindOperator, "-"); err != nil {
		return err
	}
	if err := p.parsePrimary(); err != nil {
		return err
	}
	_, err := p.emit(OpNeg, "unary -")
	return err
}

// parsePrimary parses an identifier, call, literal or parenthesized expression.
func (p *Parser) parsePrimary() error {
	tok := p.cur()
	if tok == nil {
		return p.syntaxError("expression", "unexpected end of input in expression")
	}

	switch {
	case tok.Kind == KindIdentifier:
		if next := p.peek(); next != nil && next.Is(KindSeparator, "(") {
			return p.parseCall()
		}
		sym, err := p.lookup(tok.Lexeme)
		if err != nil {
			return err
		}
		if err := p.match(KindIdentifier, ""); err != nil {
			return err
		}
		_, err = p.emit(OpPushM, "", sym.Address)
		return err

	case tok.Kind == KindInteger:
		value, err := strconv.Atoi(tok.Lexeme)
		if err != nil {
			return p.syntaxError("integer", fmt.Sprintf("integer literal %s out of range", tok.Lexeme))
		}
		if err := p.match(KindInteger, ""); err != nil {
			return err
		}
		_, err = p.emit(OpPushI, "", value)
		return err

	case tok.Kind == KindReal:
		// Reals are recognized but the instruction set has no real push.
		return p.match(KindReal, "")

	case tok.Is(KindKeyword, "true"), tok.Is(KindKeyword, "false"):
		value := 0
		if tok.Lexeme == "true" {
			value = 1
		}
		if err := p.match(KindKeyword, ""); err != nil {
			return err
		}
		_, err := p.emit(OpPushI, "", value)
		return err

	case tok.Is(KindSeparator, "("):
		if err := p.match(KindSeparator, "("); err != nil {
			return err
		}
		if err := p.parseExpression(); err != nil {
			return err
		}
		return p.match(KindSeparator, ")")
	}

	return p.syntaxError("expression", fmt.Sprintf("expected expression, found %s", describe(tok)))
}

// parseCall parses <Identifier> ( <IDs> ). Calls emit no instructions;
// every argument must be a declared identifier.
func (p *Parser) parseCall() error {
	if err := p.match(KindIdentifier, ""); err != nil {
		return err
	}
	if err := p.match(KindSeparator, "("); err != nil {
		return err
	}
	if err := p.parseIDs(""); err != nil {
		return err
	}
	return p.match(KindSeparator, ")")
}
