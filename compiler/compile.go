package compiler

import (
	"fmt"
	"strings"
)

// Options configures one compilation run.
type Options struct {
	// BaseAddress is the address assigned to the first declared identifier.
	BaseAddress int
	// Capacity bounds the instruction stream; zero or negative means DefaultCapacity.
	Capacity int
	// TraceProductions records each recognized production in the trace.
	TraceProductions bool
	// Precedence parses expressions with a term/factor tier, so * and /
	// bind tighter than + and - and unary minus is accepted.
	Precedence bool
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		BaseAddress:      DefaultBaseAddress,
		Capacity:         DefaultCapacity,
		TraceProductions: true,
	}
}

func (o Options) normalize() Options {
	if o.Capacity <= 0 {
		o.Capacity = DefaultCapacity
	}
	return o
}

// Result holds everything a run produced. After a failed run only Tokens
// and Trace are set.
type Result struct {
	Tokens       []Token
	Trace        []string
	Symbols      []Symbol
	Instructions []Instruction
}

// Compile tokenizes and parses source in a fresh run.
func Compile(source string, opts Options) (*Result, error) {
	tokens := Tokenize(source)
	p := NewParser(tokens, opts)
	err := p.Parse()

	res := &Result{Tokens: tokens, Trace: p.Trace()}
	if err != nil {
		return res, err
	}
	res.Symbols = p.Symbols().Symbols()
	res.Instructions = p.Code().Instructions()
	return res, nil
}

// TokenTable renders the token listing.
func (r *Result) TokenTable() string {
	var sb strings.Builder
	sb.WriteString("Token         Lexeme\n")
	sb.WriteString("----------------------\n")
	for _, tok := range r.Tokens {
		sb.WriteString(tok.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// SymbolTable renders the symbol listing in declaration order.
func (r *Result) SymbolTable() string {
	var sb strings.Builder
	sb.WriteString("Identifier      Memory Address     Type\n")
	sb.WriteString("----------------------------------------\n")
	for _, sym := range r.Symbols {
		fmt.Fprintf(&sb, "%-15s%-18d%s\n", sym.Name, sym.Address, sym.Type)
	}
	return sb.String()
}

// Listing renders the assembly listing.
func (r *Result) Listing() string {
	return RenderInstructions(r.Instructions)
}
