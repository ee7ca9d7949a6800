package driver

import (
	"fmt"
	"io"
	"strings"

	"github.com/chazu/rat25s/compiler"
)

const rule = "========================================"

// WriteTranscript renders the run of one case: the token table, the parse
// trace and, on success, the symbol table and assembly listing. A failed run
// ends the parsing output with the error and omits both tables.
func WriteTranscript(w io.Writer, name string, res *compiler.Result, runErr error) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "\n=== Running Test Case: %s ===\n\n", name)

	sb.WriteString("Tokens:\n")
	sb.WriteString(res.TokenTable())
	sb.WriteString("\n")

	sb.WriteString("Parsing Output:\n")
	for _, line := range res.Trace {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	if runErr != nil {
		sb.WriteString(runErr.Error())
		sb.WriteString("\n\n")
		sb.WriteString("\n" + rule + "\n\n")
		_, err := io.WriteString(w, sb.String())
		return err
	}
	sb.WriteString("\nParsing complete.\n\n\n")

	sb.WriteString("\nSymbol Table:\n")
	sb.WriteString(res.SymbolTable())

	sb.WriteString("\nAssembly Listing:\n")
	sb.WriteString(res.Listing())

	sb.WriteString("\n" + rule + "\n\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

// writeMissing renders the notice for a case whose source cannot be read.
func writeMissing(w io.Writer, name, source string) error {
	_, err := fmt.Fprintf(w, "\n=== Running Test Case: %s ===\n\nError: %s not found. Skipping...\n\n", name, source)
	return err
}
