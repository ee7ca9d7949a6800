package wire

import (
	"fmt"
	"strings"

	"github.com/chazu/rat25s/compiler"
	"github.com/chazu/rat25s/compiler/hash"
)

// Dump returns a human-readable rendering of the object.
func (o *Object) Dump() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "; Rat25S object v%d\n", o.Version)
	if o.Source != "" {
		fmt.Fprintf(&sb, "; Source: %s\n", o.Source)
	}
	fmt.Fprintf(&sb, "; Hash: %s", hash.String(o.Hash))
	if !o.Verify() {
		sb.WriteString(" [MISMATCH]")
	}
	sb.WriteString("\n")

	if len(o.Symbols) > 0 {
		fmt.Fprintf(&sb, "; Symbols (%d):\n", len(o.Symbols))
		for _, sym := range o.Symbols {
			fmt.Fprintf(&sb, ";   %-15s%-8d%s\n", sym.Name, sym.Address, sym.Type)
		}
	}

	sb.WriteString("\n")
	sb.WriteString(compiler.RenderInstructions(o.Instructions))
	return sb.String()
}
