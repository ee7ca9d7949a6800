// Package wire encodes compiled Rat25S programs as object files. An object
// carries the source name, the content fingerprint, the symbol table and the
// instruction listing, using canonical CBOR so equal programs encode to
// equal bytes.
package wire

import (
	"github.com/chazu/rat25s/compiler"
	"github.com/chazu/rat25s/compiler/hash"
)

// Version is the object format version written by Marshal.
const Version uint8 = 1

// Extension is the file extension used for object files.
const Extension = ".r25o"

// Object is a compiled program as stored on disk.
type Object struct {
	Version      uint8                  `cbor:"1,keyasint"`
	Source       string                 `cbor:"2,keyasint"`
	Hash         [32]byte               `cbor:"3,keyasint"`
	Symbols      []compiler.Symbol      `cbor:"4,keyasint,omitempty"`
	Instructions []compiler.Instruction `cbor:"5,keyasint,omitempty"`
}

// NewObject builds an object from a successful compilation.
func NewObject(source string, res *compiler.Result) *Object {
	return &Object{
		Version:      Version,
		Source:       source,
		Hash:         hash.Fingerprint(res),
		Symbols:      res.Symbols,
		Instructions: res.Instructions,
	}
}

// Verify recomputes the fingerprint and reports whether it matches Hash.
func (o *Object) Verify() bool {
	res := &compiler.Result{Symbols: o.Symbols, Instructions: o.Instructions}
	return hash.Fingerprint(res) == o.Hash
}
