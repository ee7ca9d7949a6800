package hash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/chazu/rat25s/compiler"
)

// Fingerprint computes the SHA-256 content hash of a compiled program.
//
// The hash covers the symbol table and the instruction listing, including
// comments, so two runs that produce the same output produce the same
// fingerprint regardless of whitespace or comments in the source.
func Fingerprint(res *compiler.Result) [32]byte {
	return sha256.Sum256(Serialize(res.Symbols, res.Instructions))
}

// String returns the hex form of a fingerprint.
func String(sum [32]byte) string {
	return hex.EncodeToString(sum[:])
}
