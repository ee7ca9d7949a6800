package compiler

import (
	"fmt"

	"github.com/elliotchance/orderedmap/v2"
)

// DefaultBaseAddress is the storage address of the first declared identifier.
const DefaultBaseAddress = 10000

// Symbol is a declared identifier.
type Symbol struct {
	Name    string `cbor:"1,keyasint"`
	Address int    `cbor:"2,keyasint"`
	Type    string `cbor:"3,keyasint"`
}

// SymbolTable records declared identifiers in declaration order and hands
// out storage addresses from a monotonic counter. Entries are never
// modified or removed until Reset.
type SymbolTable struct {
	base    int
	next    int
	entries *orderedmap.OrderedMap[string, Symbol]
}

// NewSymbolTable creates an empty table whose first address is base.
func NewSymbolTable(base int) *SymbolTable {
	s := &SymbolTable{base: base}
	s.Reset()
	return s
}

// Reset clears all entries and rewinds the address counter to the base.
func (s *SymbolTable) Reset() {
	s.next = s.base
	s.entries = orderedmap.NewOrderedMap[string, Symbol]()
}

// Declare inserts name with the given type and returns its address.
func (s *SymbolTable) Declare(name, typ string) (int, error) {
	if _, ok := s.entries.Get(name); ok {
		return 0, fmt.Errorf("%w: identifier '%s' is already declared", ErrDuplicateDeclaration, name)
	}
	sym := Symbol{Name: name, Address: s.next, Type: typ}
	s.entries.Set(name, sym)
	s.next++
	return sym.Address, nil
}

// Lookup returns the symbol declared as name.
func (s *SymbolTable) Lookup(name string) (Symbol, error) {
	sym, ok := s.entries.Get(name)
	if !ok {
		return Symbol{}, fmt.Errorf("%w: '%s'", ErrNotFound, name)
	}
	return sym, nil
}

// IsDeclared reports whether name has been declared.
func (s *SymbolTable) IsDeclared(name string) bool {
	_, ok := s.entries.Get(name)
	return ok
}

// Len returns the number of declared identifiers.
func (s *SymbolTable) Len() int {
	return s.entries.Len()
}

// Symbols returns the declared identifiers in declaration order.
func (s *SymbolTable) Symbols() []Symbol {
	out := make([]Symbol, 0, s.entries.Len())
	for el := s.entries.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value)
	}
	return out
}
