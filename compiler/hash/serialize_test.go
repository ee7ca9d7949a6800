package hash

import (
	"encoding/binary"
	"testing"

	"github.com/chazu/rat25s/compiler"
)

func TestSerialize_Deterministic(t *testing.T) {
	symbols := []compiler.Symbol{{Name: "i", Address: 10000, Type: "integer"}}
	instrs := []compiler.Instruction{
		{Index: 1, Op: compiler.OpPushI, Operands: []int{0}},
		{Index: 2, Op: compiler.OpSto, Operands: []int{10000}, Comment: "i = <expr>"},
	}

	data1 := Serialize(symbols, instrs)
	data2 := Serialize(symbols, instrs)

	if string(data1) != string(data2) {
		t.Error("serialization is not deterministic")
	}
}

func TestSerialize_VersionByte(t *testing.T) {
	data := Serialize(nil, nil)
	if data[0] != HashVersion {
		t.Errorf("first byte = 0x%02x, want 0x%02x", data[0], HashVersion)
	}
}

func TestSerialize_InstructionEncoding(t *testing.T) {
	instrs := []compiler.Instruction{{Index: 7, Op: compiler.OpJmp0, Operands: []int{13}}}
	data := Serialize(nil, instrs)

	// version, symbol count, instruction count
	off := 1 + 4
	if n := binary.BigEndian.Uint32(data[off:]); n != 1 {
		t.Fatalf("instruction count = %d, want 1", n)
	}
	off += 4
	if idx := int64(binary.BigEndian.Uint64(data[off:])); idx != 7 {
		t.Errorf("index = %d, want 7", idx)
	}
	off += 8
	if op := compiler.Opcode(data[off]); op != compiler.OpJmp0 {
		t.Errorf("opcode = %s, want JMP0", op)
	}
	off++
	if n := binary.BigEndian.Uint32(data[off:]); n != 1 {
		t.Errorf("operand count = %d, want 1", n)
	}
	off += 4
	if v := int64(binary.BigEndian.Uint64(data[off:])); v != 13 {
		t.Errorf("operand = %d, want 13", v)
	}
	off += 8
	if n := binary.BigEndian.Uint32(data[off:]); n != 0 {
		t.Errorf("comment length = %d, want 0", n)
	}
	if len(data) != off+4 {
		t.Errorf("len = %d, want %d", len(data), off+4)
	}
}

func TestSerialize_CommentsMatter(t *testing.T) {
	a := Serialize(nil, []compiler.Instruction{{Index: 1, Op: compiler.OpCmpLT, Comment: "compare <"}})
	b := Serialize(nil, []compiler.Instruction{{Index: 1, Op: compiler.OpCmpLT}})
	if string(a) == string(b) {
		t.Error("comment did not affect serialization")
	}
}

func TestSerialize_SectionBoundaries(t *testing.T) {
	// Moving a string across a field boundary must change the bytes.
	a := Serialize([]compiler.Symbol{{Name: "ab", Type: "c"}}, nil)
	b := Serialize([]compiler.Symbol{{Name: "a", Type: "bc"}}, nil)
	if string(a) == string(b) {
		t.Error("length prefixes did not separate fields")
	}
}
