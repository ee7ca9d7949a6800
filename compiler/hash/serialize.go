package hash

import (
	"encoding/binary"

	"github.com/chazu/rat25s/compiler"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of a compiled program.
//
// Encoding conventions:
//   - First byte: HashVersion (0x01)
//   - Integers: big-endian int64 (8B)
//   - Strings: uint32 big-endian length + UTF-8 bytes
//   - Sections: uint32 element count, then elements inline
// ---------------------------------------------------------------------------

// HashVersion is bumped whenever the serialization changes.
const HashVersion byte = 0x01

// Serialize produces a deterministic byte serialization of symbols and
// instructions. The returned bytes are suitable for hashing with SHA-256.
func Serialize(symbols []compiler.Symbol, instrs []compiler.Instruction) []byte {
	s := &serializer{buf: make([]byte, 0, 16*(len(symbols)+len(instrs))+16)}
	s.writeByte(HashVersion)

	s.writeUint32(uint32(len(symbols)))
	for _, sym := range symbols {
		s.writeString(sym.Name)
		s.writeInt64(int64(sym.Address))
		s.writeString(sym.Type)
	}

	s.writeUint32(uint32(len(instrs)))
	for _, ins := range instrs {
		s.writeInt64(int64(ins.Index))
		s.writeByte(byte(ins.Op))
		s.writeUint32(uint32(len(ins.Operands)))
		for _, v := range ins.Operands {
			s.writeInt64(int64(v))
		}
		s.writeString(ins.Comment)
	}
	return s.buf
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}
