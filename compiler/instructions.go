package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode is a stack-machine operation.
type Opcode uint8

const (
	OpPushI Opcode = iota + 1 // push integer literal
	OpPushM                   // push value stored at address
	OpPopM                    // pop into address
	OpSto                     // store top of stack into address
	OpSin                     // push value read from input
	OpSout                    // pop and write to output
	OpAdd                     // pop two, push sum
	OpSub                     // pop two, push difference
	OpMul                     // pop two, push product
	OpDiv                     // pop two, push quotient
	OpNeg                     // negate top of stack
	OpCmpLT                   // pop two, push a < b
	OpCmpGT                   // pop two, push a > b
	OpCmpEQ                   // pop two, push a == b
	OpCmpNE                   // pop two, push a != b
	OpCmpLE                   // pop two, push a <= b
	OpCmpGE                   // pop two, push a >= b
	OpLabel                   // jump target marker
	OpJmp                     // unconditional jump to position
	OpJmp0                    // pop, jump to position when zero
	OpMulTerm                 // product emitted by the term tier
	OpDivTerm                 // quotient emitted by the term tier
)

var opcodeNames = map[Opcode]string{
	OpPushI: "PUSHI",
	OpPushM: "PUSHM",
	OpPopM:  "POPM",
	OpSto:   "STO",
	OpSin:   "SIN",
	OpSout:  "SOUT",
	OpAdd:   "A",
	OpSub:   "S",
	OpMul:   "M",
	OpDiv:   "D",
	OpNeg:   "NEG",
	OpCmpLT: "CMP_LT",
	OpCmpGT: "CMP_GT",
	OpCmpEQ: "CMP_EQ",
	OpCmpNE: "CMP_NE",
	OpCmpLE: "CMP_LE",
	OpCmpGE: "CMP_GE",
	OpLabel: "LABEL",
	OpJmp:   "JMP",
	OpJmp0:  "JMP0",

	OpMulTerm: "MUL",
	OpDivTerm: "DIV",
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%d)", op)
}

// Instruction is one emitted stack-machine instruction.
type Instruction struct {
	Index    int    `cbor:"1,keyasint"` // 1-based position
	Op       Opcode `cbor:"2,keyasint"`
	Operands []int  `cbor:"3,keyasint,omitempty"`
	Comment  string `cbor:"4,keyasint,omitempty"`
}

// Format renders the instruction as one assembly listing line. The operand
// column keeps its padding even when no comment follows.
func (ins Instruction) Format() string {
	args := make([]string, len(ins.Operands))
	for i, v := range ins.Operands {
		args[i] = strconv.Itoa(v)
	}
	line := fmt.Sprintf("[%2d]   %-7s%-12s", ins.Index, ins.Op, strings.Join(args, " "))
	if ins.Comment != "" {
		line += "  ; " + ins.Comment
	}
	return line
}

// ---------------------------------------------------------------------------
// InstructionStream: append-only listing with backpatching
// ---------------------------------------------------------------------------

// DefaultCapacity is the default maximum number of instructions per run.
const DefaultCapacity = 1000

type slotState uint8

const (
	slotFinal    slotState = iota // written, immutable
	slotReserved                  // placeholder awaiting Patch
)

type slot struct {
	ins   Instruction
	state slotState
}

// InstructionStream is an ordered list of instructions bounded by a fixed
// capacity. Positions are 1-based and equal the program counter at
// emission time. A slot written by Reserve may be overwritten exactly once
// by Patch; every other slot is final.
type InstructionStream struct {
	capacity int
	slots    []slot
}

// NewInstructionStream creates an empty stream holding at most capacity
// instructions.
func NewInstructionStream(capacity int) *InstructionStream {
	return &InstructionStream{capacity: capacity}
}

// Reset discards every instruction and rewinds the program counter.
func (s *InstructionStream) Reset() {
	s.slots = nil
}

// PC returns the position the next instruction will occupy.
func (s *InstructionStream) PC() int {
	return len(s.slots) + 1
}

// Len returns the number of emitted instructions.
func (s *InstructionStream) Len() int {
	return len(s.slots)
}

// Emit appends an instruction and returns its position.
func (s *InstructionStream) Emit(op Opcode, operands ...int) (int, error) {
	return s.append(Instruction{Op: op, Operands: operands}, slotFinal)
}

// EmitComment appends an instruction annotated with a comment.
func (s *InstructionStream) EmitComment(op Opcode, comment string, operands ...int) (int, error) {
	return s.append(Instruction{Op: op, Operands: operands, Comment: comment}, slotFinal)
}

// Reserve appends a placeholder for op whose operands are not yet known
// and returns its position for a later Patch.
func (s *InstructionStream) Reserve(op Opcode) (int, error) {
	return s.append(Instruction{Op: op}, slotReserved)
}

func (s *InstructionStream) append(ins Instruction, state slotState) (int, error) {
	if len(s.slots) >= s.capacity {
		return 0, fmt.Errorf("%w: capacity of %d instructions exceeded", ErrInstructionOverflow, s.capacity)
	}
	ins.Index = s.PC()
	s.slots = append(s.slots, slot{ins: ins, state: state})
	return ins.Index, nil
}

// Patch finalizes the reserved instruction at pos.
func (s *InstructionStream) Patch(pos int, op Opcode, operands ...int) error {
	if pos < 1 || pos > len(s.slots) {
		return fmt.Errorf("%w: position %d out of range 1..%d", ErrInvalidPatch, pos, len(s.slots))
	}
	sl := &s.slots[pos-1]
	if sl.state != slotReserved {
		return fmt.Errorf("%w: position %d is not reserved", ErrInvalidPatch, pos)
	}
	sl.ins = Instruction{Index: pos, Op: op, Operands: operands}
	sl.state = slotFinal
	return nil
}

// Pending returns the positions of reserved slots not yet patched.
func (s *InstructionStream) Pending() []int {
	var out []int
	for _, sl := range s.slots {
		if sl.state == slotReserved {
			out = append(out, sl.ins.Index)
		}
	}
	return out
}

// Verify reports an error if any reserved slot was never patched.
func (s *InstructionStream) Verify() error {
	if pending := s.Pending(); len(pending) > 0 {
		return fmt.Errorf("%w: positions %v", ErrUnpatchedJump, pending)
	}
	return nil
}

// At returns the instruction at pos.
func (s *InstructionStream) At(pos int) (Instruction, bool) {
	if pos < 1 || pos > len(s.slots) {
		return Instruction{}, false
	}
	return s.slots[pos-1].ins, true
}

// Instructions returns a copy of the emitted instructions in position order.
func (s *InstructionStream) Instructions() []Instruction {
	out := make([]Instruction, len(s.slots))
	for i, sl := range s.slots {
		out[i] = sl.ins
	}
	return out
}

// Render returns the assembly listing, one instruction per line.
func (s *InstructionStream) Render() string {
	return RenderInstructions(s.Instructions())
}

// RenderInstructions formats a listing in position order.
func RenderInstructions(instrs []Instruction) string {
	var sb strings.Builder
	for _, ins := range instrs {
		sb.WriteString(ins.Format())
		sb.WriteByte('\n')
	}
	return sb.String()
}
