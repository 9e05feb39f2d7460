package bytecode

import "github.com/kronoslang/kronos/internal/value"

// Bytecode is a compiled unit: a flat instruction stream plus its pooled
// constants. It is produced by the (out-of-scope) compiler and
// consumed by the VM, which does not mutate it but may retain constants
// onto its operand stack or into variable cells.
type Bytecode struct {
	Code      []byte
	Constants []value.Value
}

// New constructs a Bytecode record, retaining one refcount on each constant
// on the pool's behalf ("each Value in the pool holds one refcount
// on behalf of the Bytecode").
func New(code []byte, constants []value.Value) *Bytecode {
	retained := make([]value.Value, len(constants))
	for i, c := range constants {
		retained[i] = c.Retain()
	}
	return &Bytecode{Code: code, Constants: retained}
}

// Release drops the constant pool's refcount on each constant and empties
// the pool. The VM does not call it: module programs and function bodies
// keep their constant-pool refcounts.
func (b *Bytecode) Release() {
	for _, c := range b.Constants {
		c.Release()
	}
	b.Constants = nil
}

// Constant returns the constant at idx, or false if idx is out of range
// (malformed bytecode, an Internal/InternalError condition).
func (b *Bytecode) Constant(idx uint16) (value.Value, bool) {
	if int(idx) >= len(b.Constants) {
		return nil, false
	}
	return b.Constants[idx], true
}

// --- Big-endian 16-bit operand encode/decode. ---

// PutU16 appends a big-endian 16-bit operand to code.
func PutU16(code []byte, v uint16) []byte {
	return append(code, byte(v>>8), byte(v))
}

// ReadU16 reads a big-endian 16-bit operand at ip. The caller must ensure
// ip+1 is in bounds.
func ReadU16(code []byte, ip int) uint16 {
	return uint16(code[ip])<<8 | uint16(code[ip+1])
}

// ReadU8 reads a single unsigned byte operand at ip.
func ReadU8(code []byte, ip int) uint8 { return code[ip] }

// ReadI8 reads a signed byte operand at ip, used by JUMP's relative offset.
func ReadI8(code []byte, ip int) int8 { return int8(code[ip]) }
