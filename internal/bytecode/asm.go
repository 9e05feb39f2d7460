package bytecode

import (
	"fmt"

	"github.com/kronoslang/kronos/internal/value"
)

// Builder hand-assembles a Bytecode unit without going through a
// lexer/parser/compiler pipeline: it exists so the VM (and its test suite)
// can be exercised directly. Builder is not part of the execution core's
// external contract — real programs arrive as compiler output.
//
// Relative jump opcodes (JUMP, JUMP_IF_FALSE) reference named labels
// resolved at Build() time; TRY_ENTER/TRY_EXIT take absolute addresses,
// also nameable as labels.
type Builder struct {
	code      []byte
	constants []value.Value
	labels    map[string]int
	fixups    []fixup
	err       error
}

type fixup struct {
	pos      int // index of the operand's first byte
	label    string
	width    int // 1 or 2 bytes
	relative bool
	signed   bool
	baseAt   int // position the offset is relative to (only used if relative)
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{labels: make(map[string]int)}
}

// Label marks the current code position with name, the target of any
// jump/try operand referencing it.
func (b *Builder) Label(name string) *Builder {
	if _, ok := b.labels[name]; ok && b.err == nil {
		b.err = fmt.Errorf("duplicate label %q", name)
	}
	b.labels[name] = len(b.code)
	return b
}

// AddConstant appends v to the constant pool and returns its index.
func (b *Builder) AddConstant(v value.Value) uint16 {
	b.constants = append(b.constants, v)
	return uint16(len(b.constants) - 1)
}

func (b *Builder) emit(op Opcode) *Builder {
	b.code = append(b.code, byte(op))
	return b
}

func (b *Builder) u8(v uint8) *Builder {
	b.code = append(b.code, v)
	return b
}

func (b *Builder) u16(v uint16) *Builder {
	b.code = PutU16(b.code, v)
	return b
}

// --- no-operand opcodes ---

func (b *Builder) Add() *Builder        { return b.emit(ADD) }
func (b *Builder) Sub() *Builder        { return b.emit(SUB) }
func (b *Builder) Mul() *Builder        { return b.emit(MUL) }
func (b *Builder) Div() *Builder        { return b.emit(DIV) }
func (b *Builder) Mod() *Builder        { return b.emit(MOD) }
func (b *Builder) Neg() *Builder        { return b.emit(NEG) }
func (b *Builder) Eq() *Builder         { return b.emit(EQ) }
func (b *Builder) Neq() *Builder        { return b.emit(NEQ) }
func (b *Builder) Gt() *Builder         { return b.emit(GT) }
func (b *Builder) Lt() *Builder         { return b.emit(LT) }
func (b *Builder) Gte() *Builder        { return b.emit(GTE) }
func (b *Builder) Lte() *Builder        { return b.emit(LTE) }
func (b *Builder) And() *Builder        { return b.emit(AND) }
func (b *Builder) Or() *Builder         { return b.emit(OR) }
func (b *Builder) Not() *Builder        { return b.emit(NOT) }
func (b *Builder) Print() *Builder      { return b.emit(PRINT) }
func (b *Builder) Pop() *Builder        { return b.emit(POP) }
func (b *Builder) Halt() *Builder       { return b.emit(HALT) }
func (b *Builder) Finally() *Builder    { return b.emit(FINALLY) }
func (b *Builder) ReturnVal() *Builder  { return b.emit(RETURN_VAL) }
func (b *Builder) ListAppend() *Builder { return b.emit(LIST_APPEND) }
func (b *Builder) ListGet() *Builder    { return b.emit(LIST_GET) }
func (b *Builder) ListSet() *Builder    { return b.emit(LIST_SET) }
func (b *Builder) ListLen() *Builder    { return b.emit(LIST_LEN) }
func (b *Builder) ListSlice() *Builder  { return b.emit(LIST_SLICE) }
func (b *Builder) ListIter() *Builder   { return b.emit(LIST_ITER) }
func (b *Builder) ListNext() *Builder   { return b.emit(LIST_NEXT) }
func (b *Builder) MapSet() *Builder     { return b.emit(MAP_SET) }
func (b *Builder) Delete() *Builder     { return b.emit(DELETE) }
func (b *Builder) RangeNew() *Builder   { return b.emit(RANGE_NEW) }

// --- operand-carrying opcodes ---

func (b *Builder) LoadConst(idx uint16) *Builder   { return b.emit(LOAD_CONST).u16(idx) }
func (b *Builder) LoadVar(nameIdx uint16) *Builder { return b.emit(LOAD_VAR).u16(nameIdx) }

// StoreVar emits STORE_VAR. Pass typeIdx = AnyType-independent 0 and
// hasType = false when the binding carries no type tag.
func (b *Builder) StoreVar(nameIdx uint16, mutable, hasType bool, typeIdx uint16) *Builder {
	b.emit(STORE_VAR).u16(nameIdx).u8(boolByte(mutable)).u8(boolByte(hasType))
	if hasType {
		b.u16(typeIdx)
	}
	return b
}

func boolByte(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

func (b *Builder) ListNew(count uint16) *Builder { return b.emit(LIST_NEW).u16(count) }
func (b *Builder) MapNew(count uint16) *Builder  { return b.emit(MAP_NEW).u16(count) }

func (b *Builder) CallFunc(nameIdx uint16, argCount uint8) *Builder {
	return b.emit(CALL_FUNC).u16(nameIdx).u8(argCount)
}

func (b *Builder) Import(nameIdx, pathIdx uint16) *Builder {
	return b.emit(IMPORT).u16(nameIdx).u16(pathIdx)
}

func (b *Builder) Catch(typeIdx, varIdx uint16) *Builder {
	return b.emit(CATCH).u16(typeIdx).u16(varIdx)
}

func (b *Builder) Throw(typeIdx uint16) *Builder { return b.emit(THROW).u16(typeIdx) }

// DefineFunc emits DEFINE_FUNC with the given name and parameter name
// indices. bodyLabel must resolve (via Label) to the first instruction of
// the function body; endLabel to the instruction following the body (used
// to compute skip_offset, the amount JUMP-sentinel skips over at
// definition time so execution falls past the function body).
func (b *Builder) DefineFunc(nameIdx uint16, paramIdx []uint16, bodyLabel, endLabel string) *Builder {
	if len(paramIdx) > 255 {
		b.err = fmt.Errorf("too many parameters: %d", len(paramIdx))
		return b
	}
	b.emit(DEFINE_FUNC).u16(nameIdx).u8(uint8(len(paramIdx)))
	for _, p := range paramIdx {
		b.u16(p)
	}
	bodyPos := len(b.code)
	b.u16(0) // placeholder for body_start, patched below
	b.fixups = append(b.fixups, fixup{pos: bodyPos, label: bodyLabel, width: 2})

	skipPos := len(b.code)
	b.u8(0) // placeholder for skip_offset
	// skip_offset is relative to the address right after this byte (i.e.
	// where execution resumes after skipping the function body).
	b.fixups = append(b.fixups, fixup{pos: skipPos, label: endLabel, width: 1, relative: true, baseAt: skipPos + 1})
	return b
}

// Jump emits a relative JUMP to label.
func (b *Builder) Jump(label string) *Builder {
	b.emit(JUMP)
	pos := len(b.code)
	b.u8(0)
	b.fixups = append(b.fixups, fixup{pos: pos, label: label, width: 1, relative: true, signed: true, baseAt: pos + 1})
	return b
}

// JumpIfFalse emits a relative, forward-only JUMP_IF_FALSE to label.
func (b *Builder) JumpIfFalse(label string) *Builder {
	b.emit(JUMP_IF_FALSE)
	pos := len(b.code)
	b.u8(0)
	b.fixups = append(b.fixups, fixup{pos: pos, label: label, width: 1, relative: true, baseAt: pos + 1})
	return b
}

// TryEnter emits TRY_ENTER with an absolute handler address.
func (b *Builder) TryEnter(handlerLabel string) *Builder {
	b.emit(TRY_ENTER)
	pos := len(b.code)
	b.u16(0)
	b.fixups = append(b.fixups, fixup{pos: pos, label: handlerLabel, width: 2})
	return b
}

// TryExit emits TRY_EXIT. finallyLabel may be "" for no finally block, in
// which case the operand is encoded as zero (no valid code address is ever
// zero in practice, so zero unambiguously means "no finally block").
func (b *Builder) TryExit(finallyLabel string) *Builder {
	b.emit(TRY_EXIT)
	pos := len(b.code)
	b.u16(0)
	if finallyLabel != "" {
		b.fixups = append(b.fixups, fixup{pos: pos, label: finallyLabel, width: 2})
	}
	return b
}

// Build resolves all pending label references and returns the finished
// Bytecode. It is an error to reference a label that was never marked.
func (b *Builder) Build() (*Bytecode, error) {
	if b.err != nil {
		return nil, b.err
	}
	for _, f := range b.fixups {
		target, ok := b.labels[f.label]
		if !ok {
			return nil, fmt.Errorf("undefined label %q", f.label)
		}
		var offset int
		if f.relative {
			offset = target - f.baseAt
		} else {
			offset = target
		}
		switch f.width {
		case 1:
			if f.signed {
				if offset < -128 || offset > 127 {
					return nil, fmt.Errorf("jump to %q out of signed 8-bit range: %d", f.label, offset)
				}
				b.code[f.pos] = byte(int8(offset))
			} else {
				if offset < 0 || offset > 255 {
					return nil, fmt.Errorf("jump to %q out of unsigned 8-bit range: %d", f.label, offset)
				}
				b.code[f.pos] = byte(offset)
			}
		case 2:
			if offset < 0 || offset > 0xFFFF {
				return nil, fmt.Errorf("address %q out of 16-bit range: %d", f.label, offset)
			}
			b.code[f.pos] = byte(offset >> 8)
			b.code[f.pos+1] = byte(offset)
		}
	}
	return New(b.code, b.constants), nil
}
