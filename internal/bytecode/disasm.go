package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble renders bc's instruction stream as human-readable text, one
// instruction per line prefixed with its address. It is a read-only
// debugging aid: it does not round-trip through an assembler, since Kronos
// bytecode is always produced by a compiler or by Builder, never read back
// from text.
func Disassemble(bc *Bytecode) string {
	var sb strings.Builder
	code := bc.Code
	ip := 0
	for ip < len(code) {
		start := ip
		op := Opcode(code[ip])
		ip++
		fmt.Fprintf(&sb, "%04d  %-14s", start, op)
		switch op {
		case LOAD_CONST, LOAD_VAR:
			idx := ReadU16(code, ip)
			ip += 2
			fmt.Fprintf(&sb, " %d", idx)
			if op == LOAD_CONST {
				if c, ok := bc.Constant(idx); ok {
					fmt.Fprintf(&sb, "  ; %s", c.String())
				}
			}
		case STORE_VAR:
			nameIdx := ReadU16(code, ip)
			ip += 2
			mutable := ReadU8(code, ip)
			ip++
			hasType := ReadU8(code, ip)
			ip++
			fmt.Fprintf(&sb, " %d mutable=%d has_type=%d", nameIdx, mutable, hasType)
			if hasType != 0 {
				typeIdx := ReadU16(code, ip)
				ip += 2
				fmt.Fprintf(&sb, " type=%d", typeIdx)
			}
		case JUMP:
			off := ReadI8(code, ip)
			ip++
			fmt.Fprintf(&sb, " %+d -> %04d", off, ip+int(off))
		case JUMP_IF_FALSE:
			off := ReadU8(code, ip)
			ip++
			fmt.Fprintf(&sb, " %d -> %04d", off, ip+int(off))
		case DEFINE_FUNC:
			nameIdx := ReadU16(code, ip)
			ip += 2
			paramCount := ReadU8(code, ip)
			ip++
			for i := uint8(0); i < paramCount; i++ {
				fmt.Fprintf(&sb, " p%d", ReadU16(code, ip))
				ip += 2
			}
			bodyStart := ReadU16(code, ip)
			ip += 2
			skip := ReadU8(code, ip)
			ip++
			fmt.Fprintf(&sb, " name=%d body=%d skip=%d", nameIdx, bodyStart, skip)
		case CALL_FUNC:
			nameIdx := ReadU16(code, ip)
			ip += 2
			argc := ReadU8(code, ip)
			ip++
			fmt.Fprintf(&sb, " %d argc=%d", nameIdx, argc)
		case LIST_NEW, MAP_NEW:
			n := ReadU16(code, ip)
			ip += 2
			fmt.Fprintf(&sb, " %d", n)
		case IMPORT:
			nameIdx := ReadU16(code, ip)
			ip += 2
			pathIdx := ReadU16(code, ip)
			ip += 2
			fmt.Fprintf(&sb, " %d %d", nameIdx, pathIdx)
		case TRY_ENTER, TRY_EXIT:
			addr := ReadU16(code, ip)
			ip += 2
			fmt.Fprintf(&sb, " %04d", addr)
		case CATCH:
			typeIdx := ReadU16(code, ip)
			ip += 2
			varIdx := ReadU16(code, ip)
			ip += 2
			fmt.Fprintf(&sb, " type=%d var=%d", typeIdx, varIdx)
		case THROW:
			typeIdx := ReadU16(code, ip)
			ip += 2
			fmt.Fprintf(&sb, " type=%d", typeIdx)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
