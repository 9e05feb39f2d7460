package bytecode

import (
	"strings"
	"testing"
)

func TestOpcodeString(t *testing.T) {
	for op := Opcode(0); op < opcodeCount; op++ {
		if opcodeNames[op] == "" {
			t.Errorf("missing string representation of opcode %d", op)
		}
		if s := op.String(); strings.Contains(s, "illegal") {
			t.Errorf("invalid string representation of opcode %d", op)
		}
	}
}

func TestOpcodeValid(t *testing.T) {
	if !LOAD_CONST.Valid() {
		t.Error("LOAD_CONST should be valid")
	}
	if Opcode(255).Valid() {
		t.Error("255 should not be a valid opcode")
	}
}
