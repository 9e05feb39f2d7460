package vm

import "github.com/kronoslang/kronos/internal/bytecode"

// function is a user-defined Kronos function: a name, its parameter names,
// and its own Bytecode record, whose code is the body's slice of the
// defining unit's code and whose constant pool retains the defining unit's
// constants. Registered in the VM's function table and owned by the VM; the
// VM has no teardown step, so a function's Bytecode is never Released.
type function struct {
	name   string
	params []string
	code   *bytecode.Bytecode
}
