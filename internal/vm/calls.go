package vm

import (
	"strings"

	"github.com/kronoslang/kronos/internal/bytecode"
	"github.com/kronoslang/kronos/internal/kerr"
	"github.com/kronoslang/kronos/internal/value"
)

// defineFunc implements DEFINE_FUNC: it slices the function's
// body out of the current bytecode's own code array (from bodyStart to an
// end lying skip_offset bytes past the position right after the
// skip_offset operand), builds the function's own Bytecode sharing the enclosing
// constant pool, registers it, and returns the ip to resume at (the first
// instruction past the body).
func (vm *VM) defineFunc(code *bytecode.Bytecode, ip int) (int, *kerr.Error) {
	nameIdx := bytecode.ReadU16(code.Code, ip)
	ip += 2
	paramCount := int(bytecode.ReadU8(code.Code, ip))
	ip++

	params := make([]string, paramCount)
	for i := 0; i < paramCount; i++ {
		pIdx := bytecode.ReadU16(code.Code, ip)
		ip += 2
		name, err := vm.constString(code, pIdx)
		if err != nil {
			return 0, err
		}
		params[i] = name
	}

	bodyStart := int(bytecode.ReadU16(code.Code, ip))
	ip += 2
	afterSkipByte := ip + 1
	skipOffset := int(bytecode.ReadU8(code.Code, ip))
	ip++
	bodyEnd := afterSkipByte + skipOffset

	if bodyStart < 0 || bodyEnd > len(code.Code) || bodyStart > bodyEnd {
		return 0, kerr.Internalf("function body range [%d,%d) out of bounds", bodyStart, bodyEnd)
	}

	name, err := vm.constString(code, nameIdx)
	if err != nil {
		return 0, err
	}
	if vm.functions.Count() >= FunctionsMax {
		return 0, kerr.Runtimef("function table limit exceeded (max %d)", FunctionsMax)
	}

	fn := &function{
		name:   name,
		params: params,
		code:   bytecode.New(code.Code[bodyStart:bodyEnd], code.Constants),
	}
	vm.functions.Put(name, fn)
	return bodyEnd, nil
}

// call resolves name per the function-call protocol: built-ins first by
// exact match, then user functions, then (for a dotted name) an imported
// module's function. For a user function it reports
// switched == true and the code/ip the dispatch loop's flat call-frame
// switch should continue from; for a built-in or module call it returns the
// already-computed result directly.
func (vm *VM) call(name string, args []value.Value, returnIP int, returnCode *bytecode.Bytecode) (result value.Value, switched bool, newCode *bytecode.Bytecode, newIP int, err *kerr.Error) {
	if b, ok := builtins[name]; ok {
		v, berr := b(vm, args)
		if berr != nil {
			return nil, false, nil, 0, berr
		}
		return v, false, nil, 0, nil
	}

	if fn, ok := vm.functions.Get(name); ok {
		if len(args) != len(fn.params) {
			return nil, false, nil, 0, kerr.ValueErrorf("function %q takes %d argument(s), got %d", name, len(fn.params), len(args))
		}
		if perr := vm.pushCallFrame(fn, args, true, returnIP, returnCode); perr != nil {
			return nil, false, nil, 0, perr
		}
		return nil, true, fn.code, 0, nil
	}

	if dot := strings.IndexByte(name, '.'); dot >= 0 {
		alias, member := name[:dot], name[dot+1:]
		mod, ok := vm.imports[alias]
		if !ok {
			return nil, false, nil, 0, kerr.NotFoundf("module %q is not imported", alias)
		}
		v, ierr := mod.InvokeFunction(member, args)
		if ierr != nil {
			return nil, false, nil, 0, ierr
		}
		return v, false, nil, 0, nil
	}

	return nil, false, nil, 0, kerr.NotFoundf("function %q is not defined", name)
}

// pushCallFrame binds args into a fresh frame's locals (each mutable, with
// no type tag) and pushes it onto the call-frame stack.
func (vm *VM) pushCallFrame(fn *function, args []value.Value, hasReturn bool, returnIP int, returnCode *bytecode.Bytecode) *kerr.Error {
	if len(vm.frames) >= CallStackMax {
		return kerr.Runtimef("call stack overflow (max %d)", CallStackMax)
	}
	fr := newFrame(fn, hasReturn, returnIP, returnCode)
	for i, p := range fn.params {
		fr.locals[p] = newCell(p, args[i], true, "")
	}
	vm.frames = append(vm.frames, fr)
	return nil
}
