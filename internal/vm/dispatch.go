package vm

import (
	"strings"

	"github.com/kronoslang/kronos/internal/bytecode"
	"github.com/kronoslang/kronos/internal/kerr"
	"github.com/kronoslang/kronos/internal/value"
)

// execute runs fn's bytecode to completion in a single flat dispatch loop:
// ordinary same-VM CALL_FUNC invocations push a frame and switch
// the loop's local code/ip rather than recurring through Go's call stack;
// only a module call recurses into execute, once per imported unit.
//
// hasReturn/returnIP/returnCode describe what RETURN_VAL should restore
// when it unwinds past fn's own frame: for a module-call frame
// (hasReturn == false) RETURN_VAL instead stops the loop and returns the
// value to this Go call's caller, the loader.
func (vm *VM) execute(fn *function, args []value.Value, hasReturn bool, returnIP int, returnCode *bytecode.Bytecode) (value.Value, *kerr.Error) {
	if len(vm.frames) >= CallStackMax {
		return nil, kerr.Runtimef("call stack overflow (max %d)", CallStackMax)
	}
	if len(args) != len(fn.params) {
		return nil, kerr.Internalf("execute called with %d args for %d parameters", len(args), len(fn.params))
	}
	base := len(vm.frames)
	// A top-level unit (RunProgram's program or a module body) has a nil
	// parameter list and runs without a frame of its own, so its STORE_VARs
	// bind globals; a function body gets a frame for its parameters and
	// locals.
	if fn.params != nil {
		fr := newFrame(fn, hasReturn, returnIP, returnCode)
		for i, p := range fn.params {
			fr.locals[p] = newCell(p, args[i], true, "")
		}
		vm.frames = append(vm.frames, fr)
	}
	handlerBase := len(vm.handlers)

	code := fn.code
	ip := 0

	defer func() {
		// Unwind any frames/handlers this call contributed that a normal
		// RETURN_VAL path didn't already clean up (error propagation out of
		// the loop below).
		for len(vm.frames) > base {
			f := vm.frames[len(vm.frames)-1]
			vm.frames = vm.frames[:len(vm.frames)-1]
			f.release()
		}
		if len(vm.handlers) > handlerBase {
			vm.handlers = vm.handlers[:handlerBase]
		}
	}()

	for {
		if vm.lastError.Pending() {
			if h, ok := vm.popHandler(handlerBase); ok {
				for len(vm.frames) > h.frames {
					f := vm.frames[len(vm.frames)-1]
					vm.frames = vm.frames[:len(vm.frames)-1]
					f.release()
				}
				code = h.code
				ip = h.handlerIP
			} else {
				return nil, vm.lastError.Current()
			}
		}

		if ip >= len(code.Code) {
			return value.NilValue(), nil
		}

		op := bytecode.Opcode(code.Code[ip])
		ip++
		if !op.Valid() {
			vm.lastError.Set(kerr.Internalf("invalid opcode %d at ip %d", op, ip-1))
			continue
		}

		switch op {
		case bytecode.HALT:
			return value.NilValue(), nil

		case bytecode.LOAD_CONST:
			idx := bytecode.ReadU16(code.Code, ip)
			ip += 2
			c, ok := code.Constant(idx)
			if !ok {
				vm.lastError.Set(kerr.Internalf("constant index %d out of range", idx))
				continue
			}
			if err := vm.push(c); err != nil {
				vm.lastError.Set(err)
			}

		case bytecode.LOAD_VAR:
			idx := bytecode.ReadU16(code.Code, ip)
			ip += 2
			name, err := vm.constString(code, idx)
			if err != nil {
				vm.lastError.Set(err)
				continue
			}
			c := vm.lookupCell(name)
			if c == nil {
				vm.lastError.Set(kerr.NotFoundf("variable %q is not defined", name))
				continue
			}
			if err := vm.push(c.val); err != nil {
				vm.lastError.Set(err)
			}

		case bytecode.STORE_VAR:
			idx := bytecode.ReadU16(code.Code, ip)
			ip += 2
			mutable := bytecode.ReadU8(code.Code, ip) != 0
			ip++
			hasType := bytecode.ReadU8(code.Code, ip) != 0
			ip++
			var typeTag string
			if hasType {
				tIdx := bytecode.ReadU16(code.Code, ip)
				ip += 2
				tag, err := vm.constString(code, tIdx)
				if err != nil {
					vm.lastError.Set(err)
					continue
				}
				typeTag = tag
			}
			name, err := vm.constString(code, idx)
			if err != nil {
				vm.lastError.Set(err)
				continue
			}
			val, perr := vm.pop()
			if perr != nil {
				vm.lastError.Set(perr)
				continue
			}
			if kerrv := vm.storeVar(name, val, mutable, typeTag); kerrv != nil {
				val.Release()
				vm.lastError.Set(kerrv)
				continue
			}
			val.Release()

		case bytecode.ADD:
			if err := vm.binaryAdd(); err != nil {
				vm.lastError.Set(err)
			}
		case bytecode.SUB:
			if err := vm.binaryArith(op); err != nil {
				vm.lastError.Set(err)
			}
		case bytecode.MUL:
			if err := vm.binaryArith(op); err != nil {
				vm.lastError.Set(err)
			}
		case bytecode.DIV:
			if err := vm.binaryArith(op); err != nil {
				vm.lastError.Set(err)
			}
		case bytecode.MOD:
			if err := vm.binaryArith(op); err != nil {
				vm.lastError.Set(err)
			}

		case bytecode.NEG:
			x, perr := vm.pop()
			if perr != nil {
				vm.lastError.Set(perr)
				continue
			}
			n, ok := x.(value.Number)
			x.Release()
			if !ok {
				vm.lastError.Set(kerr.ValueErrorf("cannot negate a %s", x.Kind()))
				continue
			}
			if err := vm.push(-n); err != nil {
				vm.lastError.Set(err)
			}

		case bytecode.EQ, bytecode.NEQ:
			b, perr := vm.pop()
			if perr != nil {
				vm.lastError.Set(perr)
				continue
			}
			a, perr := vm.pop()
			if perr != nil {
				b.Release()
				vm.lastError.Set(perr)
				continue
			}
			eq, eerr := value.Equals(a, b)
			a.Release()
			b.Release()
			if eerr != nil {
				vm.lastError.Set(kerr.Internalf("%v", eerr))
				continue
			}
			result := eq
			if op == bytecode.NEQ {
				result = !eq
			}
			if err := vm.push(value.Bool(result)); err != nil {
				vm.lastError.Set(err)
			}

		case bytecode.GT, bytecode.LT, bytecode.GTE, bytecode.LTE:
			if err := vm.compare(op); err != nil {
				vm.lastError.Set(err)
			}

		case bytecode.AND, bytecode.OR:
			b, perr := vm.pop()
			if perr != nil {
				vm.lastError.Set(perr)
				continue
			}
			a, perr := vm.pop()
			if perr != nil {
				b.Release()
				vm.lastError.Set(perr)
				continue
			}
			var result bool
			if op == bytecode.AND {
				result = value.Truthy(a) && value.Truthy(b)
			} else {
				result = value.Truthy(a) || value.Truthy(b)
			}
			a.Release()
			b.Release()
			if err := vm.push(value.Bool(result)); err != nil {
				vm.lastError.Set(err)
			}

		case bytecode.NOT:
			x, perr := vm.pop()
			if perr != nil {
				vm.lastError.Set(perr)
				continue
			}
			result := !value.Truthy(x)
			x.Release()
			if err := vm.push(value.Bool(result)); err != nil {
				vm.lastError.Set(err)
			}

		case bytecode.PRINT:
			x, perr := vm.pop()
			if perr != nil {
				vm.lastError.Set(perr)
				continue
			}
			fmtPrint(vm.stdout, x)
			x.Release()

		case bytecode.POP:
			x, perr := vm.pop()
			if perr != nil {
				vm.lastError.Set(perr)
				continue
			}
			x.Release()

		case bytecode.JUMP:
			offset := bytecode.ReadI8(code.Code, ip)
			ip++
			target := ip + int(offset)
			if target < 0 || target > len(code.Code) {
				vm.lastError.Set(kerr.Runtimef("jump target %d out of bounds", target))
				continue
			}
			ip = target

		case bytecode.JUMP_IF_FALSE:
			offset := bytecode.ReadU8(code.Code, ip)
			ip++
			cond, perr := vm.peek()
			if perr != nil {
				vm.lastError.Set(perr)
				continue
			}
			branch := !value.Truthy(cond)
			target := ip
			if branch {
				target = ip + int(offset)
				if target < 0 || target > len(code.Code) {
					vm.lastError.Set(kerr.Runtimef("jump target %d out of bounds", target))
					continue
				}
			}
			popped, _ := vm.pop()
			popped.Release()
			ip = target

		case bytecode.DEFINE_FUNC:
			newIP, err := vm.defineFunc(code, ip)
			if err != nil {
				vm.lastError.Set(err)
				continue
			}
			ip = newIP

		case bytecode.CALL_FUNC:
			nameIdx := bytecode.ReadU16(code.Code, ip)
			ip += 2
			argCount := int(bytecode.ReadU8(code.Code, ip))
			ip++
			name, err := vm.constString(code, nameIdx)
			if err != nil {
				vm.lastError.Set(err)
				continue
			}
			args := make([]value.Value, argCount)
			failed := false
			for i := argCount - 1; i >= 0; i-- {
				v, perr := vm.pop()
				if perr != nil {
					vm.lastError.Set(perr)
					failed = true
					break
				}
				args[i] = v
			}
			if failed {
				for _, a := range args {
					if a != nil {
						a.Release()
					}
				}
				continue
			}

			result, switched, newCode, newIP, cerr := vm.call(name, args, ip, code)
			for _, a := range args {
				a.Release()
			}
			if cerr != nil {
				vm.lastError.Set(cerr)
				continue
			}
			if switched {
				code, ip = newCode, newIP
				continue
			}
			if err := vm.push(result); err != nil {
				vm.lastError.Set(err)
			}
			result.Release()

		case bytecode.RETURN_VAL:
			retVal, perr := vm.pop()
			if perr != nil {
				vm.lastError.Set(perr)
				continue
			}
			if len(vm.frames) <= base {
				// RETURN_VAL in a frameless top-level unit ends it.
				return retVal, nil
			}
			fr := vm.frames[len(vm.frames)-1]
			vm.frames = vm.frames[:len(vm.frames)-1]
			returning := !fr.hasReturn
			restoreIP, restoreCode := fr.returnIP, fr.returnBytecode
			fr.release()
			if returning {
				return retVal, nil
			}
			code, ip = restoreCode, restoreIP
			if err := vm.push(retVal); err != nil {
				vm.lastError.Set(err)
			}
			retVal.Release()

		case bytecode.LIST_NEW:
			count := int(bytecode.ReadU16(code.Code, ip))
			ip += 2
			if err := vm.listNew(count); err != nil {
				vm.lastError.Set(err)
			}
		case bytecode.LIST_APPEND:
			if err := vm.listAppend(); err != nil {
				vm.lastError.Set(err)
			}
		case bytecode.LIST_GET:
			if err := vm.listGet(); err != nil {
				vm.lastError.Set(err)
			}
		case bytecode.LIST_SET:
			if err := vm.listSet(); err != nil {
				vm.lastError.Set(err)
			}
		case bytecode.LIST_LEN:
			if err := vm.containerLen(); err != nil {
				vm.lastError.Set(err)
			}
		case bytecode.LIST_SLICE:
			if err := vm.listSlice(); err != nil {
				vm.lastError.Set(err)
			}
		case bytecode.LIST_ITER:
			if err := vm.listIter(); err != nil {
				vm.lastError.Set(err)
			}
		case bytecode.LIST_NEXT:
			if err := vm.listNext(); err != nil {
				vm.lastError.Set(err)
			}
		case bytecode.MAP_NEW:
			count := int(bytecode.ReadU16(code.Code, ip))
			ip += 2
			if err := vm.mapNew(count); err != nil {
				vm.lastError.Set(err)
			}
		case bytecode.MAP_SET:
			if err := vm.mapSet(); err != nil {
				vm.lastError.Set(err)
			}
		case bytecode.DELETE:
			if err := vm.containerDelete(); err != nil {
				vm.lastError.Set(err)
			}
		case bytecode.RANGE_NEW:
			if err := vm.rangeNew(); err != nil {
				vm.lastError.Set(err)
			}

		case bytecode.IMPORT:
			nameIdx := bytecode.ReadU16(code.Code, ip)
			ip += 2
			pathIdx := bytecode.ReadU16(code.Code, ip)
			ip += 2
			alias, err := vm.constString(code, nameIdx)
			if err != nil {
				vm.lastError.Set(err)
				continue
			}
			path, err := vm.constString(code, pathIdx)
			if err != nil {
				vm.lastError.Set(err)
				continue
			}
			if err := vm.importModule(alias, path); err != nil {
				vm.lastError.Set(err)
			}

		case bytecode.TRY_ENTER:
			handlerIP := int(bytecode.ReadU16(code.Code, ip))
			ip += 2
			if handlerIP < 0 || handlerIP > len(code.Code) {
				vm.lastError.Set(kerr.Runtimef("try handler target %d out of bounds", handlerIP))
				continue
			}
			if len(vm.handlers) >= ExcHandlerMax {
				vm.lastError.Set(kerr.Runtimef("exception handler stack overflow (max %d)", ExcHandlerMax))
				continue
			}
			vm.handlers = append(vm.handlers, &handler{
				tryStart:  ip,
				handlerIP: handlerIP,
				frames:    len(vm.frames),
				code:      code,
			})

		case bytecode.TRY_EXIT:
			finallyIP := int(bytecode.ReadU16(code.Code, ip))
			ip += 2
			if len(vm.handlers) > handlerBase {
				vm.handlers = vm.handlers[:len(vm.handlers)-1]
			}
			if finallyIP != 0 {
				ip = finallyIP
			}

		case bytecode.CATCH:
			typeIdx := bytecode.ReadU16(code.Code, ip)
			ip += 2
			varIdx := bytecode.ReadU16(code.Code, ip)
			ip += 2
			wantType := ""
			if typeIdx != bytecode.AnyType {
				t, err := vm.constString(code, typeIdx)
				if err != nil {
					vm.lastError.Set(err)
					continue
				}
				wantType = t
			}
			cur := vm.lastError.Current()
			if cur == nil || !cur.Matches(wantType) {
				// No active error to catch, or it doesn't match: leave
				// whatever error is pending (if any) for the next handler.
				continue
			}
			varName, err := vm.constString(code, varIdx)
			if err != nil {
				vm.lastError.Set(err)
				continue
			}
			msg := value.NewString(cur.Message)
			vm.lastError.Clear()
			if kerrv := vm.storeVar(varName, msg, true, ""); kerrv != nil {
				msg.Release()
				vm.lastError.Set(kerrv)
				continue
			}
			msg.Release()

		case bytecode.FINALLY:
			// Marker only: execution falls straight through into the
			// finally block that follows it.

		case bytecode.THROW:
			typeIdx := bytecode.ReadU16(code.Code, ip)
			ip += 2
			msgVal, perr := vm.pop()
			if perr != nil {
				vm.lastError.Set(perr)
				continue
			}
			typ := ""
			if typeIdx != bytecode.AnyType {
				t, err := vm.constString(code, typeIdx)
				if err != nil {
					msgVal.Release()
					vm.lastError.Set(err)
					continue
				}
				typ = t
			}
			msg := msgVal.String()
			msgVal.Release()
			vm.lastError.Set(kerr.Thrown(typ, msg))

		default:
			vm.lastError.Set(kerr.Internalf("unimplemented opcode %s", op))
		}
	}
}

// popHandler returns and removes the innermost handler still above
// handlerBase (the scope this execute call owns), or !ok if none remain in
// scope — meaning the pending error must propagate out of this Go call.
func (vm *VM) popHandler(handlerBase int) (*handler, bool) {
	if len(vm.handlers) <= handlerBase {
		return nil, false
	}
	h := vm.handlers[len(vm.handlers)-1]
	vm.handlers = vm.handlers[:len(vm.handlers)-1]
	return h, true
}

func (vm *VM) constString(code *bytecode.Bytecode, idx uint16) (string, *kerr.Error) {
	c, ok := code.Constant(idx)
	if !ok {
		return "", kerr.Internalf("constant index %d out of range", idx)
	}
	sv, ok := c.(*value.StringValue)
	if !ok {
		return "", kerr.Internalf("constant %d is not a string", idx)
	}
	return sv.String(), nil
}

func (vm *VM) lookupCell(name string) *cell {
	if fr := vm.currentFrame(); fr != nil {
		if c, ok := fr.locals[name]; ok {
			return c
		}
	}
	if c, ok := vm.globals.Get(name); ok {
		return c
	}
	if dot := strings.IndexByte(name, '.'); dot >= 0 {
		if mod, ok := vm.imports[name[:dot]]; ok {
			if c, ok := mod.innerVM.globals.Get(name[dot+1:]); ok {
				return c
			}
		}
	}
	return nil
}

func (vm *VM) storeVar(name string, val value.Value, mutable bool, typeTag string) *kerr.Error {
	if typeTag != "" && !value.IsType(val, typeTag) {
		return kerr.ValueErrorf("cannot bind %q: value has type %s, expected %s", name, val.Kind(), typeTag)
	}
	if fr := vm.currentFrame(); fr != nil {
		if c, ok := fr.locals[name]; ok {
			return c.assign(val)
		}
		if len(fr.locals) >= LocalsMax {
			return kerr.Runtimef("local variable limit exceeded (max %d)", LocalsMax)
		}
		fr.locals[name] = newCell(name, val, mutable, typeTag)
		return nil
	}
	if c, ok := vm.globals.Get(name); ok {
		return c.assign(val)
	}
	if vm.globals.Count() >= GlobalsMax {
		return kerr.Runtimef("global variable limit exceeded (max %d)", GlobalsMax)
	}
	vm.globals.Put(name, newCell(name, val, mutable, typeTag))
	return nil
}
