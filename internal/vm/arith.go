package vm

import (
	"math"

	"github.com/kronoslang/kronos/internal/bytecode"
	"github.com/kronoslang/kronos/internal/kerr"
	"github.com/kronoslang/kronos/internal/value"
)

// displayString renders v for ADD's string-concatenation fallback: a
// top-level string contributes its raw bytes, not a quoted form.
func displayString(v value.Value) string {
	return v.String()
}

// binaryAdd implements ADD's overload: number+number is numeric
// addition; any other pairing converts each operand to its printable form
// and concatenates left then right.
func (vm *VM) binaryAdd() *kerr.Error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		b.Release()
		return err
	}
	defer a.Release()
	defer b.Release()

	an, aok := a.(value.Number)
	bn, bok := b.(value.Number)
	if aok && bok {
		return vm.push(an + bn)
	}
	s := value.NewString(displayString(a) + displayString(b))
	perr := vm.push(s)
	s.Release()
	return perr
}

// binaryArith implements SUB/MUL/DIV/MOD, all of which require two numbers.
// DIV and MOD raise a Runtime error on a zero divisor rather than producing
// NaN/Inf.
func (vm *VM) binaryArith(op bytecode.Opcode) *kerr.Error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		b.Release()
		return err
	}
	defer a.Release()
	defer b.Release()

	an, aok := a.(value.Number)
	bn, bok := b.(value.Number)
	if !aok || !bok {
		return kerr.ValueErrorf("%s requires two numbers, got %s and %s", op, a.Kind(), b.Kind())
	}
	switch op {
	case bytecode.SUB:
		return vm.push(an - bn)
	case bytecode.MUL:
		return vm.push(an * bn)
	case bytecode.DIV:
		if bn == 0 {
			return kerr.Runtimef("Cannot divide by zero")
		}
		return vm.push(an / bn)
	case bytecode.MOD:
		if bn == 0 {
			return kerr.Runtimef("Cannot divide by zero")
		}
		return vm.push(value.Number(math.Mod(float64(an), float64(bn))))
	default:
		return kerr.Internalf("binaryArith called with non-arithmetic opcode %s", op)
	}
}

// compare implements GT/LT/GTE/LTE via value.Less: only numbers and
// strings are ordered.
func (vm *VM) compare(op bytecode.Opcode) *kerr.Error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		b.Release()
		return err
	}
	defer a.Release()
	defer b.Release()

	var result bool
	var cmpErr error
	switch op {
	case bytecode.GT:
		result, cmpErr = value.Less(b, a)
	case bytecode.LT:
		result, cmpErr = value.Less(a, b)
	case bytecode.GTE:
		lt, e := value.Less(a, b)
		result, cmpErr = !lt, e
	case bytecode.LTE:
		gt, e := value.Less(b, a)
		result, cmpErr = !gt, e
	}
	if cmpErr != nil {
		return kerr.ValueErrorf("%v", cmpErr)
	}
	return vm.push(value.Bool(result))
}
