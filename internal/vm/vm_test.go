package vm_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kronoslang/kronos/internal/bytecode"
	"github.com/kronoslang/kronos/internal/kerr"
	"github.com/kronoslang/kronos/internal/value"
	"github.com/kronoslang/kronos/internal/vm"
)

func runAndCapture(t *testing.T, code *bytecode.Bytecode) (string, *kerr.Error) {
	t.Helper()
	m := vm.New()
	var buf bytes.Buffer
	m.SetStdout(&buf)
	ret, err := m.RunProgram(code)
	if ret != nil {
		ret.Release()
	}
	return buf.String(), err
}

// scenario 1: set x to 3 plus 4 / print x -> 7
func TestEndToEndArithmeticPrint(t *testing.T) {
	b := bytecode.NewBuilder()
	c3 := b.AddConstant(value.Number(3))
	c4 := b.AddConstant(value.Number(4))
	nameX := b.AddConstant(value.NewString("x"))
	b.LoadConst(c3).LoadConst(c4).Add().StoreVar(nameX, true, false, 0).LoadVar(nameX).Print().Halt()
	code, buildErr := b.Build()
	require.NoError(t, buildErr)

	out, err := runAndCapture(t, code)
	require.Nil(t, err)
	assert.Equal(t, "7\n", out)
}

// scenario 2: set xs to list 2,1,3 / print sort(xs) -> [1, 2, 3]
func TestEndToEndSort(t *testing.T) {
	b := bytecode.NewBuilder()
	c2 := b.AddConstant(value.Number(2))
	c1 := b.AddConstant(value.Number(1))
	c3 := b.AddConstant(value.Number(3))
	nameSort := b.AddConstant(value.NewString("sort"))
	b.LoadConst(c2).LoadConst(c1).LoadConst(c3).ListNew(3).
		CallFunc(nameSort, 1).Print().Halt()
	code, buildErr := b.Build()
	require.NoError(t, buildErr)

	out, err := runAndCapture(t, code)
	require.Nil(t, err)
	assert.Equal(t, "[1, 2, 3]\n", out)
}

// scenario 3: recursive factorial, call fact with 6 -> 720
func TestEndToEndRecursiveFactorial(t *testing.T) {
	b := bytecode.NewBuilder()
	nameFact := b.AddConstant(value.NewString("fact"))
	paramN := b.AddConstant(value.NewString("n"))
	const2 := b.AddConstant(value.Number(2))
	const1 := b.AddConstant(value.Number(1))
	const6 := b.AddConstant(value.Number(6))

	b.DefineFunc(nameFact, []uint16{paramN}, "fact_body", "fact_end")
	b.Label("fact_body").
		LoadVar(paramN).LoadConst(const2).Lt().
		JumpIfFalse("else").
		LoadConst(const1).ReturnVal()
	b.Label("else").
		LoadVar(paramN).LoadVar(paramN).LoadConst(const1).Sub().
		CallFunc(nameFact, 1).Mul().ReturnVal()
	b.Label("fact_end")
	b.LoadConst(const6).CallFunc(nameFact, 1).Print().Halt()

	code, buildErr := b.Build()
	require.NoError(t, buildErr)

	out, err := runAndCapture(t, code)
	require.Nil(t, err)
	assert.Equal(t, "720\n", out)
}

// scenario 4: try/catch around a division by zero
func TestEndToEndTryCatchDivideByZero(t *testing.T) {
	b := bytecode.NewBuilder()
	c1 := b.AddConstant(value.Number(1))
	c0 := b.AddConstant(value.Number(0))
	nameX := b.AddConstant(value.NewString("x"))
	typeRuntimeError := b.AddConstant(value.NewString(kerr.TypeRuntimeError))
	nameE := b.AddConstant(value.NewString("e"))

	b.TryEnter("handler").
		LoadConst(c1).LoadConst(c0).Div().
		StoreVar(nameX, true, false, 0).
		Jump("exit")
	b.Label("handler").
		Catch(typeRuntimeError, nameE).
		LoadVar(nameE).Print()
	b.Label("exit")
	b.TryExit("")
	b.Halt()

	code, buildErr := b.Build()
	require.NoError(t, buildErr)

	out, err := runAndCapture(t, code)
	require.Nil(t, err)
	assert.Contains(t, out, "Cannot divide by zero")
}

// scenario 5: map literal get
func TestEndToEndMapGet(t *testing.T) {
	b := bytecode.NewBuilder()
	nameM := b.AddConstant(value.NewString("m"))
	keyK := b.AddConstant(value.NewString("k"))
	c42 := b.AddConstant(value.Number(42))

	b.MapNew(0).StoreVar(nameM, true, false, 0).
		LoadVar(nameM).LoadConst(keyK).LoadConst(c42).MapSet().
		LoadVar(nameM).LoadConst(keyK).ListGet().Print().Halt()

	code, buildErr := b.Build()
	require.NoError(t, buildErr)

	out, err := runAndCapture(t, code)
	require.Nil(t, err)
	assert.Equal(t, "42\n", out)
}

func TestImmutableGlobalRejectsReassignment(t *testing.T) {
	b := bytecode.NewBuilder()
	c1 := b.AddConstant(value.Number(1))
	c2 := b.AddConstant(value.Number(2))
	nameX := b.AddConstant(value.NewString("x"))
	b.LoadConst(c1).StoreVar(nameX, false, false, 0).
		LoadConst(c2).StoreVar(nameX, false, false, 0).Halt()
	code, buildErr := b.Build()
	require.NoError(t, buildErr)

	_, err := runAndCapture(t, code)
	require.NotNil(t, err)
	assert.Equal(t, kerr.Runtime, err.Kind)
}

func TestOperandStackUnderflowIsRuntimeError(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Add().Halt()
	code, buildErr := b.Build()
	require.NoError(t, buildErr)

	_, err := runAndCapture(t, code)
	require.NotNil(t, err)
	assert.Equal(t, kerr.Runtime, err.Kind)
}

func TestPiIsPreboundAndImmutable(t *testing.T) {
	b := bytecode.NewBuilder()
	c1 := b.AddConstant(value.Number(1))
	namePi := b.AddConstant(value.NewString("Pi"))
	b.LoadConst(c1).StoreVar(namePi, true, false, 0).Halt()
	code, buildErr := b.Build()
	require.NoError(t, buildErr)

	_, err := runAndCapture(t, code)
	require.NotNil(t, err)
	assert.Equal(t, kerr.Runtime, err.Kind)
}
