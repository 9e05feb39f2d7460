package bytecode

import (
	"fmt"

	"github.com/kronoslang/kronos/internal/value"
)

// Demos is a fixed registry of small, hand-assembled programs exercising
// the execution core end to end. cmd/kronos's run command and the vm
// package's golden-file tests both draw from this registry, the same role
// asm.go's Builder plays for ad hoc tests: a way to exercise the VM without
// the (out-of-scope) lexer/parser/compiler pipeline.
var Demos = map[string]func() (*Bytecode, error){
	"factorial": demoFactorial,
	"sort":      demoSort,
	"try-catch": demoTryCatch,
	"map-get":   demoMapGet,
}

// DemoNames returns the registry's keys in a stable order, for usage text
// and command-line validation.
func DemoNames() []string {
	names := make([]string, 0, len(Demos))
	for k := range Demos {
		names = append(names, k)
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}

// demoFactorial computes 6! recursively and prints the result.
func demoFactorial() (*Bytecode, error) {
	b := NewBuilder()
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
	return b.Build()
}

// demoSort sorts a three-element numeric list with the sort built-in.
func demoSort() (*Bytecode, error) {
	b := NewBuilder()
	c2 := b.AddConstant(value.Number(2))
	c1 := b.AddConstant(value.Number(1))
	c3 := b.AddConstant(value.Number(3))
	nameSort := b.AddConstant(value.NewString("sort"))
	b.LoadConst(c2).LoadConst(c1).LoadConst(c3).ListNew(3).
		CallFunc(nameSort, 1).Print().Halt()
	return b.Build()
}

// demoTryCatch divides by zero inside a try block and prints the caught
// error's message.
func demoTryCatch() (*Bytecode, error) {
	b := NewBuilder()
	c1 := b.AddConstant(value.Number(1))
	c0 := b.AddConstant(value.Number(0))
	nameX := b.AddConstant(value.NewString("x"))
	typeRuntimeError := b.AddConstant(value.NewString("RuntimeError"))
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
	return b.Build()
}

// demoMapGet builds a one-entry map and reads the value back out by key.
func demoMapGet() (*Bytecode, error) {
	b := NewBuilder()
	nameM := b.AddConstant(value.NewString("m"))
	keyK := b.AddConstant(value.NewString("k"))
	c42 := b.AddConstant(value.Number(42))

	b.MapNew(0).StoreVar(nameM, true, false, 0).
		LoadVar(nameM).LoadConst(keyK).LoadConst(c42).MapSet().
		LoadVar(nameM).LoadConst(keyK).ListGet().Print().Halt()
	return b.Build()
}

// BuildDemo looks up name in Demos and builds it, or returns an error
// naming the valid choices.
func BuildDemo(name string) (*Bytecode, error) {
	fn, ok := Demos[name]
	if !ok {
		return nil, fmt.Errorf("unknown demo %q, valid demos: %v", name, DemoNames())
	}
	return fn()
}
