package vm_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kronoslang/kronos/internal/bytecode"
	"github.com/kronoslang/kronos/internal/kerr"
	"github.com/kronoslang/kronos/internal/value"
	"github.com/kronoslang/kronos/internal/vm"
)

// mapLoader is a test-only ModuleLoader: it serves pre-built Bytecode by
// resolved path instead of running a real lexer/parser/compiler, which is
// out of scope for this package.
type mapLoader struct {
	units map[string]*bytecode.Bytecode
}

func (l *mapLoader) Load(resolvedPath string) (*bytecode.Bytecode, error) {
	code, ok := l.units[resolvedPath]
	if !ok {
		return nil, fmt.Errorf("no such module: %s", resolvedPath)
	}
	return code, nil
}

// squareModule builds a tiny module whose top-level defines a `square`
// function and returns nil, per the module-call protocol.
func squareModule(t *testing.T) *bytecode.Bytecode {
	t.Helper()
	b := bytecode.NewBuilder()
	nameSquare := b.AddConstant(value.NewString("square"))
	paramN := b.AddConstant(value.NewString("n"))
	b.DefineFunc(nameSquare, []uint16{paramN}, "body", "end")
	b.Label("body").
		LoadVar(paramN).LoadVar(paramN).Mul().ReturnVal()
	b.Label("end")
	b.Halt()
	code, err := b.Build()
	require.NoError(t, err)
	return code
}

// scenario 6: import "./util.kr" as util; print util.square(5) -> 25
func TestEndToEndModuleImportAndCall(t *testing.T) {
	loader := &mapLoader{units: map[string]*bytecode.Bytecode{
		"util.kr": squareModule(t),
	}}

	b := bytecode.NewBuilder()
	aliasUtil := b.AddConstant(value.NewString("util"))
	pathUtil := b.AddConstant(value.NewString("./util.kr"))
	nameCall := b.AddConstant(value.NewString("util.square"))
	c5 := b.AddConstant(value.Number(5))
	b.Import(aliasUtil, pathUtil).
		LoadConst(c5).CallFunc(nameCall, 1).Print().Halt()
	code, err := b.Build()
	require.NoError(t, err)

	m := vm.New()
	m.SetModuleLoader(loader)
	var buf bytes.Buffer
	m.SetStdout(&buf)
	ret, rerr := m.RunProgram(code)
	if ret != nil {
		ret.Release()
	}
	require.Nil(t, rerr)
	assert.Equal(t, "25\n", buf.String())
}

func TestModuleImportIsCachedAcrossAliases(t *testing.T) {
	loader := &mapLoader{units: map[string]*bytecode.Bytecode{
		"util.kr": squareModule(t),
	}}

	b := bytecode.NewBuilder()
	alias1 := b.AddConstant(value.NewString("a"))
	alias2 := b.AddConstant(value.NewString("b"))
	path := b.AddConstant(value.NewString("./util.kr"))
	nameCallA := b.AddConstant(value.NewString("a.square"))
	nameCallB := b.AddConstant(value.NewString("b.square"))
	c3 := b.AddConstant(value.Number(3))
	c4 := b.AddConstant(value.Number(4))
	b.Import(alias1, path).Import(alias2, path).
		LoadConst(c3).CallFunc(nameCallA, 1).Print().
		LoadConst(c4).CallFunc(nameCallB, 1).Print().
		Halt()
	code, err := b.Build()
	require.NoError(t, err)

	m := vm.New()
	m.SetModuleLoader(loader)
	var buf bytes.Buffer
	m.SetStdout(&buf)
	ret, rerr := m.RunProgram(code)
	if ret != nil {
		ret.Release()
	}
	require.Nil(t, rerr)
	assert.Equal(t, "9\n16\n", buf.String())
}

func TestUndefinedModuleFunctionIsNotFound(t *testing.T) {
	loader := &mapLoader{units: map[string]*bytecode.Bytecode{
		"util.kr": squareModule(t),
	}}

	b := bytecode.NewBuilder()
	alias := b.AddConstant(value.NewString("util"))
	path := b.AddConstant(value.NewString("./util.kr"))
	nameCall := b.AddConstant(value.NewString("util.cube"))
	c2 := b.AddConstant(value.Number(2))
	b.Import(alias, path).LoadConst(c2).CallFunc(nameCall, 1).Print().Halt()
	code, err := b.Build()
	require.NoError(t, err)

	m := vm.New()
	m.SetModuleLoader(loader)
	m.SetStdout(&bytes.Buffer{})
	_, rerr := m.RunProgram(code)
	require.NotNil(t, rerr)
	assert.Equal(t, kerr.NotFound, rerr.Kind)
}

func TestImportWithoutLoaderIsAnIOError(t *testing.T) {
	b := bytecode.NewBuilder()
	alias := b.AddConstant(value.NewString("util"))
	path := b.AddConstant(value.NewString("./util.kr"))
	b.Import(alias, path).Halt()
	code, err := b.Build()
	require.NoError(t, err)

	m := vm.New()
	m.SetStdout(&bytes.Buffer{})
	_, rerr := m.RunProgram(code)
	require.NotNil(t, rerr)
	assert.Equal(t, kerr.Runtime, rerr.Kind)
}

// selfImportingModule builds a unit whose own source re-imports itself under
// its own resolved path, the shape needed to drive the loading-stack cycle
// check in internal/vm/module.go.
func selfImportingModule(t *testing.T) *bytecode.Bytecode {
	t.Helper()
	b := bytecode.NewBuilder()
	alias := b.AddConstant(value.NewString("self"))
	path := b.AddConstant(value.NewString("./self.kr"))
	b.Import(alias, path).Halt()
	code, err := b.Build()
	require.NoError(t, err)
	return code
}

// TestCircularImportIsRejected exercises the "Circular import" universal
// invariant from spec §8: re-entering a module already on the loading-stack
// must fail with a clear runtime error rather than recursing forever.
func TestCircularImportIsRejected(t *testing.T) {
	loader := &mapLoader{units: map[string]*bytecode.Bytecode{
		"self.kr": selfImportingModule(t),
	}}

	b := bytecode.NewBuilder()
	alias := b.AddConstant(value.NewString("self"))
	path := b.AddConstant(value.NewString("./self.kr"))
	b.Import(alias, path).Halt()
	code, err := b.Build()
	require.NoError(t, err)

	m := vm.New()
	m.SetModuleLoader(loader)
	m.SetStdout(&bytes.Buffer{})
	_, rerr := m.RunProgram(code)
	require.NotNil(t, rerr)
	assert.Equal(t, kerr.Runtime, rerr.Kind)
	assert.Contains(t, rerr.Message, "circular import")
}

// globalDefiningModule builds a unit that binds a top-level variable named
// "shared" and nothing else — used to show that a name bound inside an
// imported module never leaks into the importer's own name lookup.
func globalDefiningModule(t *testing.T) *bytecode.Bytecode {
	t.Helper()
	b := bytecode.NewBuilder()
	nameShared := b.AddConstant(value.NewString("shared"))
	c123 := b.AddConstant(value.Number(123))
	b.LoadConst(c123).StoreVar(nameShared, true, false, 0).Halt()
	code, err := b.Build()
	require.NoError(t, err)
	return code
}

// TestModuleGlobalsAreNotVisibleBareNamed exercises the "Module isolation"
// universal invariant from spec §8: a global defined in an imported module
// is reachable only via its module alias, never under its bare name from the
// importer.
func TestModuleGlobalsAreNotVisibleBareNamed(t *testing.T) {
	loader := &mapLoader{units: map[string]*bytecode.Bytecode{
		"a.kr": globalDefiningModule(t),
	}}

	b := bytecode.NewBuilder()
	alias := b.AddConstant(value.NewString("a"))
	path := b.AddConstant(value.NewString("./a.kr"))
	nameShared := b.AddConstant(value.NewString("shared"))
	b.Import(alias, path).LoadVar(nameShared).Print().Halt()
	code, err := b.Build()
	require.NoError(t, err)

	m := vm.New()
	m.SetModuleLoader(loader)
	m.SetStdout(&bytes.Buffer{})
	_, rerr := m.RunProgram(code)
	require.NotNil(t, rerr)
	assert.Equal(t, kerr.NotFound, rerr.Kind)
}
