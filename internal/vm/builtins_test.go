package vm_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kronoslang/kronos/internal/bytecode"
	"github.com/kronoslang/kronos/internal/kerr"
	"github.com/kronoslang/kronos/internal/value"
)

// callBuiltin assembles a program that pushes args (in order), calls name
// with them, prints the result, and halts. It returns the printed output
// (without the trailing newline PRINT adds) and any error the call raised.
func callBuiltin(t *testing.T, name string, args []value.Value) (string, *kerr.Error) {
	t.Helper()
	b := bytecode.NewBuilder()
	nameIdx := b.AddConstant(value.NewString(name))
	argIdx := make([]uint16, len(args))
	for i, a := range args {
		argIdx[i] = b.AddConstant(a)
	}
	for _, idx := range argIdx {
		b.LoadConst(idx)
	}
	b.CallFunc(nameIdx, uint8(len(args))).Print().Halt()
	code, buildErr := b.Build()
	require.NoError(t, buildErr)

	out, err := runAndCapture(t, code)
	if len(out) > 0 && out[len(out)-1] == '\n' {
		out = out[:len(out)-1]
	}
	return out, err
}

func str(s string) value.Value  { return value.NewString(s) }
func num(n float64) value.Value { return value.Number(n) }

func requireRuntimeValueError(t *testing.T, err *kerr.Error) {
	t.Helper()
	require.NotNil(t, err)
	assert.Equal(t, kerr.Runtime, err.Kind)
	assert.Equal(t, kerr.TypeValueError, err.Type)
}

// --- arithmetic helpers ---

func TestBuiltinArithmeticHelpers(t *testing.T) {
	out, err := callBuiltin(t, "add", []value.Value{num(2), num(3)})
	require.Nil(t, err)
	assert.Equal(t, "5", out)

	out, err = callBuiltin(t, "subtract", []value.Value{num(5), num(3)})
	require.Nil(t, err)
	assert.Equal(t, "2", out)

	out, err = callBuiltin(t, "multiply", []value.Value{num(4), num(3)})
	require.Nil(t, err)
	assert.Equal(t, "12", out)

	out, err = callBuiltin(t, "divide", []value.Value{num(9), num(3)})
	require.Nil(t, err)
	assert.Equal(t, "3", out)
}

func TestBuiltinDivideByZeroIsRuntimeError(t *testing.T) {
	_, err := callBuiltin(t, "divide", []value.Value{num(1), num(0)})
	require.NotNil(t, err)
	assert.Equal(t, kerr.Runtime, err.Kind)
	assert.Contains(t, err.Message, "Cannot divide by zero")
}

func TestBuiltinArithmeticWrongArgCount(t *testing.T) {
	_, err := callBuiltin(t, "add", []value.Value{num(1)})
	requireRuntimeValueError(t, err)
}

func TestBuiltinArithmeticWrongType(t *testing.T) {
	_, err := callBuiltin(t, "add", []value.Value{num(1), str("x")})
	requireRuntimeValueError(t, err)
}

// --- math ---

func TestBuiltinMath(t *testing.T) {
	cases := []struct {
		name string
		args []value.Value
		want string
	}{
		{"sqrt", []value.Value{num(9)}, "3"},
		{"power", []value.Value{num(2), num(10)}, "1024"},
		{"abs", []value.Value{num(-5)}, "5"},
		{"round", []value.Value{num(2.6)}, "3"},
		{"floor", []value.Value{num(2.9)}, "2"},
		{"ceil", []value.Value{num(2.1)}, "3"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out, err := callBuiltin(t, c.name, c.args)
			require.Nil(t, err)
			assert.Equal(t, c.want, out)
		})
	}
}

func TestBuiltinMathRejectsNonNumber(t *testing.T) {
	_, err := callBuiltin(t, "sqrt", []value.Value{str("nine")})
	requireRuntimeValueError(t, err)
}

func TestBuiltinRandIsWithinUnitInterval(t *testing.T) {
	out, err := callBuiltin(t, "rand", nil)
	require.Nil(t, err)
	assert.NotEmpty(t, out)
	assert.NotContains(t, out, "-")
}

func TestBuiltinMinMaxVariadic(t *testing.T) {
	out, err := callBuiltin(t, "min", []value.Value{num(3), num(1), num(2)})
	require.Nil(t, err)
	assert.Equal(t, "1", out)

	out, err = callBuiltin(t, "max", []value.Value{num(3), num(1), num(2)})
	require.Nil(t, err)
	assert.Equal(t, "3", out)

	out, err = callBuiltin(t, "min", []value.Value{num(7)})
	require.Nil(t, err)
	assert.Equal(t, "7", out)
}

func TestBuiltinMinMaxRequiresAtLeastOneArg(t *testing.T) {
	_, err := callBuiltin(t, "min", nil)
	requireRuntimeValueError(t, err)

	_, err = callBuiltin(t, "max", nil)
	requireRuntimeValueError(t, err)
}

// --- strings ---

func TestBuiltinStringCaseAndTrim(t *testing.T) {
	out, err := callBuiltin(t, "uppercase", []value.Value{str("Kronos")})
	require.Nil(t, err)
	assert.Equal(t, "KRONOS", out)

	out, err = callBuiltin(t, "lowercase", []value.Value{str("Kronos")})
	require.Nil(t, err)
	assert.Equal(t, "kronos", out)

	out, err = callBuiltin(t, "trim", []value.Value{str("  hi  ")})
	require.Nil(t, err)
	assert.Equal(t, "hi", out)
}

func TestBuiltinSplitAndJoinRoundTrip(t *testing.T) {
	out, err := callBuiltin(t, "split", []value.Value{str("a,b,c"), str(",")})
	require.Nil(t, err)
	assert.Equal(t, `["a", "b", "c"]`, out)

	b := bytecode.NewBuilder()
	nameSplit := b.AddConstant(value.NewString("split"))
	nameJoin := b.AddConstant(value.NewString("join"))
	s := b.AddConstant(value.NewString("a,b,c"))
	d := b.AddConstant(value.NewString(","))
	b.LoadConst(s).LoadConst(d).CallFunc(nameSplit, 2).
		LoadConst(d).CallFunc(nameJoin, 2).Print().Halt()
	code, buildErr := b.Build()
	require.NoError(t, buildErr)
	out2, rerr := runAndCapture(t, code)
	require.Nil(t, rerr)
	assert.Equal(t, "a,b,c\n", out2)
}

func TestBuiltinJoinRejectsNonStringElements(t *testing.T) {
	b := bytecode.NewBuilder()
	nameJoin := b.AddConstant(value.NewString("join"))
	c1 := b.AddConstant(value.Number(1))
	d := b.AddConstant(value.NewString(","))
	b.LoadConst(c1).ListNew(1).LoadConst(d).CallFunc(nameJoin, 2).Print().Halt()
	code, buildErr := b.Build()
	require.NoError(t, buildErr)
	_, err := runAndCapture(t, code)
	requireRuntimeValueError(t, err)
}

func TestBuiltinContainsStartsEndsWith(t *testing.T) {
	out, err := callBuiltin(t, "contains", []value.Value{str("hello world"), str("wor")})
	require.Nil(t, err)
	assert.Equal(t, "true", out)

	out, err = callBuiltin(t, "contains", []value.Value{str("hello world"), str("xyz")})
	require.Nil(t, err)
	assert.Equal(t, "false", out)

	out, err = callBuiltin(t, "starts_with", []value.Value{str("hello"), str("he")})
	require.Nil(t, err)
	assert.Equal(t, "true", out)

	out, err = callBuiltin(t, "ends_with", []value.Value{str("hello"), str("lo")})
	require.Nil(t, err)
	assert.Equal(t, "true", out)
}

func TestBuiltinReplace(t *testing.T) {
	out, err := callBuiltin(t, "replace", []value.Value{str("foo bar foo"), str("foo"), str("baz")})
	require.Nil(t, err)
	assert.Equal(t, "baz bar baz", out)
}

func TestBuiltinToStringToNumberToBool(t *testing.T) {
	out, err := callBuiltin(t, "to_string", []value.Value{num(42)})
	require.Nil(t, err)
	assert.Equal(t, "42", out)

	out, err = callBuiltin(t, "to_number", []value.Value{str("3.5")})
	require.Nil(t, err)
	assert.Equal(t, "3.5", out)

	out, err = callBuiltin(t, "to_bool", []value.Value{str("")})
	require.Nil(t, err)
	assert.Equal(t, "false", out)

	out, err = callBuiltin(t, "to_bool", []value.Value{str("nonempty")})
	require.Nil(t, err)
	assert.Equal(t, "true", out)
}

func TestBuiltinToNumberRejectsUnparseable(t *testing.T) {
	_, err := callBuiltin(t, "to_number", []value.Value{str("not a number")})
	requireRuntimeValueError(t, err)
}

// --- collections ---

func TestBuiltinLenAcrossKinds(t *testing.T) {
	b := bytecode.NewBuilder()
	nameLen := b.AddConstant(value.NewString("len"))
	c1 := b.AddConstant(value.Number(1))
	c2 := b.AddConstant(value.Number(2))
	c3 := b.AddConstant(value.Number(3))
	b.LoadConst(c1).LoadConst(c2).LoadConst(c3).ListNew(3).
		CallFunc(nameLen, 1).Print().Halt()
	code, buildErr := b.Build()
	require.NoError(t, buildErr)
	out, err := runAndCapture(t, code)
	require.Nil(t, err)
	assert.Equal(t, "3\n", out)

	out2, err := callBuiltin(t, "len", []value.Value{str("hello")})
	require.Nil(t, err)
	assert.Equal(t, "5", out2)

	b2 := bytecode.NewBuilder()
	nameLen2 := b2.AddConstant(value.NewString("len"))
	start := b2.AddConstant(value.Number(0))
	end := b2.AddConstant(value.Number(4))
	step := b2.AddConstant(value.Number(1))
	b2.LoadConst(start).LoadConst(end).LoadConst(step).RangeNew().
		CallFunc(nameLen2, 1).Print().Halt()
	code2, buildErr2 := b2.Build()
	require.NoError(t, buildErr2)
	out3, err := runAndCapture(t, code2)
	require.Nil(t, err)
	assert.Equal(t, "5\n", out3)
}

func TestBuiltinLenRejectsScalar(t *testing.T) {
	_, err := callBuiltin(t, "len", []value.Value{num(1)})
	requireRuntimeValueError(t, err)
}

func TestBuiltinReverse(t *testing.T) {
	b := bytecode.NewBuilder()
	nameReverse := b.AddConstant(value.NewString("reverse"))
	c1 := b.AddConstant(value.Number(1))
	c2 := b.AddConstant(value.Number(2))
	c3 := b.AddConstant(value.Number(3))
	b.LoadConst(c1).LoadConst(c2).LoadConst(c3).ListNew(3).
		CallFunc(nameReverse, 1).Print().Halt()
	code, buildErr := b.Build()
	require.NoError(t, buildErr)
	out, err := runAndCapture(t, code)
	require.Nil(t, err)
	assert.Equal(t, "[3, 2, 1]\n", out)
}

func TestBuiltinReverseRejectsNonList(t *testing.T) {
	_, err := callBuiltin(t, "reverse", []value.Value{str("abc")})
	requireRuntimeValueError(t, err)
}

func TestBuiltinSortNumbersAndStrings(t *testing.T) {
	b := bytecode.NewBuilder()
	nameSort := b.AddConstant(value.NewString("sort"))
	c3 := b.AddConstant(value.Number(3))
	c1 := b.AddConstant(value.Number(1))
	c2 := b.AddConstant(value.Number(2))
	b.LoadConst(c3).LoadConst(c1).LoadConst(c2).ListNew(3).
		CallFunc(nameSort, 1).Print().Halt()
	code, buildErr := b.Build()
	require.NoError(t, buildErr)
	out, err := runAndCapture(t, code)
	require.Nil(t, err)
	assert.Equal(t, "[1, 2, 3]\n", out)

	b2 := bytecode.NewBuilder()
	nameSort2 := b2.AddConstant(value.NewString("sort"))
	sb := b2.AddConstant(value.NewString("banana"))
	sa := b2.AddConstant(value.NewString("apple"))
	sc := b2.AddConstant(value.NewString("cherry"))
	b2.LoadConst(sb).LoadConst(sa).LoadConst(sc).ListNew(3).
		CallFunc(nameSort2, 1).Print().Halt()
	code2, buildErr2 := b2.Build()
	require.NoError(t, buildErr2)
	out2, err := runAndCapture(t, code2)
	require.Nil(t, err)
	assert.Equal(t, `["apple", "banana", "cherry"]`+"\n", out2)
}

// TestBuiltinSortRejectsMixedTypeList checks that a mixed-type list is a
// sort error, not a best-effort comparison.
func TestBuiltinSortRejectsMixedTypeList(t *testing.T) {
	b := bytecode.NewBuilder()
	nameSort := b.AddConstant(value.NewString("sort"))
	c1 := b.AddConstant(value.Number(1))
	s2 := b.AddConstant(value.NewString("two"))
	b.LoadConst(c1).LoadConst(s2).ListNew(2).
		CallFunc(nameSort, 1).Print().Halt()
	code, buildErr := b.Build()
	require.NoError(t, buildErr)
	_, err := runAndCapture(t, code)
	requireRuntimeValueError(t, err)
}

func TestBuiltinSortRejectsNonList(t *testing.T) {
	_, err := callBuiltin(t, "sort", []value.Value{num(1)})
	requireRuntimeValueError(t, err)
}

func TestBuiltinSortEmptyList(t *testing.T) {
	b := bytecode.NewBuilder()
	nameSort := b.AddConstant(value.NewString("sort"))
	b.ListNew(0).CallFunc(nameSort, 1).Print().Halt()
	code, buildErr := b.Build()
	require.NoError(t, buildErr)
	out, err := runAndCapture(t, code)
	require.Nil(t, err)
	assert.Equal(t, "[]\n", out)
}

// --- filesystem ---

func TestBuiltinWriteThenReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "greeting.txt")

	_, err := callBuiltin(t, "write_file", []value.Value{str(path), str("hello")})
	require.Nil(t, err)

	out, err := callBuiltin(t, "read_file", []value.Value{str(path)})
	require.Nil(t, err)
	assert.Equal(t, "hello", out)

	out, err = callBuiltin(t, "file_exists", []value.Value{str(path)})
	require.Nil(t, err)
	assert.Equal(t, "true", out)

	out, err = callBuiltin(t, "file_exists", []value.Value{str(path + ".missing")})
	require.Nil(t, err)
	assert.Equal(t, "false", out)
}

func TestBuiltinReadFileMissingIsRuntimeError(t *testing.T) {
	_, err := callBuiltin(t, "read_file", []value.Value{str(filepath.Join(t.TempDir(), "nope.txt"))})
	require.NotNil(t, err)
	assert.Equal(t, kerr.Runtime, err.Kind)
}

func TestBuiltinReadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lines.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644))

	b := bytecode.NewBuilder()
	nameReadLines := b.AddConstant(value.NewString("read_lines"))
	p := b.AddConstant(value.NewString(path))
	b.LoadConst(p).CallFunc(nameReadLines, 1).Print().Halt()
	code, buildErr := b.Build()
	require.NoError(t, buildErr)
	out, err := runAndCapture(t, code)
	require.Nil(t, err)
	assert.Equal(t, `["one", "two", "three"]`+"\n", out)
}

func TestBuiltinListFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("y"), 0o644))

	b := bytecode.NewBuilder()
	nameListFiles := b.AddConstant(value.NewString("list_files"))
	nameLen := b.AddConstant(value.NewString("len"))
	d := b.AddConstant(value.NewString(dir))
	b.LoadConst(d).CallFunc(nameListFiles, 1).CallFunc(nameLen, 1).Print().Halt()
	code, buildErr := b.Build()
	require.NoError(t, buildErr)
	out, err := runAndCapture(t, code)
	require.Nil(t, err)
	assert.Equal(t, "2\n", out)
}

func TestBuiltinListFilesRejectsMissingDir(t *testing.T) {
	_, err := callBuiltin(t, "list_files", []value.Value{str(filepath.Join(t.TempDir(), "nope"))})
	require.NotNil(t, err)
	assert.Equal(t, kerr.Runtime, err.Kind)
}

func TestBuiltinJoinPathDirnameBasename(t *testing.T) {
	out, err := callBuiltin(t, "join_path", []value.Value{str("a"), str("b"), str("c.txt")})
	require.Nil(t, err)
	assert.Equal(t, filepath.Join("a", "b", "c.txt"), out)

	out, err = callBuiltin(t, "dirname", []value.Value{str(filepath.Join("a", "b", "c.txt"))})
	require.Nil(t, err)
	assert.Equal(t, filepath.Join("a", "b"), out)

	out, err = callBuiltin(t, "basename", []value.Value{str(filepath.Join("a", "b", "c.txt"))})
	require.Nil(t, err)
	assert.Equal(t, "c.txt", out)
}

// --- regex ---

func TestBuiltinRegexMatchIsWholeStringAnchored(t *testing.T) {
	out, err := callBuiltin(t, "regex.match", []value.Value{str("abc123"), str("[a-z]+[0-9]+")})
	require.Nil(t, err)
	assert.Equal(t, "true", out)

	out, err = callBuiltin(t, "regex.match", []value.Value{str("abc123x"), str("[a-z]+[0-9]+")})
	require.Nil(t, err)
	assert.Equal(t, "false", out)
}

func TestBuiltinRegexSearchFindsSubstring(t *testing.T) {
	out, err := callBuiltin(t, "regex.search", []value.Value{str("hello 123 world"), str("[0-9]+")})
	require.Nil(t, err)
	assert.Equal(t, "123", out)
}

func TestBuiltinRegexSearchNoMatchIsNil(t *testing.T) {
	out, err := callBuiltin(t, "regex.search", []value.Value{str("hello world"), str("[0-9]+")})
	require.Nil(t, err)
	assert.Equal(t, "nil", out)
}

func TestBuiltinRegexFindAll(t *testing.T) {
	out, err := callBuiltin(t, "regex.findall", []value.Value{str("a1 b22 c333"), str("[0-9]+")})
	require.Nil(t, err)
	assert.Equal(t, `["1", "22", "333"]`, out)
}

// TestBuiltinRegexInvalidPatternIsRuntimeError exercises one of the Open
// Questions DESIGN.md resolves explicitly: a failed compile must not attempt
// to free a regex that was never successfully compiled.
func TestBuiltinRegexInvalidPatternIsRuntimeError(t *testing.T) {
	_, err := callBuiltin(t, "regex.match", []value.Value{str("abc"), str("[")})
	require.NotNil(t, err)
	assert.Equal(t, kerr.Runtime, err.Kind)

	_, err = callBuiltin(t, "regex.search", []value.Value{str("abc"), str("[")})
	require.NotNil(t, err)
	assert.Equal(t, kerr.Runtime, err.Kind)

	_, err = callBuiltin(t, "regex.findall", []value.Value{str("abc"), str("[")})
	require.NotNil(t, err)
	assert.Equal(t, kerr.Runtime, err.Kind)
}

func TestBuiltinUnknownFunctionIsNotFound(t *testing.T) {
	_, err := callBuiltin(t, "does_not_exist", nil)
	require.NotNil(t, err)
	assert.Equal(t, kerr.NotFound, err.Kind)
}
