package vm

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/kronoslang/kronos/internal/kerr"
	"github.com/kronoslang/kronos/internal/value"
)

// builtinFunc is a native function the VM dispatches directly from
// CALL_FUNC. args are borrowed (the caller releases them once the
// call returns); the returned Value is a fresh owned reference the caller
// will push onto the operand stack and then release.
type builtinFunc func(vm *VM, args []value.Value) (value.Value, *kerr.Error)

// builtins is the fixed registry of native functions. Dotted
// names (the regex namespace) are ordinary map keys, resolved by CALL_FUNC's
// exact-match check before it ever considers splitting on '.'.
var builtins map[string]builtinFunc

func init() {
	builtins = map[string]builtinFunc{
		"add":      biArith2(func(a, b float64) float64 { return a + b }),
		"subtract": biArith2(func(a, b float64) float64 { return a - b }),
		"multiply": biArith2(func(a, b float64) float64 { return a * b }),
		"divide":   biDivide,

		"sqrt":  biMath1(math.Sqrt),
		"power": biArith2(math.Pow),
		"abs":   biMath1(math.Abs),
		"round": biMath1(math.Round),
		"floor": biMath1(math.Floor),
		"ceil":  biMath1(math.Ceil),
		"rand":  biRand,
		"min":   biMinMax(false),
		"max":   biMinMax(true),

		"uppercase":   biStr1(strings.ToUpper),
		"lowercase":   biStr1(strings.ToLower),
		"trim":        biStr1(strings.TrimSpace),
		"split":       biSplit,
		"join":        biJoin,
		"contains":    biContains,
		"starts_with": biStartsWith,
		"ends_with":   biEndsWith,
		"replace":     biReplace,
		"to_string":   biToString,
		"to_number":   biToNumber,
		"to_bool":     biToBool,

		"len":     biLen,
		"reverse": biReverse,
		"sort":    biSort,

		"read_file":   biReadFile,
		"write_file":  biWriteFile,
		"read_lines":  biReadLines,
		"file_exists": biFileExists,
		"list_files":  biListFiles,
		"join_path":   biJoinPath,
		"dirname":     biDirname,
		"basename":    biBasename,

		"regex.match":   biRegexMatch,
		"regex.search":  biRegexSearch,
		"regex.findall": biRegexFindAll,
	}
}

func wantArgs(name string, args []value.Value, n int) *kerr.Error {
	if len(args) != n {
		return kerr.ValueErrorf("%s takes %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

func asNumber(v value.Value, who string) (float64, *kerr.Error) {
	n, ok := v.(value.Number)
	if !ok {
		return 0, kerr.ValueErrorf("%s requires a number, got %s", who, v.Kind())
	}
	return float64(n), nil
}

func asString(v value.Value, who string) (string, *kerr.Error) {
	s, ok := v.(*value.StringValue)
	if !ok {
		return "", kerr.ValueErrorf("%s requires a string, got %s", who, v.Kind())
	}
	return s.String(), nil
}

func biArith2(f func(a, b float64) float64) builtinFunc {
	return func(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
		if err := wantArgs("arithmetic built-in", args, 2); err != nil {
			return nil, err
		}
		a, err := asNumber(args[0], "this function")
		if err != nil {
			return nil, err
		}
		b, err := asNumber(args[1], "this function")
		if err != nil {
			return nil, err
		}
		return value.Number(f(a, b)), nil
	}
}

// biDivide implements the divide built-in with a single push on success —
// the source material double-pushed the result, a resolved bug (DESIGN.md).
func biDivide(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("divide", args, 2); err != nil {
		return nil, err
	}
	a, err := asNumber(args[0], "divide")
	if err != nil {
		return nil, err
	}
	b, err := asNumber(args[1], "divide")
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, kerr.Runtimef("Cannot divide by zero")
	}
	return value.Number(a / b), nil
}

func biMath1(f func(float64) float64) builtinFunc {
	return func(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
		if err := wantArgs("math built-in", args, 1); err != nil {
			return nil, err
		}
		a, err := asNumber(args[0], "this function")
		if err != nil {
			return nil, err
		}
		return value.Number(f(a)), nil
	}
}

func biRand(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("rand", args, 0); err != nil {
		return nil, err
	}
	return value.Number(rand.Float64()), nil
}

func biMinMax(wantMax bool) builtinFunc {
	return func(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
		if len(args) < 1 {
			name := "min"
			if wantMax {
				name = "max"
			}
			return nil, kerr.ValueErrorf("%s requires at least one argument", name)
		}
		best, err := asNumber(args[0], "min/max")
		if err != nil {
			return nil, err
		}
		for _, a := range args[1:] {
			n, err := asNumber(a, "min/max")
			if err != nil {
				return nil, err
			}
			if (wantMax && n > best) || (!wantMax && n < best) {
				best = n
			}
		}
		return value.Number(best), nil
	}
}

func biStr1(f func(string) string) builtinFunc {
	return func(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
		if err := wantArgs("string built-in", args, 1); err != nil {
			return nil, err
		}
		s, err := asString(args[0], "this function")
		if err != nil {
			return nil, err
		}
		return value.NewString(f(s)), nil
	}
}

func biSplit(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("split", args, 2); err != nil {
		return nil, err
	}
	s, err := asString(args[0], "split")
	if err != nil {
		return nil, err
	}
	delim, err := asString(args[1], "split")
	if err != nil {
		return nil, err
	}
	parts := strings.Split(s, delim)
	out := value.NewList(len(parts))
	for _, p := range parts {
		sv := value.NewString(p)
		out.Append(sv)
		sv.Release()
	}
	return out, nil
}

func biJoin(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("join", args, 2); err != nil {
		return nil, err
	}
	lst, ok := args[0].(*value.List)
	if !ok {
		return nil, kerr.ValueErrorf("join requires a list, got %s", args[0].Kind())
	}
	delim, err := asString(args[1], "join")
	if err != nil {
		return nil, err
	}
	parts := make([]string, lst.Len())
	for i, e := range lst.Elems() {
		s, ok := e.(*value.StringValue)
		if !ok {
			return nil, kerr.ValueErrorf("join requires a list of strings, found a %s", e.Kind())
		}
		parts[i] = s.String()
	}
	return value.NewString(strings.Join(parts, delim)), nil
}

func biContains(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("contains", args, 2); err != nil {
		return nil, err
	}
	s, err := asString(args[0], "contains")
	if err != nil {
		return nil, err
	}
	sub, err := asString(args[1], "contains")
	if err != nil {
		return nil, err
	}
	return value.Bool(strings.Contains(s, sub)), nil
}

func biStartsWith(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("starts_with", args, 2); err != nil {
		return nil, err
	}
	s, err := asString(args[0], "starts_with")
	if err != nil {
		return nil, err
	}
	prefix, err := asString(args[1], "starts_with")
	if err != nil {
		return nil, err
	}
	return value.Bool(strings.HasPrefix(s, prefix)), nil
}

func biEndsWith(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("ends_with", args, 2); err != nil {
		return nil, err
	}
	s, err := asString(args[0], "ends_with")
	if err != nil {
		return nil, err
	}
	suffix, err := asString(args[1], "ends_with")
	if err != nil {
		return nil, err
	}
	return value.Bool(strings.HasSuffix(s, suffix)), nil
}

func biReplace(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("replace", args, 3); err != nil {
		return nil, err
	}
	s, err := asString(args[0], "replace")
	if err != nil {
		return nil, err
	}
	old, err := asString(args[1], "replace")
	if err != nil {
		return nil, err
	}
	nw, err := asString(args[2], "replace")
	if err != nil {
		return nil, err
	}
	return value.NewString(strings.ReplaceAll(s, old, nw)), nil
}

func biToString(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("to_string", args, 1); err != nil {
		return nil, err
	}
	return value.NewString(args[0].String()), nil
}

func biToNumber(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("to_number", args, 1); err != nil {
		return nil, err
	}
	s, err := asString(args[0], "to_number")
	if err != nil {
		return nil, err
	}
	f, perr := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if perr != nil {
		return nil, kerr.ValueErrorf("cannot convert %q to a number", s)
	}
	return value.Number(f), nil
}

func biToBool(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("to_bool", args, 1); err != nil {
		return nil, err
	}
	return value.Bool(value.Truthy(args[0])), nil
}

func biLen(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("len", args, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case *value.List:
		return value.Number(v.Len()), nil
	case *value.StringValue:
		return value.Number(v.Len()), nil
	case value.Range:
		return value.Number(v.Len()), nil
	default:
		return nil, kerr.ValueErrorf("len does not accept a %s", args[0].Kind())
	}
}

func biReverse(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("reverse", args, 1); err != nil {
		return nil, err
	}
	lst, ok := args[0].(*value.List)
	if !ok {
		return nil, kerr.ValueErrorf("reverse requires a list, got %s", args[0].Kind())
	}
	return lst.Reverse(), nil
}

// biSort implements sort: a homogeneous list of numbers or strings;
// a mixed-type list is an error. It uses golang.org/x/exp/slices.SortFunc
// (the pack's sort-helper dependency) rather than the standard library's
// sort.Slice.
func biSort(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("sort", args, 1); err != nil {
		return nil, err
	}
	lst, ok := args[0].(*value.List)
	if !ok {
		return nil, kerr.ValueErrorf("sort requires a list, got %s", args[0].Kind())
	}
	elems := lst.Elems()
	if len(elems) == 0 {
		return value.NewList(0), nil
	}
	kind := elems[0].Kind()
	if kind != value.KindNumber && kind != value.KindString {
		return nil, kerr.ValueErrorf("sort requires a list of numbers or strings, found %s", kind)
	}
	copied := make([]value.Value, len(elems))
	for i, e := range elems {
		if e.Kind() != kind {
			for _, c := range copied[:i] {
				c.Release()
			}
			return nil, kerr.ValueErrorf("sort requires a homogeneous list: found %s mixed with %s", e.Kind(), kind)
		}
		copied[i] = e.Retain()
	}
	slices.SortFunc(copied, func(a, b value.Value) int {
		if lt, _ := value.Less(a, b); lt {
			return -1
		}
		if gt, _ := value.Less(b, a); gt {
			return 1
		}
		return 0
	})
	return value.NewListFrom(copied), nil
}

func biReadFile(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("read_file", args, 1); err != nil {
		return nil, err
	}
	path, err := asString(args[0], "read_file")
	if err != nil {
		return nil, err
	}
	data, rerr := os.ReadFile(path)
	if rerr != nil {
		return nil, kerr.IOf("read_file %q: %v", path, rerr)
	}
	return value.NewString(string(data)), nil
}

func biWriteFile(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("write_file", args, 2); err != nil {
		return nil, err
	}
	path, err := asString(args[0], "write_file")
	if err != nil {
		return nil, err
	}
	content, err := asString(args[1], "write_file")
	if err != nil {
		return nil, err
	}
	if werr := os.WriteFile(path, []byte(content), 0o644); werr != nil {
		return nil, kerr.IOf("write_file %q: %v", path, werr)
	}
	return value.NilValue(), nil
}

func biReadLines(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("read_lines", args, 1); err != nil {
		return nil, err
	}
	path, err := asString(args[0], "read_lines")
	if err != nil {
		return nil, err
	}
	data, rerr := os.ReadFile(path)
	if rerr != nil {
		return nil, kerr.IOf("read_lines %q: %v", path, rerr)
	}
	text := strings.TrimRight(string(data), "\n")
	var lines []string
	if text != "" {
		lines = strings.Split(text, "\n")
	}
	out := value.NewList(len(lines))
	for _, l := range lines {
		sv := value.NewString(l)
		out.Append(sv)
		sv.Release()
	}
	return out, nil
}

func biFileExists(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("file_exists", args, 1); err != nil {
		return nil, err
	}
	path, err := asString(args[0], "file_exists")
	if err != nil {
		return nil, err
	}
	_, serr := os.Stat(path)
	return value.Bool(serr == nil), nil
}

func biListFiles(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("list_files", args, 1); err != nil {
		return nil, err
	}
	dir, err := asString(args[0], "list_files")
	if err != nil {
		return nil, err
	}
	entries, rerr := os.ReadDir(dir)
	if rerr != nil {
		return nil, kerr.IOf("list_files %q: %v", dir, rerr)
	}
	out := value.NewList(len(entries))
	for _, e := range entries {
		sv := value.NewString(e.Name())
		out.Append(sv)
		sv.Release()
	}
	return out, nil
}

func biJoinPath(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if len(args) < 1 {
		return nil, kerr.ValueErrorf("join_path requires at least one argument")
	}
	parts := make([]string, len(args))
	for i, a := range args {
		s, err := asString(a, "join_path")
		if err != nil {
			return nil, err
		}
		parts[i] = s
	}
	return value.NewString(filepath.Join(parts...)), nil
}

func biDirname(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("dirname", args, 1); err != nil {
		return nil, err
	}
	path, err := asString(args[0], "dirname")
	if err != nil {
		return nil, err
	}
	return value.NewString(filepath.Dir(path)), nil
}

func biBasename(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("basename", args, 1); err != nil {
		return nil, err
	}
	path, err := asString(args[0], "basename")
	if err != nil {
		return nil, err
	}
	return value.NewString(filepath.Base(path)), nil
}

// compileRegex compiles a POSIX extended regex. It only ever
// returns a non-nil *regexp.Regexp when err == nil — the source material's
// bug of freeing a compiled regex on a failed compilation cannot arise
// here, since there is nothing to free on the error path (DESIGN.md).
func compileRegex(pattern string) (*regexp.Regexp, *kerr.Error) {
	re, err := regexp.CompilePOSIX(pattern)
	if err != nil {
		return nil, kerr.Runtimef("invalid regex %q: %v", pattern, err)
	}
	return re, nil
}

func biRegexMatch(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("regex.match", args, 2); err != nil {
		return nil, err
	}
	s, err := asString(args[0], "regex.match")
	if err != nil {
		return nil, err
	}
	pattern, err := asString(args[1], "regex.match")
	if err != nil {
		return nil, err
	}
	re, rerr := compileRegex(pattern)
	if rerr != nil {
		return nil, rerr
	}
	loc := re.FindStringIndex(s)
	return value.Bool(loc != nil && loc[0] == 0 && loc[1] == len(s)), nil
}

func biRegexSearch(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("regex.search", args, 2); err != nil {
		return nil, err
	}
	s, err := asString(args[0], "regex.search")
	if err != nil {
		return nil, err
	}
	pattern, err := asString(args[1], "regex.search")
	if err != nil {
		return nil, err
	}
	re, rerr := compileRegex(pattern)
	if rerr != nil {
		return nil, rerr
	}
	m := re.FindString(s)
	if m == "" && !re.MatchString(s) {
		return value.NilValue(), nil
	}
	return value.NewString(m), nil
}

func biRegexFindAll(vm *VM, args []value.Value) (value.Value, *kerr.Error) {
	if err := wantArgs("regex.findall", args, 2); err != nil {
		return nil, err
	}
	s, err := asString(args[0], "regex.findall")
	if err != nil {
		return nil, err
	}
	pattern, err := asString(args[1], "regex.findall")
	if err != nil {
		return nil, err
	}
	re, rerr := compileRegex(pattern)
	if rerr != nil {
		return nil, rerr
	}
	matches := re.FindAllString(s, -1)
	out := value.NewList(len(matches))
	for _, m := range matches {
		sv := value.NewString(m)
		out.Append(sv)
		sv.Release()
	}
	return out, nil
}
