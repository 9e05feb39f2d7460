// Package vm implements the Kronos bytecode instruction set, the
// stack-based virtual machine that interprets it, and the module loader
// that gives each imported unit of code its own isolated VM. The dispatch
// loop and call-frame protocol follow the machine package's flat-loop
// design, generalized from a garbage-collected, interface-typed Value to
// the explicit retain/release discipline Kronos's value system requires,
// and from closures with captured free variables to Kronos's simpler
// global/local variable-cell model.
package vm

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/dolthub/swiss"

	"github.com/kronoslang/kronos/internal/bytecode"
	"github.com/kronoslang/kronos/internal/kerr"
	"github.com/kronoslang/kronos/internal/value"
)

// fmtPrint writes v the way PRINT renders it: top-level strings unquoted,
// everything else via its normal String method (which already quotes
// strings nested inside lists and maps).
func fmtPrint(w io.Writer, v value.Value) {
	fmt.Fprintln(w, v.String())
}

// handler is an active exception-handler record, pushed by TRY_ENTER and
// popped either by TRY_EXIT (normal exit) or by unwinding diverting to it
// (error exit).
type handler struct {
	tryStart  int
	handlerIP int

	// frames and code record the call-frame depth and bytecode unit active
	// when TRY_ENTER ran, so diverting to this handler can unwind any
	// frames pushed since and resume in the right bytecode unit.
	frames int
	code   *bytecode.Bytecode
}

// VM aggregates everything a running or loaded Kronos program needs: the
// operand stack, call-frame stack, globals/functions/modules tables, the
// loading-stack used for circular-import detection, and the last-error
// box.
type VM struct {
	stack  []value.Value
	frames []*frame

	globals   *swiss.Map[string, *cell]
	functions *swiss.Map[string, *function]
	modules   *swiss.Map[string, *Module]

	// imports maps the local alias a program used in `import ... as alias`
	// to the module it resolved to, for module.function call dispatch.
	imports map[string]*Module

	loadingStack []string

	root            *VM // nil for the root VM
	currentFilePath string
	importDepth     int

	handlers  []*handler
	lastError kerr.Box

	loader ModuleLoader
	stdout io.Writer
}

// New constructs a fresh root VM. Pi is pre-bound as an immutable,
// number-typed global.
func New() *VM {
	v := &VM{
		globals:   swiss.NewMap[string, *cell](8),
		functions: swiss.NewMap[string, *function](8),
		modules:   swiss.NewMap[string, *Module](4),
		imports:   make(map[string]*Module),
		stdout:    os.Stdout,
	}
	v.bindUniverse()
	return v
}

// SetStdout overrides the writer PRINT writes to (default os.Stdout).
func (v *VM) SetStdout(w io.Writer) { v.stdout = w }

// SetErrorCallback installs the optional user error callback.
func (v *VM) SetErrorCallback(cb kerr.Callback) { v.lastError.SetCallback(cb) }

// LastError returns the VM's most recently set error, or nil if clear.
func (v *VM) LastError() *kerr.Error { return v.lastError.Current() }

func (v *VM) bindUniverse() {
	v.globals.Put("Pi", newCell("Pi", value.Number(math.Pi), false, ""))
}

func (v *VM) rootVM() *VM {
	if v.root == nil {
		return v
	}
	return v.root
}

func (v *VM) currentFrame() *frame {
	if len(v.frames) == 0 {
		return nil
	}
	return v.frames[len(v.frames)-1]
}

// --- operand stack discipline ---

func (v *VM) push(val value.Value) *kerr.Error {
	if len(v.stack) >= StackMax {
		return kerr.Runtimef("operand stack overflow (max %d)", StackMax)
	}
	v.stack = append(v.stack, val.Retain())
	return nil
}

// pop transfers ownership of the top operand to the caller, who must
// eventually Release it.
func (v *VM) pop() (value.Value, *kerr.Error) {
	if len(v.stack) == 0 {
		return nil, kerr.Runtimef("operand stack underflow")
	}
	n := len(v.stack) - 1
	val := v.stack[n]
	v.stack = v.stack[:n]
	return val, nil
}

// peek returns the top operand without popping or transferring ownership.
func (v *VM) peek() (value.Value, *kerr.Error) {
	if len(v.stack) == 0 {
		return nil, kerr.Runtimef("operand stack underflow")
	}
	return v.stack[len(v.stack)-1], nil
}

// RunProgram executes top-level Bytecode as the implicit top-level
// function and returns its final value: the value popped by a top-level
// RETURN_VAL, or Nil when the program ends with HALT or runs past the end
// of its code (operands left on the stack are not returned). The caller
// takes ownership of the returned Value and must Release it. Functions are
// registered as DEFINE_FUNC opcodes are reached during normal sequential
// execution; there is no separate pre-scan pass.
func (v *VM) RunProgram(code *bytecode.Bytecode) (value.Value, *kerr.Error) {
	fn := &function{name: "<toplevel>", code: code}
	return v.execute(fn, nil, false, 0, nil)
}
