package vm

import (
	"path/filepath"
	"strings"

	"github.com/dolthub/swiss"

	"github.com/kronoslang/kronos/internal/bytecode"
	"github.com/kronoslang/kronos/internal/kerr"
	"github.com/kronoslang/kronos/internal/value"
)

// Module is a bytecode unit loaded from a file and executed in an isolated
// child VM whose globals and functions are reachable only via its alias.
type Module struct {
	name         string
	resolvedPath string
	innerVM      *VM
	rootVM       *VM
}

// ModuleLoader is the execution core's contract with whatever compiles
// source text into bytecode: given a resolved file path, it returns the
// compiled Bytecode for that source file. The VM never parses source text
// itself.
type ModuleLoader interface {
	Load(resolvedPath string) (*bytecode.Bytecode, error)
}

// SetModuleLoader installs the loader used to compile imported source
// files. Without one, IMPORT fails with a clear runtime error rather than
// panicking on a nil pipeline.
func (v *VM) SetModuleLoader(l ModuleLoader) { v.loader = l }

// resolvePath implements the import path resolution rule: absolute paths, and
// relative paths not explicitly anchored with "./" or "../", are left for
// the OS to resolve against the process's working directory; dot-relative
// paths resolve against the importing file's own directory.
func resolvePath(path, baseFilePath string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	if strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../") {
		base := "."
		if baseFilePath != "" {
			base = filepath.Dir(baseFilePath)
		}
		return filepath.Clean(filepath.Join(base, path))
	}
	return filepath.Clean(path)
}

// importModule implements the IMPORT opcode and the module loader's
// resolution/isolation/circular-import rules.
func (vm *VM) importModule(alias, path string) *kerr.Error {
	if vm.loader == nil {
		return kerr.IOf("no module loader configured, cannot import %q", path)
	}
	root := vm.rootVM()
	resolved := resolvePath(path, vm.currentFilePath)

	if mod, ok := root.modules.Get(resolved); ok {
		vm.imports[alias] = mod
		return nil
	}

	for _, loading := range root.loadingStack {
		if loading == resolved {
			return kerr.Runtimef("circular import: %q is already being loaded", resolved)
		}
	}
	if vm.importDepth+1 > MaxImportDepth {
		return kerr.Runtimef("import depth exceeded (max %d)", MaxImportDepth)
	}
	if root.modules.Count() >= ModulesMax {
		return kerr.Runtimef("module table limit exceeded (max %d)", ModulesMax)
	}

	root.loadingStack = append(root.loadingStack, resolved)
	defer func() {
		root.loadingStack = root.loadingStack[:len(root.loadingStack)-1]
	}()

	code, lerr := vm.loader.Load(resolved)
	if lerr != nil {
		return kerr.New(kerr.Compile, kerr.TypeCompileError, "loading %q: %v", resolved, lerr)
	}

	child := &VM{
		globals:         swiss.NewMap[string, *cell](8),
		functions:       swiss.NewMap[string, *function](8),
		modules:         swiss.NewMap[string, *Module](4),
		imports:         make(map[string]*Module),
		root:            root,
		currentFilePath: resolved,
		importDepth:     vm.importDepth + 1,
		loader:          vm.loader,
		stdout:          vm.stdout,
	}
	child.bindUniverse()

	mod := &Module{name: alias, resolvedPath: resolved, innerVM: child, rootVM: root}

	ret, rerr := child.execute(&function{name: "<module>", code: code}, nil, false, 0, nil)
	if rerr != nil {
		return rerr
	}
	ret.Release()

	root.modules.Put(resolved, mod)
	vm.imports[alias] = mod
	return nil
}

// InvokeFunction implements the module-call protocol: it
// never mutates the target VM's stack or error state directly, only
// through a frame-scoped execute call whose result (or error) is copied
// back across the VM boundary.
func (m *Module) InvokeFunction(name string, args []value.Value) (value.Value, *kerr.Error) {
	fn, ok := m.innerVM.functions.Get(name)
	if !ok {
		return nil, kerr.NotFoundf("function %q not found in module %q", name, m.name)
	}
	if len(args) != len(fn.params) {
		return nil, kerr.ValueErrorf("function %q takes %d argument(s), got %d", name, len(fn.params), len(args))
	}
	return m.innerVM.execute(fn, args, false, 0, nil)
}
