package vm

import "github.com/kronoslang/kronos/internal/bytecode"

// frame is a call-frame record: it binds a function's parameters
// and locals and remembers where to resume on return. A frame with
// hasReturn == false is a module-call frame: RETURN_VAL in such a
// frame does not restore execution state, it causes execute to exit so the
// module loader can lift the return value back to the invoking VM.
type frame struct {
	fn     *function
	locals map[string]*cell

	hasReturn      bool
	returnIP       int
	returnBytecode *bytecode.Bytecode
}

func newFrame(fn *function, hasReturn bool, returnIP int, returnBytecode *bytecode.Bytecode) *frame {
	return &frame{
		fn:             fn,
		locals:         make(map[string]*cell),
		hasReturn:      hasReturn,
		returnIP:       returnIP,
		returnBytecode: returnBytecode,
	}
}

// release drops ownership of every local cell's value ("owns its
// locals").
func (fr *frame) release() {
	for _, c := range fr.locals {
		c.release()
	}
	fr.locals = nil
}
