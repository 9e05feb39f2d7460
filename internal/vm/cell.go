package vm

import (
	"github.com/kronoslang/kronos/internal/kerr"
	"github.com/kronoslang/kronos/internal/value"
)

// cell is a variable binding: a name, its current value, whether it may be
// reassigned, and an optional type tag a reassignment must satisfy. A cell
// owns one refcount on its value.
type cell struct {
	name    string
	val     value.Value
	mutable bool
	hasType bool
	typeTag string
}

// newCell creates a cell taking ownership of v (retaining it for the slot).
func newCell(name string, v value.Value, mutable bool, typeTag string) *cell {
	c := &cell{name: name, val: v.Retain(), mutable: mutable}
	if typeTag != "" {
		c.hasType = true
		c.typeTag = typeTag
	}
	return c
}

// assign reassigns the cell's value, enforcing mutability and the type tag,
// . On success it retains v and releases the prior value.
func (c *cell) assign(v value.Value) *kerr.Error {
	if !c.mutable {
		return kerr.Runtimef("cannot assign to immutable variable %q", c.name)
	}
	if c.hasType && !value.IsType(v, c.typeTag) {
		return kerr.ValueErrorf("variable %q has type %q, cannot assign a %s", c.name, c.typeTag, v.Kind())
	}
	old := c.val
	c.val = v.Retain()
	old.Release()
	return nil
}

// release drops the cell's ownership of its value, for frame and globals
// teardown.
func (c *cell) release() {
	if c.val != nil {
		c.val.Release()
		c.val = nil
	}
}
