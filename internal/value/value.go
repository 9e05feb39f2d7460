// Package value implements the tagged value variants that flow through the
// Kronos virtual machine: Nil, Bool, Number, String, List, Map and Range.
//
// Value is a Go interface rather than a single tagged struct, in the manner
// of the machine.Value hierarchy it is adapted from, but every case also
// carries the explicit retain/release lifetime discipline the execution core
// requires: Retain and Release are the only lifetime operations, and for the
// scalar kinds (Nil, Bool, Number, Range) they are no-ops, since those kinds
// are never heap-shared.
package value

import "fmt"

// Kind identifies which of the closed set of variants a Value holds.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
	KindRange
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindRange:
		return "range"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is implemented by every variant the VM can push on its operand
// stack, store in a variable cell, or hold as a constant or container
// element.
type Value interface {
	// Kind reports the variant's discriminant.
	Kind() Kind
	// String renders the value the way PRINT and string-conversion built-ins
	// do.
	String() string
	// Truthy implements the per-kind truthiness predicate.
	Truthy() bool

	// Retain increments the value's refcount, if it is heap-backed, and
	// returns the receiver so retains can be chained into an assignment:
	//
	//	cell.value = v.Retain()
	//
	// Scalar kinds return themselves unchanged.
	Retain() Value
	// Release decrements the value's refcount, if it is heap-backed, freeing
	// the payload and recursively releasing any owned children once the
	// count reaches zero. Scalar kinds do nothing.
	Release()
}

// IsType implements the `is of type "..."` predicate.
func IsType(v Value, name string) bool {
	return v.Kind().String() == name
}

// Truthy is a free-function form of Value.Truthy, used where a nil Value
// must be treated as falsy defensively (it never legitimately occurs on the
// operand stack, but defensive callers such as built-ins may hold one
// transiently).
func Truthy(v Value) bool {
	if v == nil {
		return false
	}
	return v.Truthy()
}
