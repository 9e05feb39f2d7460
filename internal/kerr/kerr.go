// Package kerr implements the Kronos error taxonomy: a programmatic Kind
// for embedders, a language-level type name for try/catch matching, and a
// message, plus the VM's last-error slot and optional user callback.
package kerr

import "fmt"

// Kind is the embedder-facing error category.
type Kind uint8

const (
	InvalidArgument Kind = iota
	NotFound
	IO
	Tokenize
	Parse
	Compile
	Runtime
	Internal
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case NotFound:
		return "NotFound"
	case IO:
		return "IO"
	case Tokenize:
		return "Tokenize"
	case Parse:
		return "Parse"
	case Compile:
		return "Compile"
	case Runtime:
		return "Runtime"
	case Internal:
		return "Internal"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Built-in language-level type names used for try/catch matching.
const (
	TypeRuntimeError  = "RuntimeError"
	TypeSyntaxError   = "SyntaxError"
	TypeCompileError  = "CompileError"
	TypeNameError     = "NameError"
	TypeValueError    = "ValueError"
	TypeInternalError = "InternalError"
)

// Error is the structured error Kronos carries everywhere a recoverable
// fault can occur: in the VM's last-error slot, across module-call
// boundaries, and as the payload a THROW opcode builds from a type name and
// message.
type Error struct {
	Kind    Kind
	Type    string // language-level type name, e.g. "ValueError"
	Message string
}

func (e *Error) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return e.Message
}

// New constructs an Error with the given kind, type name and formatted
// message.
func New(kind Kind, typ, format string, args ...any) *Error {
	return &Error{Kind: kind, Type: typ, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a NotFound/NameError — the kind used for missing
// variables, functions, modules.
func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, TypeNameError, format, args...)
}

// Runtimef builds a Runtime/RuntimeError — stack overflow, bounds
// violations, divide-by-zero and other recoverable execution faults.
func Runtimef(format string, args ...any) *Error {
	return New(Runtime, TypeRuntimeError, format, args...)
}

// ValueErrorf builds a Runtime/ValueError — wrong operand types.
func ValueErrorf(format string, args ...any) *Error {
	return New(Runtime, TypeValueError, format, args...)
}

// Internalf builds an Internal/InternalError — malformed bytecode, an
// out-of-range constant-pool index, or any other condition that indicates
// a compiler/VM contract violation rather than a user mistake.
func Internalf(format string, args ...any) *Error {
	return New(Internal, TypeInternalError, format, args...)
}

// IOf builds a Runtime/RuntimeError for filesystem built-in failures,
// wrapping the underlying error's message.
func IOf(format string, args ...any) *Error {
	return New(Runtime, TypeRuntimeError, format, args...)
}

// Thrown builds the error a THROW opcode raises for a user-supplied type
// name: its Kind is always Runtime, since it is a language-level exception
// rather than an embedder-detected fault.
func Thrown(typ, message string) *Error {
	return &Error{Kind: Runtime, Type: typ, Message: message}
}

// Matches reports whether this error's Type satisfies a CATCH clause
// declaring wantType (AnyType is represented by the empty string by
// convention at this layer; callers translate the bytecode's 0xFFFF
// sentinel to "" before calling Matches).
func (e *Error) Matches(wantType string) bool {
	return wantType == "" || e.Type == wantType
}

// Callback is the optional user hook fired once per non-OK error set (never
// on Clear).
type Callback func(*Error)

// Box is the VM's mutable last-error slot plus its registered callback.
// Replacing the error while one is already set silently overwrites the
// prior message.5 ("setting a new error replaces the prior
// message").
type Box struct {
	current  *Error
	callback Callback
}

// Set installs err as the current error and fires the callback, if any.
func (b *Box) Set(err *Error) {
	b.current = err
	if b.callback != nil && err != nil {
		b.callback(err)
	}
}

// Clear resets the box to OK without firing the callback.
func (b *Box) Clear() { b.current = nil }

// Current returns the box's error, or nil if it is OK.
func (b *Box) Current() *Error { return b.current }

// Pending reports whether an error is currently set.
func (b *Box) Pending() bool { return b.current != nil }

// SetCallback installs the user error callback.
func (b *Box) SetCallback(cb Callback) { b.callback = cb }
