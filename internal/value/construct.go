package value

import "io"

// FromBool constructs a Bool value from a Go bool.
func FromBool(b bool) Value { return Bool(b) }

// FromNumber constructs a Number value from a Go float64.
func FromNumber(f float64) Value { return Number(f) }

// FromString constructs a heap-allocated String value from a Go string.
func FromString(s string) Value { return NewString(s) }

// WriteTo writes v's PRINT representation to w, matching the way List and
// Map render their nested String elements (quoted) versus top-level strings
// (unquoted).
func WriteTo(w io.Writer, v Value) error {
	_, err := io.WriteString(w, v.String())
	return err
}
