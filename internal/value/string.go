package value

import "strconv"

// StringValue is a heap-allocated, refcounted, immutable byte string.
type StringValue struct {
	ref *refHeader
	b   []byte
}

// NewString constructs a fresh String value with an initial refcount of
// one, owned by whichever slot the caller is about to place it in.
func NewString(s string) *StringValue {
	return &StringValue{ref: newRefHeader(), b: []byte(s)}
}

func (s *StringValue) Kind() Kind   { return KindString }
func (s *StringValue) Truthy() bool { return len(s.b) > 0 }
func (s *StringValue) String() string {
	return string(s.b)
}

// Quoted renders the string the way PRINT does when the string is nested
// inside a list or map, matching the formatter's container convention.
func (s *StringValue) Quoted() string { return strconv.Quote(string(s.b)) }

// Bytes returns the string's underlying bytes. Callers must not mutate the
// returned slice; strings are immutable once constructed.
func (s *StringValue) Bytes() []byte { return s.b }

// Len reports the number of bytes in the string.
func (s *StringValue) Len() int { return len(s.b) }

func (s *StringValue) Retain() Value {
	s.ref.retain()
	return s
}

// Release decrements the refcount. A string has no owned children, so
// reaching zero simply drops the payload for the garbage collector.
func (s *StringValue) Release() {
	if s.ref.release() {
		s.b = nil
	}
}

// Equal performs byte-for-byte structural comparison.
func (s *StringValue) Equal(o *StringValue) bool {
	return string(s.b) == string(o.b)
}
