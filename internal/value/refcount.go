package value

// refHeader is the shared refcount box embedded in every heap-backed value
// variant (String, List, Map). It is allocated once per logical heap value;
// Retain bumps the count and Release decrements it, returning true exactly
// once, when the count reaches zero and the payload (and its owned
// children) must be freed.
//
// A fresh heap value starts with a count of one: the slot that constructed
// it (stack push, constant pool entry, variable cell, or container element)
// is its first owner.
type refHeader struct {
	count int32
}

func newRefHeader() *refHeader { return &refHeader{count: 1} }

func (h *refHeader) retain() { h.count++ }

// release decrements the count and reports whether it reached zero.
func (h *refHeader) release() bool {
	h.count--
	return h.count <= 0
}

// Refcount is exposed for tests that assert on the universal refcount
// conservation invariant; it is not part of the language-visible surface.
func Refcount(v Value) (int32, bool) {
	switch vv := v.(type) {
	case *StringValue:
		return vv.ref.count, true
	case *List:
		return vv.ref.count, true
	case *Map:
		return vv.ref.count, true
	default:
		return 0, false
	}
}
