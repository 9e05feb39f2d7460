package value

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dolthub/swiss"
)

// Map is a heap-allocated, refcounted, insertion-ordered association of
// Value to Value. Lookup is backed by a swiss.Map keyed on a canonical
// string encoding of the key (scalar Values only — Nil, Bool, Number,
// String and Range are hashable; List and Map keys are rejected, matching
// the hashability restriction of most embedded scripting languages).
// Insertion order is tracked separately since swiss.Map, like any
// open-addressing table, does not preserve it.
type Map struct {
	ref   *refHeader
	m     *swiss.Map[string, *mapEntry]
	order []string
}

type mapEntry struct {
	key Value
	val Value
}

// NewMap constructs an empty map with room for at least capacity entries.
func NewMap(capacity int) *Map {
	if capacity < 0 {
		capacity = 0
	}
	return &Map{
		ref:   newRefHeader(),
		m:     swiss.NewMap[string, *mapEntry](uint32(capacity)),
		order: make([]string, 0, capacity),
	}
}

func (m *Map) Kind() Kind   { return KindMap }
func (m *Map) Truthy() bool { return len(m.order) > 0 }

func (m *Map) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range m.order {
		if i > 0 {
			sb.WriteString(", ")
		}
		e, _ := m.m.Get(k)
		sb.WriteString(elemString(e.key))
		sb.WriteString(": ")
		sb.WriteString(elemString(e.val))
	}
	sb.WriteByte('}')
	return sb.String()
}

func (m *Map) Retain() Value {
	m.ref.retain()
	return m
}

// Release decrements the refcount; once it reaches zero, every key and
// value currently held is released recursively.
func (m *Map) Release() {
	if m.ref.release() {
		for _, k := range m.order {
			if e, ok := m.m.Get(k); ok {
				e.key.Release()
				e.val.Release()
			}
		}
		m.order = nil
	}
}

// Len reports the number of entries.
func (m *Map) Len() int { return len(m.order) }

func canonicalKey(v Value) (string, error) {
	switch k := v.(type) {
	case Nil:
		return "n:", nil
	case Bool:
		if k {
			return "b:1", nil
		}
		return "b:0", nil
	case Number:
		return "f:" + strconv.FormatFloat(float64(k), 'g', -1, 64), nil
	case *StringValue:
		return "s:" + string(k.b), nil
	case Range:
		return fmt.Sprintf("r:%g:%g:%g", k.Start, k.End, k.Step), nil
	default:
		return "", fmt.Errorf("unhashable type: %s", v.Kind())
	}
}

// Get returns a borrowed reference to the value associated with k, or
// !found on a miss. An error is returned only if k is not a hashable kind.
func (m *Map) Get(k Value) (Value, bool, error) {
	ck, err := canonicalKey(k)
	if err != nil {
		return nil, false, err
	}
	e, ok := m.m.Get(ck)
	if !ok {
		return nil, false, nil
	}
	return e.val, true, nil
}

// Set inserts or overwrites the entry for k. Overwriting preserves the
// key's original insertion position. Set retains both k and v for their new
// slots and releases the value it replaces, if any.
func (m *Map) Set(k, v Value) error {
	ck, err := canonicalKey(k)
	if err != nil {
		return err
	}
	if e, ok := m.m.Get(ck); ok {
		old := e.val
		e.val = v.Retain()
		old.Release()
		return nil
	}
	m.m.Put(ck, &mapEntry{key: k.Retain(), val: v.Retain()})
	m.order = append(m.order, ck)
	return nil
}

// Delete removes the entry for k, if any, releasing both the stored key and
// value. Reports whether an entry was removed.
func (m *Map) Delete(k Value) (bool, error) {
	ck, err := canonicalKey(k)
	if err != nil {
		return false, err
	}
	e, ok := m.m.Get(ck)
	if !ok {
		return false, nil
	}
	m.m.Delete(ck)
	for i, o := range m.order {
		if o == ck {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	e.key.Release()
	e.val.Release()
	return true, nil
}

// MapEntry is a borrowed key/value pair yielded by Entries.
type MapEntry struct {
	Key, Val Value
}

// Entries returns the map's entries in insertion order. The returned values
// are borrowed references.
func (m *Map) Entries() []MapEntry {
	out := make([]MapEntry, 0, len(m.order))
	for _, ck := range m.order {
		if e, ok := m.m.Get(ck); ok {
			out = append(out, MapEntry{Key: e.key, Val: e.val})
		}
	}
	return out
}
