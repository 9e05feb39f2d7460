package value

import "fmt"

// Equals implements structural equality: scalars, strings and ranges
// compare by value; lists and maps compare elementwise in insertion order.
// Values of different kinds are never equal (and this is not an error —
// EQ/NEQ must work on any pair of operands).
func Equals(a, b Value) (bool, error) {
	if a.Kind() != b.Kind() {
		return false, nil
	}
	switch av := a.(type) {
	case Nil:
		return true, nil
	case Bool:
		return av == b.(Bool), nil
	case Number:
		return av == b.(Number), nil
	case *StringValue:
		return av.Equal(b.(*StringValue)), nil
	case Range:
		bv := b.(Range)
		return av.Start == bv.Start && av.End == bv.End && av.Step == bv.Step, nil
	case *List:
		bv := b.(*List)
		if av.Len() != bv.Len() {
			return false, nil
		}
		for i, e := range av.elems {
			eq, err := Equals(e, bv.elems[i])
			if err != nil {
				return false, err
			}
			if !eq {
				return false, nil
			}
		}
		return true, nil
	case *Map:
		bv := b.(*Map)
		if av.Len() != bv.Len() {
			return false, nil
		}
		ae, be := av.Entries(), bv.Entries()
		for i := range ae {
			keq, err := Equals(ae[i].Key, be[i].Key)
			if err != nil {
				return false, err
			}
			veq, err := Equals(ae[i].Val, be[i].Val)
			if err != nil {
				return false, err
			}
			if !keq || !veq {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("internal error: unhandled value kind %s in Equals", a.Kind())
	}
}

// Less implements the ordering used by GT/LT/GTE/LTE: numbers compare
// numerically, strings compare lexicographically by byte value. Any other
// pairing (including cross-kind) is a Runtime/ValueError.
func Less(a, b Value) (bool, error) {
	switch av := a.(type) {
	case Number:
		bv, ok := b.(Number)
		if !ok {
			return false, fmt.Errorf("cannot compare number and %s", b.Kind())
		}
		return av < bv, nil
	case *StringValue:
		bv, ok := b.(*StringValue)
		if !ok {
			return false, fmt.Errorf("cannot compare string and %s", b.Kind())
		}
		return string(av.b) < string(bv.b), nil
	default:
		return false, fmt.Errorf("values of type %s are not ordered", a.Kind())
	}
}
