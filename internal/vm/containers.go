package vm

import (
	"github.com/kronoslang/kronos/internal/kerr"
	"github.com/kronoslang/kronos/internal/value"
)

func (vm *VM) listNew(count int) *kerr.Error {
	elems := make([]value.Value, count)
	for i := count - 1; i >= 0; i-- {
		v, err := vm.pop()
		if err != nil {
			for _, e := range elems[i+1:] {
				e.Release()
			}
			return err
		}
		elems[i] = v
	}
	l := value.NewListFrom(elems)
	perr := vm.push(l)
	l.Release()
	return perr
}

func (vm *VM) listAppend() *kerr.Error {
	elem, err := vm.pop()
	if err != nil {
		return err
	}
	defer elem.Release()
	lst, err := vm.pop()
	if err != nil {
		return err
	}
	defer lst.Release()
	l, ok := lst.(*value.List)
	if !ok {
		return kerr.ValueErrorf("cannot append to a %s", lst.Kind())
	}
	l.Append(elem)
	return nil
}

// listGet implements LIST_GET, overloaded (like DELETE) to serve both
// list/string numeric indexing and map key lookup: there is no separate
// MAP_GET opcode.
func (vm *VM) listGet() *kerr.Error {
	key, err := vm.pop()
	if err != nil {
		return err
	}
	defer key.Release()
	container, err := vm.pop()
	if err != nil {
		return err
	}
	defer container.Release()

	switch c := container.(type) {
	case *value.List:
		idx, ok := key.(value.Number)
		if !ok {
			return kerr.ValueErrorf("index must be a number, got %s", key.Kind())
		}
		v, ok := c.Get(int(idx))
		if !ok {
			return kerr.Runtimef("list index %d out of range (len %d)", int(idx), c.Len())
		}
		return vm.push(v)
	case *value.StringValue:
		idx, ok := key.(value.Number)
		if !ok {
			return kerr.ValueErrorf("index must be a number, got %s", key.Kind())
		}
		i := int(idx)
		if i < 0 || i >= c.Len() {
			return kerr.Runtimef("string index %d out of range (len %d)", i, c.Len())
		}
		s := value.NewString(string(c.Bytes()[i : i+1]))
		perr := vm.push(s)
		s.Release()
		return perr
	case *value.Map:
		v, found, gerr := c.Get(key)
		if gerr != nil {
			return kerr.ValueErrorf("%v", gerr)
		}
		if !found {
			return kerr.NotFoundf("key %s not found in map", key.String())
		}
		return vm.push(v)
	default:
		return kerr.ValueErrorf("cannot index a %s", container.Kind())
	}
}

func (vm *VM) listSet() *kerr.Error {
	val, err := vm.pop()
	if err != nil {
		return err
	}
	defer val.Release()
	idxVal, err := vm.pop()
	if err != nil {
		return err
	}
	defer idxVal.Release()
	lst, err := vm.pop()
	if err != nil {
		return err
	}
	defer lst.Release()

	idx, ok := idxVal.(value.Number)
	if !ok {
		return kerr.ValueErrorf("index must be a number, got %s", idxVal.Kind())
	}
	l, ok := lst.(*value.List)
	if !ok {
		return kerr.ValueErrorf("cannot assign into a %s", lst.Kind())
	}
	if !l.Set(int(idx), val) {
		return kerr.Runtimef("list index %d out of range (len %d)", int(idx), l.Len())
	}
	return nil
}

func (vm *VM) containerLen() *kerr.Error {
	c, err := vm.pop()
	if err != nil {
		return err
	}
	defer c.Release()
	var n int
	switch v := c.(type) {
	case *value.List:
		n = v.Len()
	case *value.StringValue:
		n = v.Len()
	case *value.Map:
		n = v.Len()
	case value.Range:
		n = v.Len()
	default:
		return kerr.ValueErrorf("%s has no length", c.Kind())
	}
	return vm.push(value.Number(n))
}

func (vm *VM) listSlice() *kerr.Error {
	endVal, err := vm.pop()
	if err != nil {
		return err
	}
	defer endVal.Release()
	startVal, err := vm.pop()
	if err != nil {
		return err
	}
	defer startVal.Release()
	lst, err := vm.pop()
	if err != nil {
		return err
	}
	defer lst.Release()

	start, ok1 := startVal.(value.Number)
	end, ok2 := endVal.(value.Number)
	if !ok1 || !ok2 {
		return kerr.ValueErrorf("slice bounds must be numbers")
	}
	l, ok := lst.(*value.List)
	if !ok {
		return kerr.ValueErrorf("cannot slice a %s", lst.Kind())
	}
	out := l.Slice(int(start), int(end))
	perr := vm.push(out)
	out.Release()
	return perr
}

// listIter pushes the opaque (iterable, state) pair LIST_NEXT consumes:
// state is the starting index for a list, or the starting value for a
// range. Represented literally as a 2-element List, since LIST_NEXT's own
// output is already specified as list-literal values.
func (vm *VM) listIter() *kerr.Error {
	iterable, err := vm.pop()
	if err != nil {
		return err
	}
	defer iterable.Release()

	var state value.Value
	switch iterable.(type) {
	case *value.List:
		state = value.Number(0)
	case value.Range:
		state = value.Number(iterable.(value.Range).Start)
	default:
		return kerr.ValueErrorf("cannot iterate a %s", iterable.Kind())
	}
	pair := value.NewListFrom(nil)
	pair.Append(iterable)
	pair.Append(state)
	perr := vm.push(pair)
	pair.Release()
	return perr
}

func (vm *VM) listNext() *kerr.Error {
	pairVal, err := vm.pop()
	if err != nil {
		return err
	}
	defer pairVal.Release()
	pair, ok := pairVal.(*value.List)
	if !ok || pair.Len() != 2 {
		return kerr.Internalf("malformed iterator pair")
	}
	iterable, _ := pair.Get(0)
	state, _ := pair.Get(1)

	switch it := iterable.(type) {
	case *value.List:
		idx := int(state.(value.Number))
		if idx >= it.Len() {
			return vm.pushExhausted(iterable, state)
		}
		item, _ := it.Get(idx)
		return vm.pushNext(iterable, value.Number(idx+1), item)
	case value.Range:
		cur := float64(state.(value.Number))
		more := (it.Step > 0 && cur <= it.End) || (it.Step < 0 && cur >= it.End)
		if !more {
			return vm.pushExhausted(iterable, state)
		}
		return vm.pushNext(iterable, value.Number(cur+it.Step), value.Number(cur))
	default:
		return kerr.Internalf("malformed iterator pair: unexpected iterable kind %s", iterable.Kind())
	}
}

func (vm *VM) pushNext(iterable, nextState, item value.Value) *kerr.Error {
	out := value.NewListFrom(nil)
	out.Append(iterable)
	out.Append(nextState)
	out.Append(item)
	out.Append(value.Bool(true))
	perr := vm.push(out)
	out.Release()
	return perr
}

func (vm *VM) pushExhausted(iterable, state value.Value) *kerr.Error {
	out := value.NewListFrom(nil)
	out.Append(iterable)
	out.Append(state)
	out.Append(value.Bool(false))
	perr := vm.push(out)
	out.Release()
	return perr
}

func (vm *VM) mapNew(count int) *kerr.Error {
	m := value.NewMap(count)
	for i := 0; i < count; i++ {
		v, err := vm.pop()
		if err != nil {
			m.Release()
			return err
		}
		k, err := vm.pop()
		if err != nil {
			v.Release()
			m.Release()
			return err
		}
		if serr := m.Set(k, v); serr != nil {
			k.Release()
			v.Release()
			m.Release()
			return kerr.ValueErrorf("%v", serr)
		}
		k.Release()
		v.Release()
	}
	perr := vm.push(m)
	m.Release()
	return perr
}

func (vm *VM) mapSet() *kerr.Error {
	val, err := vm.pop()
	if err != nil {
		return err
	}
	defer val.Release()
	key, err := vm.pop()
	if err != nil {
		return err
	}
	defer key.Release()
	container, err := vm.pop()
	if err != nil {
		return err
	}
	defer container.Release()

	m, ok := container.(*value.Map)
	if !ok {
		return kerr.ValueErrorf("cannot set a key on a %s", container.Kind())
	}
	if serr := m.Set(key, val); serr != nil {
		return kerr.ValueErrorf("%v", serr)
	}
	return nil
}

func (vm *VM) containerDelete() *kerr.Error {
	key, err := vm.pop()
	if err != nil {
		return err
	}
	defer key.Release()
	container, err := vm.pop()
	if err != nil {
		return err
	}
	defer container.Release()

	m, ok := container.(*value.Map)
	if !ok {
		return kerr.ValueErrorf("cannot delete a key from a %s", container.Kind())
	}
	if _, derr := m.Delete(key); derr != nil {
		return kerr.ValueErrorf("%v", derr)
	}
	return nil
}

func (vm *VM) rangeNew() *kerr.Error {
	stepVal, err := vm.pop()
	if err != nil {
		return err
	}
	defer stepVal.Release()
	endVal, err := vm.pop()
	if err != nil {
		return err
	}
	defer endVal.Release()
	startVal, err := vm.pop()
	if err != nil {
		return err
	}
	defer startVal.Release()

	start, ok1 := startVal.(value.Number)
	end, ok2 := endVal.(value.Number)
	step, ok3 := stepVal.(value.Number)
	if !ok1 || !ok2 || !ok3 {
		return kerr.ValueErrorf("range bounds must be numbers")
	}
	return vm.push(value.NewRange(float64(start), float64(end), float64(step)))
}
