package changes

import "reflect"

// Delta is the set of fields whose value differs between two snapshots.
// Fields lists changed keys in the current record's order; Values holds the
// new value of each changed key.
type Delta[V any] struct {
	Fields []string
	Values Record[V]
}

// Empty reports whether nothing changed.
func (d Delta[V]) Empty() bool { return len(d.Fields) == 0 }

// Diff compares previous and current with ==. Only keys of current are
// inspected: a key present only in previous is never reported, and a key
// missing from previous always is. An empty previous therefore reports every
// key of current, which callers record as a creation.
func Diff[V comparable](previous, current Record[V]) Delta[V] {
	return DiffFunc(previous, current, func(a, b V) bool { return a == b })
}

// DiffFunc is Diff with a caller-supplied equality. Use Same for records of
// dynamically typed values.
func DiffFunc[V any](previous, current Record[V], equal func(a, b V) bool) Delta[V] {
	var d Delta[V]
	for _, f := range current.fields {
		old, ok := previous.Get(f.Key)
		if ok && equal(old, f.Value) {
			continue
		}
		d.Fields = append(d.Fields, f.Key)
		d.Values.set(f.Key, f.Value)
	}
	return d
}

// Same is shallow identity for dynamically typed values. Comparable values
// compare with ==. Maps, slices, funcs and channels are the same only when
// they share the underlying reference, so a nested object rebuilt with
// identical content still counts as changed. Same never panics.
func Same(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Map, reflect.Func, reflect.Chan, reflect.Pointer, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	if va.Comparable() && vb.Comparable() {
		return a == b
	}
	return false
}

// DiffAny diffs records of dynamically typed values using Same.
func DiffAny(previous, current Record[any]) Delta[any] {
	return DiffFunc(previous, current, Same)
}
