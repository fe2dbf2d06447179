package ripple

import (
	"math"
	"reflect"
)

// defaultEquals provides type-appropriate equality checking for scalar cells.
// Uses == for basic comparable types and compares pointers and channels by
// identity, so a new pointer is a new value even when it points at equal
// data. Slices, maps and structs use reflect.DeepEqual. NaN is treated as
// equal to itself so a NaN-valued cell settles.
func defaultEquals[T any](a, b T) bool {
	bv := any(b)
	switch av := any(a).(type) {
	case nil:
		return bv == nil
	case int:
		return eqAs(av, bv)
	case int8:
		return eqAs(av, bv)
	case int16:
		return eqAs(av, bv)
	case int32:
		return eqAs(av, bv)
	case int64:
		return eqAs(av, bv)
	case uint:
		return eqAs(av, bv)
	case uint8:
		return eqAs(av, bv)
	case uint16:
		return eqAs(av, bv)
	case uint32:
		return eqAs(av, bv)
	case uint64:
		return eqAs(av, bv)
	case string:
		return eqAs(av, bv)
	case bool:
		return eqAs(av, bv)
	case float32, float64:
		return sameValue(av, bv)
	default:
		switch reflect.TypeOf(av).Kind() {
		case reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
			return sameValue(av, bv)
		}
		// Slices, maps, structs, etc.
		return reflect.DeepEqual(av, bv)
	}
}

// eqAs compares a with b when b has the same dynamic type.
func eqAs[V comparable](a V, b any) bool {
	bv, ok := b.(V)
	return ok && a == bv
}

// sameValue is identity/value equality over dynamically typed values.
// Reference kinds (maps, slices, pointers, funcs, channels) compare by
// identity; basic kinds compare with ==; structs and arrays fall back to
// reflect.DeepEqual because they may hold non-comparable fields.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}

	switch ta.Kind() {
	case reflect.Float32, reflect.Float64:
		fa, fb := reflect.ValueOf(a).Float(), reflect.ValueOf(b).Float()
		return fa == fb || (math.IsNaN(fa) && math.IsNaN(fb))
	case reflect.Slice:
		va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len() && va.IsNil() == vb.IsNil()
	case reflect.Map, reflect.Pointer, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
	case reflect.Struct, reflect.Array, reflect.Interface:
		return reflect.DeepEqual(a, b)
	default:
		return a == b
	}
}

// SameValue reports whether two stored values are identical in the sense
// used by nested writes: scalars by value, containers by identity, and a
// raw container is the same value as the node wrapping it.
func SameValue(a, b any) bool {
	return sameSlot(a, b)
}
