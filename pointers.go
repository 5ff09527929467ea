package blockalloc

import "reflect"

// PointerFree returns true if values of t hold no Go pointers, directly or in any field or
// element. Only pointer-free values may be stored in memory handed out by allocators, since the
// garbage collector does not scan it.
func PointerFree(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Slice, reflect.String,
		reflect.Interface, reflect.Chan, reflect.Func:
		return false
	case reflect.Array:
		return t.Len() == 0 || PointerFree(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !PointerFree(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// PointerFreeType returns true if values of T hold no Go pointers
func PointerFreeType[T any]() bool {
	return PointerFree(reflect.TypeOf((*T)(nil)).Elem())
}
