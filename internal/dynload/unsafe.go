package dynload

import "unsafe"

// ptrOf reinterprets a dlsym-resolved address as a Go pointer so the
// trampoline's writable pointer slot can be written directly. The
// memory it points to belongs to a dlopen'd shared object, never the Go
// heap, so this is safe despite bypassing Go's normal pointer
// provenance rules — the same pattern purego itself uses internally to
// bridge dlsym addresses into Go values.
func ptrOf(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr) //nolint:govet // see doc comment
}
