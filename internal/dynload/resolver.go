package dynload

import (
	"fmt"

	"github.com/ebitengine/purego"
)

// ResolverSource is the bootstrap shared object source built once per
// session (spec.md §4.6 stage 2's design note): it exports a plain
// "resolve_and_store" symbol visible process-wide so every later
// trampoline object's naked thunk can call it directly, while the
// actual resolution logic lives in Go behind resolve_and_store_ptr,
// wired by WireResolver the same way BindTrampolines patches any other
// "<mangled>_ptr" slot. Callers compile this source into a shared
// object with the session's compiler driver, open it with RTLD_GLOBAL
// (Open always does), and pass the resulting handle to WireResolver
// before building the first trampoline library.
const ResolverSource = `
extern "C" {

void *resolve_and_store_ptr;

void resolve_and_store(void **ptr_slot, const char *name) {
    ((void (*)(void **, const char *))resolve_and_store_ptr)(ptr_slot, name);
}

}
`

// WireResolver dlsyms resolve_and_store_ptr out of handle (the opened
// ResolverSource object) and points it at a callback that invokes
// l.ResolveAndStore, so the naked thunk's "call resolve_and_store"
// ends up running Go code.
func (l *Loader) WireResolver(handle Handle) error {
	slotAddr := Lookup(handle, "resolve_and_store_ptr")
	if slotAddr == 0 {
		return fmt.Errorf("dynload: resolver object missing resolve_and_store_ptr")
	}
	slot := (*uintptr)(ptrOf(slotAddr))

	cb := purego.NewCallback(func(ptrSlot uintptr, namePtr uintptr) uintptr {
		name := cString(namePtr)
		_ = l.ResolveAndStore(name) // thunk has no channel to report failure; next call retries
		return 0
	})
	*slot = cb

	l.mu.Lock()
	l.resolverHandle = handle
	l.mu.Unlock()
	return nil
}

// cString reads a NUL-terminated C string starting at addr.
func cString(addr uintptr) string {
	if addr == 0 {
		return ""
	}
	var b []byte
	for i := 0; ; i++ {
		c := *(*byte)(ptrOf(addr + uintptr(i)))
		if c == 0 {
			break
		}
		b = append(b, c)
	}
	return string(b)
}
