// Package dynload implements the dynamic loader / symbol binder (C6).
// It opens built shared objects with the platform dynamic linker,
// resolves symbols, and for every function discovered in a fragment's
// object writes the real address into the corresponding trampoline
// stub's pointer (spec.md §4.6). It is built on purego's Dlopen/Dlsym so
// the loader needs no cgo, matching the teacher's cgo-free posture.
package dynload

import (
	"fmt"
	"sync"

	"github.com/ebitengine/purego"

	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/astharvest"
)

// Handle is an opaque dynamic-linker handle, as returned by Open.
type Handle uintptr

// Open opens the shared object at path with the platform dynamic
// linker, eagerly or lazily per the lazy flag.
func Open(path string, lazy bool) (Handle, error) {
	mode := purego.RTLD_NOW
	if lazy {
		mode = purego.RTLD_LAZY
	}
	h, err := purego.Dlopen(path, mode|purego.RTLD_GLOBAL)
	if err != nil {
		return 0, fmt.Errorf("dynload: open %s: %w", path, err)
	}
	return Handle(h), nil
}

// Lookup resolves name in the library identified by h, returning 0 if
// the symbol is absent (spec.md's MissingSymbolAtBind is expected to be
// routine, not exceptional, for inlined/templated functions).
func Lookup(h Handle, name string) uintptr {
	addr, err := purego.Dlsym(uintptr(h), name)
	if err != nil {
		return 0
	}
	return addr
}

// Loader is the process-wide registry of every known "<mangled>_ptr"
// slot, so the resolver callback (ResolveAndStore) can walk and
// overwrite them all when a later fragment redefines an earlier one
// (spec.md §4.6 stage 1, Invariant P2).
//
// Loader is a long-lived, process-scoped value threaded explicitly
// through the pipeline (spec.md §9's design note): there is exactly one
// per Session, never a package global.
type Loader struct {
	mu sync.Mutex

	// ptrSlots maps mangled name -> address of the writable "<mangled>_ptr"
	// pointer inside whichever stub library last defined it.
	ptrSlots map[string]*uintptr

	// latestFragment is the handle+path of the most recently loaded
	// fragment's code object, consulted first by ResolveAndStore.
	latestFragment Handle
	latestPath     string

	// offsets is consulted as the stage-2 fallback when the latest
	// fragment cannot be reloaded (spec.md §4.6 stage 2).
	offsets map[string]uint64
	baseOf  func(path string) (uintptr, error)

	// resolverHandle keeps the bootstrap resolver object (see
	// resolver.go) alive for the process lifetime; it is never closed.
	resolverHandle Handle
}

// NewLoader returns an empty Loader. baseOf computes a loaded library's
// runtime load base from the process memory map; it is injected so
// tests can avoid depending on a real /proc/self/maps.
func NewLoader(baseOf func(path string) (uintptr, error)) *Loader {
	return &Loader{
		ptrSlots: map[string]*uintptr{},
		offsets:  map[string]uint64{},
		baseOf:   baseOf,
	}
}

// BindTrampolines implements spec.md §4.6's bind_trampolines: for each
// function in decls, look its mangled name up in codeHandle; if found,
// look "<mangled>_ptr" up in stubHandle; if both found, write the real
// address into the pointer. If the code symbol is absent but the
// pointer exists, it is deliberately left pointing at the thunk, which
// will self-resolve on demand (MissingSymbolAtBind).
func (l *Loader) BindTrampolines(stubHandle, codeHandle Handle, codePath string, decls []astharvest.Decl) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, d := range decls {
		if d.Kind != astharvest.Function && d.Kind != astharvest.Method {
			continue
		}
		ptrAddr := Lookup(stubHandle, d.MangledName+"_ptr")
		if ptrAddr == 0 {
			continue // no stub was synthesized for this decl
		}
		slot := (*uintptr)(ptrOf(ptrAddr))
		l.ptrSlots[d.MangledName] = slot

		real := Lookup(codeHandle, d.MangledName)
		if real == 0 {
			continue // MissingSymbolAtBind: leave pointing at the thunk
		}
		*slot = real
	}
	l.latestFragment = codeHandle
	l.latestPath = codePath
	return nil
}

// RecordOffsets registers the symbol-offset map for a fragment's code
// object, consulted by ResolveAndStore's stage-2 fallback.
func (l *Loader) RecordOffsets(names map[string]uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for name, off := range names {
		l.offsets[name] = off
	}
}

// ResolveAndStore is the Go side of the process-global resolver callback
// of spec.md §4.6: given the mangled name whose call faulted into the
// thunk, it computes the symbol's current address and writes it into the
// "<mangled>_ptr" slot that BindTrampolines registered for that name.
// There is exactly one registered slot per name, so this is a single
// write; slots registered for other names are not touched.
func (l *Loader) ResolveAndStore(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Stage 1: reload the most recent fragment library lazily and dlsym it.
	if l.latestPath != "" {
		h, err := Open(l.latestPath, true)
		if err == nil {
			if addr := Lookup(h, name); addr != 0 {
				if slot, ok := l.ptrSlots[name]; ok {
					*slot = addr
				}
				return nil
			}
		}
	}

	// Stage 2: compute the library's load base and add the C4-supplied offset.
	if off, ok := l.offsets[name]; ok && l.baseOf != nil {
		base, err := l.baseOf(l.latestPath)
		if err != nil {
			return fmt.Errorf("dynload: resolve %s: load base: %w", name, err)
		}
		if slot, ok := l.ptrSlots[name]; ok {
			*slot = base + uintptr(off)
			return nil
		}
	}
	return fmt.Errorf("dynload: resolve %s: symbol never materialized", name)
}
