// Package symtab implements the symbol-offset resolver (C4): given a
// built shared object, it returns a map of mangled name to byte offset
// within the object's load segment. It never opens the library for
// execution (spec.md §4.4) — it only reads the ELF symbol table.
package symtab

import (
	"debug/elf"
	"fmt"
)

// Map is {mangled-name -> file offset within the object's load segment}.
type Map map[string]uint64

// Offsets parses the ELF symbol table of the shared object at path and
// returns the offsets of every name present in wanted. Names in wanted
// that are absent from the object (e.g. inlined away) are simply
// omitted from the result; this is not an error (spec.md's
// MissingSymbolAtBind is a bind-time concern, not an Offsets-time one).
func Offsets(path string, wanted map[string]struct{}) (Map, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("symtab: open %s: %w", path, err)
	}
	defer f.Close()

	result := Map{}
	collect := func(syms []elf.Symbol) {
		for _, sym := range syms {
			if _, ok := wanted[sym.Name]; !ok {
				continue
			}
			if sym.Section == elf.SHN_UNDEF {
				continue // undefined symbols have no offset in this object
			}
			result[sym.Name] = offsetOf(f, sym)
		}
	}

	if syms, err := f.Symbols(); err == nil {
		collect(syms)
	}
	if dynSyms, err := f.DynamicSymbols(); err == nil {
		collect(dynSyms)
	}
	return result, nil
}

// offsetOf computes a symbol's file offset from its containing
// section's own file offset and the symbol's in-section address delta,
// which is what the self-resolving thunk adds to the object's runtime
// load base (spec.md §4.6 stage 2).
func offsetOf(f *elf.File, sym elf.Symbol) uint64 {
	secIdx := int(sym.Section)
	if secIdx < 0 || secIdx >= len(f.Sections) {
		return sym.Value
	}
	sec := f.Sections[secIdx]
	return sym.Value - sec.Addr + sec.Offset
}
