package trampoline

import "debug/elf"

// ValidateStubPlacement is a best-effort sanity check, not required by
// any invariant, that the data symbol ptrSymbol (a "<mangled>_ptr" slot)
// lives in a writable section of the object at path — supplementing
// spec.md with the check original_source/utility/assembly_info.hpp
// performs on the running process's own sections before trusting a
// trampoline patch.
func ValidateStubPlacement(path, ptrSymbol string) (bool, error) {
	f, err := elf.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	syms, err := f.Symbols()
	if err != nil {
		return false, err
	}
	for _, sym := range syms {
		if sym.Name != ptrSymbol {
			continue
		}
		secIdx := int(sym.Section)
		if secIdx < 0 || secIdx >= len(f.Sections) {
			return false, nil
		}
		return f.Sections[secIdx].Flags&elf.SHF_WRITE != 0, nil
	}
	return false, nil
}
