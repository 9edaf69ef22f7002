package dynload

import (
	"errors"
	"testing"
	"unsafe"
)

func TestResolveAndStoreStage2Fallback(t *testing.T) {
	var slot uintptr
	l := NewLoader(func(path string) (uintptr, error) {
		if path != "/fake/lib.so" {
			t.Fatalf("unexpected path %q", path)
		}
		return 0x400000, nil
	})
	l.latestPath = "/fake/lib.so" // stage 1 will fail to dlopen this path
	l.ptrSlots["_Z3addii"] = &slot
	l.offsets["_Z3addii"] = 0x10

	if err := l.ResolveAndStore("_Z3addii"); err != nil {
		t.Fatal(err)
	}
	if slot != 0x400010 {
		t.Errorf("slot = %#x, want %#x", slot, 0x400010)
	}
}

func TestResolveAndStoreUnknownSymbolErrors(t *testing.T) {
	l := NewLoader(func(string) (uintptr, error) { return 0, errors.New("unused") })
	if err := l.ResolveAndStore("_never_seen"); err == nil {
		t.Fatal("expected an error for a symbol with no recorded offset or slot")
	}
}

func TestResolveAndStoreBaseOfFailurePropagates(t *testing.T) {
	var slot uintptr
	l := NewLoader(func(string) (uintptr, error) { return 0, errors.New("no such mapping") })
	l.ptrSlots["_Z3addii"] = &slot
	l.offsets["_Z3addii"] = 0x10
	if err := l.ResolveAndStore("_Z3addii"); err == nil {
		t.Fatal("expected baseOf failure to propagate")
	}
}

func TestPtrOfRoundTrips(t *testing.T) {
	var x uintptr = 42
	addr := uintptr(unsafe.Pointer(&x))
	p := (*uintptr)(ptrOf(addr))
	if *p != 42 {
		t.Fatalf("ptrOf round-trip failed: got %d", *p)
	}
	*p = 7
	if x != 7 {
		t.Fatalf("write through ptrOf did not reach original variable: x=%d", x)
	}
}
