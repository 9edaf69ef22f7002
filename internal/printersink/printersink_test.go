package printersink

import (
	"errors"
	"strings"
	"testing"

	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/astharvest"
)

func TestEmitSourceOnlyVariables(t *testing.T) {
	decls := []astharvest.Decl{
		{Name: "a", Kind: astharvest.Variable, QualType: "int"},
		{Name: "add", Kind: astharvest.Function, QualType: "int (int, int)"},
	}
	src, err := EmitSource(decls)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(src, "printvar_a") {
		t.Errorf("expected printvar_a in generated source:\n%s", src)
	}
	if strings.Contains(src, "printvar_add") {
		t.Errorf("functions must not get a printer, got:\n%s", src)
	}
	if strings.Contains(src, "printall") {
		t.Errorf("printall is driven from Go (Sink.CallAll), no generated symbol expected:\n%s", src)
	}
	if !strings.Contains(src, `#include "decl_amalgama.hpp"`) {
		t.Errorf("expected printvar_a to see prior declarations via decl_amalgama.hpp:\n%s", src)
	}
}

func TestSinkRegisterAndCall(t *testing.T) {
	s := NewSink()
	called := false
	s.Register("a", func() error { called = true; return nil })
	if !s.Known("a") {
		t.Fatal("expected a to be known after Register")
	}
	if s.Known("b") {
		t.Fatal("b was never registered")
	}
	if err := s.Call("a"); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("expected printer to be invoked")
	}
}

func TestSinkCallUnknownErrors(t *testing.T) {
	s := NewSink()
	if err := s.Call("nope"); err == nil {
		t.Fatal("expected an error calling an unregistered printer")
	}
}

func TestSinkCallAllOrderAndPropagation(t *testing.T) {
	s := NewSink()
	var order []string
	s.Register("a", func() error { order = append(order, "a"); return nil })
	s.Register("b", func() error { order = append(order, "b"); return nil })
	s.Register("a", func() error { order = append(order, "a2"); return nil }) // re-register keeps position
	if err := s.CallAll(); err != nil {
		t.Fatal(err)
	}
	want := []string{"a2", "b"}
	if len(order) != 2 || order[0] != want[0] || order[1] != want[1] {
		t.Fatalf("CallAll order = %v, want %v", order, want)
	}

	s.Register("c", func() error { return errors.New("boom") })
	if err := s.CallAll(); err == nil {
		t.Fatal("expected CallAll to propagate a printer error")
	}
}
