package declstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAddIncludeIdempotent(t *testing.T) {
	s := New()
	s.AddInclude("/usr/include/vector")
	s.AddInclude("/usr/include/vector")
	if got := strings.Count(s.Text(), "vector"); got != 1 {
		t.Errorf("AddInclude not idempotent: header contains %d mentions, want 1:\n%s", got, s.Text())
	}
}

func TestHeaderNeverShrinks(t *testing.T) {
	s := New()
	s.AddDeclaration("extern int a;")
	before := s.Text()
	s.ResetPerFragmentScratch()
	s.AddInclude("/repeat/me.h")
	s.AddInclude("/repeat/me.h")
	after := s.Text()
	if !strings.HasPrefix(after, before) {
		t.Fatalf("header shrank or was rewritten: before=%q after=%q", before, after)
	}
}

func TestHeaderChangedSinceLastQuery(t *testing.T) {
	s := New()
	if s.HeaderChangedSinceLastQuery() {
		t.Fatal("empty store should report no change on first query (baseline establishment)")
	}
	s.AddDeclaration("extern int x;")
	if !s.HeaderChangedSinceLastQuery() {
		t.Fatal("expected change after AddDeclaration")
	}
	if s.HeaderChangedSinceLastQuery() {
		t.Fatal("expected no change on repeated query with no growth")
	}
}

func TestMarkSeen(t *testing.T) {
	s := New()
	if s.MarkVariableSeen("x") {
		t.Fatal("first MarkVariableSeen should report not-already-seen")
	}
	if !s.MarkVariableSeen("x") {
		t.Fatal("second MarkVariableSeen should report already-seen")
	}
	if s.MarkFunctionSeen("_Z3foov") {
		t.Fatal("first MarkFunctionSeen should report not-already-seen")
	}
	if !s.MarkFunctionSeen("_Z3foov") {
		t.Fatal("second MarkFunctionSeen should report already-seen")
	}
}

func TestSaveTo(t *testing.T) {
	s := New()
	s.AddDeclaration("extern int a;")
	dir := t.TempDir()
	p := filepath.Join(dir, "decl_amalgama.hpp")
	if err := s.SaveTo(p); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != s.Text() {
		t.Fatalf("saved file does not match header text: %q vs %q", b, s.Text())
	}
}
