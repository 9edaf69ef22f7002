package trampoline

import (
	"strings"
	"testing"

	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/astharvest"
)

func TestSynthesizeEmitsStubAndThunk(t *testing.T) {
	decls := []astharvest.Decl{
		{Name: "add", MangledName: "_Z3addii", Kind: astharvest.Function, QualType: "int (int, int)"},
		{Name: "a", Kind: astharvest.Variable, QualType: "int"}, // must be ignored
	}
	src, err := Synthesize(decls)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"void *_Z3addii_ptr = (void *)(loadFn__Z3addii);",
		"int _Z3addii(int, int)", // declarator with the mangled name spliced in at '('
		"jmp *%0",
		"call resolve_and_store",
		"jmp *_Z3addii_ptr(%rip)",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("synthesized source missing %q:\n%s", want, src)
		}
	}
	if strings.Contains(src, "loadFn__Z3addii") && strings.Count(src, "loadFn__Z3addii") < 2 {
		t.Errorf("expected both forward decl and definition of loadFn__Z3addii")
	}
}

func TestSynthesizeSplicesDeclaratorAtParen(t *testing.T) {
	decls := []astharvest.Decl{
		{MangledName: "_Z1fv", Kind: astharvest.Function, QualType: "void ()"},
	}
	src, err := Synthesize(decls)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(src, "void _Z1fv()") {
		t.Errorf("expected spliced declarator `void _Z1fv()`, got:\n%s", src)
	}
}

func TestSynthesizeRejectsUnparenthesizedType(t *testing.T) {
	decls := []astharvest.Decl{
		{MangledName: "_Z1fv", Kind: astharvest.Function, QualType: "malformed-no-paren"},
	}
	if _, err := Synthesize(decls); err == nil {
		t.Fatal("expected an error for a qualType with no parameter list")
	}
}

func TestSynthesizeSkipsNonFunctionDecls(t *testing.T) {
	decls := []astharvest.Decl{{Name: "a", Kind: astharvest.Variable, QualType: "int"}}
	src, err := Synthesize(decls)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(src) != "" {
		t.Errorf("expected no stub output for a variable-only decl list, got:\n%s", src)
	}
}
