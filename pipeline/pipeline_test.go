package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/astharvest"
	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/clangdriver"
	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/declstore"
	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/dynload"
	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/printersink"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	driver := &clangdriver.Driver{Compiler: "/bin/true", Std: "gnu++20"}
	loader := dynload.NewLoader(nil)
	sink := printersink.NewSink()
	store := declstore.New()
	var stdout, stderr bytes.Buffer
	p, err := New(cfg, driver, store, loader, sink, &stdout, &stderr)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestExecuteBlankLineIsNoop(t *testing.T) {
	p := newTestPipeline(t)
	cont, err := p.Execute(context.Background(), "   ")
	if err != nil || !cont {
		t.Fatalf("blank line: cont=%v err=%v", cont, err)
	}
}

func TestExecuteExitStopsTheLoop(t *testing.T) {
	p := newTestPipeline(t)
	cont, err := p.Execute(context.Background(), "exit")
	if err != nil {
		t.Fatal(err)
	}
	if cont {
		t.Fatal("expected exit to return cont=false")
	}
}

func TestExecuteIncludeGrowsStore(t *testing.T) {
	p := newTestPipeline(t)
	if _, err := p.Execute(context.Background(), `#include "foo.hpp"`); err != nil {
		t.Fatal(err)
	}
	if !p.Store.IsIncluded(absPath(t, "foo.hpp")) {
		t.Errorf("expected foo.hpp to be recorded in the store, text=%q", p.Store.Text())
	}
}

func TestExecuteIncludeSystemHeaderNotMadeAbsolute(t *testing.T) {
	p := newTestPipeline(t)
	if _, err := p.Execute(context.Background(), "#include <vector>"); err != nil {
		t.Fatal(err)
	}
	if !p.Store.IsIncluded("vector") {
		t.Errorf("expected system header path kept bare, text=%q", p.Store.Text())
	}
}

func TestExecuteIncludeDirAppendsToDriver(t *testing.T) {
	p := newTestPipeline(t)
	if _, err := p.Execute(context.Background(), "#includedir /opt/include"); err != nil {
		t.Fatal(err)
	}
	if len(p.Driver.IncludeDirs) != 1 || p.Driver.IncludeDirs[0] != "/opt/include" {
		t.Errorf("IncludeDirs = %v", p.Driver.IncludeDirs)
	}
}

func TestExecuteCompilerDefineAndLib(t *testing.T) {
	p := newTestPipeline(t)
	if _, err := p.Execute(context.Background(), "#compilerdefine FOO=1"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Execute(context.Background(), "#lib pthread"); err != nil {
		t.Fatal(err)
	}
	if len(p.Driver.Defines) != 1 || p.Driver.Defines[0] != "FOO=1" {
		t.Errorf("Defines = %v", p.Driver.Defines)
	}
	if len(p.Driver.Libs) != 1 || p.Driver.Libs[0] != "pthread" {
		t.Errorf("Libs = %v", p.Driver.Libs)
	}
}

func TestExecutePrintallWithNoVariablesIsNoop(t *testing.T) {
	p := newTestPipeline(t)
	if _, err := p.Execute(context.Background(), "printall"); err != nil {
		t.Fatal(err)
	}
}

func TestExecuteEvalallWithEmptyQueueIsNoop(t *testing.T) {
	p := newTestPipeline(t)
	if _, err := p.Execute(context.Background(), "evalall"); err != nil {
		t.Fatal(err)
	}
}

func TestExecuteKnownVariableCallsPrinter(t *testing.T) {
	p := newTestPipeline(t)
	called := false
	p.Sink.Register("x", func() error { called = true; return nil })
	if _, err := p.Execute(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("expected the registered printer for x to be invoked")
	}
}

func TestWrapStatementShape(t *testing.T) {
	got := wrapStatement("int x = 1")
	want := "void exec() {\n    int x = 1;\n}\n"
	if got != want {
		t.Errorf("wrapStatement = %q, want %q", got, want)
	}
}

func TestWrapReturnUsesTypeidOnDeducedType(t *testing.T) {
	got := wrapReturn("1 + 2")
	if !containsAll(got, "auto &&cpprepl_result", "typeid(cpprepl_result)", "printdata(cpprepl_result") {
		t.Errorf("wrapReturn missing expected pieces: %q", got)
	}
}

func TestNormalizeIncludePath(t *testing.T) {
	cases := []struct {
		in       string
		wantPath string
		wantSys  bool
	}{
		{`"local.hpp"`, "local.hpp", false},
		{"<vector>", "vector", true},
	}
	for _, c := range cases {
		path, sys := normalizeIncludePath(c.in)
		if path != c.wantPath || sys != c.wantSys {
			t.Errorf("normalizeIncludePath(%q) = (%q, %v), want (%q, %v)", c.in, path, sys, c.wantPath, c.wantSys)
		}
	}
}

func TestFilterNewDeclsSkipsAlreadySeen(t *testing.T) {
	store := declstore.New()
	store.MarkFunctionSeen("_Z3addii")
	decls := []astharvest.Decl{
		{Name: "add", MangledName: "_Z3addii", Kind: astharvest.Function},
		{Name: "sub", MangledName: "_Z3subii", Kind: astharvest.Function},
		{Name: "x", Kind: astharvest.Variable},
	}
	fresh := filterNewDecls(store, decls)
	if len(fresh) != 2 {
		t.Fatalf("expected 2 fresh decls (sub, x), got %d: %+v", len(fresh), fresh)
	}
}

func TestNewWritesPrinterHeaderAndAmalgamHeader(t *testing.T) {
	p := newTestPipeline(t)
	if _, err := os.Stat(p.Config.PrinterHeaderPath); err != nil {
		t.Errorf("expected printerOutput.hpp to exist after New: %v", err)
	}
	if _, err := os.Stat(p.Config.AmalgamHeaderPath); err != nil {
		t.Errorf("expected decl_amalgama.hpp to exist after New: %v", err)
	}
}

func TestEnsurePCHFreshWritesPCHHeaderContent(t *testing.T) {
	p := newTestPipeline(t)
	p.Store.AddDeclaration("extern int x;")
	if err := p.ensurePCHFresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(p.Config.PCHHeaderPath)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if !strings.Contains(got, `#include "printerOutput.hpp"`) || !strings.Contains(got, `#include "decl_amalgama.hpp"`) {
		t.Errorf("precompiledheader.hpp missing expected includes:\n%s", got)
	}
}

func TestHasFunctionsAndHasVariables(t *testing.T) {
	decls := []astharvest.Decl{{Kind: astharvest.Variable}}
	if hasFunctions(decls) {
		t.Error("expected no functions")
	}
	if !hasVariables(decls) {
		t.Error("expected a variable")
	}
	decls = append(decls, astharvest.Decl{Kind: astharvest.Function})
	if !hasFunctions(decls) {
		t.Error("expected a function after append")
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

func absPath(t *testing.T, rel string) string {
	t.Helper()
	abs, err := filepath.Abs(rel)
	if err != nil {
		t.Fatal(err)
	}
	return abs
}
