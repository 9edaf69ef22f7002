package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/ebitengine/purego"

	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/astharvest"
	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/clangdriver"
	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/dynload"
	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/printersink"
	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/symtab"
	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/trampoline"
)

// runFragment implements the single-entry build-and-load path of
// spec.md §4.7 steps (a)-(i). When lazy is true the fragment is queued
// for a later evalall instead of being built immediately.
func (p *Pipeline) runFragment(ctx context.Context, wrapped, ext string, analyze, lazy bool) (bool, error) {
	if lazy {
		p.mu.Lock()
		p.deferred = append(p.deferred, deferredFragment{wrapped: wrapped, ext: ext, analyze: analyze})
		p.mu.Unlock()
		return true, nil
	}

	id := atomic.AddInt64(&p.nextID, 1)
	if err := p.ensurePCHFresh(ctx); err != nil {
		return true, err
	}
	_, err := p.buildOne(ctx, id, wrapped, ext, analyze)
	return true, err
}

// pchHeaderContent is precompiledheader.hpp's own text: the printdata
// overload set and the growing amalgam header, both forced-included
// into every CompileShared/CompileASTJSON invocation via -include-pch
// (spec.md §4.2, §6). This is how a fragment that never spells out
// "#include \"decl_amalgama.hpp\"" itself (e.g. a bare statement from
// wrapStatement) still sees every function/variable declared by an
// earlier fragment.
const pchHeaderContent = "#pragma once\n\n#include \"printerOutput.hpp\"\n\n#include \"decl_amalgama.hpp\"\n"

// ensurePCHFresh implements step (a): if the amalgam header has grown
// since it was last baked into the precompiled header, rewrite it to
// disk and rebuild the PCH before compiling the next fragment (spec.md
// §4.2, §6).
func (p *Pipeline) ensurePCHFresh(ctx context.Context) error {
	if !p.Store.HeaderChangedSinceLastQuery() {
		return nil
	}
	if err := p.Store.SaveTo(p.Config.AmalgamHeaderPath); err != nil {
		return &FilesystemError{Path: p.Config.AmalgamHeaderPath, Err: err}
	}
	if err := os.WriteFile(p.Config.PCHHeaderPath, []byte(pchHeaderContent), 0o644); err != nil {
		return &FilesystemError{Path: p.Config.PCHHeaderPath, Err: err}
	}
	res, err := p.Driver.CompilePCH(ctx, p.Config.PCHHeaderPath, p.Config.PCHOutputPath)
	if err != nil {
		return err
	}
	if !res.Succeeded() {
		return &CompilerDiagnostic{Fragment: -1, Result: res}
	}
	return nil
}

// buildOne runs steps (b)-(i) for a single fragment whose wrapped
// source text and extension are already known, returning the built
// Fragment for #batch_eval's caller to aggregate.
func (p *Pipeline) buildOne(ctx context.Context, id int64, wrapped, ext string, analyze bool) (*Fragment, error) {
	frag := &Fragment{ID: id}

	// (b) write wrapped source.
	frag.SourcePath = filepath.Join(p.Config.WorkDir, fmt.Sprintf("repl_%d.%s", id, ext))
	if err := os.WriteFile(frag.SourcePath, []byte(wrapped), 0o644); err != nil {
		return nil, &FilesystemError{Path: frag.SourcePath, Err: err}
	}

	// (c) optional AST analysis.
	if analyze {
		decls, err := p.harvestFragment(ctx, id, frag.SourcePath)
		if err != nil {
			return nil, err
		}
		frag.EmittedDecls = decls
	}

	// (d) object compile.
	frag.ObjectPath = filepath.Join(p.Config.WorkDir, fmt.Sprintf("repl_%d.so", id))
	res, err := p.Driver.CompileShared(ctx, clangdriver.CompileRequest{Source: frag.SourcePath, Output: frag.ObjectPath})
	if err != nil {
		return nil, err
	}
	if !res.Succeeded() {
		return nil, &CompilerDiagnostic{Fragment: id, Result: res}
	}

	if err := p.loadAndBind(ctx, frag); err != nil {
		return nil, err
	}

	// (h) invoke exec(), catching anything the fragment throws.
	if err := p.invokeExec(frag); err != nil {
		return frag, err
	}

	// (i) newly declared variables are now known to the sink; nothing
	// further to print here, the prompt prints them on next reference.
	p.mu.Lock()
	p.fragments[id] = frag
	p.mu.Unlock()
	return frag, nil
}

func (p *Pipeline) harvestFragment(ctx context.Context, id int64, sourcePath string) ([]astharvest.Decl, error) {
	astPath := filepath.Join(p.Config.WorkDir, fmt.Sprintf("repl_%d.ast.json", id))
	res, err := p.Driver.CompileASTJSON(ctx, clangdriver.CompileRequest{Source: sourcePath, Output: astPath})
	if err != nil {
		return nil, err
	}
	if !res.Succeeded() {
		return nil, &CompilerDiagnostic{Fragment: id, Result: res}
	}
	data, err := os.ReadFile(astPath)
	if err != nil {
		return nil, &FilesystemError{Path: astPath, Err: err}
	}
	var doc astharvest.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &AstAnalysisFailure{Fragment: id, Err: err}
	}
	cfg := astharvest.Config{
		WorkDir: p.Config.WorkDir,
		GeneratedPaths: []string{
			p.Config.AmalgamHeaderPath,
			p.Config.PCHHeaderPath,
			p.Config.PrinterHeaderPath,
		},
	}
	decls, err := astharvest.Harvest(doc, sourcePath, cfg, p.Store)
	if err != nil {
		return nil, &AstAnalysisFailure{Fragment: id, Err: err}
	}
	return filterNewDecls(p.Store, decls), nil
}

// filterNewDecls drops decls the store has already seen, implementing
// spec.md §4.3's "functions_seen"/"variables_seen" skip rule so that a
// redefinition of an already-bound name is not re-stubbed.
func filterNewDecls(store interface {
	MarkVariableSeen(string) bool
	MarkFunctionSeen(string) bool
}, decls []astharvest.Decl) []astharvest.Decl {
	fresh := make([]astharvest.Decl, 0, len(decls))
	for _, d := range decls {
		switch d.Kind {
		case astharvest.Function, astharvest.Method:
			if !store.MarkFunctionSeen(d.MangledName) {
				fresh = append(fresh, d)
			}
		case astharvest.Variable:
			if !store.MarkVariableSeen(d.Name) {
				fresh = append(fresh, d)
			}
		}
	}
	return fresh
}

// loadAndBind implements steps (e)-(g): synthesize and compile a
// trampoline stub library for any newly declared functions, open the
// fragment's object and the stub library, bind them together, then
// build, load, and register a printer for any newly declared variables.
func (p *Pipeline) loadAndBind(ctx context.Context, frag *Fragment) error {
	codeHandle, err := dynload.Open(frag.ObjectPath, false)
	if err != nil {
		return &LinkOrLoadFailure{Fragment: frag.ID, Path: frag.ObjectPath, Err: err}
	}
	frag.CodeHandle = codeHandle

	if hasFunctions(frag.EmittedDecls) {
		if err := p.ensureResolver(ctx); err != nil {
			return err
		}
		stubSrc, err := trampoline.Synthesize(frag.EmittedDecls)
		if err != nil {
			return &AstAnalysisFailure{Fragment: frag.ID, Err: err}
		}
		// The stub's extern "C" { ... } block is C++-only; naming it .c
		// would make the compiler select the C front end (and reject both
		// extern "C" and -std=gnu++20). The original emits this same
		// naked-stub content as wrapper_<name>.cpp and builds it as C++
		// (original_source/repl.cpp:789,794) — match that here.
		stubPath := filepath.Join(p.Config.WorkDir, fmt.Sprintf("repl_%d_trampoline.cpp", frag.ID))
		if err := os.WriteFile(stubPath, []byte(stubSrc), 0o644); err != nil {
			return &FilesystemError{Path: stubPath, Err: err}
		}
		stubObjPath := filepath.Join(p.Config.WorkDir, fmt.Sprintf("repl_%d_trampoline.so", frag.ID))
		res, err := p.Driver.CompileShared(ctx, clangdriver.CompileRequest{Source: stubPath, Output: stubObjPath})
		if err != nil {
			return err
		}
		if !res.Succeeded() {
			return &CompilerDiagnostic{Fragment: frag.ID, Result: res}
		}
		for _, d := range frag.EmittedDecls {
			if d.Kind != astharvest.Function && d.Kind != astharvest.Method {
				continue
			}
			writable, err := trampoline.ValidateStubPlacement(stubObjPath, d.MangledName+"_ptr")
			if err != nil {
				return &LinkOrLoadFailure{Fragment: frag.ID, Path: stubObjPath, Err: err}
			}
			if !writable {
				return &LinkOrLoadFailure{Fragment: frag.ID, Path: stubObjPath, Err: fmt.Errorf("trampoline pointer slot for %s is not writable", d.MangledName)}
			}
		}
		frag.TrampolineObjectPath = stubObjPath

		stubHandle, err := dynload.Open(stubObjPath, false)
		if err != nil {
			return &LinkOrLoadFailure{Fragment: frag.ID, Path: stubObjPath, Err: err}
		}
		frag.StubHandle = stubHandle

		wanted := map[string]struct{}{}
		for _, d := range frag.EmittedDecls {
			if d.Kind == astharvest.Function || d.Kind == astharvest.Method {
				wanted[d.MangledName] = struct{}{}
			}
		}
		offsets, err := symtab.Offsets(frag.ObjectPath, wanted)
		if err != nil {
			return &LinkOrLoadFailure{Fragment: frag.ID, Path: frag.ObjectPath, Err: err}
		}
		p.Loader.RecordOffsets(offsets)

		if err := p.Loader.BindTrampolines(stubHandle, codeHandle, frag.ObjectPath, frag.EmittedDecls); err != nil {
			return &LinkOrLoadFailure{Fragment: frag.ID, Path: frag.ObjectPath, Err: err}
		}
	}

	if hasVariables(frag.EmittedDecls) {
		if err := p.buildAndRegisterPrinters(ctx, frag); err != nil {
			return err
		}
	}
	return nil
}

// ensureResolver builds and wires the process-global resolve_and_store
// symbol (dynload.ResolverSource) exactly once per session, before the
// first trampoline library that needs to call it is opened.
func (p *Pipeline) ensureResolver(ctx context.Context) error {
	p.resolverOnce.Do(func() {
		srcPath := filepath.Join(p.Config.WorkDir, "cpprepl_resolver.cpp")
		objPath := filepath.Join(p.Config.WorkDir, "cpprepl_resolver.so")
		if err := os.WriteFile(srcPath, []byte(dynload.ResolverSource), 0o644); err != nil {
			p.resolverErr = &FilesystemError{Path: srcPath, Err: err}
			return
		}
		res, err := p.Driver.CompileShared(ctx, clangdriver.CompileRequest{Source: srcPath, Output: objPath})
		if err != nil {
			p.resolverErr = err
			return
		}
		if !res.Succeeded() {
			p.resolverErr = &CompilerDiagnostic{Fragment: -1, Result: res}
			return
		}
		handle, err := dynload.Open(objPath, false)
		if err != nil {
			p.resolverErr = &LinkOrLoadFailure{Fragment: -1, Path: objPath, Err: err}
			return
		}
		if err := p.Loader.WireResolver(handle); err != nil {
			p.resolverErr = &LinkOrLoadFailure{Fragment: -1, Path: objPath, Err: err}
		}
	})
	return p.resolverErr
}

func (p *Pipeline) buildAndRegisterPrinters(ctx context.Context, frag *Fragment) error {
	src, err := printersink.EmitSource(frag.EmittedDecls)
	if err != nil {
		return &AstAnalysisFailure{Fragment: frag.ID, Err: err}
	}
	printerSrcPath := filepath.Join(p.Config.WorkDir, fmt.Sprintf("repl_%d_printer.cpp", frag.ID))
	if err := os.WriteFile(printerSrcPath, []byte(src), 0o644); err != nil {
		return &FilesystemError{Path: printerSrcPath, Err: err}
	}
	printerObjPath := filepath.Join(p.Config.WorkDir, fmt.Sprintf("repl_%d_printer.so", frag.ID))
	res, err := p.Driver.CompileShared(ctx, clangdriver.CompileRequest{Source: printerSrcPath, Output: printerObjPath})
	if err != nil {
		return err
	}
	if !res.Succeeded() {
		return &CompilerDiagnostic{Fragment: frag.ID, Result: res}
	}
	handle, err := dynload.Open(printerObjPath, false)
	if err != nil {
		return &LinkOrLoadFailure{Fragment: frag.ID, Path: printerObjPath, Err: err}
	}
	for _, d := range frag.EmittedDecls {
		if d.Kind != astharvest.Variable {
			continue
		}
		addr := dynload.Lookup(handle, "printvar_"+d.Name)
		if addr == 0 {
			continue
		}
		var fn func()
		purego.RegisterFunc(&fn, addr)
		name := d.Name
		p.Sink.Register(name, func() error {
			fn()
			return nil
		})
	}
	return nil
}

// invokeExec looks up and calls the fragment's exec() entry point,
// converting a Go-level panic (the best-effort analogue of a native
// C++ exception escaping exec, spec.md §9) into a
// RuntimeExceptionInFragment rather than crashing the session.
func (p *Pipeline) invokeExec(frag *Fragment) (err error) {
	addr := dynload.Lookup(frag.CodeHandle, "exec")
	if addr == 0 {
		return nil // source defined no exec() (e.g. a #eval'd declarations-only file)
	}
	defer func() {
		if r := recover(); r != nil {
			err = &RuntimeExceptionInFragment{Fragment: frag.ID, What: fmt.Sprint(r)}
		}
	}()
	var exec func()
	purego.RegisterFunc(&exec, addr)
	exec()
	return nil
}

func hasFunctions(decls []astharvest.Decl) bool {
	for _, d := range decls {
		if d.Kind == astharvest.Function || d.Kind == astharvest.Method {
			return true
		}
	}
	return false
}

func hasVariables(decls []astharvest.Decl) bool {
	for _, d := range decls {
		if d.Kind == astharvest.Variable {
			return true
		}
	}
	return false
}

// buildBatch implements #batch_eval (spec.md §4.7, §5): every source is
// written and AST-dumped/compiled concurrently, joined, then bound and
// executed in the caller-given order (link and load stay sequential,
// since stub binding mutates the shared Loader).
func (p *Pipeline) buildBatch(ctx context.Context, firstID int64, sources []string) (bool, error) {
	if err := p.ensurePCHFresh(ctx); err != nil {
		return true, err
	}

	ids := make([]int64, len(sources))
	ids[0] = firstID
	for i := 1; i < len(sources); i++ {
		ids[i] = atomic.AddInt64(&p.nextID, 1)
	}

	sourcePaths := make([]string, len(sources))
	astReqs := make([]clangdriver.CompileRequest, len(sources))
	objReqs := make([]clangdriver.CompileRequest, len(sources))
	for i, src := range sources {
		sourcePaths[i] = filepath.Join(p.Config.WorkDir, fmt.Sprintf("repl_%d.cpp", ids[i]))
		if err := os.WriteFile(sourcePaths[i], []byte(src), 0o644); err != nil {
			return true, &FilesystemError{Path: sourcePaths[i], Err: err}
		}
		astReqs[i] = clangdriver.CompileRequest{
			Source: sourcePaths[i],
			Output: filepath.Join(p.Config.WorkDir, fmt.Sprintf("repl_%d.ast.json", ids[i])),
		}
		objReqs[i] = clangdriver.CompileRequest{
			Source: sourcePaths[i],
			Output: filepath.Join(p.Config.WorkDir, fmt.Sprintf("repl_%d.so", ids[i])),
		}
	}

	astResults, err := p.Driver.CompileASTJSONAll(ctx, astReqs)
	if err != nil {
		return true, err
	}
	objResults, err := p.Driver.CompileSharedAll(ctx, objReqs)
	if err != nil {
		return true, err
	}

	for i, id := range ids {
		if !astResults[i].Succeeded() {
			return true, &CompilerDiagnostic{Fragment: id, Result: astResults[i]}
		}
		if !objResults[i].Succeeded() {
			return true, &CompilerDiagnostic{Fragment: id, Result: objResults[i]}
		}
	}

	for i, id := range ids {
		frag := &Fragment{ID: id, SourcePath: sourcePaths[i], ObjectPath: objReqs[i].Output}
		decls, err := p.harvestFromExistingAST(id, astReqs[i].Output, sourcePaths[i])
		if err != nil {
			return true, err
		}
		frag.EmittedDecls = decls
		if err := p.loadAndBind(ctx, frag); err != nil {
			return true, err
		}
		if err := p.invokeExec(frag); err != nil {
			return true, err
		}
		p.mu.Lock()
		p.fragments[id] = frag
		p.mu.Unlock()
	}
	return true, nil
}

func (p *Pipeline) harvestFromExistingAST(id int64, astPath, sourcePath string) ([]astharvest.Decl, error) {
	data, err := os.ReadFile(astPath)
	if err != nil {
		return nil, &FilesystemError{Path: astPath, Err: err}
	}
	var doc astharvest.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &AstAnalysisFailure{Fragment: id, Err: err}
	}
	cfg := astharvest.Config{
		WorkDir: p.Config.WorkDir,
		GeneratedPaths: []string{
			p.Config.AmalgamHeaderPath,
			p.Config.PCHHeaderPath,
			p.Config.PrinterHeaderPath,
		},
	}
	decls, err := astharvest.Harvest(doc, sourcePath, cfg, p.Store)
	if err != nil {
		return nil, &AstAnalysisFailure{Fragment: id, Err: err}
	}
	return filterNewDecls(p.Store, decls), nil
}

// EvalAll drains the #lazyeval queue in FIFO order, building each
// fragment exactly as an immediate #eval would (spec.md §6).
func (p *Pipeline) EvalAll() error {
	p.mu.Lock()
	pending := p.deferred
	p.deferred = nil
	p.mu.Unlock()

	ctx := context.Background()
	for _, d := range pending {
		if err := p.ensurePCHFresh(ctx); err != nil {
			return err
		}
		id := atomic.AddInt64(&p.nextID, 1)
		if _, err := p.buildOne(ctx, id, d.wrapped, d.ext, d.analyze); err != nil {
			return err
		}
	}
	return nil
}

// LoadPrebuilt implements the supplemented #loadprebuilt feature
// (SPEC_FULL.md §4): open an already-built shared object that was not
// produced by this session's own compiler invocations (e.g. a library
// built out-of-band) with RTLD_GLOBAL, so its exported symbols are
// visible to fragments loaded later, and record it as a fragment,
// without spawning a compiler at all. Its symbol table is not read: no
// Decls are harvested from it, nothing is added to the declaration
// store, and no trampolines are bound to its functions.
func (p *Pipeline) LoadPrebuilt(path string) error {
	handle, err := dynload.Open(path, false)
	if err != nil {
		return &LinkOrLoadFailure{Fragment: -1, Path: path, Err: err}
	}
	id := atomic.AddInt64(&p.nextID, 1)
	frag := &Fragment{ID: id, ObjectPath: path, CodeHandle: handle}
	p.mu.Lock()
	p.fragments[id] = frag
	p.mu.Unlock()
	return nil
}
