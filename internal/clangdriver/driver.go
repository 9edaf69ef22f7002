// Package clangdriver implements the platform-compiler driver (C1): it
// invokes an external compiler as a subprocess to emit shared objects,
// JSON ASTs, and precompiled headers, capturing exit status and
// diagnostics verbatim for the error renderer (spec.md §4.1, §7).
package clangdriver

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"
)

// Driver wraps invocations of a single external compiler executable
// (e.g. "clang++"), carrying the flags common to every invocation in a
// session: language standard, include directories, macro definitions,
// link libraries, and an optional per-invocation timeout.
type Driver struct {
	Compiler string // e.g. "clang++"
	Std      string // language standard, e.g. "gnu++20"

	IncludeDirs []string
	Defines     []string // "NAME" or "NAME=value"
	Libs        []string
	PCHPath     string // -include'd by every compile, empty if none built yet
	ExtraArgs   []string

	Timeout time.Duration // 0 disables the timeout
}

// CompileRequest names one source file and its output artifact.
type CompileRequest struct {
	Source string
	Output string
}

// Result is a single compiler invocation's captured outcome.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Succeeded reports whether the invocation's exit code was zero. A zero
// exit code but diagnostics containing "error:" should not occur for a
// well-behaved compiler, but callers inspecting diagnostics should treat
// that as a CompilerDiagnostic regardless (spec.md §7).
func (r Result) Succeeded() bool { return r.ExitCode == 0 }

// Combined returns stdout and stderr concatenated, the form the
// diagnostic renderer colorizes.
func (r Result) Combined() string { return r.Stdout + r.Stderr }

func (d *Driver) baseArgs(std string) []string {
	args := []string{"-std=" + std, "-fPIC"}
	for _, dir := range d.IncludeDirs {
		args = append(args, "-I"+dir)
	}
	for _, def := range d.Defines {
		args = append(args, "-D"+def)
	}
	if d.PCHPath != "" {
		args = append(args, "-include-pch", d.PCHPath)
	}
	args = append(args, d.ExtraArgs...)
	return args
}

func (d *Driver) run(ctx context.Context, args []string) (Result, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, d.Compiler, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if ctx.Err() == context.DeadlineExceeded {
		return res, fmt.Errorf("clangdriver: %s timed out: %w", d.Compiler, ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if ok := asExitError(err, &exitErr); ok {
			res.ExitCode = exitErr.ExitCode()
			return res, nil // non-zero exit is a CompilerDiagnostic, not a Go error
		}
		return res, fmt.Errorf("clangdriver: spawn %s: %w", d.Compiler, err) // tool-absent
	}
	return res, nil
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

// CompileShared emits a position-independent shared object with
// exported symbols visible to the dynamic linker.
func (d *Driver) CompileShared(ctx context.Context, req CompileRequest) (Result, error) {
	args := append(d.baseArgs(d.Std), "-shared", "-o", req.Output, req.Source)
	for _, lib := range d.Libs {
		args = append(args, "-l"+lib)
	}
	return d.run(ctx, args)
}

// CompileASTJSON runs the compiler in a mode that writes a JSON
// serialization of the top-level AST to req.Output; no object code is
// produced.
func (d *Driver) CompileASTJSON(ctx context.Context, req CompileRequest) (Result, error) {
	args := append(d.baseArgs(d.Std), "-Xclang", "-ast-dump=json", "-fsyntax-only", req.Source)
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, d.Compiler, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if asExitError(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("clangdriver: spawn %s: %w", d.Compiler, err)
	}
	if err := writeFile(req.Output, stdout.Bytes()); err != nil {
		return res, fmt.Errorf("clangdriver: write AST json: %w", err)
	}
	return res, nil
}

// CompileASTJSONAll runs CompileASTJSON for every request concurrently,
// capped at hardware concurrency, joining before returning — the
// #batch_eval parallel AST-dump fan-out of spec.md §4.7, §5.
func (d *Driver) CompileASTJSONAll(ctx context.Context, reqs []CompileRequest) ([]Result, error) {
	results := make([]Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrencyLimit())
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			res, err := d.CompileASTJSON(gctx, req)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// CompileSharedAll mirrors CompileASTJSONAll for the object-emit half of
// a #batch_eval: every request is compiled concurrently into its own
// shared object and the calls are joined before returning. The objects
// are not linked into one combined library; there is no link step.
func (d *Driver) CompileSharedAll(ctx context.Context, reqs []CompileRequest) ([]Result, error) {
	results := make([]Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrencyLimit())
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			res, err := d.CompileShared(gctx, req)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// CompilePCH produces a precompiled-header artifact from header, which
// subsequent CompileShared/CompileASTJSON invocations -include-pch to
// avoid re-parsing standard headers.
func (d *Driver) CompilePCH(ctx context.Context, header, out string) (Result, error) {
	saved := d.PCHPath
	d.PCHPath = "" // never -include-pch the PCH we are about to build
	args := append(d.baseArgs(d.Std), "-x", "c++-header", header, "-o", out)
	res, err := d.run(ctx, args)
	if err == nil && res.Succeeded() {
		d.PCHPath = out
	} else {
		d.PCHPath = saved
	}
	return res, err
}
