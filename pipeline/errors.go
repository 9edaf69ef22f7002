package pipeline

import (
	"fmt"

	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/clangdriver"
)

// CompilerDiagnostic reports that the external compiler returned a
// non-zero exit status for a fragment. The fragment is discarded: no
// libraries are loaded and the declaration store is not grown
// (spec.md §7).
type CompilerDiagnostic struct {
	Fragment int64
	Result   clangdriver.Result
}

func (e *CompilerDiagnostic) Error() string {
	return fmt.Sprintf("fragment %d: compiler exited with status %d", e.Fragment, e.Result.ExitCode)
}

// AstAnalysisFailure reports that the JSON AST could not be parsed or
// lacked the expected shape. The fragment is discarded; the store is
// not grown.
type AstAnalysisFailure struct {
	Fragment int64
	Err      error
}

func (e *AstAnalysisFailure) Error() string {
	return fmt.Sprintf("fragment %d: AST analysis failed: %v", e.Fragment, e.Err)
}
func (e *AstAnalysisFailure) Unwrap() error { return e.Err }

// LinkOrLoadFailure reports that the dynamic linker rejected a
// fragment's library. The fragment's artifacts remain on disk for
// post-mortem; no session state is mutated.
type LinkOrLoadFailure struct {
	Fragment int64
	Path     string
	Err      error
}

func (e *LinkOrLoadFailure) Error() string {
	return fmt.Sprintf("fragment %d: failed to load %s: %v", e.Fragment, e.Path, e.Err)
}
func (e *LinkOrLoadFailure) Unwrap() error { return e.Err }

// MissingSymbolAtBind reports that a function declared in a fragment did
// not appear in its emitted object (typically inline/template). This is
// not fatal: its stub pointer is left at the self-resolving thunk and
// will resolve on demand, or fail loudly if the symbol never
// materializes. Callers may log this but must not discard the fragment.
type MissingSymbolAtBind struct {
	Fragment    int64
	MangledName string
}

func (e *MissingSymbolAtBind) Error() string {
	return fmt.Sprintf("fragment %d: symbol %s absent from emitted object, deferred to lazy resolution", e.Fragment, e.MangledName)
}

// RuntimeExceptionInFragment reports that a fragment's exec() threw or
// panicked during execution. The REPL continues; this is caught at the
// fragment boundary (spec.md §4.7 step h, §7).
type RuntimeExceptionInFragment struct {
	Fragment int64
	What     string
}

func (e *RuntimeExceptionInFragment) Error() string {
	return fmt.Sprintf("fragment %d: exception: %s", e.Fragment, e.What)
}

// HardwareFaultInFragment reports a segfault or FPE in exec(), surfaced
// via an externally installed hardware-exception bridge (spec.md §1,
// §5: the core never installs its own signal handler).
type HardwareFaultInFragment struct {
	Fragment int64
	Signal   string
}

func (e *HardwareFaultInFragment) Error() string {
	return fmt.Sprintf("fragment %d: hardware fault: %s", e.Fragment, e.Signal)
}

// FilesystemError reports that a source/header artifact could not be
// written. Fatal for the fragment; the REPL continues.
type FilesystemError struct {
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem error writing %s: %v", e.Path, e.Err)
}
func (e *FilesystemError) Unwrap() error { return e.Err }
