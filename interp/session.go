// Package interp provides the process-lifetime REPL session: the
// thin entry point that owns one Pipeline and exposes it through the
// same Options/Eval/EvalWithContext/REPL shape the rest of this
// codebase's tooling expects from an interpreter front end.
package interp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"

	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/clangdriver"
	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/declstore"
	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/dynload"
	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/printersink"
	"github.com/Fabio3rs/my-cpp-repl-study-sub000/pipeline"
)

// opt stores session options, split from Session the way the
// interpreter this package was built from splits its own opt/Options
// (kept here so env-var-tunable debug flags have one place to live).
type opt struct {
	stdin          io.Reader
	stdout, stderr io.Writer
	workDir        string
	verboseDiag    bool // CPPREPL_VERBOSE_DIAGNOSTICS
}

// Options configure a new Session.
type Options struct {
	// Standard input, output and error streams. Default to os.Stdin,
	// os.Stdout and os.Stderr respectively.
	Stdin          io.Reader
	Stdout, Stderr io.Writer

	// WorkDir holds every generated fragment, header, and object for
	// the session's lifetime. Defaults to a freshly created temp dir.
	WorkDir string

	// Compiler names the external compiler executable, e.g. "clang++".
	// Defaults to "clang++".
	Compiler string

	// Std is the language standard passed as -std=. Defaults to "gnu++20".
	Std string

	IncludeDirs []string
	Defines     []string
	Libs        []string
}

// Session is the process-lifetime REPL front end (spec.md §9's design
// note: exactly one Pipeline per session, threaded explicitly, never a
// package global).
type Session struct {
	// id is an atomic counter used for context-cancellation bookkeeping
	// across EvalWithContext calls. Kept first for 64-bit alignment on
	// 32-bit architectures, mirroring the convention this codebase's
	// interpreter tooling otherwise uses for its own run-id counter.
	id uint64

	opt

	mutex    sync.RWMutex
	done     chan struct{}
	Pipeline *pipeline.Pipeline
}

// New builds a Session and its Pipeline collaborators: a declaration
// store, a compiler driver, a dynamic loader, and a result sink. It
// returns an error only if the printer-overloads header or the initial
// amalgam header cannot be written to the work dir.
func New(options Options) (*Session, error) {
	s := &Session{opt: opt{
		stdin:  options.Stdin,
		stdout: options.Stdout,
		stderr: options.Stderr,
	}}
	if s.stdin == nil {
		s.stdin = os.Stdin
	}
	if s.stdout == nil {
		s.stdout = os.Stdout
	}
	if s.stderr == nil {
		s.stderr = os.Stderr
	}

	s.workDir = options.WorkDir
	if s.workDir == "" {
		dir, err := os.MkdirTemp("", "cpprepl-")
		if err != nil {
			dir = "."
		}
		s.workDir = dir
	}

	s.verboseDiag, _ = strconv.ParseBool(os.Getenv("CPPREPL_VERBOSE_DIAGNOSTICS"))

	compiler := options.Compiler
	if compiler == "" {
		compiler = "clang++"
	}
	std := options.Std
	if std == "" {
		std = "gnu++20"
	}

	driver := &clangdriver.Driver{
		Compiler:    compiler,
		Std:         std,
		IncludeDirs: append([]string(nil), options.IncludeDirs...),
		Defines:     append([]string(nil), options.Defines...),
		Libs:        append([]string(nil), options.Libs...),
	}
	store := declstore.New()
	loader := dynload.NewLoader(procMapsBaseOf)
	sink := printersink.NewSink()

	cfg := pipeline.DefaultConfig(s.workDir)
	p, err := pipeline.New(cfg, driver, store, loader, sink, s.stdout, s.stderr)
	if err != nil {
		return nil, err
	}
	s.Pipeline = p
	return s, nil
}

// procMapsBaseOf computes a loaded shared object's runtime load base by
// scanning this process's own memory map, the stage-2 fallback data
// source for dynload.Loader.ResolveAndStore (spec.md §4.6 stage 2).
func procMapsBaseOf(path string) (uintptr, error) {
	data, err := os.ReadFile("/proc/self/maps")
	if err != nil {
		return 0, fmt.Errorf("interp: read /proc/self/maps: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasSuffix(line, path) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		rangeField := fields[0]
		lo, _, ok := strings.Cut(rangeField, "-")
		if !ok {
			continue
		}
		var base uintptr
		if _, err := fmt.Sscanf(lo, "%x", &base); err != nil {
			continue
		}
		return base, nil
	}
	return 0, fmt.Errorf("interp: %s not found in /proc/self/maps", path)
}

// Eval evaluates one line of REPL input and reports whether the REPL
// should keep reading further lines.
func (s *Session) Eval(line string) (bool, error) {
	return s.EvalWithContext(context.Background(), line)
}

// EvalWithContext evaluates line, cancelling the in-flight compiler
// invocation (not a fragment already executing natively: once exec()
// is running inside a dlopen'd library, Go can no longer preempt it,
// the hardware-fault bridge of spec.md §1/§5 is the only escape hatch
// for a runaway fragment) if ctx is cancelled first.
func (s *Session) EvalWithContext(ctx context.Context, line string) (bool, error) {
	s.mutex.Lock()
	s.done = make(chan struct{})
	s.mutex.Unlock()

	var cont bool
	var err error
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		cont, err = s.Pipeline.Execute(ctx, line)
	}()

	select {
	case <-ctx.Done():
		atomic.AddUint64(&s.id, 1)
		s.mutex.Lock()
		close(s.done)
		s.mutex.Unlock()
		<-finished // the compiler subprocess observes ctx.Done() and exits; wait for it
		return true, ctx.Err()
	case <-finished:
	}
	return cont, err
}

// REPL performs a Read-Eval-Print-Loop on the session's input reader,
// printing diagnostics to its error writer (spec.md §7, §9). It
// returns when the input is exhausted or a line dispatches exit.
func (s *Session) REPL() error {
	in, errs := s.stdin, s.stderr
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)

	prompt := getPrompt(in, s.stdout)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lines := make(chan string)
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	prompt()
	for {
		select {
		case <-scanDone:
			if err := sc.Err(); err != nil {
				fmt.Fprintln(errs, err)
			}
			return nil
		case <-sig:
			cancel()
			ctx, cancel = context.WithCancel(context.Background())
			continue
		case line := <-lines:
			cont, err := s.EvalWithContext(ctx, line)
			if err != nil {
				s.reportError(line, err)
			}
			if !cont {
				return nil
			}
			prompt()
		}
	}
}

// reportError renders err to the session's error stream, colorizing
// compiler diagnostics the same way the standalone compiler driver does
// when the stream is a terminal (spec.md §7).
func (s *Session) reportError(line string, err error) {
	switch e := err.(type) {
	case *pipeline.CompilerDiagnostic:
		clangdriver.RenderDiagnostics(s.stderr, e.Result)
	default:
		if s.verboseDiag {
			fmt.Fprintf(s.stderr, "%s: %v\n", line, err)
		} else {
			fmt.Fprintln(s.stderr, err)
		}
	}
}

func doPrompt(out io.Writer) func() {
	c := color.New(color.FgGreen, color.Bold)
	return func() { c.Fprint(out, "> ") }
}

// getPrompt returns a function which prints a prompt only if input is a
// terminal (same idiom the interpreter this package descends from uses
// for its own getPrompt).
func getPrompt(in io.Reader, out io.Writer) func() {
	forcePrompt, _ := strconv.ParseBool(os.Getenv("CPPREPL_FORCE_PROMPT"))
	if forcePrompt {
		return doPrompt(out)
	}
	statter, ok := in.(interface{ Stat() (os.FileInfo, error) })
	if !ok {
		return func() {}
	}
	stat, err := statter.Stat()
	if err == nil && stat.Mode()&os.ModeCharDevice != 0 {
		return doPrompt(out)
	}
	return func() {}
}
