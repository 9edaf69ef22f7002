// Package printersink implements the result sink (C8): for each
// variable declared by a fragment, it emits a printer function, loads
// it, and calls it when the user names the variable at the prompt
// (spec.md §4.8).
package printersink

import (
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/astharvest"
)

// Each printvar_<name> is looked up and called individually by Go once
// loaded (buildAndRegisterPrinters); Sink.CallAll drives printall from
// its own order slice rather than a generated C++ entry point, so no
// combined printall() is emitted here.
const tmplText = `#include "printerOutput.hpp"
#include "decl_amalgama.hpp"

{{range .}}
extern "C" void printvar_{{.Name}}() {
    printdata({{.Name}}, "{{.Name}}", "{{.QualType}}");
}
{{end}}
`

var tmpl = template.Must(template.New("printersink").Parse(tmplText))

// EmitSource generates the C++ source for one printer library covering
// every Variable decl in decls: one `printvar_<name>` function per
// variable, each individually `dlsym`'d and registered with Sink.
func EmitSource(decls []astharvest.Decl) (string, error) {
	vars := make([]astharvest.Decl, 0, len(decls))
	for _, d := range decls {
		if d.Kind == astharvest.Variable {
			vars = append(vars, d)
		}
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("printersink: %w", err)
	}
	return b.String(), nil
}

// Printer is a callable loaded from a printer library for one variable.
type Printer func() error

// Sink is the process-lifetime registry of every variable's printer,
// grown as fragments declare new variables (spec.md §3's "known
// variable" lookup used by C7 case 3 and the `printall` meta-command).
type Sink struct {
	mu       sync.Mutex
	printers map[string]Printer
	order    []string // declaration order, for CallAll / printall parity
}

// NewSink returns an empty Sink.
func NewSink() *Sink {
	return &Sink{printers: map[string]Printer{}}
}

// Register records fn as the printer for name, called by the pipeline
// once it has loaded a fragment's printer library and resolved
// printvar_<name> via the dynamic loader.
func (s *Sink) Register(name string, fn Printer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.printers[name]; !exists {
		s.order = append(s.order, name)
	}
	s.printers[name] = fn
}

// Known reports whether name has a registered printer — the test used
// by C7 case 3 to recognize a bare identifier as a known variable.
func (s *Sink) Known(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.printers[name]
	return ok
}

// Call invokes the printer for name.
func (s *Sink) Call(name string) error {
	s.mu.Lock()
	fn, ok := s.printers[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("printersink: no printer registered for %q", name)
	}
	return fn()
}

// CallAll invokes every registered printer in declaration order —
// backing the `printall` meta-command.
func (s *Sink) CallAll() error {
	s.mu.Lock()
	order := append([]string(nil), s.order...)
	s.mu.Unlock()
	for _, name := range order {
		if err := s.Call(name); err != nil {
			return err
		}
	}
	return nil
}
