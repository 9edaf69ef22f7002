// Package trampoline implements the trampoline synthesizer (C5): for
// every newly harvested Function/Method declaration, it emits a C++
// source file containing a naked stub (one indirect jump through a
// writable pointer) plus the self-resolving thunk that pointer
// initially targets. Only x86-64 is supported, matching spec.md §4.5's
// explicit architecture scoping.
package trampoline

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/astharvest"
)

// stub is the per-function template data: the mangled symbol name and
// its full declarator (return type + parameter list), spliced so the
// naked stub has exactly the real function's ABI.
type stub struct {
	Mangled  string
	Declarator string // e.g. "int _Z3addii(int, int)", with Mangled spliced in
}

const tmplText = `
{{range .}}
extern void resolve_and_store(void **ptr_slot, const char *name);

static void __attribute__((naked)) loadFn_{{.Mangled}}(void);
void *{{.Mangled}}_ptr = (void *)(loadFn_{{.Mangled}});

extern "C" __attribute__((naked)) {{.Declarator}} {
    __asm__ __volatile__(
        "jmp *%0\n"
        :
        : "r" ({{.Mangled}}_ptr)
    );
}

static void __attribute__((naked)) loadFn_{{.Mangled}}(void) {
    __asm__ __volatile__(
        "push %rax\n"
        "push %rbx\n"
        "push %rcx\n"
        "push %rdx\n"
        "push %rsi\n"
        "push %rdi\n"
        "push %r8\n"
        "push %r9\n"
        "push %r10\n"
        "push %r11\n"
        "lea {{.Mangled}}_ptr(%rip), %rdi\n"
        "lea .Lname_{{.Mangled}}(%rip), %rsi\n"
        "call resolve_and_store\n"
        "pop %r11\n"
        "pop %r10\n"
        "pop %r9\n"
        "pop %r8\n"
        "pop %rdi\n"
        "pop %rsi\n"
        "pop %rdx\n"
        "pop %rcx\n"
        "pop %rbx\n"
        "pop %rax\n"
        "jmp *{{.Mangled}}_ptr(%rip)\n"
        ".section .rodata\n"
        ".Lname_{{.Mangled}}: .asciz \"{{.Mangled}}\"\n"
        ".text\n"
    );
}
{{end}}
`

var tmpl = template.Must(template.New("trampoline").Parse(tmplText))

// Synthesize emits the C++ source (its stubs use extern "C" linkage)
// described in spec.md §4.5 for every
// Function/Method decl in decls. Decls of any other Kind are ignored,
// so callers may pass a fragment's full harvested Decl slice directly.
func Synthesize(decls []astharvest.Decl) (string, error) {
	stubs := make([]stub, 0, len(decls))
	for _, d := range decls {
		if d.Kind != astharvest.Function && d.Kind != astharvest.Method {
			continue
		}
		if d.MangledName == "" {
			continue
		}
		declarator, ok := spliceDeclarator(d.QualType, d.MangledName)
		if !ok {
			return "", fmt.Errorf("trampoline: cannot splice declarator for %s (qualType=%q)", d.MangledName, d.QualType)
		}
		stubs = append(stubs, stub{Mangled: d.MangledName, Declarator: declarator})
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, stubs); err != nil {
		return "", fmt.Errorf("trampoline: %w", err)
	}
	return b.String(), nil
}

// spliceDeclarator inserts name at the first '(' of qualType, producing
// a naked function declarator with the real function's exact signature
// (same splice rule as the extern redeclaration in astharvest, spec.md
// §4.5(c)).
func spliceDeclarator(qualType, name string) (string, bool) {
	i := strings.IndexByte(qualType, '(')
	if i < 0 {
		return "", false
	}
	return qualType[:i] + name + qualType[i:], true
}
