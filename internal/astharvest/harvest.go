package astharvest

import (
	"path/filepath"
	"strings"
)

// IncludeSink is the subset of declstore.Store the harvester writes new
// includes and extern redeclarations into. Declared as an interface so
// tests can substitute a recording fake.
type IncludeSink interface {
	AddInclude(path string)
	AddDeclaration(text string)
	AddLineDirective(line int, file string)
}

// Config bounds what the harvester considers "new" vs. "belongs to an
// already-represented header" or "generated scaffolding we must never
// re-ingest" (the amalgam and printer headers #include themselves into
// every fragment, so they must never be mistaken for user includes).
type Config struct {
	WorkDir       string   // canonicalized root; includes outside this are ignored
	GeneratedPaths []string // amalgam/printer header paths to never re-record
}

func (c Config) isGenerated(path string) bool {
	for _, g := range c.GeneratedPaths {
		if g != "" && path == g {
			return true
		}
	}
	return false
}

// harvester carries the sticky loc state across the single pass over a
// document's top-level (and recursively, record-local) declarations.
type harvester struct {
	cfg      Config
	source   string // canonicalized path of the fragment under analysis
	store    IncludeSink
	lastFile string
	lastLine int
	haveLine bool
	decls    []Decl
}

// Harvest runs the one-pass algorithm of spec.md §4.3 over doc, which
// must be the JSON AST of the fragment written to sourcePath. Newly
// discovered include paths are recorded into store via AddInclude;
// extern redeclarations for harvested Function/Variable decls are
// recorded via AddDeclaration (and AddLineDirective for variables).
func Harvest(doc Document, sourcePath string, cfg Config, store IncludeSink) ([]Decl, error) {
	source, err := canonicalize(sourcePath)
	if err != nil {
		// Cannot canonicalize the fragment's own source: nothing to
		// compare against, so there is nothing useful to harvest.
		return nil, err
	}
	h := &harvester{cfg: cfg, source: source, store: store}
	h.walk(doc.Inner)
	return h.decls, nil
}

func (h *harvester) walk(nodes []Node) {
	for i := range nodes {
		h.visit(&nodes[i])
	}
}

func (h *harvester) visit(n *Node) {
	// Step 1: sticky last_file tracking and include discovery.
	if n.Loc.File != "" {
		h.lastFile = n.Loc.File
	}
	effectiveFile := h.lastFile

	if n.Loc.IncludedFrom != nil && n.Loc.IncludedFrom.File == h.source && effectiveFile != "" {
		if canon, err := canonicalize(effectiveFile); err == nil {
			if filepath.IsAbs(canon) &&
				withinTree(h.cfg.WorkDir, canon) &&
				!h.cfg.isGenerated(canon) &&
				!isCompiledSourceExt(canon) {
				h.store.AddInclude(canon)
			}
		}
	}

	// Step 2: skip elements that belong to a transitively included
	// header; they are picked up via the #include above, not as an
	// extern redeclaration of their own.
	skip := false
	if canon, err := canonicalize(effectiveFile); err != nil || canon != h.source {
		skip = true
	}

	// Step 3: sticky last_line tracking.
	line := n.Loc.Line
	if line == 0 && n.Loc.SpellingLoc != nil {
		line = n.Loc.SpellingLoc.Line
	}
	if line != 0 {
		h.lastLine = line
		h.haveLine = true
	} else if !h.haveLine {
		skip = true
	}
	line = h.lastLine

	if skip {
		return
	}

	// Step 4: dispatch on kind.
	switch n.Kind {
	case kindCXXRecordDecl:
		if len(n.Inner) > 0 {
			h.walk(n.Inner)
		}
	case kindFunctionDecl, kindCXXMethodDecl:
		h.visitFunc(n, line)
	case kindVarDecl:
		h.visitVar(n, line)
	}
}

func (h *harvester) visitFunc(n *Node, line int) {
	if n.StorageClass == "extern" || n.StorageClass == "static" {
		return
	}
	if n.MangledName == "" || n.Type == nil {
		return
	}
	kind := Function
	if n.Kind == kindCXXMethodDecl {
		kind = Method
	}
	h.decls = append(h.decls, Decl{
		Name:        n.Name,
		MangledName: n.MangledName,
		Kind:        kind,
		QualType:    n.Type.QualType,
		File:        h.source,
		Line:        line,
	})
	if n.Kind == kindFunctionDecl {
		if spliced, ok := spliceBeforeParen(n.Type.QualType, n.Name); ok {
			h.store.AddDeclaration("extern " + spliced + ";")
		}
	}
}

func (h *harvester) visitVar(n *Node, line int) {
	if n.StorageClass == "extern" || n.StorageClass == "static" {
		return
	}
	if n.Type == nil {
		return
	}
	desugared := ""
	if n.Type.DesugaredQualType != "" {
		desugared = n.Type.DesugaredQualType
	}
	h.decls = append(h.decls, Decl{
		Name:          n.Name,
		Kind:          Variable,
		QualType:      n.Type.QualType,
		DesugaredType: desugared,
		File:          h.source,
		Line:          line,
	})
	h.store.AddLineDirective(line, h.source)
	h.store.AddDeclaration("extern " + spliceVar(n.Type.QualType, n.Name) + ";")
}

// spliceBeforeParen inserts name at the first '(' of qualType, the
// splice point for a function's extern redeclaration (spec.md §4.3.4,
// §8 P3). Returns ok=false if qualType has no parameter list at all,
// which should not happen for a FunctionDecl but is handled defensively.
func spliceBeforeParen(qualType, name string) (string, bool) {
	i := strings.IndexByte(qualType, '(')
	if i < 0 {
		return "", false
	}
	return qualType[:i] + name + qualType[i:], true
}

// spliceVar inserts name before the first '[' of qualType (array types,
// so `int[3]` becomes `int N[3]`) or appends " name" for scalar types
// (spec.md §8 P3, S5).
func spliceVar(qualType, name string) string {
	if i := strings.IndexByte(qualType, '['); i >= 0 {
		prefix := strings.TrimRight(qualType[:i], " ")
		return prefix + " " + name + qualType[i:]
	}
	return qualType + " " + name
}

func isCompiledSourceExt(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".cpp" || ext == ".cc"
}

func withinTree(root, path string) bool {
	if root == "" {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return !strings.HasPrefix(rel, "..")
}

// canonicalize resolves path to an absolute, symlink-free form where
// possible. Broken symlinks and missing files fall back to a plain
// absolute path rather than erroring, since AST location strings often
// name headers that are never independently stat'd; only a genuinely
// unresolvable (empty, or Abs-rejected) path is an error, in which case
// the caller skips the offending element rather than aborting the whole
// harvest pass (spec.md §4.3 edge cases).
func canonicalize(path string) (string, error) {
	if path == "" {
		return "", errEmptyPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return filepath.Clean(abs), nil
}

var errEmptyPath = errCanonicalize("astharvest: empty path")

type errCanonicalize string

func (e errCanonicalize) Error() string { return string(e) }
