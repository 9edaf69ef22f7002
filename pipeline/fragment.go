package pipeline

import (
	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/astharvest"
	"github.com/Fabio3rs/my-cpp-repl-study-sub000/internal/dynload"
)

// Fragment is a per-entry record (spec.md §3). Handles are intentionally
// never released: already-resolved symbols must remain valid for the
// rest of the session, so Fragment values live in Pipeline.fragments
// for the session's whole lifetime.
type Fragment struct {
	ID                   int64
	SourcePath           string
	ObjectPath           string
	EmittedDecls         []astharvest.Decl
	TrampolineObjectPath string // empty unless this fragment defined a Function/Method
	CodeHandle           dynload.Handle
	StubHandle           dynload.Handle
	Defer                bool
}

// deferredFragment is one entry of the #lazyeval queue drained by
// evalall.
type deferredFragment struct {
	wrapped string
	ext     string
	analyze bool
}
