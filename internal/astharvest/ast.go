package astharvest

// Document is the root of a clang `-ast-dump=json` document: a flat
// "inner" array of top-level declarations.
type Document struct {
	Inner []Node `json:"inner"`
}

// IncludedFrom names the file that pulled a declaration in via #include.
type IncludedFrom struct {
	File string `json:"file"`
}

// SpellingLoc is clang's fallback location, used when a macro or
// splice obscures the primary loc.
type SpellingLoc struct {
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

// Loc is clang's per-node source location. File and Line are both
// "sticky": clang omits them when they are unchanged from the previous
// node in document order, so the harvester must track the last seen
// value across the whole walk.
type Loc struct {
	File         string        `json:"file,omitempty"`
	Line         int           `json:"line,omitempty"`
	IncludedFrom *IncludedFrom `json:"includedFrom,omitempty"`
	SpellingLoc  *SpellingLoc  `json:"spellingLoc,omitempty"`
}

// TypeInfo is clang's representation of a declaration's type.
type TypeInfo struct {
	QualType          string `json:"qualType"`
	DesugaredQualType string `json:"desugaredQualType,omitempty"`
}

// Node is one element of an "inner" array: a declaration, statement, or
// other AST construct. Only the fields the harvester consults are
// modeled; clang's JSON dialect carries many more we do not need.
type Node struct {
	Kind         string   `json:"kind"`
	Loc          Loc      `json:"loc"`
	Name         string   `json:"name,omitempty"`
	MangledName  string   `json:"mangledName,omitempty"`
	Type         *TypeInfo `json:"type,omitempty"`
	StorageClass string   `json:"storageClass,omitempty"`
	Inner        []Node   `json:"inner,omitempty"`
}

const (
	kindCXXRecordDecl = "CXXRecordDecl"
	kindFunctionDecl  = "FunctionDecl"
	kindCXXMethodDecl = "CXXMethodDecl"
	kindVarDecl       = "VarDecl"
)
