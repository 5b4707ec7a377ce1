// Package ast defines the source tree the compiler consumes.
//
// Every node carries a Span of byte offsets into its source file. The
// compiler never sees raw text, only these nodes. Scripts, conditions and
// predicate bodies are opaque strings.
package ast

// Span is a half-open byte range [Start, End) in a source file.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether o lies entirely inside s.
func (s Span) Contains(o Span) bool {
	return o.Start >= s.Start && o.End <= s.End
}

// Ident is a name together with where it was written.
type Ident struct {
	Name string `json:"name"`
	Span Span   `json:"span"`
}

// File is one parsed workflow source.
type File struct {
	Path        string           `json:"path"` // normalized, relative to the workspace root
	Span        Span             `json:"span"`
	Workflow    string           `json:"workflow"`
	Triggers    []Ident          `json:"triggers"`
	Permissions []Permission     `json:"permissions,omitempty"`
	Concurrency *ConcurrencyDecl `json:"concurrency,omitempty"`
	Imports     []*Import        `json:"imports,omitempty"`
	Types       []*TypeDecl      `json:"types,omitempty"`
	Templates   []*Template      `json:"templates,omitempty"`
	Decls       []Decl           `json:"decls"` // jobs and cycles in source order
}

// Permission is a token scope the workflow requests.
type Permission struct {
	Scope string `json:"scope"`
	Level string `json:"level"` // "read" | "write" | "none"
	Span  Span   `json:"span"`
}

// ConcurrencyDecl is an explicit workflow-level concurrency block.
type ConcurrencyDecl struct {
	Group            string `json:"group"`
	CancelInProgress bool   `json:"cancel_in_progress"`
	Span             Span   `json:"span"`
}

// Import pulls exported names from another file of the workspace.
type Import struct {
	From     string       `json:"from"` // path as written
	FromSpan Span         `json:"from_span"`
	Names    []ImportName `json:"names"`
	Span     Span         `json:"span"`
}

// ImportName is one requested name with an optional local alias.
type ImportName struct {
	Name  string `json:"name"`
	Alias string `json:"alias,omitempty"`
	Span  Span   `json:"span"`
}

// Local returns the name the import binds in the importing file.
func (n ImportName) Local() string {
	if n.Alias != "" {
		return n.Alias
	}
	return n.Name
}

// TypeDecl declares a named structural type.
type TypeDecl struct {
	Name Ident    `json:"name"`
	Type TypeExpr `json:"type"`
	Span Span     `json:"span"`
}

// Template is a reusable job fragment selected with `uses`.
type Template struct {
	Name        Ident         `json:"name"`
	RunsOn      string        `json:"runs_on,omitempty"`
	Env         []KV          `json:"env,omitempty"`
	Steps       []*Step       `json:"steps,omitempty"`
	Outputs     []*OutputDecl `json:"outputs,omitempty"`
	Refs        []OutputRef   `json:"refs,omitempty"`
	Comparisons []Comparison  `json:"comparisons,omitempty"`
	Span        Span          `json:"span"`
}

// KV is an ordered key/value pair. Maps are never used for anything that
// reaches the output, so ordering stays deterministic.
type KV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
