// Package diag is the compiler's single output channel for findings.
//
// Passes never return Go errors for problems in the source. They record a
// Diagnostic and keep going, so one compile surfaces every finding it can.
package diag

import (
	"encoding/json"
	"fmt"

	"github.com/cameron5906/workpipe/internal/ast"
)

// Diagnostic codes. Codes are stable and never renumbered.
const (
	// Name resolution (E101-E112)
	ErrDuplicateUnit     = "E101" // duplicate unit name, including reserved phase names
	ErrDuplicateType     = "E102" // duplicate type name
	ErrUndefinedType     = "E103" // undefined type
	ErrUndefinedOutput   = "E104" // undefined output reference
	ErrUndefinedUnit     = "E105" // undefined unit reference
	ErrDuplicateOutput   = "E106" // duplicate output name in unit
	ErrNotExported       = "E107" // imported name not exported by target file
	ErrImportNotFound    = "E108" // imported file not found in workspace
	ErrDuplicateTemplate = "E109" // duplicate template name
	ErrUndefinedTemplate = "E110" // undefined template
	ErrRefNotInNeeds     = "E111" // output reference to a unit not listed in needs
	ErrCycleInternalRef  = "E112" // reference to a unit internal to a cycle body

	// Types (E201-E202)
	ErrIncompatibleTypes   = "E201" // incompatible types in comparison
	ErrSelfReferentialType = "E202" // direct self-referential type

	// Structure (E301-E309)
	ErrMissingField     = "E301" // missing required field
	ErrUnitCycle        = "E302" // unit dependency cycle
	ErrImportCycle      = "E303" // circular import
	ErrNoTermination    = "E304" // cycle without max_iters or until
	ErrNestedCycle      = "E305" // cycle nested in a cycle body
	ErrEmptyCycleBody   = "E306" // cycle with no jobs
	ErrInvalidCap       = "E307" // negative max_iters
	ErrBodyInternalLoop = "E309" // needs cycle inside a cycle body

	// Warnings (W401-W404)
	WarnMissingKey    = "W401" // concurrency key defaulted
	WarnEmptyWorkflow = "W402" // no units and no cycles
	WarnUnusedType    = "W403" // declared type never referenced
	WarnUnusedImport  = "W404" // imported name never referenced

	// Info (I501)
	InfoCycleLowered = "I501"
)

// Severity ranks a finding. Lower values sort first.
type Severity uint8

const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		panic(fmt.Sprintf("diag: unknown severity %d", s))
	}
}

// MarshalJSON renders the severity as its name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the names produced by MarshalJSON.
func (s *Severity) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "error":
		*s = SeverityError
	case "warning":
		*s = SeverityWarning
	case "info":
		*s = SeverityInfo
	default:
		return fmt.Errorf("unknown severity %q", name)
	}
	return nil
}

// Related points at a second location that explains a finding.
type Related struct {
	Span    ast.Span `json:"span"`
	Message string   `json:"message"`
}

// Diagnostic is one compiler finding.
type Diagnostic struct {
	Code     string    `json:"code"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Span     ast.Span  `json:"span"`
	Hint     string    `json:"hint,omitempty"`
	Related  []Related `json:"relatedSpans,omitempty"`

	// File is the workspace-relative path the finding belongs to. It is
	// filled by the workspace driver and is not part of the wire shape.
	File string `json:"-"`
}

// String formats the diagnostic with its byte span as @start-end. Line and
// column need the source text; the CLI resolves them.
func (d Diagnostic) String() string {
	s := fmt.Sprintf("%s[%s] @%d-%d: %s", d.Severity, d.Code, d.Span.Start, d.Span.End, d.Message)
	if d.File != "" {
		s = d.File + ": " + s
	}
	if d.Hint != "" {
		s += " (hint: " + d.Hint + ")"
	}
	return s
}

// IsError reports whether d blocks emission.
func (d Diagnostic) IsError() bool {
	return d.Severity == SeverityError
}

// Option decorates a diagnostic at record time.
type Option func(*Diagnostic)

// WithHint attaches a hint.
func WithHint(hint string) Option {
	return func(d *Diagnostic) { d.Hint = hint }
}

// WithRelated attaches a related span.
func WithRelated(span ast.Span, message string) Option {
	return func(d *Diagnostic) {
		d.Related = append(d.Related, Related{Span: span, Message: message})
	}
}

// HasErrors reports whether any diagnostic in ds is an error.
func HasErrors(ds []Diagnostic) bool {
	for _, d := range ds {
		if d.IsError() {
			return true
		}
	}
	return false
}
