package diag

import (
	"fmt"
	"slices"

	"github.com/cameron5906/workpipe/internal/ast"
)

// Collector is an append-only sink of diagnostics.
//
// Collector is not safe for concurrent use. Each file compilation owns one.
type Collector struct {
	items  []Diagnostic
	errors int
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Record appends a finding. It never fails.
func (c *Collector) Record(code string, sev Severity, message string, span ast.Span, opts ...Option) {
	d := Diagnostic{
		Code:     code,
		Severity: sev,
		Message:  message,
		Span:     span,
	}
	for _, opt := range opts {
		opt(&d)
	}
	c.Add(d)
}

// Add appends an already-built diagnostic.
func (c *Collector) Add(d Diagnostic) {
	if d.IsError() {
		c.errors++
	}
	c.items = append(c.items, d)
}

// Errorf records an error with a formatted message.
func (c *Collector) Errorf(code string, span ast.Span, format string, args ...any) {
	c.Record(code, SeverityError, fmt.Sprintf(format, args...), span)
}

// Warnf records a warning with a formatted message.
func (c *Collector) Warnf(code string, span ast.Span, format string, args ...any) {
	c.Record(code, SeverityWarning, fmt.Sprintf(format, args...), span)
}

// Infof records an info finding with a formatted message.
func (c *Collector) Infof(code string, span ast.Span, format string, args ...any) {
	c.Record(code, SeverityInfo, fmt.Sprintf(format, args...), span)
}

// HasErrors reports whether any error has been recorded.
func (c *Collector) HasErrors() bool {
	return c.errors > 0
}

// Len returns the number of recorded findings, duplicates included.
func (c *Collector) Len() int {
	return len(c.items)
}

// Drain returns the findings ordered by span start, then severity, with
// exact duplicates on (code, start, end) removed. The first occurrence of a
// duplicate wins. The collector is empty afterwards.
func (c *Collector) Drain() []Diagnostic {
	out := Sort(c.items)
	c.items = nil
	c.errors = 0
	return out
}

// Sort orders and deduplicates ds the way Drain does, without touching ds.
func Sort(ds []Diagnostic) []Diagnostic {
	type key struct {
		code       string
		start, end int
	}
	seen := make(map[key]bool, len(ds))
	out := make([]Diagnostic, 0, len(ds))
	for _, d := range ds {
		k := key{d.Code, d.Span.Start, d.Span.End}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, d)
	}
	slices.SortStableFunc(out, func(a, b Diagnostic) int {
		if a.Span.Start != b.Span.Start {
			return a.Span.Start - b.Span.Start
		}
		return int(a.Severity) - int(b.Severity)
	})
	return out
}
