package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/cameron5906/workpipe/internal/diag"
	"github.com/cameron5906/workpipe/internal/frontend"
)

// Process exit codes. ExitFailure means the command ran and found
// problems; ExitCommandError means it could not run.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitCommandError = 2
)

// ExitError carries the exit code a command wants the process to end with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError wrapping err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps a command error to a process exit code. Errors that
// are not an *ExitError count as ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &exitErr):
		return exitErr.Code
	default:
		return ExitFailure
	}
}

// OutputFormatter writes command results as text or as a JSON envelope.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the JSON envelope of every command:
// {"status": "ok", "data": ...} or {"status": "error", "error": {...}}.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error member of a CLIResponse. Code is a diagnostic or
// runtime code, or one of the E_* command codes.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON reports whether the formatter writes JSON.
func (f *OutputFormatter) JSON() bool { return f.Format == "json" }

// Success writes data: the envelope in JSON mode, its default text form
// otherwise.
func (f *OutputFormatter) Success(data any) error {
	if !f.JSON() {
		_, err := fmt.Fprintln(f.Writer, data)
		return err
	}
	return f.encode(CLIResponse{Status: "ok", Data: data})
}

// Error writes a command failure.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if !f.JSON() {
		_, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
		return err
	}
	return f.encode(CLIResponse{
		Status: "error",
		Error:  &CLIError{Code: code, Message: message, Details: details},
	})
}

func (f *OutputFormatter) encode(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// diagnosticView is a diagnostic with its position resolved against the
// source text.
type diagnosticView struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	diag.Diagnostic
}

func viewDiagnostics(diags []diag.Diagnostic, sources map[string][]byte) []diagnosticView {
	views := make([]diagnosticView, 0, len(diags))
	for _, d := range diags {
		v := diagnosticView{File: d.File, Diagnostic: d}
		if src, ok := sources[d.File]; ok {
			v.Line, v.Column = frontend.Position(src, d.Span.Start)
		}
		views = append(views, v)
	}
	return views
}

// writeDiagnostics prints one diagnostic per line as
// file:line:col: severity[code]: message, followed by hint and related
// locations.
func writeDiagnostics(w io.Writer, views []diagnosticView, sources map[string][]byte) {
	for _, v := range views {
		fmt.Fprintf(w, "%s:%d:%d: %s[%s]: %s\n", v.File, v.Line, v.Column, v.Severity, v.Code, v.Message)
		if v.Hint != "" {
			fmt.Fprintf(w, "  hint: %s\n", v.Hint)
		}
		for _, r := range v.Related {
			line, col := frontend.Position(sources[v.File], r.Span.Start)
			fmt.Fprintf(w, "  %s:%d:%d: %s\n", v.File, line, col, r.Message)
		}
	}
}

// countSeverities returns the number of errors and warnings.
func countSeverities(diags []diag.Diagnostic) (errs, warns int) {
	for _, d := range diags {
		switch d.Severity {
		case diag.SeverityError:
			errs++
		case diag.SeverityWarning:
			warns++
		case diag.SeverityInfo:
		default:
			panic(fmt.Sprintf("unknown severity %d", d.Severity))
		}
	}
	return errs, warns
}
