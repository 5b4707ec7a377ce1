package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cameron5906/workpipe/internal/diag"
)

// CheckResult is the check command's JSON payload.
type CheckResult struct {
	Files       int              `json:"files"`
	Errors      int              `json:"errors"`
	Warnings    int              `json:"warnings"`
	Diagnostics []diagnosticView `json:"diagnostics"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <dir>",
		Short: "Report diagnostics without writing output",
		Long: `Run every compiler pass over a directory and print the diagnostics.

Exit codes:
  0 - No errors (warnings allowed)
  1 - Diagnostics with errors
  2 - Command error

Examples:
  workpipe check ./workflows
  workpipe check ./workflows --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runCheck(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	p, err := loadProject(dir, opts, opts.Logger(cmd))
	if err != nil {
		return err
	}
	res, err := p.compile(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "check aborted", err)
	}
	return reportCheck(formatter, p, res.Diagnostics(), len(res.Files))
}

// reportCheck prints the diagnostics of one compile and maps them to an
// exit code. watch reuses it for every rebuild.
func reportCheck(formatter *OutputFormatter, p *project, diags []diag.Diagnostic, files int) error {
	errs, warns := countSeverities(diags)
	result := CheckResult{
		Files:       files,
		Errors:      errs,
		Warnings:    warns,
		Diagnostics: viewDiagnostics(diags, p.Workspace.Sources),
	}

	if formatter.JSON() {
		if errs > 0 {
			_ = formatter.encode(CLIResponse{
				Status: "error",
				Data:   result,
				Error:  &CLIError{Code: "E_DIAGNOSTICS", Message: fmt.Sprintf("%d error(s)", errs)},
			})
		} else if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		writeDiagnostics(formatter.Writer, result.Diagnostics, p.Workspace.Sources)
		if errs > 0 {
			fmt.Fprintf(formatter.Writer, "✗ %d file(s): %d error(s), %d warning(s)\n", files, errs, warns)
		} else {
			fmt.Fprintf(formatter.Writer, "✓ %d file(s): %d warning(s)\n", files, warns)
		}
	}

	if errs > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d error(s)", errs))
	}
	return nil
}
