package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cameron5906/workpipe/internal/emit"
	"github.com/cameron5906/workpipe/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output directory
	Emit   string // "yaml" | "json"
}

// EmittedFile describes one written workflow.
type EmittedFile struct {
	Source string `json:"source"`
	Output string `json:"output"`
	Digest string `json:"digest"`
	Units  int    `json:"units"`
	Cycles int    `json:"cycles"`
}

// CompilationResult is the compile command's JSON payload.
type CompilationResult struct {
	Files       []EmittedFile    `json:"files"`
	Diagnostics []diagnosticView `json:"diagnostics"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <dir>",
		Short: "Compile workflow sources to engine YAML",
		Long: `Compile every .cue workflow source of a directory.

Cycles are lowered to phase units and each source becomes one engine
workflow file. Nothing is written when any file has an error.

Exit codes:
  0 - Compiled (warnings allowed)
  1 - Diagnostics with errors
  2 - Command error

Examples:
  workpipe compile ./workflows
  workpipe compile ./workflows -o .github/workflows
  workpipe compile ./workflows --emit json --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output directory (default: output_dir of workpipe.yaml, relative to <dir>)")
	cmd.Flags().StringVar(&opts.Emit, "emit", "", "artifact format (yaml|json, default: format of workpipe.yaml)")

	return cmd
}

func runCompile(opts *CompileOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	logger := opts.Logger(cmd)

	p, err := loadProject(dir, opts.RootOptions, logger)
	if err != nil {
		return err
	}

	emitFormat := opts.Emit
	if emitFormat == "" {
		emitFormat = p.Config.Format
	}
	if emitFormat != "yaml" && emitFormat != "json" {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --emit %q: must be yaml or json", emitFormat))
	}

	outDir := opts.Output
	if outDir == "" {
		outDir = p.Config.OutputDir
		if !filepath.IsAbs(outDir) {
			outDir = filepath.Join(dir, outDir)
		}
	}

	res, err := p.compile(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "compilation aborted", err)
	}
	diags := res.Diagnostics()
	views := viewDiagnostics(diags, p.Workspace.Sources)

	if res.HasErrors() {
		errs, _ := countSeverities(diags)
		if formatter.JSON() {
			_ = formatter.Error("E_DIAGNOSTICS", fmt.Sprintf("%d error(s)", errs), views)
		} else {
			writeDiagnostics(formatter.Writer, views, p.Workspace.Sources)
			fmt.Fprintf(formatter.Writer, "✗ Compilation failed with %d error(s)\n", errs)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("compilation failed with %d error(s)", errs))
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return WrapExitError(ExitCommandError, "failed to create output directory", err)
	}

	result := CompilationResult{Files: []EmittedFile{}, Diagnostics: views}
	for _, fr := range res.Files {
		w := fr.Workflow
		if len(w.Units) == 0 {
			logger.Debug("nothing to emit", "source", fr.Path)
			continue
		}
		ext := ".yml"
		if emitFormat == "json" {
			ext = ".json"
		}
		out := filepath.Join(outDir, p.emittedName(fr.Path, ext))
		if err := writeWorkflow(w, emitFormat, out); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to write %s", out), err)
		}
		digest, err := ir.Digest(w)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to digest workflow", err)
		}
		logger.Info("workflow written", "source", fr.Path, "output", out)
		result.Files = append(result.Files, EmittedFile{
			Source: fr.Path,
			Output: out,
			Digest: digest,
			Units:  len(w.Units),
			Cycles: len(w.States),
		})
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	writeDiagnostics(formatter.Writer, views, p.Workspace.Sources)
	for _, f := range result.Files {
		fmt.Fprintf(formatter.Writer, "%s → %s (%d unit(s), %d cycle(s))\n", f.Source, f.Output, f.Units, f.Cycles)
	}
	fmt.Fprintf(formatter.Writer, "✓ Compiled %d workflow(s)\n", len(result.Files))
	return nil
}

// writeWorkflow renders w in the given format to path.
func writeWorkflow(w *ir.Workflow, format, path string) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case "yaml":
		data, err = emit.YAML(w)
	case "json":
		data, err = json.MarshalIndent(w, "", "  ")
		data = append(data, '\n')
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return fmt.Errorf("render %s: %w", w.Name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
