package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/cameron5906/workpipe/internal/compiler"
	"github.com/cameron5906/workpipe/internal/config"
	"github.com/cameron5906/workpipe/internal/frontend"
)

// project is a loaded source directory: its configuration with command
// flags applied, and its parsed files.
type project struct {
	Dir       string
	Config    *config.Config
	Workspace *frontend.Workspace
	Options   compiler.Options
}

// loadConfig reads dir's workpipe.yaml and applies flag overrides.
func loadConfig(dir string, opts *RootOptions) (*config.Config, error) {
	cfg, err := config.LoadDir(dir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Namespace != "" {
		cfg.Namespace = opts.Namespace
		if err := cfg.Validate(); err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid --namespace", err)
		}
	}
	return cfg, nil
}

// loadProject reads the configuration and every .cue file of dir.
func loadProject(dir string, opts *RootOptions, logger *slog.Logger) (*project, error) {
	cfg, err := loadConfig(dir, opts)
	if err != nil {
		return nil, err
	}

	ws, err := frontend.LoadDir(dir)
	if err != nil {
		var le *frontend.LoadError
		if errors.As(err, &le) {
			return nil, WrapExitError(ExitCommandError, le.Code, err)
		}
		return nil, WrapExitError(ExitCommandError, "failed to load sources", err)
	}
	logger.Debug("sources loaded", "dir", dir, "files", len(ws.Files))

	return &project{
		Dir:       dir,
		Config:    cfg,
		Workspace: ws,
		Options: compiler.Options{
			Namespace:    cfg.Namespace,
			WorkflowFile: opts.WorkflowFile,
			RunsOn:       cfg.RunsOn,
			Logger:       logger,
		},
	}, nil
}

// compile runs the workspace compiler over the project.
func (p *project) compile(ctx context.Context) (*compiler.WorkspaceResult, error) {
	res, err := compiler.CompileWorkspace(ctx, p.Workspace.Files, p.Options)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", p.Dir, err)
	}
	return res, nil
}

// emittedName is the file a compiled source is written to.
func (p *project) emittedName(source, ext string) string {
	if p.Options.WorkflowFile != "" && ext == ".yml" {
		return p.Options.WorkflowFile
	}
	base := path.Base(source)
	return base[:len(base)-len(path.Ext(base))] + ext
}
