package cli

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/cameron5906/workpipe/internal/config"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Debounce time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Re-check a directory whenever a source changes",
		Long: `Check a directory, then check it again after every change to a .cue
source or to workpipe.yaml. Runs until interrupted.

Examples:
  workpipe watch ./workflows
  workpipe watch ./workflows --debounce 500ms`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 200*time.Millisecond, "quiet period before a rebuild")

	return cmd
}

func runWatch(ctx context.Context, opts *WatchOptions, dir string, cmd *cobra.Command) error {
	logger := opts.Logger(cmd)

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("directory not found: %s", dir))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return WrapExitError(ExitCommandError, "create fsnotify watcher", err)
	}
	defer watcher.Close()

	if err := watchTree(watcher, dir); err != nil {
		return WrapExitError(ExitCommandError, "watch directory", err)
	}

	build := func(reason string) {
		fmt.Fprintf(cmd.OutOrStdout(), "--- %s %s ---\n", reason, time.Now().Format(time.TimeOnly))
		if err := rebuild(opts.RootOptions, dir, cmd); err != nil {
			logger.Debug("check finished with errors", "error", err)
		}
	}
	build("initial check")

	var (
		timer   *time.Timer
		pending <-chan time.Time
		changed string
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watchTree(watcher, event.Name); err != nil {
						logger.Error("watch new directory", "dir", event.Name, "error", err)
					}
					continue
				}
			}
			if !relevant(event.Name) {
				continue
			}
			logger.Debug("fsnotify", "op", event.Op.String(), "file", event.Name)
			changed = event.Name
			if timer == nil {
				timer = time.NewTimer(opts.Debounce)
			} else {
				timer.Reset(opts.Debounce)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			build("changed " + changed)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("fsnotify", "error", err)
		}
	}
}

// rebuild runs one check; findings and load errors are printed, never
// returned to cobra.
func rebuild(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	p, err := loadProject(dir, opts, opts.Logger(cmd))
	if err != nil {
		_ = formatter.Error("E_LOAD", err.Error(), nil)
		return err
	}
	res, err := p.compile(cmd.Context())
	if err != nil {
		return err
	}
	return reportCheck(formatter, p, res.Diagnostics(), len(res.Files))
}

// watchTree adds dir and every non-hidden subdirectory. fsnotify does not
// recurse.
func watchTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func relevant(name string) bool {
	base := filepath.Base(name)
	return filepath.Ext(base) == ".cue" || base == config.FileName
}
