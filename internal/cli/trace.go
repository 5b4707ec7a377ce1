package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cameron5906/workpipe/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Key      string // optional - filter to one concurrency key
	Cycle    string // optional - filter to one cycle
}

// ChainLink is one artifact of a chain with the invocation that wrote it.
type ChainLink struct {
	Seq        int64  `json:"seq"`
	Iteration  int    `json:"iteration"`
	Artifact   string `json:"artifact"`
	Invocation string `json:"invocation"`
	PrevRun    string `json:"prev_run,omitempty"`
	Status     string `json:"status"`
	Digest     string `json:"digest"`
}

// Chain is the artifact chain of one cycle under one concurrency key.
type Chain struct {
	Cycle string      `json:"cycle"`
	Key   string      `json:"key"`
	Links []ChainLink `json:"links"`
	// Pending lists invocations that have not written an artifact yet.
	Pending []string `json:"pending,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Chains []Chain `json:"chains"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print the state artifact chains of an emulator database",
		Long: `Print every chain of state artifacts recorded by the emulator.

A chain is the sequence of artifacts one cycle wrote under one concurrency
key, each naming the invocation that produced it. Invocations that were
queued or failed before writing their artifact are listed as pending.

Examples:
  workpipe trace --db .workpipe/state.db
  workpipe trace --db .workpipe/state.db --key pr-7
  workpipe trace --db .workpipe/state.db --cycle refine --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Key, "key", "", "filter to one concurrency key")
	cmd.Flags().StringVar(&opts.Cycle, "cycle", "", "filter to one cycle")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	// store.Open would create a missing file.
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	result, err := buildChains(cmd.Context(), st, opts.Key, opts.Cycle)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read database", err)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	writeChains(formatter, result)
	return nil
}

// buildChains groups artifacts and invocations by cycle and key, in the
// order each chain was first seen.
func buildChains(ctx context.Context, st *store.Store, key, cycle string) (TraceResult, error) {
	invs, err := st.Invocations(ctx)
	if err != nil {
		return TraceResult{}, err
	}
	arts, err := st.Artifacts(ctx, key)
	if err != nil {
		return TraceResult{}, err
	}

	type chainID struct{ cycle, key string }
	index := make(map[chainID]int)
	result := TraceResult{Chains: []Chain{}}
	chain := func(c, k string) *Chain {
		id := chainID{c, k}
		i, ok := index[id]
		if !ok {
			i = len(result.Chains)
			index[id] = i
			result.Chains = append(result.Chains, Chain{Cycle: c, Key: k, Links: []ChainLink{}})
		}
		return &result.Chains[i]
	}
	keep := func(c, k string) bool {
		return (key == "" || k == key) && (cycle == "" || c == cycle)
	}

	byID := make(map[string]store.Invocation, len(invs))
	for _, inv := range invs {
		byID[inv.ID] = inv
		if keep(inv.Cycle, inv.Key) {
			chain(inv.Cycle, inv.Key)
		}
	}

	written := make(map[string]bool, len(arts))
	for _, a := range arts {
		if !keep(a.Cycle, a.Key) {
			continue
		}
		inv := byID[a.InvocationID]
		written[a.InvocationID] = true
		c := chain(a.Cycle, a.Key)
		c.Links = append(c.Links, ChainLink{
			Seq:        a.Seq,
			Iteration:  a.Iteration,
			Artifact:   a.Name,
			Invocation: a.InvocationID,
			PrevRun:    inv.PrevRun,
			Status:     string(inv.Status),
			Digest:     a.Digest,
		})
	}

	for _, inv := range invs {
		if keep(inv.Cycle, inv.Key) && !written[inv.ID] {
			c := chain(inv.Cycle, inv.Key)
			c.Pending = append(c.Pending, fmt.Sprintf("%s (iteration %d, %s)", inv.ID, inv.Iteration, inv.Status))
		}
	}
	return result, nil
}

func writeChains(f *OutputFormatter, r TraceResult) {
	w := f.Writer
	if len(r.Chains) == 0 {
		fmt.Fprintln(w, "No chains found.")
		return
	}
	for _, c := range r.Chains {
		fmt.Fprintf(w, "%s @ %s\n", c.Cycle, c.Key)
		for _, l := range c.Links {
			fmt.Fprintf(w, "  [%d] iter %d  %s  (%s, %s)\n", l.Seq, l.Iteration, l.Artifact, l.Invocation, l.Status)
		}
		for _, p := range c.Pending {
			fmt.Fprintf(w, "  pending %s\n", p)
		}
		fmt.Fprintln(w)
	}
}
