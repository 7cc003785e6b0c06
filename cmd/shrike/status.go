package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show tool client connection status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.initialize(ctx); err != nil {
		return fmt.Errorf("initializing tool client: %w", err)
	}

	status := rt.client.GetStatus()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Providers:          %d\n", status.Connections)
	fmt.Fprintf(out, "Active connections: %d\n", status.ActiveConnections)
	fmt.Fprintf(out, "Total tools:        %d (%d builtin, %d external)\n",
		status.TotalTools, status.BuiltinTools, status.ExternalTools)

	printHistory(cmd, rt)

	if len(status.Providers) == 0 {
		return nil
	}
	names := make([]string, 0, len(status.Providers))
	for name := range status.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(out)
	for _, name := range names {
		p := status.Providers[name]
		state := "disconnected"
		if p.Connected {
			state = "connected"
		}
		fmt.Fprintf(out, "  %-20s %-12s %2d tools  %s\n", name, state, p.Tools, p.URL)
	}
	return nil
}

// printHistory summarizes the investigation database. Unreadable history is
// reported as a warning, not a failure.
func printHistory(cmd *cobra.Command, rt *runtime) {
	st, err := rt.repo.Stats(cmd.Context())
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not read history stats: %v\n", err)
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "History:            %d investigations, %d entities, %d sessions\n",
		st.Investigations, st.Entities, st.Sessions)
	if len(st.EntityBreakdown) == 0 {
		return
	}
	types := make([]string, 0, len(st.EntityBreakdown))
	for entityType := range st.EntityBreakdown {
		types = append(types, entityType)
	}
	sort.Slice(types, func(i, j int) bool {
		a, b := types[i], types[j]
		if st.EntityBreakdown[a] != st.EntityBreakdown[b] {
			return st.EntityBreakdown[a] > st.EntityBreakdown[b]
		}
		return a < b
	})
	for _, entityType := range types {
		fmt.Fprintf(out, "  %-20s %d\n", entityType, st.EntityBreakdown[entityType])
	}
}
