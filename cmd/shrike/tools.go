package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the available tools",
		RunE:  runTools,
	}
	cmd.Flags().Bool("schemas", false, "Include parameter schemas")
	return cmd
}

func runTools(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.initialize(ctx); err != nil {
		return fmt.Errorf("initializing tool client: %w", err)
	}

	showSchemas, _ := cmd.Flags().GetBool("schemas")
	out := cmd.OutOrStdout()
	for _, t := range rt.client.ListTools() {
		fmt.Fprintf(out, "%s (%s)\n", t.Name, t.Origin)
		fmt.Fprintf(out, "  %s\n", firstSentence(t.Description))
		if showSchemas {
			for _, p := range t.Parameters {
				req := "optional"
				if p.Required {
					req = "required"
				}
				fmt.Fprintf(out, "  - %s (%s, %s): %s\n", p.Name, p.Type, req, p.Description)
			}
		}
	}
	return nil
}

func firstSentence(s string) string {
	if i := strings.Index(s, ". "); i > 0 {
		return s[:i+1]
	}
	return s
}
