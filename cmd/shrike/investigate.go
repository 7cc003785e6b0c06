package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/umbra-intel/shrike/bridge"
	"github.com/umbra-intel/shrike/capture"
	"github.com/umbra-intel/shrike/llm"
	"github.com/umbra-intel/shrike/llm/claude"
	"github.com/umbra-intel/shrike/llm/gemini"
	"github.com/umbra-intel/shrike/llm/ollama"
	"github.com/umbra-intel/shrike/llm/openai"
	"github.com/umbra-intel/shrike/message"
	"github.com/umbra-intel/shrike/osint"
)

const investigatorPrompt = `You are a dark web OSINT analyst. Investigate the user's query using the available tools: search dark web engines, scrape promising .onion sites, extract entities, and analyze cryptocurrency addresses and onion domain reputations. Cross-reference findings and finish with a concise intelligence summary.`

func newInvestigateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "investigate <query>",
		Short: "Run a tool-driven investigation for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runInvestigate,
	}

	cmd.Flags().String("provider", "anthropic", "Model provider: anthropic, openai, gemini, or ollama")
	cmd.Flags().String("model", "", "Model name (provider default when empty)")
	cmd.Flags().Int("max-tokens", 0, "Clamp the final answer to this many tokens (0 disables)")
	cmd.Flags().StringP("output", "o", "", "Write the investigation summary to this file")
	cmd.Flags().Bool("no-stream", false, "Disable streaming output")
	cmd.Flags().Bool("screenshots", false, "Capture screenshots of .onion pages cited in the findings")
	cmd.Flags().Int("max-screenshots", 10, "Maximum screenshots to capture per investigation")

	return cmd
}

func runInvestigate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	query := strings.Join(args, " ")

	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.initialize(ctx); err != nil {
		return fmt.Errorf("initializing tool client: %w", err)
	}

	model, err := buildModel(cmd)
	if err != nil {
		return err
	}

	sessionID, err := rt.repo.StartSession(ctx)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: session tracking unavailable: %v\n", err)
	}
	defer func() {
		if sessionID == "" {
			return
		}
		if err := rt.repo.EndSession(ctx, sessionID); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not close session: %v\n", err)
		}
	}()

	var stream *bridge.StreamHandler
	if noStream, _ := cmd.Flags().GetBool("no-stream"); !noStream {
		stream = bridge.NewStreamHandler(func(chunk string) {
			fmt.Fprint(cmd.OutOrStdout(), chunk)
		})
	}
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")

	b := bridge.New(model, rt.client, rt.client.ListTools(), bridge.Options{
		MaxOutputTokens: maxTokens,
		Stream:          stream,
	})
	bound := b.Bound()
	fmt.Fprintf(cmd.OutOrStdout(), "Investigating %q with %s (strategy: %s, %d tools)\n\n",
		query, model.ModelName(), bound.Strategy, len(bound.Tools))

	answer, err := b.Run(ctx, []*message.Message{
		message.NewMessage(message.RoleSystem, systemPrompt(ctx, rt, query)),
		message.NewMessage(message.RoleUser, query),
	})
	if err != nil {
		return fmt.Errorf("investigation failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", answer.Text())

	return saveInvestigation(cmd, rt, query, sessionID, answer.Text())
}

// systemPrompt appends related past investigations to the base prompt so the
// model can build on earlier findings.
func systemPrompt(ctx context.Context, rt *runtime, query string) string {
	similar, err := rt.repo.SimilarInvestigations(ctx, query, 3)
	if err != nil || len(similar) == 0 {
		return investigatorPrompt
	}
	var b strings.Builder
	b.WriteString(investigatorPrompt)
	b.WriteString("\n\nRelated past investigations:\n")
	for _, ref := range similar {
		fmt.Fprintf(&b, "- %s (%s)\n", ref.Query, ref.Timestamp.Format("2006-01-02"))
	}
	return b.String()
}

// saveInvestigation extracts entities from the final answer and records the
// run. Persistence failures are reported but do not fail the investigation.
func saveInvestigation(cmd *cobra.Command, rt *runtime, query, sessionID, answer string) error {
	outPath, _ := cmd.Flags().GetString("output")
	if outPath == "" {
		outPath = fmt.Sprintf("investigation_%s.md", time.Now().Format("20060102_150405"))
	}
	entities := osint.ExtractEntities(answer)
	total, _, summary := osint.SummarizeEntities(entities)

	report := fmt.Sprintf("# Investigation: %s\n\n%s\n", query, answer)
	if enabled, _ := cmd.Flags().GetBool("screenshots"); enabled {
		report += screenshotSection(cmd, entities["onion_domain"])
	}
	if err := os.WriteFile(outPath, []byte(report), 0o600); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not write summary file: %v\n", err)
		outPath = ""
	}
	if _, err := rt.repo.SaveInvestigation(cmd.Context(), query, outPath, sessionID, entities); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not persist investigation: %v\n", err)
		return nil
	}
	if total > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", summary)
	}
	if outPath != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Summary written to %s\n", outPath)
	}
	return nil
}

// screenshotSection captures the onion domains cited in the findings and
// renders a report section linking the saved images.
func screenshotSection(cmd *cobra.Command, domains []string) string {
	if len(domains) == 0 {
		return ""
	}
	proxy, _ := cmd.Flags().GetString("tor-proxy")
	max, _ := cmd.Flags().GetInt("max-screenshots")

	urls := make([]string, len(domains))
	for i, domain := range domains {
		urls[i] = "http://" + domain
	}

	capturer := capture.New(capture.Options{ProxyURL: proxy})
	shots := capturer.CaptureBatch(cmd.Context(), urls, max)
	if len(shots) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n## Screenshots\n\n")
	for _, shot := range shots {
		if shot.Error != "" {
			fmt.Fprintf(&b, "- %s: capture failed (%s)\n", shot.URL, shot.Error)
			continue
		}
		title := shot.Title
		if title == "" {
			title = shot.URL
		}
		fmt.Fprintf(&b, "- %s: ![%s](%s)\n", shot.URL, title, shot.Path)
	}
	return b.String()
}

// buildModel constructs the model handle for the requested provider. API
// keys come from the conventional environment variables.
func buildModel(cmd *cobra.Command) (llm.Model, error) {
	provider, _ := cmd.Flags().GetString("provider")
	name, _ := cmd.Flags().GetString("model")

	switch strings.ToLower(provider) {
	case "anthropic", "claude":
		return claude.New(claude.Config{
			APIKey: os.Getenv("ANTHROPIC_API_KEY"),
			Model:  name,
		}), nil
	case "openai":
		return openai.New(openai.Config{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Model:  name,
		}), nil
	case "gemini", "google":
		return gemini.New(cmd.Context(), gemini.Config{
			APIKey: os.Getenv("GOOGLE_API_KEY"),
			Model:  name,
		})
	case "ollama":
		return ollama.New(ollama.Config{
			BaseURL: os.Getenv("OLLAMA_HOST"),
			Model:   name,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}
