// README: Command-line front end for the trip parser: one-shot parse and an interactive chat session.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wayfarer/internal/ai"
	"wayfarer/internal/config"
	"wayfarer/internal/logging"
	"wayfarer/internal/modules/extract"
	"wayfarer/internal/modules/modify"
	"wayfarer/internal/modules/preference"
	"wayfarer/internal/modules/session"
	"wayfarer/internal/service"
)

var (
	verbose  bool
	jsonOut  bool
	noAI     bool
	timeout  time.Duration
	cleanups []func()
)

var rootCmd = &cobra.Command{
	Use:   "trip-cli",
	Short: "Turn free-form travel requests into structured trip plans",
	Long: `trip-cli parses travel requests such as "5 days in London then 3 in Paris"
into a plan of destinations and days.

Set GEMINI_API_KEY to let ambiguous or conversational requests fall back to the AI extractor.`,
	SilenceUsage: true,
}

var parseCmd = &cobra.Command{
	Use:   "parse <text>",
	Short: "Parse a single request and print the result",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runParse,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive planning session",
	Long: `Start an interactive session. Every line is one turn; follow-ups such as
"from NYC" or "remove Tokyo" apply to the current plan.

Commands:
  /plan  - print the current plan
  /undo  - revert the last change
  /clear - start over
  /quit  - exit`,
	Args: cobra.NoArgs,
	RunE: runChatCmd,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noAI, "no-ai", false, "Disable the AI fallback even when GEMINI_API_KEY is set")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Per-turn timeout")
	parseCmd.Flags().BoolVar(&jsonOut, "json", false, "Print the full response as JSON")
	rootCmd.AddCommand(parseCmd, chatCmd)
}

func main() {
	err := rootCmd.Execute()
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	if err != nil {
		os.Exit(1)
	}
}

func runParse(cmd *cobra.Command, args []string) error {
	conv, err := buildConversation(cmd.Context())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	text := strings.Join(args, " ")
	resp, err := conv.Parse(ctx, text, "", "")
	if err != nil {
		return err
	}
	return printParse(cmd.OutOrStdout(), resp, jsonOut)
}

func runChatCmd(cmd *cobra.Command, _ []string) error {
	conv, err := buildConversation(cmd.Context())
	if err != nil {
		return err
	}
	return runChat(cmd.Context(), conv, cmd.InOrStdin(), cmd.OutOrStdout(), timeout)
}

// buildConversation wires an in-memory conversation from the environment configuration.
func buildConversation(ctx context.Context) (*service.Conversation, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	logger, err := logging.NewDevelopment(level)
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, func() { _ = logger.Sync() })

	det := extract.NewExtractor(nil, logger)
	var aiX *ai.Extractor
	if cfg.AI.GeminiKey != "" && cfg.Parser.EnableAIFallback && !noAI {
		provider, err := ai.NewGeminiProvider(ctx, cfg.AI.GeminiKey, cfg.AI.Model)
		if err != nil {
			return nil, err
		}
		cleanups = append(cleanups, provider.Close)
		aiX = ai.NewExtractor(provider, nil, ai.Options{
			ConfidenceThreshold: cfg.Parser.AIThreshold,
			Timeout:             cfg.Parser.MaxProcessingTime,
		}, logger)
	}
	logger.Debug("conversation ready", zap.Bool("ai", aiX != nil))

	return newConversation(det, aiX, cfg, logger), nil
}

func newConversation(det *extract.Extractor, aiX *ai.Extractor, cfg config.Config, logger *zap.Logger) *service.Conversation {
	parser := service.NewHybridParser(det, preference.NewExtractor(logger), aiX, service.ParserOptions{
		DeterministicThreshold: cfg.Parser.DeterministicThreshold,
		AIThreshold:            cfg.Parser.AIThreshold,
		MaxProcessingTime:      cfg.Parser.MaxProcessingTime,
		EnableAIFallback:       cfg.Parser.EnableAIFallback && aiX != nil,
	}, logger)
	resolver := modify.NewResolver(det, modify.Options{
		MaxDestinations: cfg.Modify.MaxDestinations,
		MaxOps:          cfg.Modify.MaxOps,
	}, logger)
	store := session.NewMemoryStore(1, 0, 0, logger)
	return service.NewConversation(parser, resolver, session.NewManager(store, nil, logger), logger)
}

func printParse(w io.Writer, resp service.ParseResponse, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	if !resp.Success {
		fmt.Fprintf(w, "could not parse (%s, confidence %.2f)\n", resp.Classification.Type, resp.Confidence)
		fmt.Fprintln(w, resp.Reply)
		return nil
	}
	fmt.Fprintf(w, "%s [%s, confidence %.2f]\n", resp.Plan.Summary(), resp.Classification.Type, resp.Confidence)
	for _, d := range resp.Plan.Destinations {
		fmt.Fprintf(w, "  %-20s %d days\n", d.City, d.Days)
	}
	if len(resp.Preferences) > 0 {
		fmt.Fprintf(w, "  preferences: %v\n", resp.Preferences)
	}
	for _, warn := range resp.Plan.Warnings {
		fmt.Fprintf(w, "  note: %s\n", warn)
	}
	return nil
}
