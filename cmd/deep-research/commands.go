package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pminervini/deep-research-mcp/internal/agent"
	"github.com/pminervini/deep-research-mcp/internal/config"
	"github.com/pminervini/deep-research-mcp/internal/formatting"
	"github.com/pminervini/deep-research-mcp/internal/logging"
	"github.com/pminervini/deep-research-mcp/internal/models"
	"github.com/pminervini/deep-research-mcp/internal/util"
)

func loadConfig(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	level, _ := cmd.Flags().GetString("log-level")
	boot := logging.New(logging.Options{Level: util.FirstNonEmpty(level, "WARNING"), Console: true})
	cfg, err := config.Load(boot)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(logging.Options{
		Level:   util.FirstNonEmpty(level, cfg.LogLevel),
		File:    cfg.LogFile,
		Console: true,
	})
	return cfg, logger, nil
}

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models [name]",
		Short: "List available models, or show one model",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				fmt.Fprintln(out, models.FormatList())
				return nil
			}
			m, err := models.Info(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\n  %s\n  Cost: %s\n", m.Name, m.Description, m.Cost)
			return nil
		},
	}
}

func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			writeSettings(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func writeSettings(w io.Writer, cfg *config.Config) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, s := range cfg.Settings() {
		fmt.Fprintf(tw, "%s\t%s\n", s.Name, s.Value)
	}
	_ = tw.Flush()
}

func newResearchCommand() *cobra.Command {
	var (
		system     string
		noAnalysis bool
		callback   string
		model      string
	)
	cmd := &cobra.Command{
		Use:   "research <query>",
		Short: "Run a research task and print the report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if model != "" {
				cfg.Model = model
			}
			a, err := agent.New(cfg, logger)
			if err != nil {
				return err
			}
			defer a.WaitForWebhooks()

			query := strings.Join(args, " ")
			result := a.Research(cmd.Context(), agent.Request{
				Query:                  query,
				SystemPrompt:           util.FirstNonEmpty(system, formatting.DefaultSystemPrompt),
				IncludeCodeInterpreter: !noAnalysis,
				CallbackURL:            callback,
			})
			if !result.Completed() {
				return fmt.Errorf("%s", formatting.ResearchFailed(result))
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatting.Report(query, result))
			return nil
		},
	}
	cmd.Flags().StringVar(&system, "system", "", "Custom research instructions")
	cmd.Flags().BoolVar(&noAnalysis, "no-analysis", false, "Disable the code interpreter tool")
	cmd.Flags().StringVar(&callback, "callback-url", "", "URL to POST to when the research completes")
	cmd.Flags().StringVar(&model, "model", "", "Override the research model")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the status of a research task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := agent.New(cfg, logger)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatting.TaskStatus(a.GetTaskStatus(cmd.Context(), args[0])))
			return nil
		},
	}
}

func newClarifyCommand() *cobra.Command {
	var runResearch bool
	cmd := &cobra.Command{
		Use:   "clarify <query>",
		Short: "Ask clarifying questions interactively and print the enriched query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.EnableClarification = true
			a, err := agent.New(cfg, logger)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			query := strings.Join(args, " ")

			assessment := a.StartClarification(ctx, query)
			fmt.Fprintln(out, formatting.Clarification(query, assessment))
			if !assessment.NeedsClarification {
				return nil
			}

			answers, err := askQuestions(cmd.InOrStdin(), out, assessment.Questions)
			if err != nil {
				return err
			}
			if status := a.AddClarificationAnswers(assessment.SessionID, answers); status.Error != "" {
				return fmt.Errorf("clarification session: %s", status.Error)
			}
			enriched, ok := a.GetEnrichedQuery(ctx, assessment.SessionID)
			if !ok {
				return fmt.Errorf("could not retrieve enriched query for session %s", assessment.SessionID)
			}
			fmt.Fprintf(out, "\nEnriched query:\n%s\n", enriched)

			if !runResearch {
				return nil
			}
			result := a.Research(ctx, agent.Request{Query: enriched, SystemPrompt: formatting.DefaultSystemPrompt, IncludeCodeInterpreter: true})
			if !result.Completed() {
				return fmt.Errorf("%s", formatting.ResearchFailed(result))
			}
			fmt.Fprintln(out, formatting.EnhancedReport(enriched, len(answers), assessment.SessionID, result))
			return nil
		},
	}
	cmd.Flags().BoolVar(&runResearch, "research", false, "Run research with the enriched query")
	return cmd
}

// askQuestions prompts for one answer per question. Blank lines are kept
// as empty answers.
func askQuestions(in io.Reader, out io.Writer, questions []string) ([]string, error) {
	scanner := bufio.NewScanner(in)
	answers := make([]string, 0, len(questions))
	for i, q := range questions {
		fmt.Fprintf(out, "\n%d. %s\n> ", i+1, q)
		if !scanner.Scan() {
			break
		}
		answers = append(answers, strings.TrimSpace(scanner.Text()))
	}
	return answers, scanner.Err()
}
