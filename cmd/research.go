package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/scouthq/scout/config"
	"github.com/scouthq/scout/internal/agent/core"
	"github.com/scouthq/scout/internal/agent/telemetry"
	"github.com/scouthq/scout/internal/email"
	"github.com/scouthq/scout/internal/notify"
	"github.com/scouthq/scout/internal/store"
)

// researchCMD runs one research query end to end from the terminal,
// printing status events to stderr and the report to stdout.
func researchCMD() *cobra.Command {
	var cfgPath string
	var recipient string
	var skipClarify bool
	var outFile string
	var timeout time.Duration

	var research = &cobra.Command{
		Use:   "research [query]",
		Short: "Run one research query and print the report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")

			tele := telemetry.NewTelemetry(cfg.Telemetry)
			llmProvider, err := core.NewLLMProvider(cfg.LLM)
			if err != nil {
				return err
			}
			searcher, err := core.NewSearcher(cfg.Search)
			if err != nil {
				return err
			}
			reader, err := core.NewPageReader(cfg.Search)
			if err != nil {
				return err
			}
			var mailer core.Mailer = email.NoopMailer{}
			if cfg.Email.SendGridAPIKey != "" {
				mailer = email.NewSendGridMailer(cfg.Email)
			}
			var notifier core.Notifier = notify.NoopNotifier{}
			if cfg.Notify.WebhookURL != "" {
				notifier = notify.NewWebhookNotifier(cfg.Notify)
			}

			orch := core.NewOrchestrator(cfg, core.Deps{
				LLM:        llmProvider,
				Searcher:   searcher,
				Reader:     reader,
				Mailer:     mailer,
				Notifier:   notifier,
				Store:      store.NewInMemoryRunStore(),
				RenderHTML: email.RenderHTML,
			}, tele)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			req := core.ResearchRequest{
				Query:          query,
				Timestamp:      time.Now(),
				SkipClarify:    skipClarify,
				RecipientEmail: recipient,
			}

			var report *core.Report
			var runErr string
			for ev := range orch.Run(ctx, req) {
				fmt.Fprintf(os.Stderr, "[%s] %s\n", ev.Stage, ev.Message)
				if ev.Terminal {
					report = ev.Report
					runErr = ev.Error
				}
			}
			if report == nil {
				return fmt.Errorf("research failed: %s", runErr)
			}

			if outFile != "" {
				if err := os.WriteFile(outFile, []byte(report.Markdown), 0o644); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "report written to %s\n", outFile)
				return nil
			}
			fmt.Println(report.Markdown)
			if len(report.FollowUpQuestions) > 0 {
				fmt.Println("\n## Suggested follow-ups")
				for _, q := range report.FollowUpQuestions {
					fmt.Println("- " + q)
				}
			}
			return nil
		},
	}
	research.Flags().StringVar(&recipient, "email", "", "email the report to this address")
	research.Flags().BoolVar(&skipClarify, "skip-clarify", false, "skip the clarifying questions stage")
	research.Flags().StringVarP(&outFile, "out", "o", "", "write the markdown report to a file")
	research.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall run timeout")
	research.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return research
}
