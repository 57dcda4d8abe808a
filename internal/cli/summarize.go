package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/loglens/loglens/internal/chat"
	"github.com/loglens/loglens/internal/config"
	"github.com/loglens/loglens/internal/summarizer"
	"github.com/loglens/loglens/internal/watcher"
	"github.com/loglens/loglens/pkg/contracts"
	"github.com/loglens/loglens/pkg/models"
)

type summarizeOptions struct {
	narrative bool
	output    string
}

func newSummarizeCmd(root *rootOptions) *cobra.Command {
	opts := &summarizeOptions{}
	cmd := &cobra.Command{
		Use:   "summarize <file>",
		Short: "Summarize one log file and exit",
		Long: `Summarize reads a single log file, counts errors and warnings and lists
its key events. With --narrative the configured provider writes a short
narrative of the activity.

Examples:
  loglens summarize /var/log/app.log
  loglens summarize events.json --output yaml
  loglens summarize app.log --narrative`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case "text", "json", "yaml":
			default:
				return fmt.Errorf("unknown output format %q (want text, json or yaml)", opts.output)
			}
			cfg, err := root.load(cmd.ErrOrStderr(), "warn")
			if err != nil {
				return err
			}
			return runSummarize(cmd.Context(), cfg, args[0], opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&opts.narrative, "narrative", false, "ask the configured provider for a narrative")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}

func runSummarize(ctx context.Context, cfg *config.Config, path string, opts *summarizeOptions, out io.Writer) error {
	record, err := watcher.ReadRecord(path, cfg.Watcher.MaxFileSize)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var chatter summarizer.Chatter
	if opts.narrative {
		engine, err := chat.NewEngine(ctx, chat.NewFactory(), cfg.Provider, chat.WithTimeout(cfg.ChatTimeout))
		if err != nil {
			return err
		}
		defer engine.Close()
		chatter = engine
	}

	summary, narrativeErr := summarizer.New(chatter).Process(ctx, record, contracts.SummarizeOptions{Narrative: opts.narrative})
	if err := render(out, opts.output, path, summary); err != nil {
		return err
	}
	if narrativeErr != nil {
		return fmt.Errorf("narrative unavailable: %w", narrativeErr)
	}
	return nil
}

func render(w io.Writer, format, path string, s models.Summary) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(s)
	default:
		_, err := io.WriteString(w, renderText(path, s))
		return err
	}
}

func renderText(path string, s models.Summary) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(path) + "\n")
	b.WriteString(mutedStyle.Render(strings.Repeat("─", 40)) + "\n")
	b.WriteString(labelStyle.Render("Errors:") + countStyle(s.ErrorCount, errorStyle).Render(strconv.Itoa(s.ErrorCount)) + "\n")
	b.WriteString(labelStyle.Render("Warnings:") + countStyle(s.WarningCount, warningStyle).Render(strconv.Itoa(s.WarningCount)) + "\n")

	b.WriteString("\n" + headerStyle.Render("Key events") + "\n")
	if len(s.KeyEvents) == 0 {
		b.WriteString("  " + mutedStyle.Render("(none)") + "\n")
	}
	for _, ev := range s.KeyEvents {
		style := warningStyle
		if strings.Contains(strings.ToLower(ev), "error") {
			style = errorStyle
		}
		b.WriteString("  " + style.Render("•") + " " + ev + "\n")
	}

	if s.Narrative != "" {
		b.WriteString("\n" + headerStyle.Render("Narrative") + "\n")
		b.WriteString(bodyStyle.Render(s.Narrative) + "\n")
	}
	return b.String()
}
