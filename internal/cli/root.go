// Package cli implements the loglens command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/loglens/loglens/internal/config"
	"github.com/loglens/loglens/pkg/server"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "loglens",
		Short: "LogLens - log file summarizer and LLM chat gateway",
		Long: `LogLens watches a directory of log files, summarizes every change and
serves an authenticated chat gateway in front of a local or remote model.

Examples:
  loglens serve --config loglens.yaml   # Run the watcher, pipeline and gateway
  loglens summarize app.log             # Summarize one file and exit
  loglens hash-key                      # Hash an API key read from stdin`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ./loglens.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(opts),
		newSummarizeCmd(opts),
		newHashKeyCmd(),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// load reads the configuration and configures logging to w. defaultLevel,
// when set, replaces the configured level unless --log-level was given.
func (o *rootOptions) load(w io.Writer, defaultLevel string, extra ...config.LoadOption) (*config.Config, error) {
	cfg, err := config.Load(o.configPath, extra...)
	if err != nil {
		return nil, err
	}
	if Version != "dev" {
		cfg.Version = Version
	}
	switch {
	case o.logLevel != "":
		cfg.Log.Level = o.logLevel
	case defaultLevel != "":
		cfg.Log.Level = defaultLevel
	}
	server.ConfigureLogging(cfg.Log, w)
	return cfg, nil
}
