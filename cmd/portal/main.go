package main

import (
	stderrors "errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/practicedesk/portal/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := newRootCmd().Execute()
	switch {
	case err == nil:
	case stderrors.Is(err, errAccessDenied):
		os.Exit(2)
	default:
		errors.PrintError(err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	noColor    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "portal",
		Short: "PracticeDesk client portal server",
		Long: `portal serves the PracticeDesk client portal and its access gate.

Configuration is read from portal.json when present and from
environment variables, which take precedence:

  PORTAL_ADDR            listen address (default :8080)
  PORTAL_SIGNING_KEY     secret for reset tokens (required)
  DATABASE_URL           Postgres connection string
  REDIS_ADDR             Redis address for sessions and flags
  PORTAL_OTEL_ENDPOINT   OTLP/HTTP trace collector`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				errors.DisableColors()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "portal.json", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored error output")

	rootCmd.AddCommand(
		serveCmd(opts),
		validateCmd(opts),
		portalFlagCmd(opts),
		versionCmd(),
	)
	return rootCmd
}
