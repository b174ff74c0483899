// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/ebookcast/cmd/ebookcast/handlers"
)

// Root returns the root command for the ebookcast CLI.
func Root() *cobra.Command {
	var (
		logLevel  string
		logFormat string
		envFile   string
	)

	cmd := &cobra.Command{
		Use:           "ebookcast",
		Short:         "Convert an ebook library to audiobooks on a cloud GPU VM",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return handlers.Init(handlers.GlobalOptions{
				LogLevel:  logLevel,
				LogFormat: logFormat,
				EnvFile:   envFile,
			})
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format (console, json)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file with credentials (ignored when missing)")

	cmd.AddCommand(Provision())
	cmd.AddCommand(Convert())
	cmd.AddCommand(Scan())
	cmd.AddCommand(History())
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}
