package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/ebookcast/cmd/ebookcast/handlers"
	"github.com/imamik/ebookcast/internal/config"
)

// Scan returns the scan command.
func Scan() *cobra.Command {
	opts := handlers.ScanOptions{}

	cmd := &cobra.Command{
		Use:   "scan EBOOKS_DIR AUDIOBOOKS_DIR",
		Short: "List the books convert would process",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.EbooksDir = args[0]
			opts.AudiobooksDir = args[1]
			return handlers.Scan(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Monolingual, "monolingual", "m", "", "Scan in monolingual mode with this language code")
	cmd.Flags().StringVar(&opts.SettingsFile, "settings", config.DefaultSettingsFile, "Settings file")

	return cmd
}
