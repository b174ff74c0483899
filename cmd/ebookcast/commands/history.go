package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/ebookcast/cmd/ebookcast/handlers"
	"github.com/imamik/ebookcast/internal/ledger"
)

// History returns the history command.
func History() *cobra.Command {
	var opts handlers.HistoryOptions

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent conversion attempts",
		Long: `Show conversion attempts recorded by convert.

Without --run the most recent attempts across all runs are listed, newest
first. With --run every attempt of that run is listed in processing order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.History(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.LedgerPath, "ledger", ledger.DefaultPath, "SQLite ledger of conversion attempts")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "Number of attempts to show")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "Only show the attempts of this run ID")

	return cmd
}
