package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/imamik/ebookcast/internal/ledger"
)

// HistoryOptions are the flags of the history command.
type HistoryOptions struct {
	LedgerPath string
	Limit      int
	RunID      string
}

// History prints conversion attempts from the ledger.
func History(ctx context.Context, opts HistoryOptions) error {
	console := newConsole()

	if _, err := os.Stat(opts.LedgerPath); errors.Is(err, os.ErrNotExist) {
		console.Info("No ledger at %s yet. Run convert first.", opts.LedgerPath)
		return nil
	}

	l, err := openLedger(opts.LedgerPath)
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()

	var attempts []ledger.Attempt
	if opts.RunID != "" {
		attempts, err = l.ByRun(ctx, opts.RunID)
	} else {
		attempts, err = l.Recent(ctx, opts.Limit)
	}
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		console.Info("No conversion attempts recorded.")
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FINISHED\tRUN\tSTATUS\tDURATION\tBOOK\tERROR")
	for _, a := range attempts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.FinishedAt.Local().Format(time.DateTime),
			shortRunID(a.RunID),
			a.Status,
			a.Duration().Round(time.Second),
			a.RelativePath,
			a.Error,
		)
	}
	return w.Flush()
}

// shortRunID trims a UUID to its first group for display.
func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
