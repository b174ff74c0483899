package handlers

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/imamik/ebookcast/internal/pipeline"
)

// ScanOptions are the arguments and flags of the scan command.
type ScanOptions struct {
	EbooksDir     string
	AudiobooksDir string
	Monolingual   string
	SettingsFile  string
}

// Scan prints the conversion queue without touching the VM.
func Scan(_ context.Context, opts ScanOptions) error {
	if err := requireDirs(opts.EbooksDir, opts.AudiobooksDir); err != nil {
		return err
	}
	settings, err := loadSettingsOrDefaults(opts.SettingsFile)
	if err != nil {
		return err
	}

	books, err := scanLibrary(opts.EbooksDir, opts.AudiobooksDir, opts.Monolingual, settings)
	if err != nil {
		return err
	}

	newConsole().Info("Found %d new books to convert.", len(books))
	if len(books) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tLANG\tENGINE\tBOOK")
	for i, b := range books {
		engine := pipeline.EngineFairseq
		if settings.SupportsVITS(b.LangCode) {
			engine = pipeline.EngineVITS
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, b.LangCode, engine, b.RelativePath)
	}
	return w.Flush()
}
