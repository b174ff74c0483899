package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/ebookcast/cmd/ebookcast/handlers"
	"github.com/imamik/ebookcast/internal/config"
	"github.com/imamik/ebookcast/internal/ledger"
	"github.com/imamik/ebookcast/internal/pipeline"
)

// Convert returns the convert command.
func Convert() *cobra.Command {
	opts := handlers.ConvertOptions{}

	cmd := &cobra.Command{
		Use:   "convert EBOOKS_DIR AUDIOBOOKS_DIR",
		Short: "Convert every new book of the library on the provisioned VM",
		Long: `Convert bootstraps the VM and converts each queued book in turn.

The library is either multilingual (language/category/book) or, with
--monolingual, any directory holding an ebook. Books whose output folder
"<name> TTS" already exists below AUDIOBOOKS_DIR are skipped.

A book that fails is skipped; the run continues with the next one.

Example:
  ebookcast convert ~/Books ~/Audiobooks
  ebookcast convert -m eng -t 16 ~/Books/English ~/Audiobooks/English`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.EbooksDir = args[0]
			opts.AudiobooksDir = args[1]
			return handlers.Convert(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.GitRepo, "git-repo", "g", pipeline.DefaultGitRepo, "Git repository of the converter image")
	cmd.Flags().StringVarP(&opts.GitBranch, "git-branch", "b", pipeline.DefaultGitBranch, "Git branch of the converter image")
	cmd.Flags().BoolVarP(&opts.ForceRebuild, "force-docker-image-rebuild", "r", false, "Force a rebuild of the remote Docker image")
	cmd.Flags().IntVarP(&opts.NumThreads, "num-threads", "t", pipeline.DefaultNumThreads, "Number of converter workers")
	cmd.Flags().StringVarP(&opts.Monolingual, "monolingual", "m", "", "Scan in monolingual mode with this language code (e.g. eng)")
	cmd.Flags().StringVar(&opts.ConfigFile, "config-file", config.DefaultRecordFile, "Connection record written by provision")
	cmd.Flags().StringVar(&opts.SetupScript, "setup-script", pipeline.DefaultSetupScript, "Bootstrap script executed on the VM")
	cmd.Flags().StringVar(&opts.SettingsFile, "settings", config.DefaultSettingsFile, "Settings file")
	cmd.Flags().StringVar(&opts.WorkDir, "work-dir", ".", "Directory for scratch folders and remote logs")
	cmd.Flags().StringVar(&opts.Archive, "archive", "", "Also upload audiobooks to s3://bucket/prefix or gs://bucket/prefix")
	cmd.Flags().StringVar(&opts.LedgerPath, "ledger", ledger.DefaultPath, "SQLite ledger of conversion attempts (empty disables)")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	cmd.Flags().BoolVar(&opts.SkipTags, "skip-tags", false, "Do not write title and cover tags")

	return cmd
}
