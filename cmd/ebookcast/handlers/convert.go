package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/imamik/ebookcast/internal/archive"
	"github.com/imamik/ebookcast/internal/config"
	"github.com/imamik/ebookcast/internal/cover"
	"github.com/imamik/ebookcast/internal/ledger"
	"github.com/imamik/ebookcast/internal/library"
	"github.com/imamik/ebookcast/internal/metrics"
	"github.com/imamik/ebookcast/internal/pipeline"
	"github.com/imamik/ebookcast/internal/platform/customsearch"
	"github.com/imamik/ebookcast/internal/platform/gcloud"
	"github.com/imamik/ebookcast/internal/platform/gcs"
	"github.com/imamik/ebookcast/internal/platform/s3"
	"github.com/imamik/ebookcast/internal/platform/ssh"
	"github.com/imamik/ebookcast/internal/remote"
)

// ConvertOptions are the arguments and flags of the convert command.
type ConvertOptions struct {
	EbooksDir     string
	AudiobooksDir string

	GitRepo      string
	GitBranch    string
	ForceRebuild bool
	NumThreads   int
	Monolingual  string

	ConfigFile   string
	SetupScript  string
	SettingsFile string
	WorkDir      string
	Archive      string
	LedgerPath   string
	MetricsFile  string
	SkipTags     bool
}

// Factory function variables for convert - can be replaced in tests.
var (
	loadRecord = config.LoadRecord

	newTransport = defaultTransport

	loadSearchCredentials = config.LoadSearchCredentials

	newCoverFinder = func(ctx context.Context, creds config.SearchCredentials, timeout time.Duration) (pipeline.CoverFinder, error) {
		searcher, err := customsearch.New(ctx, creds.APIKey, creds.EngineID)
		if err != nil {
			return nil, err
		}
		return cover.NewFinder(searcher, timeout, loggerFor("cover")), nil
	}

	newArchiveUploader = defaultArchiveUploader

	openLedger = ledger.Open
)

// Convert bootstraps the VM and converts every queued book.
//
// Missing directories, record or setup script, missing tools and a failed
// bootstrap are fatal. Per-book failures are logged and skipped; only an
// interrupt ends the loop early.
func Convert(ctx context.Context, opts ConvertOptions) error {
	console := newConsole()

	if err := requireDirs(opts.EbooksDir, opts.AudiobooksDir); err != nil {
		return err
	}
	settings, err := loadSettingsOrDefaults(opts.SettingsFile)
	if err != nil {
		return err
	}

	rec, err := loadRecord(opts.ConfigFile)
	if err != nil {
		return err
	}
	console.Success("Loaded configuration from '%s'.", opts.ConfigFile)

	if _, err := os.Stat(opts.SetupScript); err != nil {
		return fmt.Errorf("setup script '%s' not found: %w", opts.SetupScript, err)
	}
	if err := checkPrerequisites(rec.ProviderName()); err != nil {
		return err
	}

	timeouts := loadTimeouts()
	transport, err := newTransport(rec, settings, timeouts)
	if err != nil {
		return err
	}

	workDir := opts.WorkDir
	if workDir == "" {
		workDir = "."
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}
	sink, err := remote.OpenLogSink(workDir, stdout, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()

	m := metrics.New()
	defer writeMetrics(m, opts.MetricsFile)

	driverOpts := []pipeline.Option{
		pipeline.WithConsole(console),
		pipeline.WithLogger(loggerFor("pipeline")),
		pipeline.WithMetrics(m),
	}

	if !opts.SkipTags {
		if creds, ok := loadSearchCredentials("."); ok {
			finder, err := newCoverFinder(ctx, creds, timeouts.CoverFetch)
			if err != nil {
				logger.Warn().Err(err).Msg("Cover search disabled")
			} else {
				driverOpts = append(driverOpts, pipeline.WithCoverFinder(finder))
			}
		} else {
			logger.Info().Msg("No image search credentials, cover search disabled")
		}
	}

	if opts.Archive != "" {
		target, err := archive.ParseTarget(opts.Archive)
		if err != nil {
			return err
		}
		uploader, closeUploader, err := newArchiveUploader(ctx, target)
		if err != nil {
			return err
		}
		defer closeUploader()
		driverOpts = append(driverOpts, pipeline.WithArchiver(archive.New(target, uploader, loggerFor("archive"))))
	}

	if opts.LedgerPath != "" {
		l, err := openLedger(opts.LedgerPath)
		if err != nil {
			logger.Warn().Err(err).Msg("Ledger unavailable, attempts will not be recorded")
		} else {
			defer func() { _ = l.Close() }()
			driverOpts = append(driverOpts, pipeline.WithRecorder(l))
		}
	}

	driver := pipeline.New(transport, rec, settings, timeouts, sink, pipeline.Options{
		GitRepo:        opts.GitRepo,
		GitBranch:      opts.GitBranch,
		ForceRebuild:   opts.ForceRebuild,
		NumThreads:     opts.NumThreads,
		SetupScript:    opts.SetupScript,
		AudiobooksRoot: opts.AudiobooksDir,
		WorkDir:        workDir,
		SkipTags:       opts.SkipTags,
	}, driverOpts...)
	console.Info("Starting run %s.", driver.RunID())

	if err := driver.Setup(ctx); err != nil {
		console.Failure("Remote VM setup failed.")
		return err
	}
	console.Success("Remote VM setup appears successful.")

	books, err := scanLibrary(opts.EbooksDir, opts.AudiobooksDir, opts.Monolingual, settings)
	if err != nil {
		return err
	}
	console.Info("Found %d new books to convert.", len(books))

	summary, err := driver.Run(ctx, books)
	if err != nil {
		console.Failure("Interrupted after %d of %d books. Stopping.", summary.Total(), len(books))
		return err
	}

	console.Success("All books processed: %d converted, %d skipped, %d failed (run %s).",
		summary.Converted, summary.Skipped, summary.Failed, summary.RunID)
	return nil
}

func scanLibrary(ebooks, audiobooks, monolingual string, settings *config.Settings) ([]library.Book, error) {
	scanner := library.NewScanner(library.Options{
		EbooksRoot:       ebooks,
		AudiobooksRoot:   audiobooks,
		MonolingualCode:  monolingual,
		Languages:        settings,
		ManualExclusions: settings.ManualExclusionSet(),
	}, loggerFor("library"))
	return scanner.Scan()
}

// defaultTransport picks the transport for the record's provider: native
// SSH for Hetzner servers, the gcloud CLI for Compute Engine.
func defaultTransport(rec config.Record, settings *config.Settings, timeouts *config.Timeouts) (remote.Transport, error) {
	if rec.ProviderName() != config.ProviderHCloud {
		return gcloud.NewTransport(gcloud.New(gcloud.WithLogger(loggerFor("gcloud"))), rec), nil
	}

	keyPath, err := expandHome(settings.HCloud.PrivateKeyPath)
	if err != nil {
		return nil, err
	}
	// #nosec G304
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH private key: %w", err)
	}

	log := loggerFor("ssh")
	return ssh.NewClient(&ssh.Config{
		Host:       rec.Host,
		User:       rec.RemoteUser,
		PrivateKey: key,
		MaxRetries: timeouts.SSHMaxRetries,
		RetryDelay: timeouts.SSHRetryDelay,
		OnDialRetry: func(attempt int, err error, wait time.Duration) {
			log.Debug().Int("attempt", attempt).Err(err).Dur("wait", wait).Msg("SSH dial failed, retrying")
		},
	})
}

// defaultArchiveUploader creates the object storage client for target.
// The returned close function is always non-nil.
func defaultArchiveUploader(ctx context.Context, target archive.Target) (archive.Uploader, func(), error) {
	switch target.Scheme {
	case archive.SchemeS3:
		creds, err := config.LoadS3Credentials()
		if err != nil {
			return nil, nil, err
		}
		client, err := s3.NewClient(ctx, creds.Endpoint, creds.Region, creds.AccessKey, creds.SecretKey)
		if err != nil {
			return nil, nil, err
		}
		return checkBucket(ctx, target, client, func() {})
	case archive.SchemeGCS:
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		return checkBucket(ctx, target, client, func() { _ = client.Close() })
	default:
		return nil, nil, fmt.Errorf("unsupported archive scheme %q", target.Scheme)
	}
}

type bucketUploader interface {
	archive.Uploader
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

// checkBucket fails early when the archive bucket does not exist.
func checkBucket(ctx context.Context, target archive.Target, u bucketUploader, closeFn func()) (archive.Uploader, func(), error) {
	exists, err := u.BucketExists(ctx, target.Bucket)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("failed to check archive bucket: %w", err)
	}
	if !exists {
		closeFn()
		return nil, nil, fmt.Errorf("archive bucket %s does not exist", target.Bucket)
	}
	return u, closeFn, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
