package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/imamik/ebookcast/internal/audiotag"
	"github.com/imamik/ebookcast/internal/config"
	"github.com/imamik/ebookcast/internal/cover"
	"github.com/imamik/ebookcast/internal/ledger"
	"github.com/imamik/ebookcast/internal/library"
	"github.com/imamik/ebookcast/internal/metrics"
	"github.com/imamik/ebookcast/internal/remote"
	"github.com/imamik/ebookcast/internal/ui"
	"github.com/imamik/ebookcast/internal/util/naming"
)

// Defaults of the conversion flags.
const (
	DefaultGitRepo     = "https://github.com/ryantimjohn/ebook2audiobook.git"
	DefaultGitBranch   = "main"
	DefaultNumThreads  = 10
	DefaultSetupScript = "setup_remote.sh"
)

// Options configures one conversion run.
type Options struct {
	GitRepo        string
	GitBranch      string
	ForceRebuild   bool
	NumThreads     int
	SetupScript    string
	AudiobooksRoot string
	// WorkDir holds the local scratch directories.
	WorkDir  string
	SkipTags bool
	// Device is DeviceGPU or DeviceCPU. Empty picks by provider: Hetzner
	// servers have no GPU.
	Device string
}

// CoverFinder looks up cover art for a book name.
type CoverFinder interface {
	Find(ctx context.Context, name string) (*cover.Image, error)
}

// Archiver copies a finished audiobook to object storage.
type Archiver interface {
	Archive(ctx context.Context, rel, localPath string) (string, error)
}

// Recorder persists book attempts.
type Recorder interface {
	Record(ctx context.Context, a *ledger.Attempt) error
}

// Summary counts the book outcomes of a run.
type Summary struct {
	RunID     string
	Converted int
	Skipped   int
	Failed    int
	Outputs   []string
}

// Total returns the number of books attempted.
func (s *Summary) Total() int {
	return s.Converted + s.Skipped + s.Failed
}

// Driver executes the remote bootstrap and the per-book loop.
type Driver struct {
	transport remote.Transport
	record    config.Record
	settings  *config.Settings
	timeouts  *config.Timeouts
	opts      Options
	sink      *remote.LogSink

	tagger   audiotag.Tagger
	covers   CoverFinder
	archiver Archiver
	recorder Recorder
	metrics  *metrics.Metrics
	console  *ui.Console
	logger   zerolog.Logger
	runID    string
	now      func() time.Time
}

// Option configures optional collaborators of a Driver.
type Option func(*Driver)

// WithTagger sets the audio tagger. Defaults to the MP4 tagger.
func WithTagger(t audiotag.Tagger) Option {
	return func(d *Driver) { d.tagger = t }
}

// WithCoverFinder enables cover lookup.
func WithCoverFinder(f CoverFinder) Option {
	return func(d *Driver) { d.covers = f }
}

// WithArchiver enables archiving of finished audiobooks.
func WithArchiver(a Archiver) Option {
	return func(d *Driver) { d.archiver = a }
}

// WithRecorder enables the attempt ledger.
func WithRecorder(r Recorder) Option {
	return func(d *Driver) { d.recorder = r }
}

// WithMetrics enables metric collection.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

// WithConsole sets where book headers are printed.
func WithConsole(c *ui.Console) Option {
	return func(d *Driver) { d.console = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(d *Driver) { d.runID = id }
}

// WithClock overrides the time source used for attempt timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// New creates a Driver for the VM described by rec.
func New(t remote.Transport, rec config.Record, settings *config.Settings, timeouts *config.Timeouts, sink *remote.LogSink, opts Options, options ...Option) *Driver {
	if opts.GitRepo == "" {
		opts.GitRepo = DefaultGitRepo
	}
	if opts.GitBranch == "" {
		opts.GitBranch = DefaultGitBranch
	}
	if opts.NumThreads <= 0 {
		opts.NumThreads = DefaultNumThreads
	}
	if opts.SetupScript == "" {
		opts.SetupScript = DefaultSetupScript
	}
	if opts.WorkDir == "" {
		opts.WorkDir = "."
	}
	if opts.Device == "" {
		opts.Device = DeviceFor(rec.ProviderName())
	}

	d := &Driver{
		transport: t,
		record:    rec,
		settings:  settings,
		timeouts:  timeouts,
		opts:      opts,
		sink:      sink,
		tagger:    audiotag.MP4{},
		console:   ui.NewPlain(io.Discard),
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, o := range options {
		o(d)
	}
	if d.runID == "" {
		d.runID = uuid.NewString()
	}
	d.logger = d.logger.With().Str("run_id", d.runID).Logger()
	return d
}

// RunID returns the identifier stored with every attempt of this run.
func (d *Driver) RunID() string {
	return d.runID
}

func (d *Driver) repoName() string {
	return naming.RepoName(d.opts.GitRepo)
}

func (d *Driver) image() string {
	return naming.DockerImage(d.repoName(), d.opts.GitBranch)
}

// Setup uploads the bootstrap script to the remote home and executes it.
func (d *Driver) Setup(ctx context.Context) error {
	home := d.record.RemoteHome()
	script := naming.RemoteScript(home, d.opts.SetupScript)
	out := d.sink.Streams()
	defer d.sink.Flush()

	d.logger.Info().Str("script", d.opts.SetupScript).Msg("Step 1/3: Uploading setup script")
	if err := d.transport.Upload(ctx, d.opts.SetupScript, home, out); err != nil {
		return d.setupError(ctx, "upload setup script", err)
	}

	d.logger.Info().Msg("Step 2/3: Making remote script executable")
	if err := d.transport.Run(ctx, "chmod +x "+script, out); err != nil {
		return d.setupError(ctx, "make setup script executable", err)
	}

	d.logger.Info().
		Str("repo", d.opts.GitRepo).
		Str("branch", d.opts.GitBranch).
		Bool("force_rebuild", d.opts.ForceRebuild).
		Msg("Step 3/3: Executing remote setup script")
	if err := d.transport.Run(ctx, SetupCommand(script, d.opts.GitRepo, d.opts.GitBranch, d.repoName(), d.opts.ForceRebuild), out); err != nil {
		return d.setupError(ctx, "execute setup script", err)
	}

	d.logger.Info().Msg("Remote VM setup appears successful")
	return nil
}

func (d *Driver) setupError(ctx context.Context, step string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w during setup: %w", ErrInterrupted, ctx.Err())
	}
	return fmt.Errorf("%w: failed to %s: %w", ErrSetupFailed, step, err)
}

// SetupCommand builds the bootstrap invocation.
func SetupCommand(script, repo, branch, repoName string, forceRebuild bool) string {
	return fmt.Sprintf(`bash %s "%s" "%s" "%s" "%t"`, script, repo, branch, repoName, forceRebuild)
}

// Run converts books in order. Per-book failures are counted in the
// summary; the returned error is only set when the run was interrupted.
func (d *Driver) Run(ctx context.Context, books []library.Book) (*Summary, error) {
	summary := &Summary{RunID: d.runID}
	total := len(books)
	d.logger.Info().Int("books", total).Msg("Starting conversion run")

	for i, book := range books {
		if ctx.Err() != nil {
			return summary, fmt.Errorf("%w before book %d/%d: %w", ErrInterrupted, i+1, total, ctx.Err())
		}

		d.console.BookHeader(i+1, total, book.Name)
		d.sink.SetBook(i+1, total, book.Name)

		started := d.now()
		res := d.processBook(ctx, book)
		finished := d.now()
		d.sink.ClearBook()

		d.account(summary, book, res)
		d.recordAttempt(ctx, book, res, started, finished)

		if ctx.Err() != nil {
			return summary, fmt.Errorf("%w during %q: %w", ErrInterrupted, book.Name, ctx.Err())
		}
	}

	d.logger.Info().
		Int("converted", summary.Converted).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("All books processed")
	return summary, nil
}

func (d *Driver) account(s *Summary, book library.Book, res bookResult) {
	log := d.logger.With().Str("book", book.Name).Logger()
	switch res.status {
	case ledger.StatusConverted:
		s.Converted++
		s.Outputs = append(s.Outputs, res.output)
		log.Info().Str("path", res.output).Msg("Successfully created audiobook")
	case ledger.StatusSkipped:
		s.Skipped++
		log.Warn().Err(res.err).Msg("Skipping to next book")
	default:
		s.Failed++
		log.Error().Err(res.err).Msg("Book failed")
	}
}

func (d *Driver) recordAttempt(ctx context.Context, book library.Book, res bookResult, started, finished time.Time) {
	if d.metrics != nil {
		d.metrics.ObserveBook(string(res.status), finished.Sub(started))
	}
	if d.recorder == nil {
		return
	}

	attempt := &ledger.Attempt{
		RunID:        d.runID,
		RelativePath: book.RelativePath,
		Name:         book.Name,
		LangCode:     book.LangCode,
		Status:       res.status,
		OutputPath:   res.output,
		StartedAt:    started,
		FinishedAt:   finished,
	}
	if res.err != nil {
		attempt.Error = res.err.Error()
	}
	if err := d.recorder.Record(context.WithoutCancel(ctx), attempt); err != nil {
		d.logger.Warn().Err(err).Str("book", book.Name).Msg("Failed to record attempt in ledger")
	}
}
