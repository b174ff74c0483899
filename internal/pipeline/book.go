package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/imamik/ebookcast/internal/config"
	"github.com/imamik/ebookcast/internal/ledger"
	"github.com/imamik/ebookcast/internal/library"
	"github.com/imamik/ebookcast/internal/remote"
	"github.com/imamik/ebookcast/internal/util/naming"
)

// Container paths of the converter image.
const (
	containerInput  = "/app/input"
	containerOutput = "/app/output"
	containerModels = "/app/models"
)

// cleanupGrace bounds the local wait beyond the remote timeout of the cleanup.
const cleanupGrace = 10 * time.Second

// TTS engines of the converter.
const (
	EngineVITS    = "vits"
	EngineFairseq = "fairseq"
)

// Devices the converter can run on.
const (
	DeviceGPU = "gpu"
	DeviceCPU = "cpu"
)

// DeviceFor returns the converter device for VMs of provider.
func DeviceFor(provider string) string {
	if provider == config.ProviderHCloud {
		return DeviceCPU
	}
	return DeviceGPU
}

type bookResult struct {
	status ledger.Status
	output string
	err    error
}

func skipped(format string, args ...any) bookResult {
	return bookResult{status: ledger.StatusSkipped, err: fmt.Errorf(format, args...)}
}

func failed(err error) bookResult {
	return bookResult{status: ledger.StatusFailed, err: err}
}

// ConverterCommand builds the docker invocation converting fileName.
// GPUs are only passed to the container when device is DeviceGPU.
func ConverterCommand(home, image, fileName, langCode, engine, device string, workers int) string {
	safe := strings.ReplaceAll(fileName, `"`, `\"`)
	gpus := ""
	if device == DeviceGPU {
		gpus = "--gpus all "
	}
	return fmt.Sprintf(
		"docker run --rm %s-v %s:%s -v %s:%s -v %s:%s %s --headless --device %s "+
			`--ebook "%s/%s" --output_dir %s --language %s --output_format m4b --tts_engine %s --num_workers %d`,
		gpus,
		naming.RemoteInput(home), containerInput,
		naming.RemoteOutput(home), containerOutput,
		naming.RemoteModels(home), containerModels,
		image, device,
		containerInput, safe, containerOutput, langCode, engine, workers,
	)
}

// Engine returns the TTS engine used for langCode.
func (d *Driver) Engine(langCode string) string {
	if d.settings != nil && d.settings.SupportsVITS(langCode) {
		return EngineVITS
	}
	return EngineFairseq
}

func (d *Driver) scratchDirs() (string, string) {
	return filepath.Join(d.opts.WorkDir, naming.TempInputDir), filepath.Join(d.opts.WorkDir, naming.TempOutputDir)
}

func (d *Driver) prepareScratch() error {
	in, out := d.scratchDirs()
	for _, dir := range []string{in, out} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove scratch directory %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create scratch directory %s: %w", dir, err)
		}
	}
	return nil
}

func (d *Driver) processBook(ctx context.Context, book library.Book) bookResult {
	log := d.logger.With().Str("book", book.Name).Logger()
	home := d.record.RemoteHome()
	remoteIn, remoteOut := naming.RemoteInput(home), naming.RemoteOutput(home)
	out := d.sink.Streams()

	if err := d.prepareScratch(); err != nil {
		return failed(err)
	}
	defer d.cleanupRemote(ctx, remoteIn, remoteOut)

	mkdir := remote.WithTimeout(fmt.Sprintf("mkdir -p %s %s", remoteIn, remoteOut), d.timeouts.RemoteShort)
	if err := d.transport.Run(ctx, mkdir, out); err != nil {
		return skipped("failed to create remote directories: %w", err)
	}

	log.Info().Str("file", filepath.Base(book.Path)).Msg("Uploading ebook to VM")
	if err := d.transport.Upload(ctx, book.Path, remoteIn, out); err != nil {
		return skipped("failed to upload ebook: %w", err)
	}

	engine := d.Engine(book.LangCode)
	cmd := ConverterCommand(home, d.image(), filepath.Base(book.Path), book.LangCode, engine, d.opts.Device, d.opts.NumThreads)
	log.Info().Str("language", book.LangCode).Str("engine", engine).Msg("Running converter")
	if err := d.transport.Run(ctx, remote.WithTimeout(cmd, d.timeouts.Conversion), out); err != nil {
		return skipped("remote conversion failed: %w", err)
	}

	_, tmpOut := d.scratchDirs()
	log.Info().Msg("Downloading results from VM")
	if err := d.transport.Download(ctx, remoteOut, tmpOut, out); err != nil {
		return skipped("download failed: %w", err)
	}
	d.sink.Flush()

	final, err := d.postProcess(ctx, book)
	if err != nil {
		return failed(err)
	}
	return bookResult{status: ledger.StatusConverted, output: final}
}

// cleanupRemote runs even after cancellation so the next run starts clean.
func (d *Driver) cleanupRemote(ctx context.Context, remoteIn, remoteOut string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeouts.RemoteShort+cleanupGrace)
	defer cancel()

	d.sink.ClearBook()
	d.logger.Debug().Msg("Cleaning up remote directories")
	cmd := remote.WithTimeout(fmt.Sprintf("rm -rf %s %s", remoteIn, remoteOut), d.timeouts.RemoteShort)
	if err := d.transport.Run(cctx, cmd, d.sink.Streams()); err != nil {
		d.logger.Warn().Err(err).Msg("Remote cleanup failed")
	}
	d.sink.Flush()
}

// findAudiobook returns the first .m4b file in dir in directory order.
func findAudiobook(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoAudiobook
		}
		return "", fmt.Errorf("failed to read output directory: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".m4b") {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", ErrNoAudiobook
}
