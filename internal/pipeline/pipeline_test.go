package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/ebookcast/internal/config"
	"github.com/imamik/ebookcast/internal/cover"
	"github.com/imamik/ebookcast/internal/ledger"
	"github.com/imamik/ebookcast/internal/library"
	"github.com/imamik/ebookcast/internal/metrics"
	"github.com/imamik/ebookcast/internal/remote"
)

// fakeTransport records every call and simulates the VM's output directory.
type fakeTransport struct {
	mu    sync.Mutex
	calls []string

	// fail maps a call prefix to the error returned for matching calls.
	fail map[string]error
	// outputs are created below <localDir>/output on Download.
	outputs []string
	// onCall runs before a call is answered.
	onCall func(call string)
}

func (f *fakeTransport) answer(call string) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	hook := f.onCall
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	for prefix, err := range f.fail {
		if strings.HasPrefix(call, prefix) {
			return err
		}
	}
	return nil
}

func (f *fakeTransport) Run(_ context.Context, cmd string, out remote.Streams) error {
	_, _ = out.Stdout.Write([]byte("ran\n"))
	return f.answer("run:" + cmd)
}

func (f *fakeTransport) Upload(_ context.Context, localPath, remoteDir string, _ remote.Streams) error {
	return f.answer("upload:" + filepath.Base(localPath) + "->" + remoteDir)
}

func (f *fakeTransport) Download(_ context.Context, remotePath, localDir string, _ remote.Streams) error {
	if err := f.answer("download:" + remotePath); err != nil {
		return err
	}
	dir := filepath.Join(localDir, filepath.Base(remotePath))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, name := range f.outputs {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransport) runCalls() []string {
	var runs []string
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, "run:") {
			runs = append(runs, strings.TrimPrefix(c, "run:"))
		}
	}
	return runs
}

type fakeTagger struct {
	titles map[string]string
	covers map[string]*cover.Image
	err    error
}

func newFakeTagger() *fakeTagger {
	return &fakeTagger{titles: map[string]string{}, covers: map[string]*cover.Image{}}
}

func (t *fakeTagger) SetTitle(path, title string) error {
	t.titles[filepath.Base(path)] = title
	return t.err
}

func (t *fakeTagger) SetCover(path string, img *cover.Image) error {
	t.covers[filepath.Base(path)] = img
	return t.err
}

type fakeCovers struct {
	img     *cover.Image
	err     error
	queries []string
}

func (c *fakeCovers) Find(_ context.Context, name string) (*cover.Image, error) {
	c.queries = append(c.queries, name)
	return c.img, c.err
}

type fakeArchiver struct {
	rels []string
	err  error
}

func (a *fakeArchiver) Archive(_ context.Context, rel, localPath string) (string, error) {
	a.rels = append(a.rels, rel)
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	return "s3://bucket/" + rel, a.err
}

type fakeRecorder struct {
	attempts []ledger.Attempt
	err      error
}

func (r *fakeRecorder) Record(_ context.Context, a *ledger.Attempt) error {
	r.attempts = append(r.attempts, *a)
	return r.err
}

type nopCloser struct{ bytes.Buffer }

func (*nopCloser) Close() error { return nil }

type testEnv struct {
	transport  *fakeTransport
	ebooks     string
	audiobooks string
	workDir    string
	stdout     *bytes.Buffer
	sink       *remote.LogSink
	settings   *config.Settings
	timeouts   *config.Timeouts
	record     config.Record
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	env := &testEnv{
		transport:  &fakeTransport{outputs: []string{"converted.m4b"}},
		ebooks:     filepath.Join(root, "ebooks"),
		audiobooks: filepath.Join(root, "audiobooks"),
		workDir:    filepath.Join(root, "work"),
		stdout:     &bytes.Buffer{},
		settings:   config.DefaultSettings(),
		timeouts: &config.Timeouts{
			RemoteShort: 60 * time.Second,
			Conversion:  3600 * time.Second,
		},
		record: config.Record{
			ProjectID:    "proj",
			Zone:         "us-central1-a",
			InstanceName: "ebook-converter-vm",
			RemoteUser:   "jane_doe",
		},
	}
	env.settings.VITSLanguages = []string{"eng"}
	env.sink = remote.NewLogSink(env.stdout, env.stdout, &nopCloser{}, &nopCloser{})
	require.NoError(t, os.MkdirAll(env.audiobooks, 0o755))
	return env
}

func (e *testEnv) book(t *testing.T, rel, file, lang string) library.Book {
	t.Helper()
	dir := filepath.Join(e.ebooks, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(path, []byte("ebook"), 0o644))
	return library.Book{Path: path, Name: filepath.Base(dir), LangCode: lang, RelativePath: rel}
}

func (e *testEnv) driver(opts ...Option) *Driver {
	return New(e.transport, e.record, e.settings, e.timeouts, e.sink, Options{
		AudiobooksRoot: e.audiobooks,
		WorkDir:        e.workDir,
	}, append([]Option{WithRunID("run-1")}, opts...)...)
}

func TestSetup(t *testing.T) {
	env := newTestEnv(t)
	d := env.driver()

	require.NoError(t, d.Setup(context.Background()))

	assert.Equal(t, []string{
		"upload:setup_remote.sh->/home/jane_doe",
		"run:chmod +x /home/jane_doe/setup_remote.sh",
		`run:bash /home/jane_doe/setup_remote.sh "https://github.com/ryantimjohn/ebook2audiobook.git" "main" "ryantimjohn-ebook2audiobook" "false"`,
	}, env.transport.Calls())
}

func TestSetup_ForceRebuildAndRootHome(t *testing.T) {
	env := newTestEnv(t)
	env.record.RemoteUser = "root"
	d := New(env.transport, env.record, env.settings, env.timeouts, env.sink, Options{
		GitRepo:      "https://github.com/owner/fork.git",
		GitBranch:    "dev",
		ForceRebuild: true,
	})

	require.NoError(t, d.Setup(context.Background()))

	runs := env.transport.runCalls()
	require.Len(t, runs, 2)
	assert.Equal(t, `bash /root/setup_remote.sh "https://github.com/owner/fork.git" "dev" "owner-fork" "true"`, runs[1])
}

func TestSetup_Failures(t *testing.T) {
	tests := []struct {
		name      string
		failOn    string
		wantCalls int
	}{
		{name: "upload", failOn: "upload:", wantCalls: 1},
		{name: "chmod", failOn: "run:chmod", wantCalls: 2},
		{name: "script", failOn: "run:bash", wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.transport.fail = map[string]error{tt.failOn: errors.New("exit status 1")}

			err := env.driver().Setup(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSetupFailed)
			assert.Len(t, env.transport.Calls(), tt.wantCalls)
		})
	}
}

func TestSetup_Interrupted(t *testing.T) {
	env := newTestEnv(t)
	env.transport.fail = map[string]error{"upload:": context.Canceled}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := env.driver().Setup(ctx)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.NotErrorIs(t, err, ErrSetupFailed)
}

func TestRun_ConvertsBook(t *testing.T) {
	env := newTestEnv(t)
	book := env.book(t, "english/fiction/Foo Bar", "foo.epub", "eng")

	tagger := newFakeTagger()
	covers := &fakeCovers{img: &cover.Image{URL: "https://img/1.jpg", Data: []byte{0xff}, Format: cover.FormatJPEG}}
	archiver := &fakeArchiver{}
	recorder := &fakeRecorder{}
	m := metrics.New()

	d := env.driver(WithTagger(tagger), WithCoverFinder(covers), WithArchiver(archiver), WithRecorder(recorder), WithMetrics(m))
	summary, err := d.Run(context.Background(), []library.Book{book})
	require.NoError(t, err)

	final := filepath.Join(env.audiobooks, "english", "fiction", "Foo Bar TTS", "Foo Bar TTS.m4b")
	assert.FileExists(t, final)
	assert.Equal(t, 1, summary.Converted)
	assert.Equal(t, []string{final}, summary.Outputs)
	assert.Equal(t, "run-1", summary.RunID)

	assert.Equal(t, "Foo Bar TTS", tagger.titles["Foo Bar TTS.m4b"])
	assert.Equal(t, covers.img, tagger.covers["Foo Bar TTS.m4b"])
	assert.Equal(t, []string{"Foo Bar"}, covers.queries)
	assert.Equal(t, []string{"english/fiction/Foo Bar TTS/Foo Bar TTS.m4b"}, archiver.rels)

	require.Len(t, recorder.attempts, 1)
	a := recorder.attempts[0]
	assert.Equal(t, ledger.StatusConverted, a.Status)
	assert.Equal(t, "run-1", a.RunID)
	assert.Equal(t, "english/fiction/Foo Bar", a.RelativePath)
	assert.Equal(t, final, a.OutputPath)
	assert.Empty(t, a.Error)

	count, err := testutil.GatherAndCount(m.Registry(), "ebookcast_books_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Equal(t, []string{
		"run:timeout 60s mkdir -p /home/jane_doe/input /home/jane_doe/output",
		"upload:foo.epub->/home/jane_doe/input",
		"run:timeout 3600s " + ConverterCommand("/home/jane_doe",
			"ebook-converter-custom:ryantimjohn-ebook2audiobook-main", "foo.epub", "eng", EngineVITS, DeviceGPU, DefaultNumThreads),
		"download:/home/jane_doe/output",
		"run:timeout 60s rm -rf /home/jane_doe/input /home/jane_doe/output",
	}, env.transport.Calls())

	assert.NoDirExists(t, filepath.Join(env.workDir, "tmp_output", "output"))
	assert.Contains(t, env.stdout.String(), "[1/1] Foo Bar ran")
	assert.Contains(t, env.stdout.String(), "[REMOTE] ran", "cleanup output is not attributed to the book")
}

func TestRun_TopLevelBookLandsAtRoot(t *testing.T) {
	env := newTestEnv(t)
	book := env.book(t, "Solo", "solo.mobi", "en")

	summary, err := env.driver(WithTagger(newFakeTagger())).Run(context.Background(), []library.Book{book})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Converted)
	assert.FileExists(t, filepath.Join(env.audiobooks, "Solo TTS", "Solo TTS.m4b"))
}

func TestRun_RecordsAttemptTimes(t *testing.T) {
	env := newTestEnv(t)
	book := env.book(t, "Timed", "timed.epub", "en")

	base := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	ticks := 0
	clock := func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * 90 * time.Second)
	}
	recorder := &fakeRecorder{}

	_, err := env.driver(WithTagger(newFakeTagger()), WithRecorder(recorder), WithClock(clock)).
		Run(context.Background(), []library.Book{book})
	require.NoError(t, err)

	require.Len(t, recorder.attempts, 1)
	a := recorder.attempts[0]
	assert.Equal(t, base.Add(90*time.Second), a.StartedAt)
	assert.Equal(t, base.Add(180*time.Second), a.FinishedAt)
	assert.Equal(t, 90*time.Second, a.Duration())
}

func TestRun_StepFailureSkipsBook(t *testing.T) {
	tests := []struct {
		name    string
		failOn  string
		wantErr string
	}{
		{name: "mkdir", failOn: "run:timeout 60s mkdir", wantErr: "failed to create remote directories"},
		{name: "upload", failOn: "upload:first.epub", wantErr: "failed to upload ebook"},
		{name: "docker", failOn: "run:timeout 3600s docker run", wantErr: "remote conversion failed"},
		{name: "download", failOn: "download:", wantErr: "download failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			first := env.book(t, "A/First", "first.epub", "en")
			recorder := &fakeRecorder{}
			env.transport.fail = map[string]error{tt.failOn: errors.New("exit status 1")}

			summary, err := env.driver(WithRecorder(recorder), WithTagger(newFakeTagger())).
				Run(context.Background(), []library.Book{first})
			require.NoError(t, err)

			assert.Equal(t, 1, summary.Skipped)
			assert.Equal(t, 0, summary.Converted)
			require.Len(t, recorder.attempts, 1)
			assert.Equal(t, ledger.StatusSkipped, recorder.attempts[0].Status)
			assert.Contains(t, recorder.attempts[0].Error, tt.wantErr)

			runs := env.transport.runCalls()
			assert.True(t, strings.HasPrefix(runs[len(runs)-1], "timeout 60s rm -rf"), "cleanup always runs last")
		})
	}
}

func TestRun_ContinuesAfterFailure(t *testing.T) {
	env := newTestEnv(t)
	first := env.book(t, "A/First", "first.epub", "en")
	second := env.book(t, "A/Second", "second.epub", "en")
	env.transport.fail = map[string]error{"upload:first.epub": errors.New("scp failed")}

	summary, err := env.driver(WithTagger(newFakeTagger())).Run(context.Background(), []library.Book{first, second})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Converted)
	assert.Equal(t, 2, summary.Total())
	assert.FileExists(t, filepath.Join(env.audiobooks, "A", "Second TTS", "Second TTS.m4b"))
	assert.NoDirExists(t, filepath.Join(env.audiobooks, "A", "First TTS"))
}

func TestRun_NoAudiobookFails(t *testing.T) {
	env := newTestEnv(t)
	env.transport.outputs = []string{"log.txt"}
	book := env.book(t, "A/Book", "b.epub", "en")
	recorder := &fakeRecorder{}

	summary, err := env.driver(WithRecorder(recorder)).Run(context.Background(), []library.Book{book})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	require.Len(t, recorder.attempts, 1)
	assert.Equal(t, ledger.StatusFailed, recorder.attempts[0].Status)
	assert.Equal(t, ErrNoAudiobook.Error(), recorder.attempts[0].Error)
}

func TestRun_FirstM4BWins(t *testing.T) {
	env := newTestEnv(t)
	env.transport.outputs = []string{"b.m4b", "a.M4B"}
	book := env.book(t, "A/Book", "b.epub", "en")

	summary, err := env.driver(WithTagger(newFakeTagger())).Run(context.Background(), []library.Book{book})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Converted)

	data, err := os.ReadFile(summary.Outputs[0])
	require.NoError(t, err)
	assert.Equal(t, "a.M4B", string(data), "directory order is lexical")
}

func TestRun_BestEffortEnrichment(t *testing.T) {
	env := newTestEnv(t)
	book := env.book(t, "A/Book", "b.epub", "en")
	tagger := newFakeTagger()
	tagger.err = errors.New("bad atom")
	covers := &fakeCovers{err: cover.ErrNotFound}
	archiver := &fakeArchiver{err: errors.New("access denied")}
	recorder := &fakeRecorder{err: errors.New("database is locked")}

	summary, err := env.driver(WithTagger(tagger), WithCoverFinder(covers), WithArchiver(archiver), WithRecorder(recorder)).
		Run(context.Background(), []library.Book{book})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Converted)
	assert.Empty(t, tagger.covers)
}

func TestRun_SkipTags(t *testing.T) {
	env := newTestEnv(t)
	book := env.book(t, "A/Book", "b.epub", "en")
	tagger := newFakeTagger()
	covers := &fakeCovers{}

	d := New(env.transport, env.record, env.settings, env.timeouts, env.sink, Options{
		AudiobooksRoot: env.audiobooks,
		WorkDir:        env.workDir,
		SkipTags:       true,
	}, WithTagger(tagger), WithCoverFinder(covers))

	summary, err := d.Run(context.Background(), []library.Book{book})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Converted)
	assert.Empty(t, tagger.titles)
	assert.Empty(t, covers.queries)
}

func TestRun_InterruptStopsLoop(t *testing.T) {
	env := newTestEnv(t)
	first := env.book(t, "A/First", "first.epub", "en")
	second := env.book(t, "A/Second", "second.epub", "en")
	recorder := &fakeRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.transport.onCall = func(call string) {
		if strings.Contains(call, "docker run") {
			cancel()
		}
	}
	env.transport.fail = map[string]error{"run:timeout 3600s docker": context.Canceled}

	summary, err := env.driver(WithRecorder(recorder)).Run(ctx, []library.Book{first, second})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Equal(t, 1, summary.Total())
	require.Len(t, recorder.attempts, 1, "the interrupted book is still recorded")

	for _, c := range env.transport.Calls() {
		assert.NotContains(t, c, "second.epub")
	}
	runs := env.transport.runCalls()
	assert.True(t, strings.HasPrefix(runs[len(runs)-1], "timeout 60s rm -rf"), "cleanup runs after interrupt")
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	env := newTestEnv(t)
	book := env.book(t, "A/Book", "b.epub", "en")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := env.driver().Run(ctx, []library.Book{book})
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Zero(t, summary.Total())
	assert.Empty(t, env.transport.Calls())
}

func TestRun_RecreatesScratchDirs(t *testing.T) {
	env := newTestEnv(t)
	stale := filepath.Join(env.workDir, "tmp_input", "stale.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))
	book := env.book(t, "A/Book", "b.epub", "en")

	_, err := env.driver(WithTagger(newFakeTagger())).Run(context.Background(), []library.Book{book})
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
	assert.DirExists(t, filepath.Join(env.workDir, "tmp_output"))
}

func TestConverterCommand(t *testing.T) {
	tests := []struct {
		name   string
		device string
		want   string
	}{
		{
			name:   "gpu",
			device: DeviceGPU,
			want: "docker run --rm --gpus all -v /home/u/input:/app/input -v /home/u/output:/app/output " +
				"-v /home/u/models:/app/models img:tag --headless --device gpu " +
				`--ebook "/app/input/The \"Best\" Book.epub" --output_dir /app/output --language deu ` +
				"--output_format m4b --tts_engine fairseq --num_workers 4",
		},
		{
			name:   "cpu",
			device: DeviceCPU,
			want: "docker run --rm -v /home/u/input:/app/input -v /home/u/output:/app/output " +
				"-v /home/u/models:/app/models img:tag --headless --device cpu " +
				`--ebook "/app/input/The \"Best\" Book.epub" --output_dir /app/output --language deu ` +
				"--output_format m4b --tts_engine fairseq --num_workers 4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := ConverterCommand("/home/u", "img:tag", `The "Best" Book.epub`, "deu", EngineFairseq, tt.device, 4)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestDeviceFor(t *testing.T) {
	assert.Equal(t, DeviceGPU, DeviceFor(""))
	assert.Equal(t, DeviceGPU, DeviceFor(config.ProviderGCE))
	assert.Equal(t, DeviceCPU, DeviceFor(config.ProviderHCloud))
}

func TestRun_HCloudRecordConvertsOnCPU(t *testing.T) {
	env := newTestEnv(t)
	env.record.Provider = config.ProviderHCloud
	env.record.Host = "203.0.113.7"
	env.record.RemoteUser = "root"
	book := env.book(t, "Solo", "solo.epub", "eng")

	summary, err := env.driver(WithTagger(newFakeTagger())).Run(context.Background(), []library.Book{book})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Converted)

	var docker string
	for _, c := range env.transport.runCalls() {
		if strings.Contains(c, "docker run") {
			docker = c
		}
	}
	require.NotEmpty(t, docker)
	assert.NotContains(t, docker, "--gpus")
	assert.Contains(t, docker, "--device cpu")
	assert.Contains(t, docker, "-v /root/input:/app/input")
}

func TestRun_DeviceOverride(t *testing.T) {
	env := newTestEnv(t)
	book := env.book(t, "Solo", "solo.epub", "eng")
	d := New(env.transport, env.record, env.settings, env.timeouts, env.sink, Options{
		AudiobooksRoot: env.audiobooks,
		WorkDir:        env.workDir,
		Device:         DeviceCPU,
	}, WithTagger(newFakeTagger()))

	_, err := d.Run(context.Background(), []library.Book{book})
	require.NoError(t, err)

	joined := strings.Join(env.transport.runCalls(), "\n")
	assert.Contains(t, joined, "--device cpu")
	assert.NotContains(t, joined, "--gpus all")
}

func TestEngine(t *testing.T) {
	env := newTestEnv(t)
	d := env.driver()

	assert.Equal(t, EngineVITS, d.Engine("eng"))
	assert.Equal(t, EngineFairseq, d.Engine("deu"))
	assert.Equal(t, EngineFairseq, d.Engine("ENG"), "allow-list match is exact")
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.m4b")
	dst := filepath.Join(dir, "sub", "b.m4b")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))

	require.NoError(t, moveFile(src, dst))
	assert.NoFileExists(t, src)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}
