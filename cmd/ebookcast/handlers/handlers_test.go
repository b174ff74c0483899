package handlers

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/imamik/ebookcast/internal/config"
	"github.com/imamik/ebookcast/internal/logging"
	"github.com/imamik/ebookcast/internal/remote"
	"github.com/imamik/ebookcast/internal/util/prerequisites"
)

// useTestGlobals swaps every package-level collaborator and restores them
// when the test ends. Tests using it must not run in parallel.
func useTestGlobals(t *testing.T) *bytes.Buffer {
	t.Helper()

	origStdout, origStderr, origLogger := stdout, stderr, logger
	origLoadSettings, origLoadTimeouts, origCheckTools := loadSettings, loadTimeouts, checkTools
	origGCloud, origGCE, origHCloud, origWrite := newGCloudCLI, newGCEProvider, newHCloudProvider, writeRecord
	origLoadRecord, origTransport, origCreds := loadRecord, newTransport, loadSearchCredentials
	origCover, origArchive, origLedger := newCoverFinder, newArchiveUploader, openLedger
	origKey := loadOrCreateKey
	t.Cleanup(func() {
		stdout, stderr, logger = origStdout, origStderr, origLogger
		loadSettings, loadTimeouts, checkTools = origLoadSettings, origLoadTimeouts, origCheckTools
		newGCloudCLI, newGCEProvider, newHCloudProvider, writeRecord = origGCloud, origGCE, origHCloud, origWrite
		loadRecord, newTransport, loadSearchCredentials = origLoadRecord, origTransport, origCreds
		newCoverFinder, newArchiveUploader, openLedger = origCover, origArchive, origLedger
		loadOrCreateKey = origKey
	})

	var out bytes.Buffer
	stdout = &out
	stderr = &out
	logger = logging.Nop()

	loadSettings = func(string) (*config.Settings, bool, error) {
		return config.DefaultSettings(), true, nil
	}
	loadTimeouts = func() *config.Timeouts {
		return &config.Timeouts{
			RemoteShort:    60 * time.Second,
			Conversion:     time.Hour,
			InstanceCreate: time.Minute,
			CoverFetch:     time.Second,
		}
	}
	checkTools = func(tools []prerequisites.Tool) *prerequisites.CheckResults {
		results := &prerequisites.CheckResults{}
		for _, tool := range tools {
			results.Results = append(results.Results, prerequisites.CheckResult{Tool: tool, Found: true, Version: "1.0"})
		}
		return results
	}
	loadSearchCredentials = func(string) (config.SearchCredentials, bool) {
		return config.SearchCredentials{}, false
	}
	return &out
}

// fakeTransport answers every call with success unless its prefix is in fail.
type fakeTransport struct {
	calls   []string
	fail    map[string]error
	outputs []string
	onCall  func(call string)
}

func (f *fakeTransport) answer(call string) error {
	f.calls = append(f.calls, call)
	if f.onCall != nil {
		f.onCall(call)
	}
	for prefix, err := range f.fail {
		if strings.HasPrefix(call, prefix) {
			return err
		}
	}
	return nil
}

func (f *fakeTransport) Run(_ context.Context, cmd string, _ remote.Streams) error {
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
		if err := os.WriteFile(filepath.Join(dir, name), []byte("audio"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
