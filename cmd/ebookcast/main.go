// Package main is the entry point for the ebookcast CLI.
//
// ebookcast provisions a GPU VM in the cloud and converts a local ebook
// library into audiobooks with a TTS container running on that VM.
//
// Commands: provision, convert, scan, history, version, completion.
//
// For detailed usage information, run:
//
//	ebookcast --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/imamik/ebookcast/cmd/ebookcast/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
