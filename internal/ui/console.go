// Package ui renders the human-facing parts of ebookcast output: banners,
// book headers and short status lines. Colour is only used on a terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

const (
	bannerWidth = 75
	headerWidth = 80
)

// Console writes styled lines to an output stream.
type Console struct {
	out   io.Writer
	color bool
}

// New returns a Console for out. Styling is enabled when out is a terminal.
func New(out io.Writer) *Console {
	return &Console{out: out, color: IsTerminal(out)}
}

// NewPlain returns a Console that never styles its output.
func NewPlain(out io.Writer) *Console {
	return &Console{out: out}
}

// IsTerminal reports whether w is a terminal file.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (c *Console) render(s lipgloss.Style, text string) string {
	if !c.color {
		return text
	}
	return s.Render(text)
}

func (c *Console) println(text string) {
	_, _ = fmt.Fprintln(c.out, text)
}

// Success prints a line marked as done.
func (c *Console) Success(format string, args ...any) {
	c.println(c.render(successStyle, checkMark) + " " + fmt.Sprintf(format, args...))
}

// Failure prints a line marked as failed.
func (c *Console) Failure(format string, args ...any) {
	c.println(c.render(failedStyle, crossMark) + " " + fmt.Sprintf(format, args...))
}

// Warn prints a line marked as a warning.
func (c *Console) Warn(format string, args ...any) {
	c.println(c.render(warningStyle, warnMark) + " " + fmt.Sprintf(format, args...))
}

// Info prints a dimmed detail line.
func (c *Console) Info(format string, args ...any) {
	c.println(c.render(dimStyle, fmt.Sprintf(format, args...)))
}

// BookHeader separates the output of consecutive books.
func (c *Console) BookHeader(current, total int, name string) {
	rule := strings.Repeat("=", headerWidth)
	c.println("")
	c.println(c.render(dimStyle, rule))
	c.println(c.render(headerStyle, fmt.Sprintf("Processing book %d/%d: %s", current, total, name)))
	c.println(c.render(dimStyle, rule))
}

// QuotaBanner explains how to request a GPU quota increase.
func (c *Console) QuotaBanner(gpu, region, link string, steps []string) {
	title := " ACTION REQUIRED "
	side := (bannerWidth - len(title)) / 2
	c.println("")
	c.println(c.render(bannerStyle, strings.Repeat("-", side)+title+strings.Repeat("-", side)))
	c.println(fmt.Sprintf("You must request a quota increase for '%s' GPUs in the '%s' region.", gpu, region))
	for i, step := range steps {
		c.println(fmt.Sprintf("%d. %s", i+1, step))
	}
	c.println("")
	c.println("Direct Link: " + c.render(linkStyle, link))
	c.println("")
	c.println(c.render(bannerStyle, strings.Repeat("-", bannerWidth)))
}

// Block prints an indented multi-line block such as a JSON document.
func (c *Console) Block(text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		c.println("  " + line)
	}
}
