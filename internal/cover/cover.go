// Package cover looks up a cover image for a book by name.
//
// Queries go from the most to the least specific phrasing and, for each,
// from the largest to the smallest image size. The first result link that
// downloads as a JPEG or PNG wins. A search backend error ends the lookup.
package cover

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// QueryFormats are tried in order; %s is the book name.
var QueryFormats = []string{
	`"%s" book cover`,
	`"%s"`,
	`%s book cover`,
	`%s`,
}

// ImageSizes are tried in order for every query.
var ImageSizes = []string{"XLARGE", "LARGE", "MEDIUM", "SMALL"}

// ResultsPerQuery is the number of links requested per search.
const ResultsPerQuery = 3

// UserAgent is sent with image downloads; many hosts refuse Go's default.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/107.0.0.0 Safari/537.36"

const maxImageBytes = 20 << 20

// ErrNotFound is returned when no query produced a downloadable image.
var ErrNotFound = errors.New("no results found after all search attempts")

// Format is the encoding of a cover image.
type Format int

// Supported cover formats.
const (
	FormatJPEG Format = iota + 1
	FormatPNG
)

func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	default:
		return "unknown"
	}
}

// Image is a downloaded cover.
type Image struct {
	URL    string
	Data   []byte
	Format Format
}

// Searcher returns image links for a query.
type Searcher interface {
	SearchImages(ctx context.Context, query, size string, num int64) ([]string, error)
}

// APIError is a search backend failure with its HTTP status.
type APIError struct {
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	msg := e.Err.Error()
	if e.StatusCode == http.StatusForbidden {
		msg += " (This may be a daily quota limit issue. Check your Google Cloud Console.)"
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Finder searches and downloads covers.
type Finder struct {
	searcher Searcher
	client   *http.Client
	timeout  time.Duration
	logger   zerolog.Logger
}

// Option configures a Finder.
type Option func(*Finder)

// WithHTTPClient sets the client used for image downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Finder) {
		f.client = c
	}
}

// NewFinder creates a Finder. timeout bounds each image download.
func NewFinder(s Searcher, timeout time.Duration, logger zerolog.Logger, opts ...Option) *Finder {
	f := &Finder{
		searcher: s,
		client:   http.DefaultClient,
		timeout:  timeout,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Find returns the first cover that could be downloaded for name.
func (f *Finder) Find(ctx context.Context, name string) (*Image, error) {
	for _, format := range QueryFormats {
		query := fmt.Sprintf(format, name)
		for _, size := range ImageSizes {
			f.logger.Debug().Str("query", query).Str("size", size).Msg("Searching cover")

			links, err := f.searcher.SearchImages(ctx, query, size, ResultsPerQuery)
			if err != nil {
				return nil, fmt.Errorf("API error on query '%s': %w", query, err)
			}

			for i, link := range links {
				img, err := f.download(ctx, link)
				if err != nil {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					f.logger.Debug().Err(err).Int("result", i+1).Str("url", link).Msg("Cover download failed, trying next image")
					continue
				}
				return img, nil
			}
		}
	}
	return nil, ErrNotFound
}

func (f *Finder) download(ctx context.Context, link string) (*Image, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, err
	}

	format, err := DetectFormat(data)
	if err != nil {
		return nil, err
	}
	return &Image{URL: link, Data: data, Format: format}, nil
}

// DetectFormat sniffs the image encoding from its first bytes.
func DetectFormat(data []byte) (Format, error) {
	switch ct := http.DetectContentType(data); ct {
	case "image/jpeg":
		return FormatJPEG, nil
	case "image/png":
		return FormatPNG, nil
	default:
		return 0, fmt.Errorf("unsupported image type %s", ct)
	}
}
