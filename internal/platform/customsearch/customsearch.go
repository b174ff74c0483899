// Package customsearch is the Google Custom Search JSON API backend of the
// cover finder.
package customsearch

import (
	"context"
	"errors"
	"fmt"

	"github.com/imamik/ebookcast/internal/cover"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Client searches images with one programmable search engine.
type Client struct {
	svc      *customsearch.Service
	engineID string
}

var _ cover.Searcher = (*Client)(nil)

// New creates a Client authenticated with an API key. Extra options are
// appended after the key.
func New(ctx context.Context, apiKey, engineID string, opts ...option.ClientOption) (*Client, error) {
	svc, err := customsearch.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create custom search client: %w", err)
	}
	return &Client{svc: svc, engineID: engineID}, nil
}

// SearchImages returns up to num image links for query with the given size.
func (c *Client) SearchImages(ctx context.Context, query, size string, num int64) ([]string, error) {
	res, err := c.svc.Cse.List().
		Cx(c.engineID).
		Q(query).
		SearchType("image").
		ImgSize(size).
		Num(num).
		Safe("off").
		Context(ctx).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return nil, &cover.APIError{StatusCode: apiErr.Code, Err: err}
		}
		return nil, err
	}

	links := make([]string, 0, len(res.Items))
	for _, item := range res.Items {
		if item.Link != "" {
			links = append(links, item.Link)
		}
	}
	return links, nil
}
