// Package steamapi contains clients for the Steam Web API and community
// profile pages: player summaries, owned games, batched app metadata, and
// the key-rotating resilient request they share.
package steamapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
)

const (
	// DefaultAPIBase is the official Steam Web API host.
	DefaultAPIBase = "https://api.steampowered.com"
	// DefaultCommunityBase serves public profile pages and XML feeds.
	DefaultCommunityBase = "https://steamcommunity.com"
)

// Client provides the methods the watch engine needs. Base URLs are
// overridable for tests.
type Client struct {
	Rotator       *KeyRotator
	HTTPClient    *http.Client
	APIBase       string
	CommunityBase string
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) apiBase() string {
	if c.APIBase != "" {
		return c.APIBase
	}
	return DefaultAPIBase
}

func (c *Client) communityBase() string {
	if c.CommunityBase != "" {
		return c.CommunityBase
	}
	return DefaultCommunityBase
}

// get issues a plain GET and returns the body for 2xx responses.
func (c *Client) get(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
