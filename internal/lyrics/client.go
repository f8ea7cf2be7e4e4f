// Package lyrics looks up song lyrics for identified tracks so the answer
// synthesizer can quote or explain them. Lookups are best-effort: a miss or a
// provider outage degrades to an answer without lyrics, never to a failure.
package lyrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const lookupTimeout = 8 * time.Second

// Lyrics is one lookup result. SourceURL points at the provider page the
// text came from so answers can cite it.
type Lyrics struct {
	Text      string
	SourceURL string
}

// Client fetches lyrics over HTTP and caches hits in Redis when a cache is
// attached. Cache failures are absorbed: Redis being down only costs the
// cache, not the lookup.
type Client struct {
	apiURL string
	client *http.Client
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New builds a lyrics client. cache may be nil, which disables caching.
func New(apiURL string, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Client {
	return &Client{
		apiURL: strings.TrimSuffix(apiURL, "/"),
		client: &http.Client{Timeout: lookupTimeout},
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// Configured reports whether a lyrics provider URL is set.
func (c *Client) Configured() bool {
	return c.apiURL != ""
}

// SetTestTransport allows tests to intercept HTTP calls.
func (c *Client) SetTestTransport(transport http.RoundTripper) {
	c.client.Transport = transport
}

// Lookup returns the lyrics for a track, or a zero Lyrics when the provider
// has none.
func (c *Client) Lookup(ctx context.Context, title, artist string) (Lyrics, error) {
	if !c.Configured() {
		return Lyrics{}, nil
	}

	source := c.endpoint(title, artist)
	key := cacheKey(title, artist)
	if c.cache != nil {
		cached, err := c.cache.Get(ctx, key).Result()
		if err == nil {
			return Lyrics{Text: cached, SourceURL: source}, nil
		}
		if err != redis.Nil {
			c.logger.Warn("lyrics cache read failed", "error", err)
		}
	}

	text, err := c.fetch(ctx, source)
	if err != nil {
		return Lyrics{}, err
	}
	if text == "" {
		return Lyrics{}, nil
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, text, c.ttl).Err(); err != nil {
			c.logger.Warn("lyrics cache write failed", "error", err)
		}
	}
	return Lyrics{Text: text, SourceURL: source}, nil
}

func (c *Client) endpoint(title, artist string) string {
	return fmt.Sprintf("%s/%s/%s", c.apiURL, url.PathEscape(artist), url.PathEscape(title))
}

func (c *Client) fetch(ctx context.Context, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("creating lyrics request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling lyrics provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("lyrics provider returned %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Lyrics string `json:"lyrics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decoding lyrics response: %w", err)
	}
	return strings.TrimSpace(payload.Lyrics), nil
}

func cacheKey(title, artist string) string {
	return "lyrics:" + strings.ToLower(strings.TrimSpace(title)) + "|" + strings.ToLower(strings.TrimSpace(artist))
}
