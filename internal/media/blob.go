// Package media retrieves voice and image payloads from the blob store that
// fronts uploaded attachments.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	fetchTimeout = 15 * time.Second

	// maxFetchBytes caps attachment downloads. Clips longer than this are
	// rejected upstream, so anything bigger is a misdirected URL.
	maxFetchBytes = 10 << 20
)

// BlobStore talks to the attachment service: it signs storage paths into
// fetchable URLs and downloads the bytes behind them.
type BlobStore struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewBlobStore(baseURL, token string) *BlobStore {
	return &BlobStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: fetchTimeout},
	}
}

// Configured reports whether the blob service is reachable by config.
func (b *BlobStore) Configured() bool {
	return b.baseURL != ""
}

// SetTestTransport allows tests to intercept HTTP calls.
func (b *BlobStore) SetTestTransport(transport http.RoundTripper) {
	b.client.Transport = transport
}

// SignedURL exchanges a storage path for a short-lived download URL.
func (b *BlobStore) SignedURL(ctx context.Context, path string) (string, error) {
	if !b.Configured() {
		return "", fmt.Errorf("blob store not configured")
	}

	endpoint := fmt.Sprintf("%s/sign?path=%s", b.baseURL, url.QueryEscape(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("creating sign request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.token)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling blob service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("blob service returned %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decoding sign response: %w", err)
	}
	if payload.URL == "" {
		return "", fmt.Errorf("blob service returned empty url for %q", path)
	}
	return payload.URL, nil
}

// Fetch downloads the bytes behind a signed URL, refusing oversized payloads.
func (b *BlobStore) Fetch(ctx context.Context, fetchURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating fetch request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.token)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching blob: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blob fetch returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading blob: %w", err)
	}
	if len(data) > maxFetchBytes {
		return nil, fmt.Errorf("blob exceeds %d byte limit", maxFetchBytes)
	}
	return data, nil
}
