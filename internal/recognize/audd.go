package recognize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AudD is the fingerprint provider tuned for whole-track matching.
type AudD struct {
	apiURL string
	token  string
	client *http.Client
}

func NewAudD(apiURL, token string) *AudD {
	return &AudD{
		apiURL: apiURL,
		token:  token,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *AudD) Name() string { return "audd" }

func (a *AudD) Configured() bool { return a.token != "" }

type auddResponse struct {
	Status string `json:"status"`
	Result *struct {
		Title   string  `json:"title"`
		Artist  string  `json:"artist"`
		Album   string  `json:"album"`
		Score   float64 `json:"score"`
		SongURL string  `json:"song_link"`
	} `json:"result"`
	Error *struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"error"`
}

func (a *AudD) Recognize(ctx context.Context, audio []byte) (Result, error) {
	if !a.Configured() {
		return failure(a.Name(), "not configured"), nil
	}

	form := url.Values{}
	form.Set("api_token", a.token)
	form.Set("audio", base64.StdEncoding.EncodeToString(audio))
	form.Set("return", "song_link")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("audd call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("audd error %d: %s", resp.StatusCode, string(body))
	}

	var parsed auddResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, fmt.Errorf("unmarshal response: %w", err)
	}

	if parsed.Status != "success" {
		reason := "provider reported failure"
		if parsed.Error != nil {
			reason = parsed.Error.ErrorMessage
		}
		return Result{}, fmt.Errorf("audd status %q: %s", parsed.Status, reason)
	}
	if parsed.Result == nil || strings.TrimSpace(parsed.Result.Title) == "" {
		return failure(a.Name(), "no match"), nil
	}

	var links []string
	if parsed.Result.SongURL != "" {
		links = append(links, parsed.Result.SongURL)
	}

	return Result{
		Success:    true,
		Title:      parsed.Result.Title,
		Artist:     parsed.Result.Artist,
		Album:      parsed.Result.Album,
		Confidence: clamp01(parsed.Result.Score),
		Links:      links,
		Provider:   a.Name(),
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
