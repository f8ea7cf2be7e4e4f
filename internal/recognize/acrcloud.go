package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ACRCloud is the fingerprint provider tuned for partial and hummed clips.
type ACRCloud struct {
	host      string
	accessKey string
	client    *http.Client
}

func NewACRCloud(host, accessKey string) *ACRCloud {
	return &ACRCloud{
		host:      host,
		accessKey: accessKey,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *ACRCloud) Name() string { return "acrcloud" }

func (a *ACRCloud) Configured() bool { return a.host != "" && a.accessKey != "" }

// endpoint allows tests to substitute a full URL for the host.
func (a *ACRCloud) endpoint() string {
	if strings.HasPrefix(a.host, "http") {
		return a.host + "/v1/identify"
	}
	return "https://" + a.host + "/v1/identify"
}

type acrResponse struct {
	Status struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"status"`
	Metadata struct {
		Music []struct {
			Title   string `json:"title"`
			Album   struct {
				Name string `json:"name"`
			} `json:"album"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
			Score        float64 `json:"score"`
			ExternalURLs struct {
				Spotify string `json:"spotify"`
				YouTube string `json:"youtube"`
			} `json:"external_urls"`
		} `json:"music"`
	} `json:"metadata"`
}

// acrNoResultCode is returned by the service when nothing matched; it is a
// clean "no match", not a provider failure.
const acrNoResultCode = 1001

func (a *ACRCloud) Recognize(ctx context.Context, audio []byte) (Result, error) {
	if !a.Configured() {
		return failure(a.Name(), "not configured"), nil
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("sample", "sample.bin")
	if err != nil {
		return Result{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return Result{}, fmt.Errorf("write sample: %w", err)
	}
	if err := mw.WriteField("access_key", a.accessKey); err != nil {
		return Result{}, fmt.Errorf("write access key: %w", err)
	}
	if err := mw.WriteField("data_type", "audio"); err != nil {
		return Result{}, fmt.Errorf("write data type: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Result{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(), &buf)
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := a.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("acrcloud call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("acrcloud error %d: %s", resp.StatusCode, string(body))
	}

	var parsed acrResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, fmt.Errorf("unmarshal response: %w", err)
	}

	if parsed.Status.Code == acrNoResultCode {
		return failure(a.Name(), "no match"), nil
	}
	if parsed.Status.Code != 0 {
		return Result{}, fmt.Errorf("acrcloud status %d: %s", parsed.Status.Code, parsed.Status.Msg)
	}
	if len(parsed.Metadata.Music) == 0 {
		return failure(a.Name(), "no match"), nil
	}

	top := parsed.Metadata.Music[0]
	artist := ""
	if len(top.Artists) > 0 {
		artist = top.Artists[0].Name
	}

	var links []string
	if top.ExternalURLs.Spotify != "" {
		links = append(links, top.ExternalURLs.Spotify)
	}
	if top.ExternalURLs.YouTube != "" {
		links = append(links, top.ExternalURLs.YouTube)
	}

	return Result{
		Success:    true,
		Title:      top.Title,
		Artist:     artist,
		Album:      top.Album.Name,
		Confidence: clamp01(top.Score / 100),
		Links:      links,
		Provider:   a.Name(),
	}, nil
}
