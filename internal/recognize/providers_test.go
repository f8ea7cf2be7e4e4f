package recognize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAudD_Recognize_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if r.FormValue("api_token") != "test-token" {
			t.Errorf("expected api_token test-token, got %q", r.FormValue("api_token"))
		}
		if r.FormValue("audio") == "" {
			t.Error("expected base64 audio payload")
		}

		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"result": map[string]any{
				"title":     "Take On Me",
				"artist":    "a-ha",
				"album":     "Hunting High and Low",
				"score":     0.91,
				"song_link": "https://lis.tn/TakeOnMe",
			},
		})
	}))
	defer server.Close()

	p := NewAudD(server.URL, "test-token")
	res, err := p.Recognize(context.Background(), []byte("clip"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatal("expected a successful match")
	}
	if res.Title != "Take On Me" || res.Artist != "a-ha" {
		t.Errorf("unexpected match %q by %q", res.Title, res.Artist)
	}
	if res.Confidence != 0.91 {
		t.Errorf("expected confidence 0.91, got %v", res.Confidence)
	}
	if len(res.Links) != 1 || res.Links[0] != "https://lis.tn/TakeOnMe" {
		t.Errorf("unexpected links %v", res.Links)
	}
}

func TestAudD_Recognize_NoMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "success", "result": nil})
	}))
	defer server.Close()

	p := NewAudD(server.URL, "test-token")
	res, err := p.Recognize(context.Background(), []byte("clip"))
	if err != nil {
		t.Fatalf("no match must not be an error, got %v", err)
	}
	if res.Success {
		t.Error("expected no match")
	}
	if res.FailReason != "no match" {
		t.Errorf("expected fail reason 'no match', got %q", res.FailReason)
	}
}

func TestAudD_Recognize_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status": "error",
			"error":  map[string]any{"error_code": 901, "error_message": "no api_token"},
		})
	}))
	defer server.Close()

	p := NewAudD(server.URL, "test-token")
	if _, err := p.Recognize(context.Background(), []byte("clip")); err == nil {
		t.Fatal("expected error for provider-reported failure")
	}
}

func TestAudD_Unconfigured(t *testing.T) {
	p := NewAudD("https://api.audd.io", "")
	res, err := p.Recognize(context.Background(), []byte("clip"))
	if err != nil {
		t.Fatalf("unconfigured provider must degrade, got error %v", err)
	}
	if res.Success {
		t.Error("expected no match from unconfigured provider")
	}
}

func TestACRCloud_Recognize_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("failed to parse multipart form: %v", err)
		}
		if r.FormValue("access_key") != "test-key" {
			t.Errorf("expected access_key test-key, got %q", r.FormValue("access_key"))
		}

		json.NewEncoder(w).Encode(map[string]any{
			"status": map[string]any{"code": 0, "msg": "Success"},
			"metadata": map[string]any{
				"music": []map[string]any{
					{
						"title":   "Dancing Queen",
						"album":   map[string]any{"name": "Arrival"},
						"artists": []map[string]any{{"name": "ABBA"}},
						"score":   87.0,
						"external_urls": map[string]any{
							"spotify": "https://open.spotify.com/track/abc",
						},
					},
				},
			},
		})
	}))
	defer server.Close()

	p := NewACRCloud(server.URL, "test-key")
	res, err := p.Recognize(context.Background(), []byte("clip"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatal("expected a successful match")
	}
	if res.Title != "Dancing Queen" || res.Artist != "ABBA" {
		t.Errorf("unexpected match %q by %q", res.Title, res.Artist)
	}
	if res.Confidence != 0.87 {
		t.Errorf("expected normalized confidence 0.87, got %v", res.Confidence)
	}
}

func TestACRCloud_Recognize_NoResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[string]any{"code": 1001, "msg": "No result"},
		})
	}))
	defer server.Close()

	p := NewACRCloud(server.URL, "test-key")
	res, err := p.Recognize(context.Background(), []byte("clip"))
	if err != nil {
		t.Fatalf("no result must not be an error, got %v", err)
	}
	if res.Success {
		t.Error("expected no match")
	}
}

func TestACRCloud_Recognize_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[string]any{"code": 3001, "msg": "Missing/Invalid Access Key"},
		})
	}))
	defer server.Close()

	p := NewACRCloud(server.URL, "test-key")
	if _, err := p.Recognize(context.Background(), []byte("clip")); err == nil {
		t.Fatal("expected error for service-level failure")
	}
}
