package transcribe

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTranscribe_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected bearer auth, got %q", r.Header.Get("Authorization"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("failed to parse multipart form: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("expected model whisper-1, got %q", got)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "fake-audio" {
			t.Errorf("unexpected audio payload %q", string(data))
		}

		json.NewEncoder(w).Encode(map[string]string{"text": "hmm hmm la la la"})
	}))
	defer server.Close()

	c := NewClient(server.URL, "test-key", "whisper-1")
	text, err := c.Transcribe(context.Background(), []byte("fake-audio"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hmm hmm la la la" {
		t.Errorf("expected transcript, got %q", text)
	}
}

func TestTranscribe_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad audio"}`, http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	c := NewClient(server.URL, "test-key", "whisper-1")
	if _, err := c.Transcribe(context.Background(), []byte("x")); err == nil {
		t.Fatal("expected error for provider failure")
	}
}

func TestTranscribe_Unconfigured(t *testing.T) {
	c := NewClient("", "", "whisper-1")
	if c.Configured() {
		t.Error("client without endpoint should report unconfigured")
	}
	if _, err := c.Transcribe(context.Background(), []byte("x")); err == nil {
		t.Fatal("expected error when unconfigured")
	}
}
