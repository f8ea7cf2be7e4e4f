package intent

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/earworm-app/resolver/internal/breaker"
	"github.com/earworm-app/resolver/internal/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBreaker() *breaker.Breaker {
	return breaker.New("llm", 5, time.Minute, discardLogger())
}

func llmStub(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]string{{"type": "text", "text": reply}},
			"stop_reason": "end_turn",
		})
	}))
}

func TestClassify_ModelResult(t *testing.T) {
	server := llmStub(t, `{"type": "information", "confidence": 0.92, "reasoning": "factual question about a song"}`)
	defer server.Close()

	client := llm.NewClient("test-key", "test-model")
	client.SetTestTransport(server.URL)

	c := NewClassifier(client, testBreaker(), discardLogger())
	it := c.Classify(context.Background(), "Who wrote Bohemian Rhapsody?")

	if it.Type != Information {
		t.Errorf("expected information, got %s", it.Type)
	}
	if it.Confidence != 0.92 {
		t.Errorf("expected confidence 0.92, got %v", it.Confidence)
	}
}

func TestClassify_FencedModelOutput(t *testing.T) {
	server := llmStub(t, "```json\n{\"type\":\"find_song\",\"confidence\":0.8,\"reasoning\":\"wants a song found\"}\n```")
	defer server.Close()

	client := llm.NewClient("test-key", "test-model")
	client.SetTestTransport(server.URL)

	c := NewClassifier(client, testBreaker(), discardLogger())
	it := c.Classify(context.Background(), "find that song from the car ad")

	if it.Type != FindSong {
		t.Errorf("expected find_song, got %s", it.Type)
	}
}

func TestClassify_ProviderFailure_HummingHeuristic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"type":"overloaded","message":"try later"}}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := llm.NewClient("test-key", "test-model")
	client.SetTestTransport(server.URL)

	c := NewClassifier(client, testBreaker(), discardLogger())
	it := c.Classify(context.Background(), "hmm hmm la la la")

	if it.Type != Humming {
		t.Errorf("expected humming from heuristic fallback, got %s", it.Type)
	}
}

func TestClassify_ProviderFailure_ConversationHeuristic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := llm.NewClient("test-key", "test-model")
	client.SetTestTransport(server.URL)

	c := NewClassifier(client, testBreaker(), discardLogger())
	it := c.Classify(context.Background(), "so I was wondering what you think about that album we discussed")

	if it.Type != Conversation {
		t.Errorf("expected conversation fallback, got %s", it.Type)
	}
}

func TestClassify_UnparsableOutput(t *testing.T) {
	server := llmStub(t, "sorry, I cannot classify that")
	defer server.Close()

	client := llm.NewClient("test-key", "test-model")
	client.SetTestTransport(server.URL)

	c := NewClassifier(client, testBreaker(), discardLogger())
	it := c.Classify(context.Background(), "la la la dum dum hmm hmm something")

	if it.Type != Humming {
		t.Errorf("expected humming via heuristic on unparsable output, got %s", it.Type)
	}
}

func TestClassify_ModelUnclearRoutedByHeuristic(t *testing.T) {
	server := llmStub(t, `{"type": "unclear", "confidence": 0.4, "reasoning": "ambiguous"}`)
	defer server.Close()

	client := llm.NewClient("test-key", "test-model")
	client.SetTestTransport(server.URL)

	c := NewClassifier(client, testBreaker(), discardLogger())

	if it := c.Classify(context.Background(), "na na na"); it.Type != Humming {
		t.Errorf("expected humming, got %s", it.Type)
	}
	if it := c.Classify(context.Background(), "well it is hard to say exactly what I want here"); it.Type != Conversation {
		t.Errorf("expected conversation, got %s", it.Type)
	}
}

func TestLooksLikeHumming(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
		expected   bool
	}{
		{"short fragment", "that song", true},
		{"repeated fillers", "hmm hmm la la la goes the chorus somehow", true},
		{"fillers with punctuation", "la, la, la... something something anyway whatever", true},
		{"ordinary sentence", "I heard this track at the gym yesterday morning", false},
		{"two fillers only", "hmm the melody goes up then down hmm right", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := looksLikeHumming(tt.transcript); got != tt.expected {
				t.Errorf("looksLikeHumming(%q) = %v, want %v", tt.transcript, got, tt.expected)
			}
		})
	}
}
