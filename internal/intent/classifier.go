// Package intent labels a user transcript with a conversational intent. The
// primary path is a structured LLM classification; a deterministic heuristic
// keeps routing alive when the provider is down or undecided.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/earworm-app/resolver/internal/breaker"
	"github.com/earworm-app/resolver/internal/llm"
)

type Type string

const (
	Conversation    Type = "conversation"
	Information     Type = "information"
	FindSong        Type = "find_song"
	GenerateSong    Type = "generate_song"
	Humming         Type = "humming"
	BackgroundAudio Type = "background_audio"
	Unclear         Type = "unclear"
)

// Intent is a classification result for one turn.
type Intent struct {
	Type       Type
	Confidence float64
	Reasoning  string
}

// IsAudioQuery reports whether the intent routes to audio recognition.
func (i Intent) IsAudioQuery() bool {
	switch i.Type {
	case Humming, BackgroundAudio, FindSong:
		return true
	default:
		return false
	}
}

const classifyTimeout = 10 * time.Second

const systemPrompt = `You classify a music app user's message into exactly one intent.

Intents:
- conversation: small talk, thanks, chit-chat ("thanks!", "cool song")
- information: a factual question about music ("Who wrote Bohemian Rhapsody?")
- find_song: wants a specific song identified or found ("play that song from the ad")
- generate_song: wants a new song created ("make me a lo-fi track about rain")
- humming: hummed or sung melody fragments, filler syllables ("hmm hmm la la la")
- background_audio: describes audio captured in the background ("what's playing in this cafe")
- unclear: none of the above fit

Respond with only a JSON object:
{"type": "<intent>", "confidence": <0..1>, "reasoning": "<one sentence>"}`

// Classifier wraps the inference provider behind its own circuit breaker and a
// hard timeout. Classify never returns an error: every failure degrades to a
// usable routing decision.
type Classifier struct {
	llm     *llm.Client
	breaker *breaker.Breaker
	logger  *slog.Logger
}

func NewClassifier(client *llm.Client, b *breaker.Breaker, logger *slog.Logger) *Classifier {
	return &Classifier{llm: client, breaker: b, logger: logger}
}

func (c *Classifier) Classify(ctx context.Context, transcript string) Intent {
	start := time.Now()

	it, err := c.classifyWithModel(ctx, transcript)
	if err != nil {
		c.logger.Warn("classification degraded to heuristic",
			"stage", "classify",
			"provider", "llm",
			"duration", time.Since(start),
			"error", err,
		)
		it = Intent{Type: Unclear, Confidence: 0.5, Reasoning: "classifier unavailable"}
	}

	// The model declining to decide is itself a signal; a cheap lexical check
	// separates hummed fragments from ordinary chat.
	if it.Type == Unclear {
		if looksLikeHumming(transcript) {
			return Intent{Type: Humming, Confidence: 0.6, Reasoning: "short vocalization-heavy transcript"}
		}
		return Intent{Type: Conversation, Confidence: 0.5, Reasoning: "unclear, treated as conversation"}
	}

	return it
}

func (c *Classifier) classifyWithModel(ctx context.Context, transcript string) (Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	raw, err := breaker.Execute(ctx, c.breaker, func(ctx context.Context) (string, error) {
		return c.llm.Complete(ctx, systemPrompt, []llm.Message{llm.TextMessage("user", transcript)}, 256)
	})
	if err != nil {
		return Intent{}, err
	}

	var parsed struct {
		Type       string  `json:"type"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &parsed); err != nil {
		return Intent{}, fmt.Errorf("parse classification: %w", err)
	}

	t, ok := parseType(parsed.Type)
	if !ok {
		return Intent{}, fmt.Errorf("unknown intent type %q", parsed.Type)
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		return Intent{}, fmt.Errorf("confidence %v out of range", parsed.Confidence)
	}

	return Intent{Type: t, Confidence: parsed.Confidence, Reasoning: parsed.Reasoning}, nil
}

func parseType(s string) (Type, bool) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case Conversation:
		return Conversation, true
	case Information:
		return Information, true
	case FindSong:
		return FindSong, true
	case GenerateSong:
		return GenerateSong, true
	case Humming:
		return Humming, true
	case BackgroundAudio:
		return BackgroundAudio, true
	case Unclear:
		return Unclear, true
	default:
		return "", false
	}
}

// fillers are vocalization tokens typical of hummed input.
var fillers = map[string]bool{
	"hmm": true, "hm": true, "mmm": true, "mm": true,
	"la": true, "da": true, "na": true, "dum": true,
	"doo": true, "ooh": true, "aah": true, "ah": true,
}

// looksLikeHumming flags short transcripts or transcripts dominated by
// repeated filler syllables.
func looksLikeHumming(transcript string) bool {
	words := strings.Fields(strings.ToLower(transcript))
	if len(words) < 5 {
		return true
	}

	fillerCount := 0
	for _, w := range words {
		w = strings.Trim(w, ".,!?-")
		if fillers[w] {
			fillerCount++
		}
	}
	return fillerCount >= 3
}
