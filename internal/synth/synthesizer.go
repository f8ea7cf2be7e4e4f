package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/earworm-app/resolver/internal/breaker"
	"github.com/earworm-app/resolver/internal/intent"
	"github.com/earworm-app/resolver/internal/llm"
	"github.com/earworm-app/resolver/internal/lyrics"
	"github.com/earworm-app/resolver/internal/slots"
)

const synthesizeTimeout = 25 * time.Second

// Completer is the inference surface the synthesizer needs.
type Completer interface {
	Complete(ctx context.Context, system string, messages []llm.Message, maxTokens int) (string, error)
}

// LyricsSource is the lyrics surface used for meaning enrichment.
type LyricsSource interface {
	Configured() bool
	Lookup(ctx context.Context, title, artist string) (lyrics.Lyrics, error)
}

// Synthesizer builds the final response with one structured model call behind
// a circuit breaker, then post-processes it: validation, dedup, ranking, and
// lyric/meaning enrichment.
type Synthesizer struct {
	llm               Completer
	breaker           *breaker.Breaker
	lyrics            LyricsSource
	followUpThreshold float64
	logger            *slog.Logger
}

func NewSynthesizer(client Completer, b *breaker.Breaker, lyricsSrc LyricsSource, followUpThreshold float64, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{
		llm:               client,
		breaker:           b,
		lyrics:            lyricsSrc,
		followUpThreshold: followUpThreshold,
		logger:            logger,
	}
}

// Synthesize produces the structured result for one query. hint carries
// recognition context (a candidate awaiting verification) to fold into the
// prompt. A model reply that does not decode is ErrParse; a well-formed empty
// reply is a valid no-match result.
func (s *Synthesizer) Synthesize(ctx context.Context, queryText string, it intent.Intent, sl slots.Slots, hint string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, synthesizeTimeout)
	defer cancel()

	kind := responseKindFor(it, queryText)
	prompt := buildPrompt(queryText, it, sl, hint)

	start := time.Now()
	raw, err := breaker.Execute(ctx, s.breaker, func(ctx context.Context) (string, error) {
		return s.llm.Complete(ctx, systemPromptFor(kind), []llm.Message{llm.TextMessage("user", prompt)}, 2048)
	})
	if err != nil {
		return Result{}, fmt.Errorf("synthesis call: %w", err)
	}
	s.logger.Debug("synthesis complete", "intent", it.Type, "duration", time.Since(start))

	result, err := parseResult(raw, it)
	if err != nil {
		return Result{}, err
	}

	s.enrichMeaning(ctx, queryText, &result)
	s.applyFollowUpPolicy(&result, sl)
	return result, nil
}

// modelResult mirrors the JSON contract given to the model.
type modelResult struct {
	ResponseType      string      `json:"response_type"`
	Candidates        []Candidate `json:"candidates"`
	Answer            *Answer     `json:"answer"`
	FollowUpQuestion  string      `json:"follow_up_question"`
	OverallConfidence float64     `json:"overall_confidence"`
}

func parseResult(raw string, it intent.Intent) (Result, error) {
	extracted := llm.ExtractJSON(raw)
	if extracted == "" {
		return Result{}, fmt.Errorf("%w: no JSON object in %q", ErrParse, truncate(raw, 120))
	}

	var mr modelResult
	if err := json.Unmarshal([]byte(extracted), &mr); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	result := Result{
		ResponseType:      mr.ResponseType,
		FollowUpQuestion:  strings.TrimSpace(mr.FollowUpQuestion),
		OverallConfidence: clamp01(mr.OverallConfidence),
	}

	switch result.ResponseType {
	case ResponseSearch, ResponseAnswer, ResponseBoth:
	default:
		if it.Type == intent.Information {
			result.ResponseType = ResponseAnswer
		} else {
			result.ResponseType = ResponseSearch
		}
	}

	for _, c := range mr.Candidates {
		if strings.TrimSpace(c.Title) == "" || strings.TrimSpace(c.Artist) == "" {
			continue
		}
		if c.Confidence < 0 || c.Confidence > 1 {
			continue
		}
		result.Candidates = append(result.Candidates, c)
	}
	result.Candidates = DedupeCandidates(result.Candidates)

	if mr.Answer != nil && strings.TrimSpace(mr.Answer.Text) != "" {
		result.Answer = mr.Answer
	}
	return result, nil
}

// applyFollowUpPolicy keeps a clarifying question only while the result is
// still uncertain, or when a prose answer invites continuation. A confident
// search result drops it.
func (s *Synthesizer) applyFollowUpPolicy(result *Result, sl slots.Slots) {
	uncertain := result.OverallConfidence < s.followUpThreshold
	if !uncertain && result.ResponseType != ResponseAnswer {
		result.FollowUpQuestion = ""
		return
	}
	if uncertain && result.FollowUpQuestion == "" {
		result.FollowUpQuestion = fallbackQuestion(sl.NextQuestionTarget())
	}
}

func fallbackQuestion(target string) string {
	switch target {
	case "lyric fragment":
		return "Do you remember any of the lyrics, even a few words?"
	case "genre":
		return "What genre did it sound like?"
	case "era":
		return "Roughly when do you think it came out?"
	case "tempo or mood":
		return "Was it fast and upbeat, or slower and mellow?"
	case "artist hints":
		return "Anything about the artist? A name, or whether it was a band or a solo singer?"
	case "instruments":
		return "Did any instrument stand out?"
	default:
		return ""
	}
}

// responseKindFor picks the instruction set: factual questions get prose,
// identification requests get candidates, meaning questions get both.
func responseKindFor(it intent.Intent, queryText string) string {
	if isMeaningQuery(queryText) {
		return ResponseBoth
	}
	switch it.Type {
	case intent.Information, intent.Conversation:
		return ResponseAnswer
	default:
		return ResponseSearch
	}
}

const promptPreamble = `You are the resolution engine of a music identification assistant.
Ground every claim in widely known facts about real songs and artists. Never invent song titles.

Respond with only a JSON object:
{
  "response_type": "search" | "answer" | "both",
  "candidates": [{"title": "...", "artist": "...", "confidence": 0.0, "reason": "...", "background": "...", "lyric_snippet": "...", "sources": ["..."]}],
  "answer": {"text": "...", "sources": ["..."], "related_songs": ["..."]},
  "follow_up_question": "...",
  "overall_confidence": 0.0
}`

func systemPromptFor(kind string) string {
	switch kind {
	case ResponseAnswer:
		return promptPreamble + `

The user asked a factual or conversational question. Set response_type to "answer" and write a concise answer. Leave candidates empty unless specific songs are the answer.`
	case ResponseBoth:
		return promptPreamble + `

The user asks about a song's meaning or background. Set response_type to "both": identify the most likely song as a candidate and explain it in the answer.`
	default:
		return promptPreamble + `

The user wants a song identified. Set response_type to "search" and rank up to 5 plausible candidates by confidence. Respect the rejected list: never re-suggest those songs. If nothing plausible fits, return empty candidates and ask one targeted follow_up_question.`
	}
}

func buildPrompt(queryText string, it intent.Intent, sl slots.Slots, hint string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User query: %s\n", queryText)
	fmt.Fprintf(&b, "Classified intent: %s (confidence %.2f)\n", it.Type, it.Confidence)

	if summary := sl.Summary(); summary != "" {
		b.WriteString("\nWhat we know about the song so far:\n")
		b.WriteString(summary)
		b.WriteString("\n")
	}
	if rejected := sl.RejectedList(); len(rejected) > 0 {
		b.WriteString("\nAlready rejected by the user (never suggest again):\n")
		for _, r := range rejected {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	if len(sl.AskedQuestions) > 0 {
		b.WriteString("\nQuestions already asked (do not repeat):\n")
		for _, q := range sl.AskedQuestions {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}
	if target := sl.NextQuestionTarget(); target != "" {
		fmt.Fprintf(&b, "\nIf you need to ask a follow-up, ask about: %s\n", target)
	}
	if hint != "" {
		fmt.Fprintf(&b, "\nRecognition context: %s\n", hint)
	}
	return b.String()
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

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
