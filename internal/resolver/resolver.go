// Package resolver runs one resolution request end to end: admission,
// query-text recovery, intent routing, audio recognition, context extraction,
// synthesis, and persistence of the resulting conversation turns.
package resolver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/earworm-app/resolver/internal/breaker"
	"github.com/earworm-app/resolver/internal/events"
	"github.com/earworm-app/resolver/internal/intent"
	"github.com/earworm-app/resolver/internal/ratelimit"
	"github.com/earworm-app/resolver/internal/recognize"
	"github.com/earworm-app/resolver/internal/slots"
	"github.com/earworm-app/resolver/internal/store"
	"github.com/earworm-app/resolver/internal/synth"
)

// Input types accepted on a resolution request.
const (
	InputText  = "text"
	InputVoice = "voice"
	InputImage = "image"
)

// Response statuses.
const (
	StatusDone     = "done"
	StatusRefining = "refining"
	StatusFailed   = "failed"
)

// Request is one inbound resolution call, already authenticated.
type Request struct {
	CallerID  string
	ThreadID  string
	MessageID uuid.UUID
	InputType string
	Text      string
	MediaPath string
	AudioPath string
}

// Response is the value returned to the caller.
type Response struct {
	Status            string            `json:"status"`
	ResponseType      string            `json:"response_type"`
	Transcription     string            `json:"transcription,omitempty"`
	OverallConfidence float64           `json:"overall_confidence"`
	Candidates        []synth.Candidate `json:"candidates"`
	Answer            *synth.Answer     `json:"answer,omitempty"`
	FollowUpQuestion  string            `json:"follow_up_question,omitempty"`
	ConversationState string            `json:"conversation_state"`
}

// Collaborator surfaces, declared here so scenarios run against fakes.
type (
	TurnStore interface {
		AppendTurn(ctx context.Context, t store.Turn) (uuid.UUID, error)
		ListTurns(ctx context.Context, threadID string) ([]store.Turn, error)
		GetTurn(ctx context.Context, threadID string, id uuid.UUID) (store.Turn, error)
		UpdateTurnText(ctx context.Context, id uuid.UUID, text string) error
		DeleteTurn(ctx context.Context, id uuid.UUID) error
	}

	Transcriber interface {
		Configured() bool
		Transcribe(ctx context.Context, audio []byte) (string, error)
	}

	Recognizer interface {
		Identify(ctx context.Context, audio []byte, it intent.Intent) *recognize.Result
	}

	Classifier interface {
		Classify(ctx context.Context, transcript string) intent.Intent
	}

	Synthesizer interface {
		Synthesize(ctx context.Context, queryText string, it intent.Intent, sl slots.Slots, hint string) (synth.Result, error)
	}

	BlobStore interface {
		Configured() bool
		SignedURL(ctx context.Context, path string) (string, error)
		Fetch(ctx context.Context, url string) ([]byte, error)
	}

	VisionDescriber interface {
		CompleteWithImage(ctx context.Context, system, prompt, mediaType, b64Data string, maxTokens int) (string, error)
	}
)

// Deps wires the pipeline's collaborators.
type Deps struct {
	Limiter           *ratelimit.Limiter
	Turns             TurnStore
	Blobs             BlobStore
	Transcriber       Transcriber
	TranscribeBreaker *breaker.Breaker
	Classifier        Classifier
	Recognizer        Recognizer
	Synthesizer       Synthesizer
	Vision            VisionDescriber
	Publisher         *events.Publisher

	// TerminalConfidence is the recognition score at which a match is
	// returned directly without synthesis.
	TerminalConfidence float64
	// RejectedThreshold is the candidate confidence below which a shown
	// suggestion counts as implicitly rejected during slot extraction.
	RejectedThreshold float64

	Logger *slog.Logger
}

// Resolver is the request-scoped pipeline. One instance serves all requests;
// per-request state lives on the stack.
type Resolver struct {
	deps Deps
}

func New(deps Deps) *Resolver {
	return &Resolver{deps: deps}
}

// Resolve runs the full pipeline for one request. The rate-limit admission is
// released and transient status turns are deleted on every exit path.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Response, error) {
	d := r.deps

	admission, denied := d.Limiter.Admit(req.CallerID)
	if denied != nil {
		d.Publisher.Publish(events.SubjectRateLimited, events.RateLimitedSignal{
			CallerID:   req.CallerID,
			Reason:     denied.Reason,
			RetryAfter: int(denied.RetryAfter.Seconds()),
		})
		return Response{}, &RateLimitedError{Reason: denied.Reason, RetryAfter: denied.RetryAfter}
	}
	defer admission.Release()

	if _, err := d.Turns.GetTurn(ctx, req.ThreadID, req.MessageID); err != nil {
		if errors.Is(err, store.ErrTurnNotFound) {
			return Response{}, err
		}
		return Response{}, fmt.Errorf("loading referenced message: %w", err)
	}

	var statusTurns []uuid.UUID
	defer func() {
		for _, id := range statusTurns {
			if err := d.Turns.DeleteTurn(context.WithoutCancel(ctx), id); err != nil {
				d.Logger.Warn("status turn cleanup failed", "turn_id", id, "error", err)
			}
		}
	}()
	postStatus := func(text string) {
		id, err := d.Turns.AppendTurn(ctx, store.Turn{
			ThreadID: req.ThreadID,
			Role:     store.RoleAssistant,
			Kind:     store.KindStatus,
			Text:     text,
		})
		if err != nil {
			d.Logger.Warn("status turn append failed", "error", err)
			return
		}
		statusTurns = append(statusTurns, id)
	}

	queryText, audio, err := r.resolveQuery(ctx, req, postStatus)
	if err != nil {
		return Response{}, err
	}
	if queryText == "" && len(audio) == 0 {
		return Response{}, &BadRequestError{Reason: "no resolvable query text"}
	}

	it := d.Classifier.Classify(ctx, queryText)
	d.Logger.Info("intent classified", "thread_id", req.ThreadID, "intent", it.Type, "confidence", it.Confidence)

	hint := ""
	if it.IsAudioQuery() && len(audio) > 0 {
		postStatus("Identifying song…")
		if match := d.Recognizer.Identify(ctx, audio, it); match != nil {
			if match.Confidence >= d.TerminalConfidence {
				return r.respondTerminal(ctx, req, it, queryText, match), nil
			}
			hint = fmt.Sprintf("audio recognition tentatively suggests %q by %s (confidence %.2f); ask the user to verify",
				match.Title, match.Artist, match.Confidence)
		}
	}

	history, err := d.Turns.ListTurns(ctx, req.ThreadID)
	if err != nil {
		return Response{}, fmt.Errorf("loading history: %w", err)
	}
	sl := slots.ExtractWithThreshold(history, d.RejectedThreshold)

	// An unidentified clip with no transcript leaves nothing to search on;
	// the model is prompted to ask a clarifying question instead.
	synthQuery := queryText
	if synthQuery == "" {
		synthQuery = emptyQueryFallback
	}

	postStatus("Searching…")
	result, err := d.Synthesizer.Synthesize(ctx, synthQuery, it, sl, hint)
	if err != nil {
		return Response{}, fmt.Errorf("synthesizing answer: %w", err)
	}

	r.persistResult(ctx, req.ThreadID, result)

	resp := Response{
		Status:            StatusDone,
		ResponseType:      result.ResponseType,
		Transcription:     transcriptionFor(req, queryText),
		OverallConfidence: result.OverallConfidence,
		Candidates:        result.Candidates,
		Answer:            result.Answer,
		FollowUpQuestion:  result.FollowUpQuestion,
		ConversationState: "done",
	}
	switch {
	case result.NoMatch() && result.FollowUpQuestion == "":
		resp.Status = StatusFailed
		resp.ConversationState = "no_match"
	case result.FollowUpQuestion != "":
		resp.Status = StatusRefining
		resp.ConversationState = "refining"
	}

	r.publishCompleted(req, it, resp)
	return resp, nil
}

// resolveQuery recovers the query text (and, for voice, the raw audio) from
// the request. Transcription and vision failures are absorbed: the pipeline
// continues with whatever material is left.
func (r *Resolver) resolveQuery(ctx context.Context, req Request, postStatus func(string)) (string, []byte, error) {
	d := r.deps

	switch req.InputType {
	case InputText:
		return strings.TrimSpace(req.Text), nil, nil

	case InputVoice:
		postStatus("Listening…")
		audio := r.fetchBlob(ctx, req.AudioPath)
		if len(audio) == 0 {
			return strings.TrimSpace(req.Text), nil, nil
		}

		transcript := ""
		if d.Transcriber.Configured() {
			text, err := breaker.Execute(ctx, d.TranscribeBreaker, func(ctx context.Context) (string, error) {
				return d.Transcriber.Transcribe(ctx, audio)
			})
			if err != nil {
				d.Logger.Warn("transcription failed, continuing without transcript", "thread_id", req.ThreadID, "error", err)
			} else {
				transcript = strings.TrimSpace(text)
			}
		}
		if transcript != "" {
			if err := d.Turns.UpdateTurnText(ctx, req.MessageID, transcript); err != nil {
				d.Logger.Warn("persisting transcript failed", "message_id", req.MessageID, "error", err)
			}
		}
		return transcript, audio, nil

	case InputImage:
		image := r.fetchBlob(ctx, req.MediaPath)
		if len(image) == 0 {
			return strings.TrimSpace(req.Text), nil, nil
		}
		description := r.describeImage(ctx, req.MediaPath, image)
		if description == "" {
			description = strings.TrimSpace(req.Text)
		}
		return description, nil, nil

	default:
		return "", nil, &BadRequestError{Reason: fmt.Sprintf("unsupported input_type %q", req.InputType)}
	}
}

func (r *Resolver) fetchBlob(ctx context.Context, path string) []byte {
	d := r.deps
	if path == "" || d.Blobs == nil || !d.Blobs.Configured() {
		return nil
	}
	signed, err := d.Blobs.SignedURL(ctx, path)
	if err != nil {
		d.Logger.Warn("signing blob path failed", "path", path, "error", err)
		return nil
	}
	data, err := d.Blobs.Fetch(ctx, signed)
	if err != nil {
		d.Logger.Warn("fetching blob failed", "path", path, "error", err)
		return nil
	}
	return data
}

const visionPrompt = "Describe what this image shows about a song the user is looking for: visible lyrics, artist names, album art, app screenshots. Reply with a single search query."

// emptyQueryFallback replaces a blank query when an audio clip produced
// neither a match nor a transcript.
const emptyQueryFallback = "The user sent an audio clip that could not be identified and left no transcript. Ask one clarifying question about the song they are looking for."

func (r *Resolver) describeImage(ctx context.Context, path string, image []byte) string {
	d := r.deps
	if d.Vision == nil {
		return ""
	}
	mediaType := "image/jpeg"
	if strings.HasSuffix(strings.ToLower(path), ".png") {
		mediaType = "image/png"
	}
	description, err := d.Vision.CompleteWithImage(ctx, "", visionPrompt, mediaType, base64.StdEncoding.EncodeToString(image), 512)
	if err != nil {
		d.Logger.Warn("image description failed", "path", path, "error", err)
		return ""
	}
	return strings.TrimSpace(description)
}

// respondTerminal short-circuits on a confident fingerprint match: the
// candidate is persisted and returned without a synthesis call.
func (r *Resolver) respondTerminal(ctx context.Context, req Request, it intent.Intent, queryText string, match *recognize.Result) Response {
	candidate := synth.Candidate{
		Title:      match.Title,
		Artist:     match.Artist,
		Confidence: match.Confidence,
		Reason:     fmt.Sprintf("identified by %s audio fingerprint", match.Provider),
	}
	if match.Album != "" {
		candidate.Background = "Album: " + match.Album
	}
	for _, link := range match.Links {
		candidate.Sources = append(candidate.Sources, link)
	}

	r.appendCandidateTurn(ctx, req.ThreadID, candidate)

	resp := Response{
		Status:            StatusDone,
		ResponseType:      synth.ResponseSearch,
		Transcription:     transcriptionFor(req, queryText),
		OverallConfidence: match.Confidence,
		Candidates:        []synth.Candidate{candidate},
		ConversationState: "done",
	}
	r.publishCompleted(req, it, resp)
	return resp
}

// persistResult appends the user-visible turns. Persistence failures are
// logged, not surfaced: the response is already built and losing a turn only
// degrades future context.
func (r *Resolver) persistResult(ctx context.Context, threadID string, result synth.Result) {
	for _, c := range result.Candidates {
		r.appendCandidateTurn(ctx, threadID, c)
	}
	if result.Answer != nil {
		if _, err := r.deps.Turns.AppendTurn(ctx, store.Turn{
			ThreadID: threadID,
			Role:     store.RoleAssistant,
			Kind:     store.KindAnswer,
			Text:     result.Answer.Text,
		}); err != nil {
			r.deps.Logger.Warn("answer turn append failed", "thread_id", threadID, "error", err)
		}
	}
	if result.FollowUpQuestion != "" {
		if _, err := r.deps.Turns.AppendTurn(ctx, store.Turn{
			ThreadID: threadID,
			Role:     store.RoleAssistant,
			Kind:     store.KindFollowUp,
			Text:     result.FollowUpQuestion,
		}); err != nil {
			r.deps.Logger.Warn("follow-up turn append failed", "thread_id", threadID, "error", err)
		}
	}
}

func (r *Resolver) appendCandidateTurn(ctx context.Context, threadID string, c synth.Candidate) {
	payload, err := json.Marshal(store.CandidatePayload{Title: c.Title, Artist: c.Artist, Confidence: c.Confidence})
	if err != nil {
		r.deps.Logger.Warn("candidate payload marshal failed", "title", c.Title, "error", err)
		return
	}
	text := fmt.Sprintf("%s by %s", c.Title, c.Artist)
	if _, err := r.deps.Turns.AppendTurn(ctx, store.Turn{
		ThreadID: threadID,
		Role:     store.RoleAssistant,
		Kind:     store.KindCandidate,
		Text:     text,
		Payload:  payload,
	}); err != nil {
		r.deps.Logger.Warn("candidate turn append failed", "thread_id", threadID, "error", err)
	}
}

func (r *Resolver) publishCompleted(req Request, it intent.Intent, resp Response) {
	signal := events.CompletedSignal{
		ThreadID: req.ThreadID,
		CallerID: req.CallerID,
		Intent:   string(it.Type),
		Status:   resp.Status,
	}
	if len(resp.Candidates) > 0 {
		signal.Title = resp.Candidates[0].Title
		signal.Artist = resp.Candidates[0].Artist
		signal.Confidence = resp.Candidates[0].Confidence
	}
	r.deps.Publisher.Publish(events.SubjectCompleted, signal)
}

// transcriptionFor echoes the recovered transcript for voice requests only.
func transcriptionFor(req Request, queryText string) string {
	if req.InputType == InputVoice {
		return queryText
	}
	return ""
}
