// Package api exposes the resolution pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/earworm-app/resolver/internal/resolver"
	"github.com/earworm-app/resolver/internal/store"
)

// ResolverService is the pipeline surface the server calls.
type ResolverService interface {
	Resolve(ctx context.Context, req resolver.Request) (resolver.Response, error)
}

type ctxKey int

const callerIDKey ctxKey = iota

type Server struct {
	router   *chi.Mux
	port     int
	resolver ResolverService
	auth     Authenticator
	logger   *slog.Logger
}

func NewServer(port int, svc ResolverService, auth Authenticator, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		resolver: svc,
		auth:     auth,
		logger:   logger,
	}

	router.Get("/health", s.health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.bearerAuth)
		r.Post("/resolve", s.resolve)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// bearerAuth resolves the Authorization header to a caller id or rejects with
// 401. The caller id travels in the request context.
func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			writeError(w, http.StatusUnauthorized, "missing bearer token", "")
			return
		}
		callerID, ok := s.auth.Verify(r.Context(), token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid token", "")
			return
		}
		ctx := context.WithValue(r.Context(), callerIDKey, callerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type resolveRequest struct {
	ThreadID  string `json:"thread_id"`
	MessageID string `json:"message_id"`
	InputType string `json:"input_type"`
	Text      string `json:"text"`
	MediaPath string `json:"media_path"`
	AudioPath string `json:"audio_path"`
	VideoPath string `json:"video_path"`
}

// resolveResponse wraps the pipeline response with the error field the wire
// contract carries on success.
type resolveResponse struct {
	resolver.Response
	Error any `json:"error"`
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	var body resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", err.Error())
		return
	}
	if body.ThreadID == "" || body.MessageID == "" || body.InputType == "" {
		writeError(w, http.StatusBadRequest, "thread_id, message_id and input_type are required", "")
		return
	}
	messageID, err := uuid.Parse(body.MessageID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "message_id must be a UUID", err.Error())
		return
	}

	audioPath := body.AudioPath
	if audioPath == "" {
		// Video uploads carry their audio track under the video path.
		audioPath = body.VideoPath
	}

	callerID, _ := r.Context().Value(callerIDKey).(string)
	resp, err := s.resolver.Resolve(r.Context(), resolver.Request{
		CallerID:  callerID,
		ThreadID:  body.ThreadID,
		MessageID: messageID,
		InputType: body.InputType,
		Text:      body.Text,
		MediaPath: body.MediaPath,
		AudioPath: audioPath,
	})
	if err != nil {
		s.writeResolveError(w, body.ThreadID, err)
		return
	}

	writeJSON(w, http.StatusOK, resolveResponse{Response: resp})
}

func (s *Server) writeResolveError(w http.ResponseWriter, threadID string, err error) {
	var limited *resolver.RateLimitedError
	var bad *resolver.BadRequestError
	switch {
	case errors.As(err, &limited):
		seconds := int(math.Ceil(limited.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":      "rate limited",
			"details":    limited.Reason,
			"retryAfter": seconds,
		})
	case errors.As(err, &bad):
		writeError(w, http.StatusBadRequest, bad.Reason, "")
	case errors.Is(err, store.ErrTurnNotFound):
		writeError(w, http.StatusNotFound, "referenced message not found", "")
	default:
		s.logger.Error("resolution failed", "thread_id", threadID, "error", err)
		writeError(w, http.StatusInternalServerError, "resolution failed", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	body := map[string]any{"error": message}
	if details != "" {
		body["details"] = details
	}
	writeJSON(w, status, body)
}
