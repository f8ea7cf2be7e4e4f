//go:build integration

package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestIntegration_AppendListDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	threadID := "integration-" + uuid.New().String()[:8]

	userID, err := s.AppendTurn(ctx, Turn{
		ThreadID: threadID,
		Role:     RoleUser,
		Kind:     KindText,
		Text:     "what song goes hmm hmm la la",
	})
	if err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	payload, _ := json.Marshal(CandidatePayload{Title: "Take On Me", Artist: "a-ha", Confidence: 0.9})
	statusID, err := s.AppendTurn(ctx, Turn{
		ThreadID: threadID,
		Role:     RoleAssistant,
		Kind:     KindStatus,
		Text:     "Identifying song…",
	})
	if err != nil {
		t.Fatalf("AppendTurn status failed: %v", err)
	}
	if _, err := s.AppendTurn(ctx, Turn{
		ThreadID: threadID,
		Role:     RoleAssistant,
		Kind:     KindCandidate,
		Text:     "Take On Me by a-ha",
		Payload:  payload,
	}); err != nil {
		t.Fatalf("AppendTurn candidate failed: %v", err)
	}

	turns, err := s.ListTurns(ctx, threadID)
	if err != nil {
		t.Fatalf("ListTurns failed: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[0].ID != userID {
		t.Errorf("expected chronological order, first turn %s", turns[0].ID)
	}
	if got := turns[2].Candidate(); got.Title != "Take On Me" || got.Confidence != 0.9 {
		t.Errorf("unexpected candidate payload %+v", got)
	}

	if err := s.DeleteTurn(ctx, statusID); err != nil {
		t.Fatalf("DeleteTurn failed: %v", err)
	}
	turns, err = s.ListTurns(ctx, threadID)
	if err != nil {
		t.Fatalf("ListTurns after delete failed: %v", err)
	}
	for _, turn := range turns {
		if turn.Kind == KindStatus {
			t.Error("status turn should have been deleted")
		}
	}
}

func TestIntegration_GetTurn(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	threadID := "integration-" + uuid.New().String()[:8]

	id, err := s.AppendTurn(ctx, Turn{ThreadID: threadID, Role: RoleUser, Kind: KindText, Text: "hello"})
	if err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	turn, err := s.GetTurn(ctx, threadID, id)
	if err != nil {
		t.Fatalf("GetTurn failed: %v", err)
	}
	if turn.Text != "hello" {
		t.Errorf("expected text hello, got %q", turn.Text)
	}

	if _, err := s.GetTurn(ctx, threadID, uuid.New()); !errors.Is(err, ErrTurnNotFound) {
		t.Errorf("expected ErrTurnNotFound, got %v", err)
	}
}

func TestIntegration_UpdateTurnText(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	threadID := "integration-" + uuid.New().String()[:8]

	id, err := s.AppendTurn(ctx, Turn{ThreadID: threadID, Role: RoleAssistant, Kind: KindStatus, Text: "Listening…"})
	if err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	if err := s.UpdateTurnText(ctx, id, "Searching…"); err != nil {
		t.Fatalf("UpdateTurnText failed: %v", err)
	}
	turn, err := s.GetTurn(ctx, threadID, id)
	if err != nil {
		t.Fatalf("GetTurn failed: %v", err)
	}
	if turn.Text != "Searching…" {
		t.Errorf("expected updated text, got %q", turn.Text)
	}

	if err := s.UpdateTurnText(ctx, uuid.New(), "x"); !errors.Is(err, ErrTurnNotFound) {
		t.Errorf("expected ErrTurnNotFound for unknown id, got %v", err)
	}
}
