package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrTurnNotFound is returned when a referenced turn does not exist in the
// thread.
var ErrTurnNotFound = errors.New("turn not found")

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn kinds. Status turns are transient progress indicators, deleted once a
// stage produces user-visible output.
const (
	KindText      = "text"
	KindStatus    = "status"
	KindCandidate = "candidate"
	KindAnswer    = "answer"
	KindFollowUp  = "follow_up"
)

// Turn is one immutable conversation record. Turns are appended, never
// mutated in place; only transient status turns are deleted.
type Turn struct {
	ID        uuid.UUID
	ThreadID  string
	Role      string
	Kind      string
	Text      string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// CandidatePayload is the structured payload carried by candidate turns.
type CandidatePayload struct {
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Confidence float64 `json:"confidence"`
}

// Candidate decodes the turn's candidate payload. Malformed or absent
// payloads yield a zero value rather than an error: slot extraction must
// never fail on historical data.
func (t Turn) Candidate() CandidatePayload {
	var p CandidatePayload
	if len(t.Payload) == 0 {
		return p
	}
	_ = json.Unmarshal(t.Payload, &p)
	return p
}

// AppendTurn inserts a turn and returns its id.
func (s *Store) AppendTurn(ctx context.Context, t Turn) (uuid.UUID, error) {
	id := t.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	payload := t.Payload
	if payload == nil {
		payload = json.RawMessage("null")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversation_turns (id, thread_id, role, kind, text, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		id, t.ThreadID, t.Role, t.Kind, t.Text, payload,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert turn: %w", err)
	}
	return id, nil
}

// ListTurns returns all turns of a thread in chronological order.
func (s *Store) ListTurns(ctx context.Context, threadID string) ([]Turn, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, thread_id, role, kind, text, payload, created_at
		FROM conversation_turns
		WHERE thread_id = $1
		ORDER BY created_at ASC, id ASC`,
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.ThreadID, &t.Role, &t.Kind, &t.Text, &t.Payload, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return turns, nil
}

// GetTurn fetches one turn by thread and id.
func (s *Store) GetTurn(ctx context.Context, threadID string, id uuid.UUID) (Turn, error) {
	var t Turn
	err := s.pool.QueryRow(ctx, `
		SELECT id, thread_id, role, kind, text, payload, created_at
		FROM conversation_turns
		WHERE thread_id = $1 AND id = $2`,
		threadID, id,
	).Scan(&t.ID, &t.ThreadID, &t.Role, &t.Kind, &t.Text, &t.Payload, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Turn{}, ErrTurnNotFound
	}
	if err != nil {
		return Turn{}, fmt.Errorf("get turn: %w", err)
	}
	return t, nil
}

// UpdateTurnText replaces a turn's text, used to persist the transcript onto
// the voice turn it was recovered from.
func (s *Store) UpdateTurnText(ctx context.Context, id uuid.UUID, text string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversation_turns SET text = $1 WHERE id = $2`,
		text, id,
	)
	if err != nil {
		return fmt.Errorf("update turn: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTurnNotFound
	}
	return nil
}

// DeleteTurn removes a turn, used for superseded status turns.
func (s *Store) DeleteTurn(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM conversation_turns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete turn: %w", err)
	}
	return nil
}
