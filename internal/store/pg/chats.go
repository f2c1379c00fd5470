package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sendloop/sendloop/internal/store"
)

// PGChatStore implements store.ChatStore backed by Postgres.
type PGChatStore struct {
	db *sql.DB
}

func NewPGChatStore(db *sql.DB) *PGChatStore {
	return &PGChatStore{db: db}
}

// FindOrCreateDirect resolves the direct chat for a recipient, creating it if
// absent. The unique index on (user_id, account_id, recipient, kind) plus
// ON CONFLICT DO NOTHING makes concurrent first-contact sends converge on a
// single row; the re-select after the insert reads whichever row won.
func (s *PGChatStore) FindOrCreateDirect(ctx context.Context, userID, accountID, recipient string) (*store.Chat, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, user_id, account_id, recipient, kind, participants, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id, account_id, recipient, kind) DO NOTHING`,
		store.GenNewID(), userID, accountID, recipient, store.ChatDirect, participantsJSON([]string{recipient}), now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert chat: %w", err)
	}

	return s.scanChat(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, account_id, kind, participants, name, last_message, last_message_at, created_at
		 FROM chats WHERE user_id = $1 AND account_id = $2 AND recipient = $3 AND kind = $4`,
		userID, accountID, recipient, store.ChatDirect,
	))
}

func (s *PGChatStore) GetByID(ctx context.Context, id uuid.UUID) (*store.Chat, error) {
	return s.scanChat(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, account_id, kind, participants, name, last_message, last_message_at, created_at
		 FROM chats WHERE id = $1`,
		id,
	))
}

// TouchPreview updates the cosmetic last-message fields. Last write wins;
// concurrent sends to the same chat may race on the preview text.
func (s *PGChatStore) TouchPreview(ctx context.Context, id uuid.UUID, preview string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chats SET last_message = $1, last_message_at = $2 WHERE id = $3`,
		preview, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("touch chat preview: %w", err)
	}
	return nil
}

func (s *PGChatStore) scanChat(row *sql.Row) (*store.Chat, error) {
	var c store.Chat
	var participants []byte
	var name, lastMessage sql.NullString
	var lastMessageAt sql.NullTime
	err := row.Scan(&c.ID, &c.UserID, &c.AccountID, &c.Kind, &participants, &name, &lastMessage, &lastMessageAt, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan chat: %w", err)
	}
	c.Name = name.String
	c.LastMessage = lastMessage.String
	if lastMessageAt.Valid {
		c.LastMessageAt = lastMessageAt.Time
	}
	c.Participants = participantsFromJSON(participants)
	return &c, nil
}
