package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sendloop/sendloop/internal/store"
)

// PGMessageStore implements store.MessageStore backed by Postgres.
type PGMessageStore struct {
	db *sql.DB
}

func NewPGMessageStore(db *sql.DB) *PGMessageStore {
	return &PGMessageStore{db: db}
}

func (s *PGMessageStore) Insert(ctx context.Context, msg *store.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = store.GenNewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages
		   (id, user_id, chat_id, sender, recipient, kind, body, media_url, caption,
		    latitude, longitude, template_name, participants, external_id, status, tag,
		    reply_to, error_text, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		msg.ID, msg.UserID, msg.ChatID, msg.From, msg.To, msg.Kind, msg.Text,
		msg.MediaURL, msg.Caption, msg.Latitude, msg.Longitude, msg.TemplateName,
		participantsJSON(msg.Participants), msg.ExternalID, msg.Status, msg.Tag,
		msg.ReplyTo, msg.ErrorText, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *PGMessageStore) UpdateStatus(ctx context.Context, id uuid.UUID, status, errorText string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = $1, error_text = $2 WHERE id = $3`,
		status, errorText, id,
	)
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	return nil
}

func (s *PGMessageStore) ListRecent(ctx context.Context, chatID uuid.UUID, limit int) ([]store.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, chat_id, sender, recipient, kind, body, media_url, caption,
		        latitude, longitude, template_name, external_id, status, tag, reply_to, created_at
		 FROM messages WHERE chat_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		chatID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		var m store.Message
		err := rows.Scan(&m.ID, &m.UserID, &m.ChatID, &m.From, &m.To, &m.Kind, &m.Text,
			&m.MediaURL, &m.Caption, &m.Latitude, &m.Longitude, &m.TemplateName,
			&m.ExternalID, &m.Status, &m.Tag, &m.ReplyTo, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Oldest first for callers projecting history.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func participantsJSON(ps []string) []byte {
	if len(ps) == 0 {
		return []byte("[]")
	}
	b, _ := json.Marshal(ps)
	return b
}

func participantsFromJSON(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	var ps []string
	_ = json.Unmarshal(b, &ps)
	return ps
}
