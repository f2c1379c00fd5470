package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sendloop/sendloop/internal/store"
)

// PGIntegrationStore implements store.IntegrationStore backed by Postgres.
// Credential bags are stored as JSONB and only ever handed to executors.
type PGIntegrationStore struct {
	db *sql.DB
}

func NewPGIntegrationStore(db *sql.DB) *PGIntegrationStore {
	return &PGIntegrationStore{db: db}
}

func (s *PGIntegrationStore) ListByUser(ctx context.Context, userID string) ([]store.IntegrationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, integration_id, active, status, credentials, updated_at
		 FROM integrations WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()

	var out []store.IntegrationRecord
	for rows.Next() {
		var rec store.IntegrationRecord
		var creds []byte
		if err := rows.Scan(&rec.UserID, &rec.IntegrationID, &rec.Active, &rec.Status, &creds, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		if len(creds) > 0 {
			if err := json.Unmarshal(creds, &rec.Credentials); err != nil {
				return nil, fmt.Errorf("decode credentials for %s: %w", rec.IntegrationID, err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate integrations: %w", err)
	}
	return out, nil
}

func (s *PGIntegrationStore) Upsert(ctx context.Context, rec *store.IntegrationRecord) error {
	creds, err := json.Marshal(rec.Credentials)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	rec.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO integrations (user_id, integration_id, active, status, credentials, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, integration_id)
		 DO UPDATE SET active = $3, status = $4, credentials = $5, updated_at = $6`,
		rec.UserID, rec.IntegrationID, rec.Active, rec.Status, creds, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert integration: %w", err)
	}
	return nil
}

// Disconnect deactivates the connection and clears the credential bag.
func (s *PGIntegrationStore) Disconnect(ctx context.Context, userID, integrationID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE integrations
		 SET active = false, status = $1, credentials = '{}'::jsonb, updated_at = $2
		 WHERE user_id = $3 AND integration_id = $4`,
		store.IntegrationNotConnected, time.Now().UTC(), userID, integrationID,
	)
	if err != nil {
		return fmt.Errorf("disconnect integration: %w", err)
	}
	return nil
}

var _ store.IntegrationStore = (*PGIntegrationStore)(nil)
var _ store.WalletStore = (*PGWalletStore)(nil)
var _ store.ChatStore = (*PGChatStore)(nil)
var _ store.MessageStore = (*PGMessageStore)(nil)
