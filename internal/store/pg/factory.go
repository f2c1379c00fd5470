package pg

import (
	"database/sql"

	"github.com/sendloop/sendloop/internal/store"
)

// NewPGStores creates all stores backed by one Postgres pool.
func NewPGStores(db *sql.DB) *store.Stores {
	return &store.Stores{
		Wallets:      NewPGWalletStore(db),
		Chats:        NewPGChatStore(db),
		Messages:     NewPGMessageStore(db),
		Integrations: NewPGIntegrationStore(db),
	}
}
