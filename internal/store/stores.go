package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrInsufficientBalance is returned by ApplyConsumption when the paid
// decrement cannot be satisfied. Nothing is mutated in that case.
var ErrInsufficientBalance = errors.New("insufficient wallet balance")

// WalletStore persists wallets and monthly free-tier usage.
//
// ApplyConsumption must run both mutations in one transaction: increment the
// period's used counter by freeDelta and decrement the wallet balance by
// paidDelta, where the decrement is conditional on balance >= paidDelta.
// On a failed condition the whole call returns ErrInsufficientBalance with
// no partial mutation persisted.
type WalletStore interface {
	GetOrCreateWallet(ctx context.Context, userID string) (*Wallet, error)
	GetOrCreateUsage(ctx context.Context, userID string, period Period) (*MonthlyUsage, error)
	ApplyConsumption(ctx context.Context, userID string, period Period, freeDelta, paidDelta int64) error
	CreditBalance(ctx context.Context, userID string, amount int64) error
}

// ChatStore persists conversation threads.
//
// FindOrCreateDirect is an atomic upsert keyed by (user, account, recipient):
// concurrent first-contact sends for the same recipient must converge on a
// single row.
type ChatStore interface {
	FindOrCreateDirect(ctx context.Context, userID, accountID, recipient string) (*Chat, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Chat, error)
	TouchPreview(ctx context.Context, id uuid.UUID, preview string) error
}

// MessageStore persists message rows.
type MessageStore interface {
	Insert(ctx context.Context, msg *Message) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status, errorText string) error
	ListRecent(ctx context.Context, chatID uuid.UUID, limit int) ([]Message, error)
}

// IntegrationStore persists per-user integration connections.
type IntegrationStore interface {
	ListByUser(ctx context.Context, userID string) ([]IntegrationRecord, error)
	Upsert(ctx context.Context, rec *IntegrationRecord) error
	Disconnect(ctx context.Context, userID, integrationID string) error
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Wallets      WalletStore
	Chats        ChatStore
	Messages     MessageStore
	Integrations IntegrationStore
}
