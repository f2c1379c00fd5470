// Package memory provides in-process store implementations used by tests
// and by standalone (no-Postgres) deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sendloop/sendloop/internal/store"
)

// NewStores creates a full in-memory store set.
func NewStores() *store.Stores {
	return &store.Stores{
		Wallets:      NewWalletStore(),
		Chats:        NewChatStore(),
		Messages:     NewMessageStore(),
		Integrations: NewIntegrationStore(),
	}
}

// --- wallets ---

type usageKey struct {
	userID string
	period store.Period
}

// WalletStore is an in-memory store.WalletStore. A single mutex stands in
// for the SQL transaction: both consumption mutations commit or neither.
type WalletStore struct {
	mu      sync.Mutex
	wallets map[string]*store.Wallet
	usage   map[usageKey]*store.MonthlyUsage
}

func NewWalletStore() *WalletStore {
	return &WalletStore{
		wallets: make(map[string]*store.Wallet),
		usage:   make(map[usageKey]*store.MonthlyUsage),
	}
}

func (s *WalletStore) GetOrCreateWallet(_ context.Context, userID string) (*store.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.walletLocked(userID)
	cp := *w
	return &cp, nil
}

func (s *WalletStore) walletLocked(userID string) *store.Wallet {
	w, ok := s.wallets[userID]
	if !ok {
		w = &store.Wallet{UserID: userID, Updated: time.Now().UTC()}
		s.wallets[userID] = w
	}
	return w
}

func (s *WalletStore) GetOrCreateUsage(_ context.Context, userID string, period store.Period) (*store.MonthlyUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.usageLocked(userID, period)
	cp := *u
	return &cp, nil
}

func (s *WalletStore) usageLocked(userID string, period store.Period) *store.MonthlyUsage {
	k := usageKey{userID: userID, period: period}
	u, ok := s.usage[k]
	if !ok {
		u = &store.MonthlyUsage{UserID: userID, Year: period.Year, Month: period.Month}
		s.usage[k] = u
	}
	return u
}

func (s *WalletStore) ApplyConsumption(_ context.Context, userID string, period store.Period, freeDelta, paidDelta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.walletLocked(userID)
	if paidDelta > 0 && w.Balance < paidDelta {
		return store.ErrInsufficientBalance
	}
	if freeDelta > 0 {
		s.usageLocked(userID, period).Used += freeDelta
	}
	if paidDelta > 0 {
		w.Balance -= paidDelta
		w.Updated = time.Now().UTC()
	}
	return nil
}

func (s *WalletStore) CreditBalance(_ context.Context, userID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.walletLocked(userID)
	w.Balance += amount
	w.Updated = time.Now().UTC()
	return nil
}

// --- chats ---

type chatKey struct {
	userID, accountID, recipient string
}

// ChatStore is an in-memory store.ChatStore.
type ChatStore struct {
	mu     sync.Mutex
	byKey  map[chatKey]*store.Chat
	byID   map[uuid.UUID]*store.Chat
}

func NewChatStore() *ChatStore {
	return &ChatStore{
		byKey: make(map[chatKey]*store.Chat),
		byID:  make(map[uuid.UUID]*store.Chat),
	}
}

func (s *ChatStore) FindOrCreateDirect(_ context.Context, userID, accountID, recipient string) (*store.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := chatKey{userID: userID, accountID: accountID, recipient: recipient}
	if c, ok := s.byKey[k]; ok {
		cp := *c
		return &cp, nil
	}
	c := &store.Chat{
		ID:           store.GenNewID(),
		UserID:       userID,
		AccountID:    accountID,
		Kind:         store.ChatDirect,
		Participants: []string{recipient},
		CreatedAt:    time.Now().UTC(),
	}
	s.byKey[k] = c
	s.byID[c.ID] = c
	cp := *c
	return &cp, nil
}

// AddBroadcast registers a broadcast chat directly (test/standalone helper;
// broadcast chats are normally created by the surrounding product surface).
func (s *ChatStore) AddBroadcast(c *store.Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = store.GenNewID()
	}
	c.Kind = store.ChatBroadcast
	s.byID[c.ID] = c
}

func (s *ChatStore) GetByID(_ context.Context, id uuid.UUID) (*store.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("chat %s not found", id)
	}
	cp := *c
	return &cp, nil
}

func (s *ChatStore) TouchPreview(_ context.Context, id uuid.UUID, preview string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("chat %s not found", id)
	}
	c.LastMessage = preview
	c.LastMessageAt = time.Now().UTC()
	return nil
}

// --- messages ---

// MessageStore is an in-memory store.MessageStore.
type MessageStore struct {
	mu   sync.Mutex
	rows []*store.Message
}

func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

func (s *MessageStore) Insert(_ context.Context, msg *store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == uuid.Nil {
		msg.ID = store.GenNewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	cp := *msg
	s.rows = append(s.rows, &cp)
	return nil
}

func (s *MessageStore) UpdateStatus(_ context.Context, id uuid.UUID, status, errorText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.rows {
		if m.ID == id {
			m.Status = status
			m.ErrorText = errorText
			return nil
		}
	}
	return fmt.Errorf("message %s not found", id)
}

func (s *MessageStore) ListRecent(_ context.Context, chatID uuid.UUID, limit int) ([]store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	var out []store.Message
	for _, m := range s.rows {
		if m.ChatID == chatID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// All returns a copy of every stored message (test helper).
func (s *MessageStore) All() []store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Message, 0, len(s.rows))
	for _, m := range s.rows {
		out = append(out, *m)
	}
	return out
}

// --- integrations ---

type integrationKey struct {
	userID, integrationID string
}

// IntegrationStore is an in-memory store.IntegrationStore.
type IntegrationStore struct {
	mu   sync.Mutex
	recs map[integrationKey]*store.IntegrationRecord
}

func NewIntegrationStore() *IntegrationStore {
	return &IntegrationStore{recs: make(map[integrationKey]*store.IntegrationRecord)}
}

func (s *IntegrationStore) ListByUser(_ context.Context, userID string) ([]store.IntegrationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.IntegrationRecord
	for k, rec := range s.recs {
		if k.userID == userID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IntegrationID < out[j].IntegrationID })
	return out, nil
}

func (s *IntegrationStore) Upsert(_ context.Context, rec *store.IntegrationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.UpdatedAt = time.Now().UTC()
	cp := *rec
	s.recs[integrationKey{userID: rec.UserID, integrationID: rec.IntegrationID}] = &cp
	return nil
}

func (s *IntegrationStore) Disconnect(_ context.Context, userID, integrationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[integrationKey{userID: userID, integrationID: integrationID}]
	if !ok {
		return fmt.Errorf("integration %s not found for user %s", integrationID, userID)
	}
	rec.Active = false
	rec.Status = store.IntegrationNotConnected
	rec.Credentials = map[string]string{}
	rec.UpdatedAt = time.Now().UTC()
	return nil
}
