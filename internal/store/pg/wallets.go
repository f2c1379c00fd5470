package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sendloop/sendloop/internal/store"
)

// PGWalletStore implements store.WalletStore backed by Postgres.
//
// All consumption math happens inside one transaction so two concurrent
// sends for the same user can never jointly overdraw the paid balance.
type PGWalletStore struct {
	db *sql.DB
}

func NewPGWalletStore(db *sql.DB) *PGWalletStore {
	return &PGWalletStore{db: db}
}

func (s *PGWalletStore) GetOrCreateWallet(ctx context.Context, userID string) (*store.Wallet, error) {
	// Idempotent upsert, then read. Safe under concurrent first-touch.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO wallets (user_id, balance, updated_at)
		 VALUES ($1, 0, $2) ON CONFLICT (user_id) DO NOTHING`,
		userID, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert wallet: %w", err)
	}

	w := &store.Wallet{UserID: userID}
	err = s.db.QueryRowContext(ctx,
		`SELECT balance, updated_at FROM wallets WHERE user_id = $1`,
		userID,
	).Scan(&w.Balance, &w.Updated)
	if err != nil {
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	return w, nil
}

func (s *PGWalletStore) GetOrCreateUsage(ctx context.Context, userID string, period store.Period) (*store.MonthlyUsage, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO monthly_usage (user_id, year, month, used)
		 VALUES ($1, $2, $3, 0) ON CONFLICT (user_id, year, month) DO NOTHING`,
		userID, period.Year, period.Month,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert monthly usage: %w", err)
	}

	u := &store.MonthlyUsage{UserID: userID, Year: period.Year, Month: period.Month}
	err = s.db.QueryRowContext(ctx,
		`SELECT used FROM monthly_usage WHERE user_id = $1 AND year = $2 AND month = $3`,
		userID, period.Year, period.Month,
	).Scan(&u.Used)
	if err != nil {
		return nil, fmt.Errorf("load monthly usage: %w", err)
	}
	return u, nil
}

// ApplyConsumption increments free-tier usage and conditionally decrements
// the paid balance in a single transaction. The decrement's WHERE clause is
// the overdraw guard: zero rows affected means insufficient balance, and the
// whole transaction rolls back (including the free increment).
func (s *PGWalletStore) ApplyConsumption(ctx context.Context, userID string, period store.Period, freeDelta, paidDelta int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin consumption tx: %w", err)
	}
	defer tx.Rollback()

	if freeDelta > 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO monthly_usage (user_id, year, month, used)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id, year, month) DO UPDATE SET used = monthly_usage.used + $4`,
			userID, period.Year, period.Month, freeDelta,
		)
		if err != nil {
			return fmt.Errorf("increment free usage: %w", err)
		}
	}

	if paidDelta > 0 {
		res, err := tx.ExecContext(ctx,
			`UPDATE wallets SET balance = balance - $1, updated_at = $2
			 WHERE user_id = $3 AND balance >= $1`,
			paidDelta, time.Now().UTC(), userID,
		)
		if err != nil {
			return fmt.Errorf("decrement balance: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("decrement balance rows: %w", err)
		}
		if n == 0 {
			return store.ErrInsufficientBalance
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit consumption tx: %w", err)
	}
	return nil
}

func (s *PGWalletStore) CreditBalance(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO wallets (user_id, balance, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET balance = wallets.balance + $2, updated_at = $3`,
		userID, amount, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	return nil
}
