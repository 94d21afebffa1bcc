package account

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type BalanceSource interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
}

// Wallet caches the signed-in user's balance. The server stays authoritative.
type Wallet struct {
	Source BalanceSource

	mu        sync.RWMutex
	balance   decimal.Decimal
	known     bool
	updatedAt time.Time
}

func NewWallet(src BalanceSource) *Wallet {
	return &Wallet{Source: src}
}

// Balance returns the cached amount and whether it was ever loaded.
func (w *Wallet) Balance() (decimal.Decimal, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.balance, w.known
}

func (w *Wallet) UpdatedAt() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.updatedAt
}

func (w *Wallet) Set(amount decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balance = amount
	w.known = true
	w.updatedAt = time.Now()
}

func (w *Wallet) Refresh(ctx context.Context) (decimal.Decimal, error) {
	if w.Source == nil {
		b, _ := w.Balance()
		return b, nil
	}
	b, err := w.Source.Balance(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("refresh balance: %w", err)
	}
	w.Set(b)
	return b, nil
}

// Reset forgets the cached balance, e.g. on logout.
func (w *Wallet) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balance = decimal.Zero
	w.known = false
	w.updatedAt = time.Time{}
}
