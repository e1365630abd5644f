// Package custody holds the in-process reference ledger that executes the
// transfer batches produced by the engine. Balances are kept per asset and
// account; a batch either applies in full or not at all.
package custody

import (
	"context"
	"fmt"
	"sync"

	"predictpool/internal/market"
	"predictpool/pkg/types"
)

// Balances is the serialisable form of the ledger: asset -> account -> amount.
type Balances map[string]map[types.Account]uint64

// Ledger is a mutex-guarded balance book.
type Ledger struct {
	mu       sync.Mutex
	balances Balances
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(Balances)}
}

// Deposit credits amount of asset to acct.
func (l *Ledger) Deposit(asset string, acct types.Account, amount uint64) error {
	if amount == 0 {
		return market.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	book := l.book(asset)
	next := book[acct] + amount
	if next < amount {
		return fmt.Errorf("deposit %s to %s: %w", asset, acct, market.ErrMathOverflow)
	}
	book[acct] = next
	return nil
}

// Balance returns acct's holding of asset.
func (l *Ledger) Balance(asset string, acct types.Account) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[asset][acct]
}

// Execute applies transfers in order. If any leg would overdraw its source
// or overflow its destination, no leg is applied.
func (l *Ledger) Execute(ctx context.Context, transfers []types.Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	// Work on a scratch view of only the touched entries.
	type key struct {
		asset string
		acct  types.Account
	}
	scratch := make(map[key]uint64)
	get := func(k key) uint64 {
		if v, ok := scratch[k]; ok {
			return v
		}
		return l.balances[k.asset][k.acct]
	}

	for i, t := range transfers {
		if t.Amount == 0 {
			continue
		}
		from := key{t.Asset, t.From}
		to := key{t.Asset, t.To}

		src := get(from)
		if src < t.Amount {
			return fmt.Errorf("transfer %d: %s holds %d %s, needs %d: %w",
				i, t.From, src, t.Asset, t.Amount, market.ErrInsufficientBalance)
		}
		scratch[from] = src - t.Amount

		dst := get(to)
		if dst+t.Amount < dst {
			return fmt.Errorf("transfer %d to %s: %w", i, t.To, market.ErrMathOverflow)
		}
		scratch[to] = dst + t.Amount
	}

	for k, v := range scratch {
		l.book(k.asset)[k.acct] = v
	}
	return nil
}

// Snapshot returns a deep copy of every balance.
func (l *Ledger) Snapshot() Balances {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(Balances, len(l.balances))
	for asset, book := range l.balances {
		cp := make(map[types.Account]uint64, len(book))
		for acct, v := range book {
			cp[acct] = v
		}
		out[asset] = cp
	}
	return out
}

// Restore replaces the ledger contents with b.
func (l *Ledger) Restore(b Balances) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances = make(Balances, len(b))
	for asset, book := range b {
		cp := make(map[types.Account]uint64, len(book))
		for acct, v := range book {
			cp[acct] = v
		}
		l.balances[asset] = cp
	}
}

func (l *Ledger) book(asset string) map[types.Account]uint64 {
	b, ok := l.balances[asset]
	if !ok {
		b = make(map[types.Account]uint64)
		l.balances[asset] = b
	}
	return b
}
