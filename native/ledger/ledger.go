// Package ledger provides an in-process stand-in for the settlement token
// ledger every other native package drives through staking.TokenSink. The
// hub treats the real asset ledger as an external collaborator it only
// calls into (deposits, withdrawals, fee sweeps); this package exists so
// cmd/hubd has a concrete, dependency-free implementation to wire that
// interface to when no external settlement chain is configured.
package ledger

import (
	"fmt"
	"sync"

	"photon/crypto"
)

// Ledger is a balance sheet keyed by identity, safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	balances map[crypto.Identity]uint64
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{balances: make(map[crypto.Identity]uint64)}
}

// Credit adds amount to to's balance.
func (l *Ledger) Credit(to crypto.Identity, amount uint64) {
	if amount == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[to] += amount
}

// Debit subtracts amount from from's balance, failing if the balance is
// insufficient.
func (l *Ledger) Debit(from crypto.Identity, amount uint64) error {
	if amount == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from] < amount {
		return fmt.Errorf("ledger: %s has insufficient balance for %d", from, amount)
	}
	l.balances[from] -= amount
	return nil
}

// BalanceOf reports id's current balance.
func (l *Ledger) BalanceOf(id crypto.Identity) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[id]
}

// Fund seeds an identity's balance; used at startup and in tests, never
// during request handling.
func (l *Ledger) Fund(id crypto.Identity, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[id] += amount
}
