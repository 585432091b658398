// Package balance implements the exchange's custodial balance store: the
// single source of truth for how much of each asset every account holds
// inside the exchange.
package balance

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Key identifies one balance entry: (asset, account).
type Key struct {
	Asset   common.Address
	Account common.Address
}

// ErrInsufficient is returned by Debit when the stored balance is smaller
// than the requested amount. Callers wrap it into the exchange-level error.
var ErrInsufficient = fmt.Errorf("insufficient balance")

// Store maps (asset, account) to a non-negative arbitrary-precision amount.
// All operations are atomic with respect to each other; no operation can
// drive a balance negative.
type Store struct {
	mu       sync.RWMutex
	balances map[Key]*big.Int
}

// NewStore creates an empty balance store.
func NewStore() *Store {
	return &Store{balances: make(map[Key]*big.Int)}
}

// Credit increases the stored balance by amount. Amount must be >= 0.
func (s *Store) Credit(assetID, account common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("credit amount cannot be negative: %s", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := Key{Asset: assetID, Account: account}
	cur, ok := s.balances[k]
	if !ok {
		cur = new(big.Int)
		s.balances[k] = cur
	}
	cur.Add(cur, amount)
	return nil
}

// Debit decreases the stored balance by amount.
// Fails with ErrInsufficient if the balance is smaller than amount; the
// entry is left untouched in that case.
func (s *Store) Debit(assetID, account common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("debit amount cannot be negative: %s", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := Key{Asset: assetID, Account: account}
	cur, ok := s.balances[k]
	if !ok || cur.Cmp(amount) < 0 {
		have := new(big.Int)
		if ok {
			have = cur
		}
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficient, have, amount)
	}
	cur.Sub(cur, amount)
	return nil
}

// Get returns the stored balance, or zero if the entry is absent.
// The returned value is a copy; mutating it does not affect the store.
func (s *Store) Get(assetID, account common.Address) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cur, ok := s.balances[Key{Asset: assetID, Account: account}]; ok {
		return new(big.Int).Set(cur)
	}
	return new(big.Int)
}

// Set overwrites a balance entry. Used when rehydrating from storage.
func (s *Store) Set(assetID, account common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("balance cannot be negative: %s", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[Key{Asset: assetID, Account: account}] = new(big.Int).Set(amount)
	return nil
}

// Entries returns a snapshot copy of every balance entry.
func (s *Store) Entries() map[Key]*big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[Key]*big.Int, len(s.balances))
	for k, v := range s.balances {
		out[k] = new(big.Int).Set(v)
	}
	return out
}

// Journal records balance mutations so a multi-leg operation can be
// reversed if a later leg fails. Settlement applies every leg through the
// journal and calls Revert on the first failure, restoring the store to
// its pre-operation state.
type Journal struct {
	store   *Store
	applied []entry
}

type entry struct {
	key    Key
	amount *big.Int // positive = was credited, negative = was debited
}

// NewJournal creates a journal over the given store.
func NewJournal(store *Store) *Journal {
	return &Journal{store: store}
}

// Credit applies a credit and records it for reversal.
func (j *Journal) Credit(assetID, account common.Address, amount *big.Int) error {
	if err := j.store.Credit(assetID, account, amount); err != nil {
		return err
	}
	j.applied = append(j.applied, entry{
		key:    Key{Asset: assetID, Account: account},
		amount: new(big.Int).Set(amount),
	})
	return nil
}

// Debit applies a debit and records it for reversal.
func (j *Journal) Debit(assetID, account common.Address, amount *big.Int) error {
	if err := j.store.Debit(assetID, account, amount); err != nil {
		return err
	}
	j.applied = append(j.applied, entry{
		key:    Key{Asset: assetID, Account: account},
		amount: new(big.Int).Neg(amount),
	})
	return nil
}

// Touched returns the balance keys mutated so far, in application order.
func (j *Journal) Touched() []Key {
	keys := make([]Key, len(j.applied))
	for i, e := range j.applied {
		keys[i] = e.key
	}
	return keys
}

// Revert undoes every applied mutation in reverse order.
func (j *Journal) Revert() {
	for i := len(j.applied) - 1; i >= 0; i-- {
		e := j.applied[i]
		if e.amount.Sign() >= 0 {
			// Was a credit: take it back. Cannot fail, the funds are there.
			if err := j.store.Debit(e.key.Asset, e.key.Account, e.amount); err != nil {
				panic(fmt.Sprintf("journal revert failed: %v", err))
			}
		} else {
			if err := j.store.Credit(e.key.Asset, e.key.Account, new(big.Int).Neg(e.amount)); err != nil {
				panic(fmt.Sprintf("journal revert failed: %v", err))
			}
		}
	}
	j.applied = nil
}
