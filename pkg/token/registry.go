package token

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnknownToken is returned when a transfer names an unregistered asset.
var ErrUnknownToken = fmt.Errorf("token: unknown token")

// Registry maps token addresses to their ledgers and exposes them through
// the exchange's asset-ledger interface. The custodian address is the
// exchange's own account: TransferFrom pulls into it using the exchange's
// allowance, Transfer pushes out of it.
type Registry struct {
	custodian common.Address

	mu     sync.RWMutex
	tokens map[common.Address]*Token
}

// NewRegistry creates a registry whose custody account is custodian.
func NewRegistry(custodian common.Address) *Registry {
	return &Registry{
		custodian: custodian,
		tokens:    make(map[common.Address]*Token),
	}
}

// Register adds a token ledger under its address.
func (r *Registry) Register(t *Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[t.Address()] = t
}

// Get returns the ledger for a token address.
func (r *Registry) Get(addr common.Address) (*Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[addr]
	return t, ok
}

// TransferFrom pulls amount of tokenID from the owner into custody,
// spending the custodian's allowance.
func (r *Registry) TransferFrom(tokenID, from, to common.Address, amount *big.Int) error {
	t, ok := r.Get(tokenID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, tokenID.Hex())
	}
	return t.TransferFrom(r.custodian, from, to, amount)
}

// Transfer pushes amount of tokenID out of custody to the recipient.
func (r *Registry) Transfer(tokenID, to common.Address, amount *big.Int) error {
	t, ok := r.Get(tokenID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, tokenID.Hex())
	}
	return t.Transfer(r.custodian, to, amount)
}

// BalanceOf reports a holder's on-ledger balance of tokenID.
func (r *Registry) BalanceOf(tokenID, account common.Address) *big.Int {
	t, ok := r.Get(tokenID)
	if !ok {
		return new(big.Int)
	}
	return t.BalanceOf(account)
}
