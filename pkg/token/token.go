// Package token implements the fungible-token ledger the exchange settles
// against: standard transfer/approve/transferFrom semantics over
// arbitrary-precision balances. A Registry of tokens doubles as the
// exchange's asset-ledger client, both in tests and in the daemon.
package token

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Default parameters of the Solski token.
const (
	DefaultName     = "Solski Token"
	DefaultSymbol   = "SLK"
	DefaultDecimals = 18
)

// Ledger failures.
var (
	ErrInsufficientBalance   = fmt.Errorf("token: insufficient balance")
	ErrInsufficientAllowance = fmt.Errorf("token: insufficient allowance")
)

// Token is one fungible-token ledger.
type Token struct {
	addr     common.Address
	name     string
	symbol   string
	decimals uint8

	mu          sync.RWMutex
	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int // owner -> spender -> amount
}

// New creates a token ledger and assigns the full supply to the deployer.
func New(addr common.Address, name, symbol string, decimals uint8, totalSupply *big.Int, deployer common.Address) *Token {
	t := &Token{
		addr:        addr,
		name:        name,
		symbol:      symbol,
		decimals:    decimals,
		totalSupply: new(big.Int).Set(totalSupply),
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
	}
	t.balances[deployer] = new(big.Int).Set(totalSupply)
	return t
}

// NewSolski creates the default token: 1,000,000 units of 18 decimals,
// all minted to the deployer.
func NewSolski(addr, deployer common.Address) *Token {
	supply := new(big.Int).Mul(big.NewInt(1_000_000), Pow10(DefaultDecimals))
	return New(addr, DefaultName, DefaultSymbol, DefaultDecimals, supply, deployer)
}

// Pow10 returns 10^n as a big integer. Handy for whole-unit amounts:
// Units(5) of an 18-decimal token is 5 * Pow10(18).
func Pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// Units converts whole token units to the 18-decimal base representation.
func Units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Pow10(DefaultDecimals))
}

func (t *Token) Address() common.Address { return t.addr }
func (t *Token) Name() string            { return t.name }
func (t *Token) Symbol() string          { return t.symbol }
func (t *Token) Decimals() uint8         { return t.decimals }

// TotalSupply returns the fixed total supply.
func (t *Token) TotalSupply() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.totalSupply)
}

// BalanceOf returns the holder's balance, zero if absent.
func (t *Token) BalanceOf(holder common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if b, ok := t.balances[holder]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Allowance returns how much spender may still pull from owner.
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if m, ok := t.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return new(big.Int).Set(a)
		}
	}
	return new(big.Int)
}

// Transfer moves amount from the caller to the recipient.
func (t *Token) Transfer(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("token: transfer amount cannot be negative: %s", amount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(from, to, amount)
}

// Approve lets spender pull up to amount from the caller's balance.
// Overwrites any previous allowance.
func (t *Token) Approve(owner, spender common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("token: allowance cannot be negative: %s", amount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[common.Address]*big.Int)
		t.allowances[owner] = m
	}
	m[spender] = new(big.Int).Set(amount)
	return nil
}

// TransferFrom moves amount from owner to recipient on behalf of spender,
// consuming spender's allowance. Fails without touching balances if the
// allowance or the owner's balance is short.
func (t *Token) TransferFrom(spender, owner, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("token: transfer amount cannot be negative: %s", amount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.allowances[owner]
	allowed, ok := m[spender]
	if !ok || allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: spender %s", ErrInsufficientAllowance, spender.Hex())
	}
	if err := t.move(owner, to, amount); err != nil {
		return err
	}
	allowed.Sub(allowed, amount)
	return nil
}

// move shifts balance between holders. Caller holds the lock.
func (t *Token) move(from, to common.Address, amount *big.Int) error {
	src, ok := t.balances[from]
	if !ok || src.Cmp(amount) < 0 {
		return fmt.Errorf("%w: holder %s", ErrInsufficientBalance, from.Hex())
	}
	dst, ok := t.balances[to]
	if !ok {
		dst = new(big.Int)
		t.balances[to] = dst
	}
	src.Sub(src, amount)
	dst.Add(dst, amount)
	return nil
}
