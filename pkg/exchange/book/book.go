// Package book tracks resting orders and their lifecycle.
//
// An order moves Open -> Filled or Open -> Cancelled and never leaves a
// terminal state. Orders are never deleted: the full history stays
// queryable for auditing. Funds backing an order stay in the creator's
// balance until fill time, so a resting order is a standing intent, not
// an escrow.
package book

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Order is a resting limit order: the creator wants AmountGet of TokenGet
// in exchange for AmountGive of TokenGive.
type Order struct {
	ID         uint64         `json:"id"`
	User       common.Address `json:"user"`
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  *big.Int       `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive *big.Int       `json:"amountGive"`
	Timestamp  int64          `json:"timestamp"` // Unix milliseconds, monotonic, non-zero
}

// Copy returns a deep copy of the order.
func (o *Order) Copy() *Order {
	c := *o
	c.AmountGet = new(big.Int).Set(o.AmountGet)
	c.AmountGive = new(big.Int).Set(o.AmountGive)
	return &c
}

// Lifecycle failures. The exchange facade wraps these into its public
// error taxonomy.
var (
	ErrNotFound  = fmt.Errorf("order not found")
	ErrFinalized = fmt.Errorf("order already finalized")
)

// Book owns all order records plus their filled/cancelled flags.
// Flags live out-of-band from the order record itself. Creation is
// two-phase: the caller stages an order under NextID, makes it durable,
// then commits it with Put, so a failed write never consumes an ID.
type Book struct {
	mu        sync.RWMutex
	orders    map[uint64]*Order
	filled    map[uint64]bool
	cancelled map[uint64]bool
	nextID    uint64 // next ID to assign; IDs start at 1 and never repeat
}

// NewBook creates an empty order book.
func NewBook() *Book {
	return &Book{
		orders:    make(map[uint64]*Order),
		filled:    make(map[uint64]bool),
		cancelled: make(map[uint64]bool),
		nextID:    1,
	}
}

// NextID returns the ID the next committed order will carry.
func (b *Book) NextID() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextID
}

// Put inserts a fully formed order with its flags, advancing the ID
// sequence past it. Used to commit a staged order and to rehydrate from
// storage. The book takes ownership of the record.
func (b *Book) Put(o *Order, filled, cancelled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.orders[o.ID] = o
	if filled {
		b.filled[o.ID] = true
	}
	if cancelled {
		b.cancelled[o.ID] = true
	}
	if o.ID >= b.nextID {
		b.nextID = o.ID + 1
	}
}

// Get returns a copy of the order record, or ErrNotFound. Mutating the
// copy does not affect the book.
func (b *Book) Get(id uint64) (*Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	o, ok := b.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return o.Copy(), nil
}

// Count returns how many orders have ever been created.
func (b *Book) Count() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextID - 1
}

// Filled reports whether the order has been filled.
func (b *Book) Filled(id uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filled[id]
}

// Cancelled reports whether the order has been cancelled.
func (b *Book) Cancelled(id uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cancelled[id]
}

// Open returns the order if it exists and is not in a terminal state.
// Used by settlement before touching any balances. The returned record
// is the live entry; callers read it under the operation lock and must
// not mutate or retain it.
func (b *Book) Open(id uint64) (*Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	o, ok := b.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if b.filled[id] || b.cancelled[id] {
		return nil, fmt.Errorf("%w: id %d", ErrFinalized, id)
	}
	return o, nil
}

// MarkFilled transitions an open order to Filled. Called by settlement
// after the write is durable.
func (b *Book) MarkFilled(id uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mark(id, b.filled)
}

// MarkCancelled transitions an open order to Cancelled. Authorization
// is the facade's concern; the book only enforces the lifecycle.
func (b *Book) MarkCancelled(id uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mark(id, b.cancelled)
}

// mark sets a terminal flag. Caller holds the lock.
func (b *Book) mark(id uint64, flags map[uint64]bool) error {
	if _, ok := b.orders[id]; !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if b.filled[id] || b.cancelled[id] {
		return fmt.Errorf("%w: id %d", ErrFinalized, id)
	}
	flags[id] = true
	return nil
}
