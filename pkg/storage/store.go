// Package storage provides Pebble-backed persistence for the exchange:
// balances, orders with their lifecycle flags, and the event journal.
// Each exchange operation writes through a single
// atomic batch, so a crash can never leave a half-applied operation on
// disk.
package storage

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/solski/exchange/pkg/exchange/book"
	"github.com/solski/exchange/pkg/exchange/event"
)

// Store wraps a Pebble database. Thread safety comes from the exchange's
// operation lock; the store itself does no locking.
type Store struct {
	db *pebble.DB
}

// BalanceRecord is the on-disk form of one balance entry.
type BalanceRecord struct {
	Asset   common.Address `json:"asset"`
	Account common.Address `json:"account"`
	Amount  *big.Int       `json:"amount"`
}

// OrderRecord is the on-disk form of an order plus its lifecycle flags.
type OrderRecord struct {
	Order     *book.Order `json:"order"`
	Filled    bool        `json:"filled"`
	Cancelled bool        `json:"cancelled"`
}

// Open opens (or creates) the exchange database at path.
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(64 << 20),
		MemTableSize: 32 << 20,
		MaxOpenFiles: 1000,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadBalances scans every persisted balance entry.
func (s *Store) LoadBalances() ([]BalanceRecord, error) {
	prefix := []byte(prefixBalance)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var records []BalanceRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var rec BalanceRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("corrupt balance record at %q: %w", iter.Key(), err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// LoadOrders scans every persisted order in ID order.
func (s *Store) LoadOrders() ([]OrderRecord, error) {
	prefix := []byte(prefixOrder)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var records []OrderRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var rec OrderRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("corrupt order record at %q: %w", iter.Key(), err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// LoadEvents scans the event journal in sequence order.
func (s *Store) LoadEvents() ([]event.Event, error) {
	prefix := []byte(prefixEvent)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var events []event.Event
	for iter.First(); iter.Valid(); iter.Next() {
		var e event.Event
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("corrupt event record at %q: %w", iter.Key(), err)
		}
		events = append(events, e)
	}
	return events, nil
}

// Batch accumulates the writes of one exchange operation and commits
// them atomically.
type Batch interface {
	SetBalance(assetID, account common.Address, amount *big.Int) error
	SetOrder(o *book.Order, filled, cancelled bool) error
	AppendEvent(e event.Event) error
	DeleteEvent(seq uint64) error
	Commit() error
	Close() error
}

type batch struct {
	b *pebble.Batch
}

// NewBatch starts a write batch.
func (s *Store) NewBatch() Batch {
	return &batch{b: s.db.NewBatch()}
}

// SetBalance stages one balance entry.
func (b *batch) SetBalance(assetID, account common.Address, amount *big.Int) error {
	data, err := json.Marshal(BalanceRecord{Asset: assetID, Account: account, Amount: amount})
	if err != nil {
		return err
	}
	return b.b.Set(balanceKey(assetID, account), data, nil)
}

// SetOrder stages an order record with its flags.
func (b *batch) SetOrder(o *book.Order, filled, cancelled bool) error {
	data, err := json.Marshal(OrderRecord{Order: o, Filled: filled, Cancelled: cancelled})
	if err != nil {
		return err
	}
	return b.b.Set(orderKey(o.ID), data, nil)
}

// AppendEvent stages one event journal entry under its sequence number.
func (b *batch) AppendEvent(e event.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.b.Set(eventKey(e.Seq), data, nil)
}

// DeleteEvent removes a journal entry written by an operation that was
// subsequently unwound.
func (b *batch) DeleteEvent(seq uint64) error {
	return b.b.Delete(eventKey(seq), nil)
}

// Commit durably applies the batch.
func (b *batch) Commit() error {
	return b.b.Commit(pebble.Sync)
}

// Close discards the batch without committing.
func (b *batch) Close() error {
	return b.b.Close()
}
