// Package exchange implements the custodial settlement engine: per-user
// balances of ether and fungible tokens, resting limit orders against
// those balances, direct one-to-one fills with a proportional fee, and an
// append-only event stream.
//
// Every public operation is serialized behind one lock and is atomic:
// it either fully applies or is fully rejected with a sentinel error and
// no state change (see errors.go). Each operation makes its writes
// durable before the new state becomes observable: balances applied
// ahead of the commit are reverted if the commit fails, and the order
// book and event stream are only updated afterwards.
package exchange

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/solski/exchange/pkg/exchange/asset"
	"github.com/solski/exchange/pkg/exchange/balance"
	"github.com/solski/exchange/pkg/exchange/book"
	"github.com/solski/exchange/pkg/exchange/event"
	"github.com/solski/exchange/pkg/exchange/fee"
	"github.com/solski/exchange/pkg/storage"
	"github.com/solski/exchange/pkg/util"
)

// AssetLedger is the capability interface to the external fungible-token
// ledger. The exchange pulls tokens in on deposit and pushes them out on
// withdrawal. Any failure aborts the enclosing operation as
// ErrTransferFailed. Implementations must be synchronous: the call's
// outcome is known before it returns.
type AssetLedger interface {
	// TransferFrom pulls amount of tokenID from the owner into custody.
	TransferFrom(tokenID, from, to common.Address, amount *big.Int) error
	// Transfer pushes amount of tokenID out of custody to the recipient.
	Transfer(tokenID, to common.Address, amount *big.Int) error
	// BalanceOf reports a holder's on-ledger balance of tokenID.
	BalanceOf(tokenID, account common.Address) *big.Int
}

// Store is the persistence surface the exchange writes through.
// *storage.Store implements it.
type Store interface {
	LoadBalances() ([]storage.BalanceRecord, error)
	LoadOrders() ([]storage.OrderRecord, error)
	LoadEvents() ([]event.Event, error)
	NewBatch() storage.Batch
}

// Config carries the construction parameters of an Exchange.
// FeeAccount and FeePercent are immutable for the instance's lifetime.
type Config struct {
	Address    common.Address // the exchange's own custody account on the token ledger
	FeeAccount common.Address // credited with every fill's fee
	FeePercent uint64         // non-negative integer percentage
	Ledger     AssetLedger    // required
	Store      Store          // optional: nil runs in-memory only
	Clock      util.Clock     // optional: defaults to wall clock
	Logger     *zap.SugaredLogger
}

// Exchange composes the balance store, order book, fee engine, and event
// log behind a single coarse operation lock.
type Exchange struct {
	mu sync.Mutex

	addr       common.Address
	feeAccount common.Address
	fees       *fee.Engine

	balances *balance.Store
	book     *book.Book
	events   *event.Log

	ledger AssetLedger
	store  Store
	clock  util.Clock
	log    *zap.SugaredLogger

	lastTS int64 // last issued timestamp, for monotonicity
}

// New creates an exchange, rehydrating state from the store if one is
// configured.
func New(cfg Config) (*Exchange, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("exchange: asset ledger is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	x := &Exchange{
		addr:       cfg.Address,
		feeAccount: cfg.FeeAccount,
		fees:       fee.NewEngine(cfg.FeePercent),
		balances:   balance.NewStore(),
		book:       book.NewBook(),
		events:     event.NewLog(),
		ledger:     cfg.Ledger,
		store:      cfg.Store,
		clock:      cfg.Clock,
		log:        cfg.Logger,
	}

	if x.store != nil {
		if err := x.rehydrate(); err != nil {
			return nil, fmt.Errorf("exchange: rehydrate: %w", err)
		}
	}
	return x, nil
}

// rehydrate loads balances, orders, and the event journal from storage.
func (x *Exchange) rehydrate() error {
	bals, err := x.store.LoadBalances()
	if err != nil {
		return err
	}
	for _, rec := range bals {
		if err := x.balances.Set(rec.Asset, rec.Account, rec.Amount); err != nil {
			return err
		}
	}

	orders, err := x.store.LoadOrders()
	if err != nil {
		return err
	}
	for _, rec := range orders {
		x.book.Put(rec.Order, rec.Filled, rec.Cancelled)
		if rec.Order.Timestamp > x.lastTS {
			x.lastTS = rec.Order.Timestamp
		}
	}

	events, err := x.store.LoadEvents()
	if err != nil {
		return err
	}
	for _, e := range events {
		x.events.Restore(e)
		if e.Timestamp > x.lastTS {
			x.lastTS = e.Timestamp
		}
	}

	x.log.Infow("exchange_rehydrated",
		"balances", len(bals), "orders", len(orders), "events", len(events))
	return nil
}

// now returns a strictly positive, non-decreasing timestamp.
// Caller holds x.mu.
func (x *Exchange) now() int64 {
	ts := x.clock.Now().UnixMilli()
	if ts <= x.lastTS {
		ts = x.lastTS + 1
	}
	x.lastTS = ts
	return ts
}

// FeeAccount returns the fee-collector account.
func (x *Exchange) FeeAccount() common.Address { return x.feeAccount }

// FeePercent returns the configured fee percentage.
func (x *Exchange) FeePercent() uint64 { return x.fees.Percent() }

// BalanceOf returns the stored balance of asset for account; zero if the
// entry is absent. Pure read.
func (x *Exchange) BalanceOf(assetID, account common.Address) *big.Int {
	return x.balances.Get(assetID, account)
}

// OrderCount returns how many orders have ever been created.
func (x *Exchange) OrderCount() uint64 { return x.book.Count() }

// Orders returns a copy of the order record for id.
func (x *Exchange) Orders(id uint64) (*book.Order, error) {
	o, err := x.book.Get(id)
	if err != nil {
		return nil, fmt.Errorf("%w: id %d", ErrOrderNotFound, id)
	}
	return o, nil
}

// OrderFilled reports whether the order has been filled.
func (x *Exchange) OrderFilled(id uint64) bool { return x.book.Filled(id) }

// OrderCancelled reports whether the order has been cancelled.
func (x *Exchange) OrderCancelled(id uint64) bool { return x.book.Cancelled(id) }

// Events returns a snapshot of the full event stream.
func (x *Exchange) Events() []event.Event { return x.events.Events() }

// SubscribeEvents returns a channel receiving every event appended from
// now on.
func (x *Exchange) SubscribeEvents() <-chan event.Event { return x.events.Subscribe() }

// DepositEther credits amount of the native asset to the caller.
// Succeeds for any non-negative amount.
func (x *Exchange) DepositEther(caller common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("deposit amount cannot be negative: %s", amount)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	j := balance.NewJournal(x.balances)
	if err := j.Credit(asset.Ether, caller, amount); err != nil {
		return err
	}
	newBal := x.balances.Get(asset.Ether, caller)

	e := x.events.Stamp(event.Event{
		Kind:      event.KindDeposit,
		Asset:     asset.Ether,
		Account:   caller,
		Amount:    new(big.Int).Set(amount),
		Balance:   newBal,
		Timestamp: x.now(),
	})
	if err := x.persist(func(b storage.Batch) error {
		if err := b.SetBalance(asset.Ether, caller, newBal); err != nil {
			return err
		}
		return b.AppendEvent(e)
	}); err != nil {
		j.Revert()
		return err
	}
	x.events.Record(e)

	x.log.Infow("deposit_ether", "account", caller.Hex(), "amount", amount.String(), "balance", newBal.String())
	return nil
}

// Receive rejects native asset arriving through any path other than
// DepositEther.
func (x *Exchange) Receive(caller common.Address, amount *big.Int) error {
	return fmt.Errorf("%w: ether must use the deposit operation", ErrUnsupportedDeposit)
}

// DepositToken pulls amount of tokenID from the caller via the external
// ledger and credits the caller's exchange balance. The pull happens
// before any local mutation; if the write cannot be made durable the
// credit is reverted and the tokens are pushed back to the caller.
func (x *Exchange) DepositToken(tokenID common.Address, amount *big.Int, caller common.Address) error {
	if asset.IsEther(tokenID) {
		return fmt.Errorf("%w: ether must use the deposit operation", ErrInvalidAsset)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("deposit amount cannot be negative: %s", amount)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.ledger.TransferFrom(tokenID, caller, x.addr, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	j := balance.NewJournal(x.balances)
	if err := j.Credit(tokenID, caller, amount); err != nil {
		return err
	}
	newBal := x.balances.Get(tokenID, caller)

	e := x.events.Stamp(event.Event{
		Kind:      event.KindDeposit,
		Asset:     tokenID,
		Account:   caller,
		Amount:    new(big.Int).Set(amount),
		Balance:   newBal,
		Timestamp: x.now(),
	})
	if err := x.persist(func(b storage.Batch) error {
		if err := b.SetBalance(tokenID, caller, newBal); err != nil {
			return err
		}
		return b.AppendEvent(e)
	}); err != nil {
		j.Revert()
		// The pull went through; return the tokens to the caller.
		if terr := x.ledger.Transfer(tokenID, caller, amount); terr != nil {
			x.log.Errorw("deposit_unwind_failed",
				"token", tokenID.Hex(), "account", caller.Hex(), "amount", amount.String(), "err", terr)
		}
		return err
	}
	x.events.Record(e)

	x.log.Infow("deposit_token", "token", tokenID.Hex(), "account", caller.Hex(), "amount", amount.String(), "balance", newBal.String())
	return nil
}

// WithdrawEther debits amount of the native asset from the caller and
// releases it back to them.
func (x *Exchange) WithdrawEther(caller common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("withdraw amount cannot be negative: %s", amount)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	j := balance.NewJournal(x.balances)
	if err := j.Debit(asset.Ether, caller, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	}
	newBal := x.balances.Get(asset.Ether, caller)

	e := x.events.Stamp(event.Event{
		Kind:      event.KindWithdrawal,
		Asset:     asset.Ether,
		Account:   caller,
		Amount:    new(big.Int).Set(amount),
		Balance:   newBal,
		Timestamp: x.now(),
	})
	if err := x.persist(func(b storage.Batch) error {
		if err := b.SetBalance(asset.Ether, caller, newBal); err != nil {
			return err
		}
		return b.AppendEvent(e)
	}); err != nil {
		j.Revert()
		return err
	}
	x.events.Record(e)

	x.log.Infow("withdraw_ether", "account", caller.Hex(), "amount", amount.String(), "balance", newBal.String())
	return nil
}

// WithdrawToken debits amount of tokenID from the caller and pushes it
// out through the external ledger. The debit is made durable before the
// push: a crash between the two can only under-release, never let the
// caller withdraw twice. A rejected push unwinds the debit in memory and
// on disk.
func (x *Exchange) WithdrawToken(tokenID common.Address, amount *big.Int, caller common.Address) error {
	if asset.IsEther(tokenID) {
		return fmt.Errorf("%w: ether must use the withdraw operation", ErrInvalidAsset)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("withdraw amount cannot be negative: %s", amount)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	j := balance.NewJournal(x.balances)
	if err := j.Debit(tokenID, caller, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	}
	newBal := x.balances.Get(tokenID, caller)

	e := x.events.Stamp(event.Event{
		Kind:      event.KindWithdrawal,
		Asset:     tokenID,
		Account:   caller,
		Amount:    new(big.Int).Set(amount),
		Balance:   newBal,
		Timestamp: x.now(),
	})
	if err := x.persist(func(b storage.Batch) error {
		if err := b.SetBalance(tokenID, caller, newBal); err != nil {
			return err
		}
		return b.AppendEvent(e)
	}); err != nil {
		j.Revert()
		return err
	}

	if err := x.ledger.Transfer(tokenID, caller, amount); err != nil {
		// The tokens never left custody; restore the debit in memory
		// and on disk.
		j.Revert()
		if perr := x.persist(func(b storage.Batch) error {
			if err := b.SetBalance(tokenID, caller, x.balances.Get(tokenID, caller)); err != nil {
				return err
			}
			return b.DeleteEvent(e.Seq)
		}); perr != nil {
			x.log.Errorw("withdraw_unwind_failed",
				"token", tokenID.Hex(), "account", caller.Hex(), "amount", amount.String(), "err", perr)
		}
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	x.events.Record(e)

	x.log.Infow("withdraw_token", "token", tokenID.Hex(), "account", caller.Hex(), "amount", amount.String(), "balance", newBal.String())
	return nil
}

// MakeOrder creates a resting order wanting amountGet of tokenGet in
// exchange for amountGive of tokenGive. No balance check happens at
// creation time; a creator who cannot back the order simply fails at fill
// time. Returns a copy of the stored order.
func (x *Exchange) MakeOrder(caller, tokenGet common.Address, amountGet *big.Int, tokenGive common.Address, amountGive *big.Int) (*book.Order, error) {
	if amountGet.Sign() < 0 || amountGive.Sign() < 0 {
		return nil, fmt.Errorf("order amounts cannot be negative")
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	o := &book.Order{
		ID:         x.book.NextID(),
		User:       caller,
		TokenGet:   tokenGet,
		AmountGet:  new(big.Int).Set(amountGet),
		TokenGive:  tokenGive,
		AmountGive: new(big.Int).Set(amountGive),
		Timestamp:  x.now(),
	}

	e := x.events.Stamp(event.Event{
		Kind:       event.KindOrder,
		OrderID:    o.ID,
		User:       o.User,
		TokenGet:   o.TokenGet,
		AmountGet:  new(big.Int).Set(o.AmountGet),
		TokenGive:  o.TokenGive,
		AmountGive: new(big.Int).Set(o.AmountGive),
		Timestamp:  o.Timestamp,
	})
	if err := x.persist(func(b storage.Batch) error {
		if err := b.SetOrder(o, false, false); err != nil {
			return err
		}
		return b.AppendEvent(e)
	}); err != nil {
		return nil, err
	}
	x.book.Put(o, false, false)
	x.events.Record(e)

	x.log.Infow("order_created", "id", o.ID, "user", o.User.Hex(),
		"token_get", o.TokenGet.Hex(), "amount_get", o.AmountGet.String(),
		"token_give", o.TokenGive.Hex(), "amount_give", o.AmountGive.String())
	return o.Copy(), nil
}

// CancelOrder marks the caller's open order cancelled.
func (x *Exchange) CancelOrder(id uint64, caller common.Address) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	o, err := x.book.Open(id)
	if err != nil {
		return mapBookErr(err, id)
	}
	if o.User != caller {
		return fmt.Errorf("%w: order %d belongs to %s", ErrUnauthorized, id, o.User.Hex())
	}

	e := x.events.Stamp(event.Event{
		Kind:       event.KindCancel,
		OrderID:    o.ID,
		User:       o.User,
		TokenGet:   o.TokenGet,
		AmountGet:  new(big.Int).Set(o.AmountGet),
		TokenGive:  o.TokenGive,
		AmountGive: new(big.Int).Set(o.AmountGive),
		Timestamp:  x.now(),
	})
	if err := x.persist(func(b storage.Batch) error {
		if err := b.SetOrder(o, false, true); err != nil {
			return err
		}
		return b.AppendEvent(e)
	}); err != nil {
		return err
	}
	// Open() validated under the operation lock; the mark cannot fail.
	_ = x.book.MarkCancelled(id)
	x.events.Record(e)

	x.log.Infow("order_cancelled", "id", id, "user", caller.Hex())
	return nil
}

// FillOrder settles an open order against the caller:
//
//	filler pays  amountGet + fee  of tokenGet
//	owner  gets  amountGet        of tokenGet
//	fee account  gets  fee        of tokenGet
//	owner  pays  amountGive       of tokenGive
//	filler gets  amountGive       of tokenGive
//
// The fee is feePercent of the amount the filler pays in. All balance
// legs apply as one unit: any failing leg reverses the prior ones and the
// order stays open and re-fillable.
func (x *Exchange) FillOrder(id uint64, caller common.Address) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	o, err := x.book.Open(id)
	if err != nil {
		return mapBookErr(err, id)
	}

	feeAmt := x.fees.Fee(o.AmountGet)
	cost := new(big.Int).Add(o.AmountGet, feeAmt)

	j := balance.NewJournal(x.balances)
	if err := x.settle(j, o, caller, feeAmt, cost); err != nil {
		j.Revert()
		return err
	}

	e := x.events.Stamp(event.Event{
		Kind:       event.KindTrade,
		OrderID:    o.ID,
		User:       o.User,
		TokenGet:   o.TokenGet,
		AmountGet:  new(big.Int).Set(o.AmountGet),
		TokenGive:  o.TokenGive,
		AmountGive: new(big.Int).Set(o.AmountGive),
		FilledBy:   caller,
		Timestamp:  x.now(),
	})
	if err := x.persist(func(b storage.Batch) error {
		for _, k := range j.Touched() {
			if err := b.SetBalance(k.Asset, k.Account, x.balances.Get(k.Asset, k.Account)); err != nil {
				return err
			}
		}
		if err := b.SetOrder(o, true, false); err != nil {
			return err
		}
		return b.AppendEvent(e)
	}); err != nil {
		j.Revert()
		return err
	}
	// Open() validated under the operation lock; the mark cannot fail.
	_ = x.book.MarkFilled(id)
	x.events.Record(e)

	x.log.Infow("order_filled", "id", id, "user", o.User.Hex(), "filled_by", caller.Hex(),
		"amount_get", o.AmountGet.String(), "amount_give", o.AmountGive.String(), "fee", feeAmt.String())
	return nil
}

// settle applies the five balance legs of a fill through the journal.
func (x *Exchange) settle(j *balance.Journal, o *book.Order, caller common.Address, feeAmt, cost *big.Int) error {
	if err := j.Debit(o.TokenGet, caller, cost); err != nil {
		return fmt.Errorf("%w: filler cannot cover %s plus fee %s", ErrInsufficientBalance, o.AmountGet, feeAmt)
	}
	if err := j.Credit(o.TokenGet, o.User, o.AmountGet); err != nil {
		return err
	}
	if err := j.Credit(o.TokenGet, x.feeAccount, feeAmt); err != nil {
		return err
	}
	if err := j.Debit(o.TokenGive, o.User, o.AmountGive); err != nil {
		// Orders are not escrowed: the creator's balance may have dropped
		// since creation. The order stays open for a later attempt.
		return fmt.Errorf("%w: order creator cannot cover %s", ErrInsufficientBalance, o.AmountGive)
	}
	return j.Credit(o.TokenGive, caller, o.AmountGive)
}

// persist runs fn against a fresh batch and commits it. No-op without a
// configured store.
func (x *Exchange) persist(fn func(storage.Batch) error) error {
	if x.store == nil {
		return nil
	}
	b := x.store.NewBatch()
	if err := fn(b); err != nil {
		b.Close()
		return fmt.Errorf("persist: %w", err)
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}

// mapBookErr translates book lifecycle errors into the public taxonomy.
func mapBookErr(err error, id uint64) error {
	switch {
	case errors.Is(err, book.ErrNotFound):
		return fmt.Errorf("%w: id %d", ErrOrderNotFound, id)
	case errors.Is(err, book.ErrFinalized):
		return fmt.Errorf("%w: id %d", ErrAlreadyFinalized, id)
	default:
		return err
	}
}
