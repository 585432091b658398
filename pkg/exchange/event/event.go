// Package event defines the exchange's domain events and the append-only
// log they are recorded in. The log is the audit trail consumed by
// off-core observers (API WebSocket feed, operators); it makes no
// decisions of its own.
package event

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Kind discriminates event payloads.
type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
	KindOrder      Kind = "order"
	KindCancel     Kind = "cancel"
	KindTrade      Kind = "trade"
)

// Event is one entry in the exchange's event stream. Exactly one payload
// group is populated depending on Kind:
//
//   - Deposit/Withdrawal: Asset, Account, Amount, Balance
//   - Order/Cancel:       OrderID, User, TokenGet, AmountGet, TokenGive, AmountGive
//   - Trade:              the Order fields plus FilledBy
//
// Seq is assigned by the log, starts at 1, and increases by one per
// state-changing operation. Consumers rely on field presence and on event
// order matching operation order; MarshalJSON emits only the payload
// group for the event's kind.
type Event struct {
	ID   uuid.UUID `json:"eventId"`
	Seq  uint64    `json:"seq"`
	Kind Kind      `json:"kind"`

	Asset   common.Address `json:"asset"`
	Account common.Address `json:"account"`
	Amount  *big.Int       `json:"amount"`
	Balance *big.Int       `json:"balance"` // balance after the operation

	OrderID    uint64         `json:"orderId"`
	User       common.Address `json:"user"`
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  *big.Int       `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive *big.Int       `json:"amountGive"`
	FilledBy   common.Address `json:"filledBy"`

	Timestamp int64 `json:"timestamp"` // Unix milliseconds
}

// MarshalJSON serializes only the fields that belong to the event's
// kind, so a deposit never carries order fields and vice versa.
// Unmarshaling goes through the plain struct tags; absent fields stay
// zero.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case KindDeposit, KindWithdrawal:
		return json.Marshal(struct {
			ID        uuid.UUID      `json:"eventId"`
			Seq       uint64         `json:"seq"`
			Kind      Kind           `json:"kind"`
			Asset     common.Address `json:"asset"`
			Account   common.Address `json:"account"`
			Amount    *big.Int       `json:"amount"`
			Balance   *big.Int       `json:"balance"`
			Timestamp int64          `json:"timestamp"`
		}{e.ID, e.Seq, e.Kind, e.Asset, e.Account, e.Amount, e.Balance, e.Timestamp})

	case KindOrder, KindCancel:
		return json.Marshal(struct {
			ID         uuid.UUID      `json:"eventId"`
			Seq        uint64         `json:"seq"`
			Kind       Kind           `json:"kind"`
			OrderID    uint64         `json:"orderId"`
			User       common.Address `json:"user"`
			TokenGet   common.Address `json:"tokenGet"`
			AmountGet  *big.Int       `json:"amountGet"`
			TokenGive  common.Address `json:"tokenGive"`
			AmountGive *big.Int       `json:"amountGive"`
			Timestamp  int64          `json:"timestamp"`
		}{e.ID, e.Seq, e.Kind, e.OrderID, e.User, e.TokenGet, e.AmountGet, e.TokenGive, e.AmountGive, e.Timestamp})

	case KindTrade:
		return json.Marshal(struct {
			ID         uuid.UUID      `json:"eventId"`
			Seq        uint64         `json:"seq"`
			Kind       Kind           `json:"kind"`
			OrderID    uint64         `json:"orderId"`
			User       common.Address `json:"user"`
			TokenGet   common.Address `json:"tokenGet"`
			AmountGet  *big.Int       `json:"amountGet"`
			TokenGive  common.Address `json:"tokenGive"`
			AmountGive *big.Int       `json:"amountGive"`
			FilledBy   common.Address `json:"filledBy"`
			Timestamp  int64          `json:"timestamp"`
		}{e.ID, e.Seq, e.Kind, e.OrderID, e.User, e.TokenGet, e.AmountGet, e.TokenGive, e.AmountGive, e.FilledBy, e.Timestamp})

	default:
		type plain Event
		return json.Marshal(plain(e))
	}
}
