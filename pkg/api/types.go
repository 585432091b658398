package api

// Request/response types for the REST endpoints. Amounts travel as
// base-10 strings so arbitrary-precision values survive JSON.

// DepositRequest funds an account with the native asset.
type DepositRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// TokenRequest deposits or withdraws a token asset.
type TokenRequest struct {
	Token   string `json:"token"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// MakeOrderRequest creates a resting order.
type MakeOrderRequest struct {
	User       string `json:"user"`
	TokenGet   string `json:"tokenGet"`
	AmountGet  string `json:"amountGet"`
	TokenGive  string `json:"tokenGive"`
	AmountGive string `json:"amountGive"`
}

// OrderActionRequest fills or cancels an existing order.
type OrderActionRequest struct {
	Caller string `json:"caller"`
}

// FeeInfo reports the immutable construction parameters.
type FeeInfo struct {
	FeeAccount string `json:"feeAccount"`
	FeePercent uint64 `json:"feePercent"`
}

// BalanceResponse reports one stored balance.
type BalanceResponse struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Balance string `json:"balance"`
}

// OrderResponse reports one order record with its lifecycle flags.
type OrderResponse struct {
	ID         uint64 `json:"id"`
	User       string `json:"user"`
	TokenGet   string `json:"tokenGet"`
	AmountGet  string `json:"amountGet"`
	TokenGive  string `json:"tokenGive"`
	AmountGive string `json:"amountGive"`
	Timestamp  int64  `json:"timestamp"`
	Filled     bool   `json:"filled"`
	Cancelled  bool   `json:"cancelled"`
}

// OrderCountResponse reports how many orders have ever been created.
type OrderCountResponse struct {
	Count uint64 `json:"count"`
}

// StatusResponse acknowledges a state-changing request.
type StatusResponse struct {
	Status  string `json:"status"`
	OrderID uint64 `json:"orderId,omitempty"`
}

// ErrorResponse carries a failure to the client.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
