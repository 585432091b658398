package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/solski/exchange/pkg/exchange"
	"github.com/solski/exchange/pkg/exchange/asset"
	"github.com/solski/exchange/pkg/token"
)

var (
	exchangeAddr = common.HexToAddress("0xE100000000000000000000000000000000000000")
	feeAccount   = common.HexToAddress("0xFee0000000000000000000000000000000000000")
	tokenAddr    = common.HexToAddress("0x5133000000000000000000000000000000000000")
	deployer     = common.HexToAddress("0xDD00000000000000000000000000000000000000")
	user1        = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	user2        = common.HexToAddress("0xBB00000000000000000000000000000000000000")
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestServer(t *testing.T) (*Server, *token.Token) {
	t.Helper()

	registry := token.NewRegistry(exchangeAddr)
	tok := token.NewSolski(tokenAddr, deployer)
	registry.Register(tok)
	tok.Transfer(deployer, user1, token.Units(100))

	x, err := exchange.New(exchange.Config{
		Address:    exchangeAddr,
		FeeAccount: feeAccount,
		FeePercent: 10,
		Ledger:     registry,
		Clock:      fixedClock{now: time.UnixMilli(1_700_000_000_000)},
	})
	if err != nil {
		t.Fatalf("exchange init failed: %v", err)
	}
	return NewServer(x, nil), tok
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestGetFee(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, "GET", "/api/v1/fee", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	info := decode[FeeInfo](t, w)
	if info.FeeAccount != feeAccount.Hex() || info.FeePercent != 10 {
		t.Errorf("fee info = %+v", info)
	}
}

func TestDepositAndBalance(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, "POST", "/api/v1/deposits/ether", DepositRequest{
		Account: user1.Hex(),
		Amount:  "1000000000000000000",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("deposit status = %d: %s", w.Code, w.Body)
	}

	w = doJSON(t, s, "GET", "/api/v1/balances/"+asset.Ether.Hex()+"/"+user1.Hex(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("balance status = %d", w.Code)
	}
	bal := decode[BalanceResponse](t, w)
	if bal.Balance != "1000000000000000000" {
		t.Errorf("balance = %s, want 1000000000000000000", bal.Balance)
	}
}

func TestDepositRejectsBadAmount(t *testing.T) {
	s, _ := newTestServer(t)

	for _, amount := range []string{"", "abc", "-5", "1.5"} {
		w := doJSON(t, s, "POST", "/api/v1/deposits/ether", DepositRequest{
			Account: user1.Hex(),
			Amount:  amount,
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("amount %q: status = %d, want 400", amount, w.Code)
		}
	}
}

func TestOrderFlow(t *testing.T) {
	s, tok := newTestServer(t)

	// Owner funds and posts the order.
	doJSON(t, s, "POST", "/api/v1/deposits/ether", DepositRequest{
		Account: user1.Hex(), Amount: token.Units(1).String(),
	})
	w := doJSON(t, s, "POST", "/api/v1/orders", MakeOrderRequest{
		User:       user1.Hex(),
		TokenGet:   tokenAddr.Hex(),
		AmountGet:  token.Units(1).String(),
		TokenGive:  asset.Ether.Hex(),
		AmountGive: token.Units(1).String(),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("make order status = %d: %s", w.Code, w.Body)
	}
	created := decode[StatusResponse](t, w)
	if created.OrderID != 1 {
		t.Fatalf("order id = %d, want 1", created.OrderID)
	}

	// Filler funds through the token ledger and fills.
	tok.Transfer(deployer, user2, token.Units(2))
	tok.Approve(user2, exchangeAddr, token.Units(2))
	w = doJSON(t, s, "POST", "/api/v1/deposits/token", TokenRequest{
		Token: tokenAddr.Hex(), Account: user2.Hex(), Amount: token.Units(2).String(),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("token deposit status = %d: %s", w.Code, w.Body)
	}

	w = doJSON(t, s, "POST", "/api/v1/orders/1/fill", OrderActionRequest{Caller: user2.Hex()})
	if w.Code != http.StatusOK {
		t.Fatalf("fill status = %d: %s", w.Code, w.Body)
	}

	w = doJSON(t, s, "GET", "/api/v1/orders/1", nil)
	order := decode[OrderResponse](t, w)
	if !order.Filled || order.Cancelled {
		t.Errorf("order flags = %+v", order)
	}

	// Terminal orders conflict on further actions.
	w = doJSON(t, s, "POST", "/api/v1/orders/1/fill", OrderActionRequest{Caller: user2.Hex()})
	if w.Code != http.StatusConflict {
		t.Errorf("refill status = %d, want 409", w.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	s, _ := newTestServer(t)
	doJSON(t, s, "POST", "/api/v1/deposits/ether", DepositRequest{
		Account: user1.Hex(), Amount: "10",
	})
	doJSON(t, s, "POST", "/api/v1/orders", MakeOrderRequest{
		User:       user1.Hex(),
		TokenGet:   tokenAddr.Hex(),
		AmountGet:  "1",
		TokenGive:  asset.Ether.Hex(),
		AmountGive: "1",
	})

	cases := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
	}{
		{"order not found", "GET", "/api/v1/orders/99", nil, http.StatusNotFound},
		{"cancel not owner", "POST", "/api/v1/orders/1/cancel", OrderActionRequest{Caller: user2.Hex()}, http.StatusForbidden},
		{"fill without funds", "POST", "/api/v1/orders/1/fill", OrderActionRequest{Caller: user2.Hex()}, http.StatusUnprocessableEntity},
		{"withdraw too much", "POST", "/api/v1/withdrawals/ether", DepositRequest{Account: user1.Hex(), Amount: "15"}, http.StatusUnprocessableEntity},
		{"token deposit without approval", "POST", "/api/v1/deposits/token", TokenRequest{Token: tokenAddr.Hex(), Account: user1.Hex(), Amount: "5"}, http.StatusBadGateway},
		{"ether through token path", "POST", "/api/v1/deposits/token", TokenRequest{Token: asset.Ether.Hex(), Account: user1.Hex(), Amount: "5"}, http.StatusBadRequest},
		{"bare transfer", "POST", "/api/v1/transfers", DepositRequest{Account: user1.Hex(), Amount: "5"}, http.StatusBadRequest},
	}
	for _, c := range cases {
		w := doJSON(t, s, c.method, c.path, c.body)
		if w.Code != c.wantStatus {
			t.Errorf("%s: status = %d, want %d (%s)", c.name, w.Code, c.wantStatus, w.Body)
		}
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
