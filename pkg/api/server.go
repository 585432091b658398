// Package api exposes the exchange over REST and streams its events over
// WebSocket.
package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/solski/exchange/pkg/exchange"
)

// Server handles REST requests and WebSocket event subscriptions.
type Server struct {
	x      *exchange.Exchange
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

// NewServer creates an API server over the given exchange.
func NewServer(x *exchange.Exchange, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		x:      x,
		router: mux.NewRouter(),
		hub:    NewHub(logger),
		log:    logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/fee", s.handleGetFee).Methods("GET")
	api.HandleFunc("/balances/{asset}/{account}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/orders", s.handleGetOrderCount).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")

	api.HandleFunc("/deposits/ether", s.handleDepositEther).Methods("POST")
	api.HandleFunc("/deposits/token", s.handleDepositToken).Methods("POST")
	api.HandleFunc("/withdrawals/ether", s.handleWithdrawEther).Methods("POST")
	api.HandleFunc("/withdrawals/token", s.handleWithdrawToken).Methods("POST")

	api.HandleFunc("/orders", s.handleMakeOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/fill", s.handleFillOrder).Methods("POST")

	// Ether arriving outside the deposit endpoint is always rejected.
	api.HandleFunc("/transfers", s.handleBareTransfer).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Router returns the configured handler, for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start runs the hub, pumps exchange events to WebSocket clients, and
// serves HTTP on addr. Blocks until the listener fails.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	go func() {
		for e := range s.x.SubscribeEvents() {
			s.hub.Broadcast(e)
		}
	}()

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})

	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

func (s *Server) handleGetFee(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, FeeInfo{
		FeeAccount: s.x.FeeAccount().Hex(),
		FeePercent: s.x.FeePercent(),
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	assetID, ok := parseAddress(vars["asset"])
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_asset_address", vars["asset"])
		return
	}
	account, ok := parseAddress(vars["account"])
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_account_address", vars["account"])
		return
	}

	bal := s.x.BalanceOf(assetID, account)
	respondJSON(w, BalanceResponse{
		Asset:   assetID.Hex(),
		Account: account.Hex(),
		Balance: bal.String(),
	})
}

func (s *Server) handleGetOrderCount(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, OrderCountResponse{Count: s.x.OrderCount()})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(mux.Vars(r)["id"])
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_order_id", mux.Vars(r)["id"])
		return
	}

	o, err := s.x.Orders(id)
	if err != nil {
		respondExchangeError(w, err)
		return
	}
	respondJSON(w, OrderResponse{
		ID:         o.ID,
		User:       o.User.Hex(),
		TokenGet:   o.TokenGet.Hex(),
		AmountGet:  o.AmountGet.String(),
		TokenGive:  o.TokenGive.Hex(),
		AmountGive: o.AmountGive.String(),
		Timestamp:  o.Timestamp,
		Filled:     s.x.OrderFilled(id),
		Cancelled:  s.x.OrderCancelled(id),
	})
}

func (s *Server) handleDepositEther(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}
	account, amount, ok := parseAccountAmount(w, req.Account, req.Amount)
	if !ok {
		return
	}

	if err := s.x.DepositEther(account, amount); err != nil {
		respondExchangeError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleDepositToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}
	tokenID, ok := parseAddress(req.Token)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_token_address", req.Token)
		return
	}
	account, amount, ok := parseAccountAmount(w, req.Account, req.Amount)
	if !ok {
		return
	}

	if err := s.x.DepositToken(tokenID, amount, account); err != nil {
		respondExchangeError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleWithdrawEther(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}
	account, amount, ok := parseAccountAmount(w, req.Account, req.Amount)
	if !ok {
		return
	}

	if err := s.x.WithdrawEther(account, amount); err != nil {
		respondExchangeError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleWithdrawToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}
	tokenID, ok := parseAddress(req.Token)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_token_address", req.Token)
		return
	}
	account, amount, ok := parseAccountAmount(w, req.Account, req.Amount)
	if !ok {
		return
	}

	if err := s.x.WithdrawToken(tokenID, amount, account); err != nil {
		respondExchangeError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleMakeOrder(w http.ResponseWriter, r *http.Request) {
	var req MakeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}
	user, ok := parseAddress(req.User)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_user_address", req.User)
		return
	}
	tokenGet, ok := parseAddress(req.TokenGet)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_token_address", req.TokenGet)
		return
	}
	tokenGive, ok := parseAddress(req.TokenGive)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_token_address", req.TokenGive)
		return
	}
	amountGet, ok := parseAmount(req.AmountGet)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_amount", req.AmountGet)
		return
	}
	amountGive, ok := parseAmount(req.AmountGive)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_amount", req.AmountGive)
		return
	}

	o, err := s.x.MakeOrder(user, tokenGet, amountGet, tokenGive, amountGive)
	if err != nil {
		respondExchangeError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ok", OrderID: o.ID})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	s.handleOrderAction(w, r, s.x.CancelOrder)
}

func (s *Server) handleFillOrder(w http.ResponseWriter, r *http.Request) {
	s.handleOrderAction(w, r, s.x.FillOrder)
}

func (s *Server) handleOrderAction(w http.ResponseWriter, r *http.Request, action func(uint64, common.Address) error) {
	id, ok := parseOrderID(mux.Vars(r)["id"])
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_order_id", mux.Vars(r)["id"])
		return
	}
	var req OrderActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_caller_address", req.Caller)
		return
	}

	if err := action(id, caller); err != nil {
		respondExchangeError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ok", OrderID: id})
}

func (s *Server) handleBareTransfer(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	account, _ := parseAddress(req.Account)

	err := s.x.Receive(account, new(big.Int))
	respondExchangeError(w, err)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r)
}

// parseAccountAmount parses the shared account+amount pair, writing the
// error response itself on failure.
func parseAccountAmount(w http.ResponseWriter, accountStr, amountStr string) (common.Address, *big.Int, bool) {
	account, ok := parseAddress(accountStr)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_account_address", accountStr)
		return common.Address{}, nil, false
	}
	amount, ok := parseAmount(amountStr)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_amount", amountStr)
		return common.Address{}, nil, false
	}
	return account, amount, true
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func parseAmount(s string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() < 0 {
		return nil, false
	}
	return amount, true
}

func parseOrderID(s string) (uint64, bool) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errCode, Message: message})
}

// respondExchangeError maps the exchange's sentinel errors to HTTP
// statuses.
func respondExchangeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, exchange.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, exchange.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, exchange.ErrAlreadyFinalized):
		status = http.StatusConflict
	case errors.Is(err, exchange.ErrInsufficientBalance):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, exchange.ErrTransferFailed):
		status = http.StatusBadGateway
	}
	respondError(w, status, errCode(err), err.Error())
}

// errCode extracts the sentinel name for the error response body.
func errCode(err error) string {
	for _, sentinel := range []error{
		exchange.ErrInvalidAsset,
		exchange.ErrInsufficientBalance,
		exchange.ErrTransferFailed,
		exchange.ErrOrderNotFound,
		exchange.ErrUnauthorized,
		exchange.ErrAlreadyFinalized,
		exchange.ErrUnsupportedDeposit,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "bad_request"
}
