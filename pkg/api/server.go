package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperdex/pkg/app/core/dexerr"
	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperdex/pkg/app/core/token"
	"github.com/uhyunpark/hyperdex/pkg/app/dex"
	"github.com/uhyunpark/hyperdex/pkg/crypto"
)

const (
	maxBodyBytes      = 1 << 20
	defaultTradeLimit = 50
	maxTradeLimit     = 500
	requestIDHeader   = "X-Request-ID"
)

// Options configures the API server
type Options struct {
	// Admin is the only signer allowed to list tokens. Zero disables listing.
	Admin common.Address

	// Devnet enables the faucet and approve endpoints of the in-process token bank
	Devnet bool

	AllowedOrigins []string
}

// Server handles REST API and WebSocket connections
type Server struct {
	ex     *dex.Exchange
	bank   *token.Bank // devnet token ledgers; nil when not served
	opts   Options
	router *mux.Router
	hub    *Hub
	nonces *nonceTracker
	log    *zap.SugaredLogger
}

// NewServer creates a new API server and subscribes its hub to ex
func NewServer(ex *dex.Exchange, bank *token.Bank, opts Options, log *zap.SugaredLogger) *Server {
	s := &Server{
		ex:     ex,
		bank:   bank,
		opts:   opts,
		router: mux.NewRouter(),
		hub:    NewHub(ex, log),
		nonces: newNonceTracker(),
		log:    log,
	}
	ex.Subscribe(s.hub)

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.requestID)

	// Token endpoints
	api.HandleFunc("/tokens", s.handleGetTokens).Methods("GET")
	api.HandleFunc("/tokens", s.handleAddToken).Methods("POST")
	if s.opts.Devnet && s.bank != nil {
		api.HandleFunc("/tokens/{ticker}/faucet", s.handleFaucet).Methods("POST")
		api.HandleFunc("/tokens/{ticker}/approve", s.handleApprove).Methods("POST")
	}

	// Custody
	api.HandleFunc("/deposit", s.handleDeposit).Methods("POST")
	api.HandleFunc("/withdraw", s.handleWithdraw).Methods("POST")

	// Order submission
	api.HandleFunc("/orders/limit", s.handleLimitOrder).Methods("POST")
	api.HandleFunc("/orders/market", s.handleMarketOrder).Methods("POST")

	// Market endpoints
	api.HandleFunc("/markets/{ticker}/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/markets/{ticker}/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/markets/{ticker}/trades", s.handleGetTrades).Methods("GET")

	// Account endpoints
	api.HandleFunc("/accounts/{address}/balances", s.handleGetBalances).Methods("GET")
	api.HandleFunc("/accounts/{address}/balances/{ticker}", s.handleGetBalance).Methods("GET")

	api.HandleFunc("/state", s.handleGetState).Methods("GET")
	api.HandleFunc("/payouts", s.handleGetPayouts).Methods("GET")
	api.HandleFunc("/payouts/settle", s.handleSettlePayout).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.hub.ServeWS)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Hub returns the WebSocket hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the router wrapped with CORS
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves the API on addr until ctx is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	// Start WebSocket hub
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("api_listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// ==============================
// Signed Requests
// ==============================

type signedPayload interface {
	nonce() uint64
	action() string
}

func (r AddTokenRequest) nonce() uint64     { return r.Nonce }
func (r TransferRequest) nonce() uint64     { return r.Nonce }
func (r LimitOrderRequest) nonce() uint64   { return r.Nonce }
func (r MarketOrderRequest) nonce() uint64  { return r.Nonce }
func (r FaucetRequest) nonce() uint64       { return r.Nonce }
func (r SettlePayoutRequest) nonce() uint64 { return r.Nonce }

func (r AddTokenRequest) action() string     { return r.Action }
func (r TransferRequest) action() string     { return r.Action }
func (r LimitOrderRequest) action() string   { return r.Action }
func (r MarketOrderRequest) action() string  { return r.Action }
func (r FaucetRequest) action() string       { return r.Action }
func (r SettlePayoutRequest) action() string { return r.Action }

// routeBound payloads also name the {ticker} of the route they were signed for
type routeBound interface {
	routeTicker() string
}

func (r FaucetRequest) routeTicker() string { return r.Ticker }

// nonceTracker remembers the last nonce accepted from each signer
type nonceTracker struct {
	mu   sync.Mutex
	last map[common.Address]uint64
}

func newNonceTracker() *nonceTracker {
	return &nonceTracker{last: make(map[common.Address]uint64)}
}

// use accepts nonce if it is above the signer's last one
func (n *nonceTracker) use(signer common.Address, nonce uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if nonce <= n.last[signer] {
		return fmt.Errorf("nonce %d must exceed %d", nonce, n.last[signer])
	}
	n.last[signer] = nonce
	return nil
}

// readSigned decodes an envelope into payload and returns the signer
// The payload must name action; its nonce is only spent once it does.
// On failure the error response is already written.
func (s *Server) readSigned(w http.ResponseWriter, r *http.Request, action string, payload signedPayload) (common.Address, bool) {
	var env crypto.Envelope
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&env); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return common.Address{}, false
	}

	signer, err := crypto.Open(env)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid signature", err.Error())
		return common.Address{}, false
	}
	if err := crypto.DecodePayload(env, payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload", err.Error())
		return common.Address{}, false
	}
	if payload.action() != action {
		respondError(w, http.StatusBadRequest, "action mismatch",
			fmt.Sprintf("payload signed for %q, not %q", payload.action(), action))
		return common.Address{}, false
	}
	if rb, ok := payload.(routeBound); ok && rb.routeTicker() != mux.Vars(r)["ticker"] {
		respondError(w, http.StatusBadRequest, "ticker mismatch",
			fmt.Sprintf("payload signed for %q, not %q", rb.routeTicker(), mux.Vars(r)["ticker"]))
		return common.Address{}, false
	}
	if err := s.nonces.use(signer, payload.nonce()); err != nil {
		respondError(w, http.StatusConflict, "stale nonce", err.Error())
		return common.Address{}, false
	}
	return signer, true
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetTokens(w http.ResponseWriter, r *http.Request) {
	assets := s.ex.Assets()

	response := make([]AssetInfo, len(assets))
	for i, a := range assets {
		response[i] = toAssetInfo(a)
	}
	respondJSON(w, response)
}

func (s *Server) handleAddToken(w http.ResponseWriter, r *http.Request) {
	var req AddTokenRequest
	signer, ok := s.readSigned(w, r, ActionAddToken, &req)
	if !ok {
		return
	}

	if !s.isAdmin(signer) {
		respondError(w, http.StatusForbidden, "forbidden", "only the admin can add tokens")
		return
	}
	if !common.IsHexAddress(req.Handle) {
		respondError(w, http.StatusBadRequest, "invalid handle", req.Handle)
		return
	}

	a, err := s.ex.AddToken(req.Ticker, common.HexToAddress(req.Handle))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, toAssetInfo(a))
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, ActionDeposit, s.ex.Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, ActionWithdraw, s.ex.Withdraw)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, action string, move func(common.Address, string, *uint256.Int) error) {
	var req TransferRequest
	trader, ok := s.readSigned(w, r, action, &req)
	if !ok {
		return
	}

	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := move(trader, req.Ticker, amount); err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, BalanceInfo{Ticker: req.Ticker, Amount: s.ex.BalanceOf(trader, req.Ticker).Dec()})
}

func (s *Server) handleLimitOrder(w http.ResponseWriter, r *http.Request) {
	var req LimitOrderRequest
	trader, ok := s.readSigned(w, r, ActionLimit, &req)
	if !ok {
		return
	}

	side, err := parseSide(req.Side)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	id, err := s.ex.CreateLimitOrder(trader, req.Ticker, amount, price, side)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, LimitOrderResponse{OrderID: id})
}

func (s *Server) handleMarketOrder(w http.ResponseWriter, r *http.Request) {
	var req MarketOrderRequest
	trader, ok := s.readSigned(w, r, ActionMarket, &req)
	if !ok {
		return
	}

	side, err := parseSide(req.Side)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	trades, err := s.ex.CreateMarketOrder(trader, req.Ticker, amount, side)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, MarketOrderResponse{Trades: toTradeInfos(trades)})
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]

	sides := []orderbook.Side{orderbook.Buy, orderbook.Sell}
	if q := r.URL.Query().Get("side"); q != "" {
		side, err := parseSide(q)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		sides = []orderbook.Side{side}
	}

	response := []OrderInfo{}
	for _, side := range sides {
		for _, o := range s.ex.GetOrders(ticker, side) {
			response = append(response, toOrderInfo(o))
		}
	}
	respondJSON(w, response)
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]

	if _, err := s.ex.Asset(ticker); err != nil {
		s.fail(w, r, err)
		return
	}

	respondJSON(w, OrderbookSnapshot{
		Ticker:    ticker,
		Bids:      toPriceLevels(s.ex.Levels(ticker, orderbook.Buy)),
		Asks:      toPriceLevels(s.ex.Levels(ticker, orderbook.Sell)),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]

	limit := defaultTradeLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			s.fail(w, r, dexerr.Invalid("invalid limit %q", q))
			return
		}
		limit = min(n, maxTradeLimit)
	}

	trades, err := s.ex.RecentTrades(ticker, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, toTradeInfos(trades))
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"])
	if !ok {
		return
	}

	balances := s.ex.Balances(addr)
	response := AccountBalances{Address: addr.Hex(), Balances: []BalanceInfo{}}
	for _, a := range s.ex.Assets() {
		if bal, ok := balances[a.Ticker]; ok {
			response.Balances = append(response.Balances, BalanceInfo{Ticker: a.Ticker, Amount: bal.Dec()})
		}
	}
	respondJSON(w, response)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	addr, ok := parseAddress(w, vars["address"])
	if !ok {
		return
	}
	if _, err := s.ex.Asset(vars["ticker"]); err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, BalanceInfo{Ticker: vars["ticker"], Amount: s.ex.BalanceOf(addr, vars["ticker"]).Dec()})
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	info := StateInfo{
		Hash:      s.ex.StateHash().Hex(),
		Quote:     s.ex.Quote(),
		Assets:    len(s.ex.Assets()),
		Timestamp: time.Now().UnixMilli(),
	}
	if err := s.ex.Halted(); err != nil {
		info.Halted = err.Error()
	}
	respondJSON(w, info)
}

func (s *Server) handleGetPayouts(w http.ResponseWriter, r *http.Request) {
	response := []PayoutInfo{}
	for _, p := range s.ex.PendingPayouts() {
		response = append(response, PayoutInfo{Trader: p.Trader.Hex(), Ticker: p.Ticker, Amount: p.Amount.Dec()})
	}
	respondJSON(w, response)
}

func (s *Server) handleSettlePayout(w http.ResponseWriter, r *http.Request) {
	var req SettlePayoutRequest
	signer, ok := s.readSigned(w, r, ActionSettle, &req)
	if !ok {
		return
	}

	if !s.isAdmin(signer) {
		respondError(w, http.StatusForbidden, "forbidden", "only the admin can settle payouts")
		return
	}
	trader, ok := parseAddress(w, req.Trader)
	if !ok {
		return
	}
	if err := s.ex.SettlePayout(trader, req.Ticker, req.Paid); err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, BalanceInfo{Ticker: req.Ticker, Amount: s.ex.BalanceOf(trader, req.Ticker).Dec()})
}

func (s *Server) isAdmin(signer common.Address) bool {
	return s.opts.Admin != (common.Address{}) && signer == s.opts.Admin
}

// handleFaucet mints devnet tokens to the signer
func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	s.handleDevnetToken(w, r, ActionFaucet, func(tok *token.ERC20, signer common.Address, amount *uint256.Int) error {
		return tok.Faucet(signer, amount)
	})
}

// handleApprove lets custody pull amount of the signer's devnet tokens
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.handleDevnetToken(w, r, ActionApprove, func(tok *token.ERC20, signer common.Address, amount *uint256.Int) error {
		tok.Approve(signer, s.bank.Custodian(), amount)
		return nil
	})
}

func (s *Server) handleDevnetToken(w http.ResponseWriter, r *http.Request, action string, apply func(*token.ERC20, common.Address, *uint256.Int) error) {
	ticker := mux.Vars(r)["ticker"]

	var req FaucetRequest
	signer, ok := s.readSigned(w, r, action, &req)
	if !ok {
		return
	}

	tok, found := s.bank.BySymbol(ticker)
	if !found {
		s.fail(w, r, dexerr.ErrUnknownAsset)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := apply(tok, signer, amount); err != nil {
		respondError(w, http.StatusBadRequest, "token rejected request", err.Error())
		return
	}

	s.log.Infow("devnet_token_call", "path", r.URL.Path, "signer", signer.Hex(), "amount", amount.Dec())
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Middleware
// ==============================

type requestIDKey struct{}

// requestID tags each request with an id and logs its outcome
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))

		s.log.Infow("http_request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// ==============================
// Helper Functions
// ==============================

// statusFor maps an exchange failure to an HTTP status
func statusFor(kind dexerr.Kind) int {
	switch kind {
	case dexerr.UnknownAsset:
		return http.StatusNotFound
	case dexerr.DuplicateAsset:
		return http.StatusConflict
	case dexerr.InsufficientAssetBalance, dexerr.InsufficientQuoteBalance, dexerr.InsufficientBalance:
		return http.StatusUnprocessableEntity
	case dexerr.ExternalTransferFailed:
		return http.StatusBadGateway
	case dexerr.CannotTradeQuoteAsset, dexerr.InvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as an error response
// Errors outside dexerr are internal; their text is logged, not returned.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := dexerr.KindOf(err)
	if kind == dexerr.KindUnknown {
		id, _ := r.Context().Value(requestIDKey{}).(string)
		s.log.Errorw("request_failed", "request_id", id, "path", r.URL.Path, "err", err)
		respondError(w, http.StatusInternalServerError, "internal error", "")
		return
	}
	respondError(w, statusFor(kind), kind.String(), err.Error())
}

func parseAddress(w http.ResponseWriter, s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		respondError(w, http.StatusBadRequest, "invalid address", s)
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
