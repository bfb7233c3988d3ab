package api

// API request/response types for REST endpoints and WebSocket messages
// Amounts and prices are base-unit decimal strings; they do not fit in a JSON number.

// ==============================
// Signed Request Payloads
// ==============================

// Every mutating request arrives as a crypto.Envelope whose payload is one of
// the types below. Nonce must be strictly greater than the signer's last one.
// Action names the route the signer authorized; a payload posted anywhere else
// is rejected before its nonce is spent.

const (
	ActionAddToken = "add_token"
	ActionDeposit  = "deposit"
	ActionWithdraw = "withdraw"
	ActionLimit    = "limit"
	ActionMarket   = "market"
	ActionFaucet   = "faucet"
	ActionApprove  = "approve"
	ActionSettle   = "settle_payout"
)

// AddTokenRequest lists a new asset (admin only)
type AddTokenRequest struct {
	Action string `json:"action"`
	Ticker string `json:"ticker"`
	Handle string `json:"handle"` // 0x address of the token's ledger
	Nonce  uint64 `json:"nonce"`
}

// TransferRequest moves funds between the token ledger and custody
type TransferRequest struct {
	Action string `json:"action"`
	Ticker string `json:"ticker"`
	Amount string `json:"amount"`
	Nonce  uint64 `json:"nonce"`
}

// LimitOrderRequest rests an order on the book
type LimitOrderRequest struct {
	Action string `json:"action"`
	Ticker string `json:"ticker"`
	Side   string `json:"side"` // "buy" or "sell"
	Amount string `json:"amount"`
	Price  string `json:"price"`
	Nonce  uint64 `json:"nonce"`
}

// MarketOrderRequest matches immediately against resting orders
type MarketOrderRequest struct {
	Action string `json:"action"`
	Ticker string `json:"ticker"`
	Side   string `json:"side"`
	Amount string `json:"amount"`
	Nonce  uint64 `json:"nonce"`
}

// SettlePayoutRequest resolves an unsettled withdrawal (admin only)
// Paid false credits the withdrawn amount back to the trader.
type SettlePayoutRequest struct {
	Action string `json:"action"`
	Trader string `json:"trader"`
	Ticker string `json:"ticker"`
	Paid   bool   `json:"paid"`
	Nonce  uint64 `json:"nonce"`
}

// FaucetRequest mints devnet tokens to the signer (or approves custody to pull them)
type FaucetRequest struct {
	Action string `json:"action"`
	Ticker string `json:"ticker"`
	Amount string `json:"amount"`
	Nonce  uint64 `json:"nonce"`
}

// ==============================
// REST Response Types
// ==============================

// AssetInfo represents a listed token
type AssetInfo struct {
	Ticker   string `json:"ticker"`
	Handle   string `json:"handle"`
	Decimals uint8  `json:"decimals"`
	IsQuote  bool   `json:"isQuote"`
}

// OrderInfo represents a resting limit order
type OrderInfo struct {
	ID        uint64 `json:"id"`
	Trader    string `json:"trader"`
	Ticker    string `json:"ticker"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Amount    string `json:"amount"`
	Filled    string `json:"filled"`
	CreatedAt int64  `json:"createdAt"` // Unix milliseconds
}

// TradeInfo represents one fill
type TradeInfo struct {
	ID        uint64 `json:"id"`
	OrderID   uint64 `json:"orderId"` // resting order that was hit
	Ticker    string `json:"ticker"`
	Taker     string `json:"taker"`
	Maker     string `json:"maker"`
	Side      string `json:"side"` // taker side
	Price     string `json:"price"`
	Amount    string `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

// PriceLevel represents the remaining size at one price
type PriceLevel struct {
	Price  string `json:"price"`
	Size   string `json:"size"`
	Orders int    `json:"orders"`
}

// OrderbookSnapshot represents current orderbook state
type OrderbookSnapshot struct {
	Ticker    string       `json:"ticker"`
	Bids      []PriceLevel `json:"bids"` // Sorted high to low
	Asks      []PriceLevel `json:"asks"` // Sorted low to high
	Timestamp int64        `json:"timestamp"`
}

// BalanceInfo is a custodial balance of one token
type BalanceInfo struct {
	Ticker string `json:"ticker"`
	Amount string `json:"amount"`
}

// AccountBalances lists every non-zero balance of a trader
type AccountBalances struct {
	Address  string        `json:"address"`
	Balances []BalanceInfo `json:"balances"`
}

// LimitOrderResponse returns the id of the new order
type LimitOrderResponse struct {
	OrderID uint64 `json:"orderId"`
}

// MarketOrderResponse returns the fills of a market order
type MarketOrderResponse struct {
	Trades []TradeInfo `json:"trades"`
}

// StatusResponse acknowledges a request with no other result
type StatusResponse struct {
	Status string `json:"status"`
}

// StateInfo summarises exchange state
type StateInfo struct {
	Hash      string `json:"hash"` // Keccak-256 digest of the full state
	Quote     string `json:"quote"`
	Assets    int    `json:"assets"`
	Halted    string `json:"halted,omitempty"` // storage fault that stopped writes
	Timestamp int64  `json:"timestamp"`
}

// PayoutInfo is a withdrawal debited in custody whose payout is unsettled
type PayoutInfo struct {
	Trader string `json:"trader"`
	Ticker string `json:"ticker"`
	Amount string `json:"amount"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by clients to subscribe to channels
// Channels: "trades:<TICKER>", "orderbook:<TICKER>"
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// OrderbookUpdate is pushed after every change to a ticker's book
type OrderbookUpdate struct {
	Type      string       `json:"type"` // "orderbook"
	Ticker    string       `json:"ticker"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"`
}

// TradesUpdate is pushed for every executed market order
type TradesUpdate struct {
	Type   string      `json:"type"` // "trades"
	Ticker string      `json:"ticker"`
	Trades []TradeInfo `json:"trades"`
}
