package api

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// MarketInfo describes the simulated instrument and its clock
type MarketInfo struct {
	Symbol       string     `json:"symbol"`       // e.g., "SIM-USD"
	BaseAsset    string     `json:"baseAsset"`    // e.g., "SIM"
	QuoteAsset   string     `json:"quoteAsset"`   // e.g., "USD"
	TickSize     float64    `json:"tickSize"`     // Minimum price increment
	MaxOrderSize float64    `json:"maxOrderSize"` // 0 = unlimited
	Status       StatusInfo `json:"status"`
}

// StatusInfo is the simulation clock state
type StatusInfo struct {
	State       string  `json:"state"` // "idle" or "running"
	Speed       float64 `json:"speed"`
	PeriodMs    int64   `json:"periodMs"` // Effective tick period
	Ticks       uint64  `json:"ticks"`
	Mark        float64 `json:"mark"` // Reference price
	MakerDepth  int     `json:"makerDepth"`
	NoiseOrders int     `json:"noiseOrders"`
}

// OrderbookSnapshot represents current orderbook state
type OrderbookSnapshot struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`      // Sorted high to low
	Asks      []PriceLevel `json:"asks"`      // Sorted low to high
	Timestamp int64        `json:"timestamp"` // Unix milliseconds
}

// PriceLevel is an aggregated [price, size] level
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// BBO is the best bid and offer. Missing sides are omitted.
type BBO struct {
	Bid  *float64 `json:"bid,omitempty"`
	Ask  *float64 `json:"ask,omitempty"`
	Mid  *float64 `json:"mid,omitempty"`
	Mark float64  `json:"mark"`
}

// TradeInfo represents a trade on the tape
type TradeInfo struct {
	ID           string  `json:"id"`
	Price        float64 `json:"price"`
	Size         float64 `json:"size"`
	Side         string  `json:"side"` // Taker side: "buy" or "sell"
	TakerOwner   string  `json:"takerOwner"`
	MakerOwner   string  `json:"makerOwner"`
	TakerOrderID string  `json:"takerOrderId"`
	MakerOrderID string  `json:"makerOrderId"`
	Timestamp    int64   `json:"timestamp"` // Unix milliseconds
}

// CandleInfo is one OHLC bucket
type CandleInfo struct {
	Time   int64   `json:"time"` // Bucket open, Unix milliseconds
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// AccountInfo represents the user account valued at the reference price
type AccountInfo struct {
	Cash           float64 `json:"cash"`
	Position       float64 `json:"position"` // +ve = long, -ve = short
	AvgEntryPrice  float64 `json:"avgEntryPrice"`
	RealizedPnL    float64 `json:"realizedPnl"`
	UnrealizedPnL  float64 `json:"unrealizedPnl"`
	Equity         float64 `json:"equity"`         // Cash + realized + unrealized
	NetLiquidation float64 `json:"netLiquidation"` // Cash + position × mark
	Exposure       float64 `json:"exposure"`       // |position| × mark
	Mark           float64 `json:"mark"`
	TradeCount     int64   `json:"tradeCount"`
	Volume         float64 `json:"volume"`
}

// OrderInfo is a user order left resting on the book
type OrderInfo struct {
	ID        string  `json:"id"`
	Side      string  `json:"side"` // "buy" or "sell"
	Kind      string  `json:"kind"` // "limit"
	Price     float64 `json:"price"`
	Size      float64 `json:"size"` // Remaining size
	Timestamp int64   `json:"timestamp"`
}

// ==============================
// REST Request Types
// ==============================

// SubmitOrderRequest is the payload for POST /api/v1/orders
type SubmitOrderRequest struct {
	Side  string  `json:"side"` // "buy" or "sell"
	Kind  string  `json:"kind"` // "limit" or "market"
	Size  float64 `json:"size"`
	Price float64 `json:"price,omitempty"` // Required for limit orders
}

// SubmitOrderResponse is the response from order submission
type SubmitOrderResponse struct {
	Status       string      `json:"status"` // "filled", "partially_filled", "resting", "unfilled"
	OrderID      string      `json:"orderId"`
	FilledSize   float64     `json:"filledSize"`
	AvgFillPrice float64     `json:"avgFillPrice"`
	Trades       []TradeInfo `json:"trades"`
	Resting      *OrderInfo  `json:"resting,omitempty"`
	Cancelled    []OrderInfo `json:"cancelled,omitempty"` // Own resting orders removed instead of self-trading
	Account      AccountInfo `json:"account"`
}

// SpeedRequest is the payload for PUT /api/v1/control/speed
type SpeedRequest struct {
	Speed float64 `json:"speed"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["orderbook", "trades", "candles", "account", "status"]
}

// OrderbookUpdate is broadcast after every tick and submission
type OrderbookUpdate struct {
	Type      string       `json:"type"` // "orderbook"
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"`
}

// TradesUpdate carries the trades produced by one tick or submission
type TradesUpdate struct {
	Type   string      `json:"type"` // "trades"
	Trades []TradeInfo `json:"trades"`
}

// CandlesUpdate carries the newest candle, or the full series after a reset
type CandlesUpdate struct {
	Type    string       `json:"type"` // "candles"
	Reset   bool         `json:"reset"`
	Candles []CandleInfo `json:"candles"`
}

// AccountUpdate is broadcast when the account may have changed
type AccountUpdate struct {
	Type    string      `json:"type"` // "account"
	Account AccountInfo `json:"account"`
}

// StatusUpdate is broadcast on pause, resume, speed change and reset
type StatusUpdate struct {
	Type   string     `json:"type"` // "status"
	Status StatusInfo `json:"status"`
}
