package orderbook

import (
	"fmt"
	"strings"
	"time"
)

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Opposite returns the side a taker on s trades against
func (s Side) Opposite() Side {
	return -s
}

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// ParseSide accepts "buy"/"sell" in any case
func ParseSide(v string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", v)
	}
}

type Kind int8

const (
	Limit Kind = iota + 1
	Market
)

func (k Kind) String() string {
	switch k {
	case Limit:
		return "limit"
	case Market:
		return "market"
	default:
		return "unknown"
	}
}

func (k Kind) Valid() bool {
	return k == Limit || k == Market
}

// ParseKind accepts "limit"/"market" in any case
func ParseKind(v string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "limit":
		return Limit, nil
	case "market":
		return Market, nil
	default:
		return 0, fmt.Errorf("unknown order kind %q", v)
	}
}

// Owner tells synthetic liquidity apart from the real user
type Owner string

const (
	OwnerSynthetic Owner = "synthetic"
	OwnerUser      Owner = "user"
)

type Order struct {
	ID    string
	Owner Owner
	Side  Side
	Kind  Kind
	Price float64 // tick-quantized; unused for market orders
	Size  float64 // remaining size, always > 0 while resting
	Time  time.Time
}

// Trade is one (taker, resting order) match. Trades are never mutated.
type Trade struct {
	ID           string
	Time         time.Time
	Price        float64
	Size         float64
	TakerSide    Side
	TakerOrderID string
	MakerOrderID string
	TakerOwner   Owner
	MakerOwner   Owner
}

// MakerSide is the side of the resting order in the match
func (t Trade) MakerSide() Side {
	return t.TakerSide.Opposite()
}

// Level is a price with the total resting size at it
type Level struct {
	Price float64
	Size  float64
}

// Depth is an aggregated book snapshot, best level first on each side
type Depth struct {
	Bids []Level // high to low
	Asks []Level // low to high
}

// Execution is the result of sweeping the opposite side of the book.
// Cancelled lists resting user orders removed by self-trade prevention.
type Execution struct {
	Trades       []Trade
	FilledSize   float64
	AvgFillPrice float64 // size-weighted, 0 when nothing filled
	Cancelled    []Order
}

// Placement is the result of PlaceAndMatch. Remaining is the part of a limit
// order that was left resting, nil if it fully filled or was a market order.
type Placement struct {
	Execution
	Remaining *Order
}
