package market

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ErrInvalidOrderParameters is returned when an order is submitted with a
// missing or non-positive size or price. Callers get it wrapped with the
// offending field; test with errors.Is.
var ErrInvalidOrderParameters = errors.New("invalid order parameters")

// Market defines the parameters of the simulated instrument (e.g., SIM-USD)
type Market struct {
	// Identity
	Symbol     string // "SIM-USD"
	BaseAsset  string // "SIM"
	QuoteAsset string // "USD"

	// TickSize: minimum price increment. Every stored or compared price is a
	// multiple of it.
	TickSize float64

	// MaxOrderSize caps a single order. Zero means unlimited.
	MaxOrderSize float64
}

// Params is a helper struct for creating a market from config
type Params struct {
	TickSize     float64
	MaxOrderSize float64
}

// DefaultParams mirrors the reference simulator: one-cent ticks, no size cap
var DefaultParams = Params{
	TickSize:     0.01,
	MaxOrderSize: 0,
}

// NewMarket creates a new market with validation
func NewMarket(symbol, baseAsset, quoteAsset string, params Params) (*Market, error) {
	m := &Market{
		Symbol:       symbol,
		BaseAsset:    baseAsset,
		QuoteAsset:   quoteAsset,
		TickSize:     params.TickSize,
		MaxOrderSize: params.MaxOrderSize,
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid market params: %w", err)
	}

	return m, nil
}

// NewMarketWithDefaults creates a market using DefaultParams
func NewMarketWithDefaults(symbol, baseAsset, quoteAsset string) (*Market, error) {
	return NewMarket(symbol, baseAsset, quoteAsset, DefaultParams)
}

// Validate checks market parameter sanity
func (m *Market) Validate() error {
	if m.Symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if m.BaseAsset == "" || m.QuoteAsset == "" {
		return fmt.Errorf("base and quote assets must be specified")
	}
	if !(m.TickSize > 0) || math.IsInf(m.TickSize, 0) {
		return fmt.Errorf("tick size must be positive and finite")
	}
	if m.MaxOrderSize < 0 {
		return fmt.Errorf("max order size cannot be negative")
	}
	return nil
}

func (m *Market) tick() decimal.Decimal {
	return decimal.NewFromFloat(m.TickSize)
}

// MaxTicks is the largest tick index a limit price may have. Tick indexes
// stay far below the int64 range.
const MaxTicks = 1 << 53

// Ticks converts a price to its nearest integer tick index.
// Example: 100.004 with TickSize=0.01 → 10000; 100.005 → 10001
// price must have passed ValidateLimitPrice.
func (m *Market) Ticks(price float64) int64 {
	return decimal.NewFromFloat(price).Div(m.tick()).Round(0).IntPart()
}

// Price converts a tick index back to a price.
// Example: 9999 ticks with TickSize=0.01 → 99.99
func (m *Market) Price(ticks int64) float64 {
	p, _ := decimal.NewFromInt(ticks).Mul(m.tick()).Float64()
	return p
}

// Quantize rounds a price to the nearest multiple of the tick size
func (m *Market) Quantize(price float64) float64 {
	return m.Price(m.Ticks(price))
}

// ValidateOrderSize checks that size is positive and within limits
func (m *Market) ValidateOrderSize(size float64) error {
	if math.IsNaN(size) || math.IsInf(size, 0) {
		return fmt.Errorf("%w: size must be finite, got %g", ErrInvalidOrderParameters, size)
	}
	if IsZero(size) || size < 0 {
		return fmt.Errorf("%w: size must be positive, got %g", ErrInvalidOrderParameters, size)
	}
	if m.MaxOrderSize > 0 && size > m.MaxOrderSize {
		return fmt.Errorf("%w: size %g exceeds maximum %g", ErrInvalidOrderParameters, size, m.MaxOrderSize)
	}
	return nil
}

// ValidateLimitPrice checks that a limit price is finite and positive, and
// that its tick index lies in [1, MaxTicks]
func (m *Market) ValidateLimitPrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return fmt.Errorf("%w: price must be finite, got %g", ErrInvalidOrderParameters, price)
	}
	if price <= 0 {
		return fmt.Errorf("%w: price must be positive, got %g", ErrInvalidOrderParameters, price)
	}
	ticks := decimal.NewFromFloat(price).Div(m.tick()).Round(0)
	if ticks.Sign() <= 0 {
		return fmt.Errorf("%w: price %g is below one tick (%g)", ErrInvalidOrderParameters, price, m.TickSize)
	}
	if ticks.GreaterThan(decimal.NewFromInt(MaxTicks)) {
		return fmt.Errorf("%w: price %g is out of range", ErrInvalidOrderParameters, price)
	}
	return nil
}
