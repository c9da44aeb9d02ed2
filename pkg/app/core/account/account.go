package account

import (
	"fmt"
	"math"

	"github.com/uhyunpark/lobsim/pkg/app/core/market"
	"github.com/uhyunpark/lobsim/pkg/app/core/orderbook"
)

// Account is the single simulated trader: cash, a signed position in the
// instrument and the cost basis of that position.
// Not safe for concurrent use; the session serializes access.
type Account struct {
	InitialCash float64 // cash restored by Reset

	Cash          float64 // moves by price×size on every fill (buys debit, sells credit)
	Position      float64 // +ve = long, -ve = short
	AvgEntryPrice float64 // VWAP of the open position, 0 when flat
	RealizedPnL   float64 // accumulated on reducing fills

	// Lifetime statistics
	TradeCount int64   // number of fills applied
	Volume     float64 // total filled size
}

// Fill is one execution against the account at a price
type Fill struct {
	Price float64
	Size  float64
}

// Snapshot is a point-in-time view of the account valued at a mark price
type Snapshot struct {
	Cash          float64
	Position      float64
	AvgEntryPrice float64
	RealizedPnL   float64
	UnrealizedPnL float64
	// Equity = Cash + RealizedPnL + UnrealizedPnL
	Equity float64
	// NetLiquidation = Cash + Position×mark
	NetLiquidation float64
	Exposure       float64 // |Position|×mark
	Mark           float64
	TradeCount     int64
	Volume         float64
}

// New creates a flat account holding initialCash
func New(initialCash float64) *Account {
	return &Account{
		InitialCash: initialCash,
		Cash:        initialCash,
	}
}

// ApplyFills books a batch of fills executed on side, in order. The batch
// is applied to a copy and committed at the end, so a caller never sees a
// half-applied batch. Fills with a non-positive size are ignored.
func (a *Account) ApplyFills(side orderbook.Side, fills []Fill) {
	if !side.Valid() || len(fills) == 0 {
		return
	}
	next := *a
	dir := float64(side)
	for _, f := range fills {
		if f.Size <= 0 || market.IsZero(f.Size) {
			continue
		}
		next.applyFill(dir, f)
	}
	if market.IsZero(next.Position) {
		next.Position = 0
		next.AvgEntryPrice = 0
	}
	*a = next
}

func (a *Account) applyFill(dir float64, f Fill) {
	a.Cash -= dir * f.Price * f.Size
	a.TradeCount++
	a.Volume += f.Size

	oldSize := a.Position
	if oldSize == 0 || sign(oldSize) == dir {
		// Same direction or flat: extend and update VWAP
		newSize := oldSize + dir*f.Size
		a.AvgEntryPrice = (a.AvgEntryPrice*math.Abs(oldSize) + f.Price*f.Size) / math.Abs(newSize)
		a.Position = newSize
		return
	}

	// Opposite direction: reduce, close or flip
	closed := math.Min(f.Size, math.Abs(oldSize))
	realized := (f.Price - a.AvgEntryPrice) * closed
	if oldSize < 0 {
		realized = -realized
	}
	a.RealizedPnL += realized

	a.Position = market.SnapZero(oldSize + dir*closed)
	if a.Position == 0 {
		a.AvgEntryPrice = 0
	}

	if left := market.SnapZero(f.Size - closed); left > 0 {
		// Position flipped: remainder opens at the fill price
		a.Position = dir * left
		a.AvgEntryPrice = f.Price
	}
}

// UnrealizedPnL values the open position at mark
// Formula: Position × (mark - AvgEntryPrice)
func (a *Account) UnrealizedPnL(mark float64) float64 {
	if a.Position == 0 {
		return 0
	}
	return a.Position * (mark - a.AvgEntryPrice)
}

// Snapshot returns the account valued at mark
func (a *Account) Snapshot(mark float64) Snapshot {
	unrealized := a.UnrealizedPnL(mark)
	return Snapshot{
		Cash:           a.Cash,
		Position:       a.Position,
		AvgEntryPrice:  a.AvgEntryPrice,
		RealizedPnL:    a.RealizedPnL,
		UnrealizedPnL:  unrealized,
		Equity:         a.Cash + a.RealizedPnL + unrealized,
		NetLiquidation: a.Cash + a.Position*mark,
		Exposure:       a.Notional(mark),
		Mark:           mark,
		TradeCount:     a.TradeCount,
		Volume:         a.Volume,
	}
}

// Reset restores the account to its initial cash with no position
func (a *Account) Reset() {
	*a = *New(a.InitialCash)
}

// IsFlat returns true if there is no open position
func (a *Account) IsFlat() bool {
	return a.Position == 0
}

// IsShort returns true if position is short (size < 0)
func (a *Account) IsShort() bool {
	return a.Position < 0
}

// Notional returns position notional value at given price
// Formula: |size| × price
func (a *Account) Notional(price float64) float64 {
	return math.Abs(a.Position) * price
}

// Validate checks account invariants
func (a *Account) Validate() error {
	if a.Position == 0 && a.AvgEntryPrice != 0 {
		return fmt.Errorf("flat account has entry price %g", a.AvgEntryPrice)
	}
	if a.Position != 0 && a.AvgEntryPrice <= 0 {
		return fmt.Errorf("open position %g has non-positive entry price %g", a.Position, a.AvgEntryPrice)
	}
	if a.Volume < 0 || a.TradeCount < 0 {
		return fmt.Errorf("negative statistics: volume=%g trades=%d", a.Volume, a.TradeCount)
	}
	return nil
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}
