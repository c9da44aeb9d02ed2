package orderbook

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// SeedAround tops up synthetic liquidity around mid. For i = 1..depth it
// makes sure a bid level exists at mid - i*tick and an ask level at
// mid + i*tick, each holding at least MakerParams.OrdersPerLevel orders of
// random size in [MinQty, maxQty]. Existing orders are never touched, and a
// level that would cross the opposite best price is skipped. Returns the
// orders it added.
func (ob *OrderBook) SeedAround(mid float64, depth int, maxQty float64) []*Order {
	if depth <= 0 || mid <= 0 {
		return nil
	}
	now := ob.now()
	midTick := ob.mkt.Ticks(mid)

	var added []*Order
	for i := int64(1); i <= int64(depth); i++ {
		if bidTick := midTick - i; bidTick > 0 && !ob.crosses(Buy, bidTick) {
			added = ob.topUp(Buy, bidTick, maxQty, now, added)
		}
		if askTick := midTick + i; !ob.crosses(Sell, askTick) {
			added = ob.topUp(Sell, askTick, maxQty, now, added)
		}
	}
	return added
}

func (ob *OrderBook) topUp(s Side, tick int64, maxQty float64, now time.Time, added []*Order) []*Order {
	book, _ := ob.side(s)
	price := ob.mkt.Price(tick)
	for n := len(book[tick]); n < ob.maker.OrdersPerLevel; n++ {
		o := &Order{
			ID:    uuid.NewString(),
			Owner: OwnerSynthetic,
			Side:  s,
			Kind:  Limit,
			Price: price,
			Size:  ob.makerQty(maxQty),
			Time:  now,
		}
		ob.rest(o)
		added = append(added, o)
	}
	return added
}

// makerQty draws a size in [MinQty, maxQty] rounded to 0.001
func (ob *OrderBook) makerQty(maxQty float64) float64 {
	lo := ob.maker.MinQty
	if maxQty < lo {
		maxQty = lo
	}
	q := lo + ob.rng.Float64()*(maxQty-lo)
	q = math.Round(q*1000) / 1000
	if q < lo {
		q = lo
	}
	return q
}
