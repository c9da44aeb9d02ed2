package orderbook

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/uhyunpark/lobsim/pkg/app/core/market"
)

// ErrCrossingOrder is returned by Add when resting the order would leave the
// book crossed. Use PlaceAndMatch for orders that may trade.
var ErrCrossingOrder = errors.New("order crosses the opposite best price")

// MakerParams controls synthetic liquidity produced by SeedAround
type MakerParams struct {
	OrdersPerLevel int     // resting maker orders each seeded level is topped up to
	MinQty         float64 // smallest generated maker order
}

// DefaultMakerParams keeps three small orders per level
var DefaultMakerParams = MakerParams{
	OrdersPerLevel: 3,
	MinQty:         0.1,
}

// OrderBook is a single-instrument limit order book with price-time priority.
// It is not safe for concurrent use; the owner serializes all calls.
type OrderBook struct {
	mkt   *market.Market
	maker MakerParams
	rng   *rand.Rand
	now   func() time.Time // stamps orders that arrive without a time

	// Heap-based best price tracking (O(1) peek)
	bidHeap *tickHeap
	askHeap *tickHeap

	// Price level queues keyed by tick index (FIFO matching at each price)
	bids map[int64][]*Order
	asks map[int64][]*Order
}

func NewOrderBook(mkt *market.Market, maker MakerParams, rng *rand.Rand) *OrderBook {
	if maker.OrdersPerLevel <= 0 {
		maker.OrdersPerLevel = DefaultMakerParams.OrdersPerLevel
	}
	if maker.MinQty <= 0 {
		maker.MinQty = DefaultMakerParams.MinQty
	}
	bidHeap := newBidHeap()
	askHeap := newAskHeap()
	heap.Init(bidHeap)
	heap.Init(askHeap)

	return &OrderBook{
		mkt:     mkt,
		maker:   maker,
		rng:     rng,
		now:     time.Now,
		bidHeap: bidHeap,
		askHeap: askHeap,
		bids:    make(map[int64][]*Order),
		asks:    make(map[int64][]*Order),
	}
}

// Market returns the instrument the book trades
func (ob *OrderBook) Market() *market.Market { return ob.mkt }

// SetNow replaces the time source used by Add and SeedAround
func (ob *OrderBook) SetNow(now func() time.Time) { ob.now = now }

func (ob *OrderBook) side(s Side) (map[int64][]*Order, *tickHeap) {
	if s == Buy {
		return ob.bids, ob.bidHeap
	}
	return ob.asks, ob.askHeap
}

func (ob *OrderBook) bestTick(s Side) (int64, bool) {
	_, h := ob.side(s)
	return h.peek()
}

// BestBid returns the highest bid price, false if there are no bids
func (ob *OrderBook) BestBid() (float64, bool) {
	tick, ok := ob.bestTick(Buy)
	if !ok {
		return 0, false
	}
	return ob.mkt.Price(tick), true
}

// BestAsk returns the lowest ask price, false if there are no asks
func (ob *OrderBook) BestAsk() (float64, bool) {
	tick, ok := ob.bestTick(Sell)
	if !ok {
		return 0, false
	}
	return ob.mkt.Price(tick), true
}

// Mid returns the average of best bid and best ask; false if either side is empty
func (ob *OrderBook) Mid() (float64, bool) {
	bid, okBid := ob.BestBid()
	ask, okAsk := ob.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return (bid + ask) / 2, true
}

func (ob *OrderBook) rest(o *Order) {
	levels, h := ob.side(o.Side)
	tick := ob.mkt.Ticks(o.Price)
	if len(levels[tick]) == 0 {
		// New price level - add to heap
		heap.Push(h, tick)
	}
	levels[tick] = append(levels[tick], o)
}

// crosses reports whether a limit order at tick would trade against the
// opposite best price
func (ob *OrderBook) crosses(s Side, tick int64) bool {
	best, ok := ob.bestTick(s.Opposite())
	if !ok {
		return false
	}
	if s == Buy {
		return tick >= best
	}
	return tick <= best
}

func (ob *OrderBook) prepare(o *Order, t time.Time) error {
	if o == nil {
		return fmt.Errorf("%w: nil order", market.ErrInvalidOrderParameters)
	}
	if !o.Side.Valid() {
		return fmt.Errorf("%w: unknown side %d", market.ErrInvalidOrderParameters, o.Side)
	}
	if !o.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %d", market.ErrInvalidOrderParameters, o.Kind)
	}
	if err := ob.mkt.ValidateOrderSize(o.Size); err != nil {
		return err
	}
	if o.Kind == Limit {
		if err := ob.mkt.ValidateLimitPrice(o.Price); err != nil {
			return err
		}
		o.Price = ob.mkt.Quantize(o.Price)
	} else {
		o.Price = 0
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Owner == "" {
		o.Owner = OwnerUser
	}
	if o.Time.IsZero() {
		o.Time = t
	}
	return nil
}

// Add rests a limit order at the tail of its price level without matching.
// A limit order that would cross the opposite best price is rejected with
// ErrCrossingOrder.
func (ob *OrderBook) Add(o *Order) error {
	if o != nil && o.Kind != Limit {
		return fmt.Errorf("%w: only limit orders can rest", market.ErrInvalidOrderParameters)
	}
	if err := ob.prepare(o, ob.now()); err != nil {
		return err
	}
	if ob.crosses(o.Side, ob.mkt.Ticks(o.Price)) {
		return ErrCrossingOrder
	}
	ob.rest(o)
	return nil
}

// ExecuteMarket sweeps the side opposite to side for up to size, best price
// first and FIFO within a level. Liquidity running out is not an error; the
// result simply reports FilledSize < size.
func (ob *OrderBook) ExecuteMarket(side Side, size float64, t time.Time) Execution {
	taker := &Order{
		ID:    uuid.NewString(),
		Owner: OwnerSynthetic,
		Side:  side,
		Kind:  Market,
		Size:  size,
		Time:  t,
	}
	return ob.sweep(taker, size, t)
}

func (ob *OrderBook) sweep(taker *Order, size float64, t time.Time) Execution {
	var exec Execution
	if !taker.Side.Valid() {
		return exec
	}
	levels, h := ob.side(taker.Side.Opposite())

	var notional float64
	remaining := market.SnapZero(size)
	for remaining > 0 {
		tick, ok := h.peek()
		if !ok {
			break
		}
		level := levels[tick]
		maker := level[0]
		if taker.Owner == OwnerUser && maker.Owner == OwnerUser {
			exec.Cancelled = append(exec.Cancelled, *maker)
			ob.popFront(levels, h, tick)
			continue
		}
		match := math.Min(remaining, maker.Size)

		remaining = market.SnapZero(remaining - match)
		maker.Size = market.SnapZero(maker.Size - match)

		exec.Trades = append(exec.Trades, Trade{
			ID:           uuid.NewString(),
			Time:         t,
			Price:        maker.Price,
			Size:         match,
			TakerSide:    taker.Side,
			TakerOrderID: taker.ID,
			MakerOrderID: maker.ID,
			TakerOwner:   taker.Owner,
			MakerOwner:   maker.Owner,
		})
		exec.FilledSize += match
		notional += match * maker.Price

		if maker.Size == 0 {
			ob.popFront(levels, h, tick)
		}
	}

	if exec.FilledSize > 0 {
		exec.AvgFillPrice = notional / exec.FilledSize
	}
	return exec
}

// popFront drops the oldest order at tick, pruning the level once empty
func (ob *OrderBook) popFront(levels map[int64][]*Order, h *tickHeap, tick int64) {
	level := levels[tick][1:]
	if len(level) == 0 {
		delete(levels, tick)
		h.remove(tick)
		return
	}
	levels[tick] = level
}

// PlaceAndMatch submits an order. A market order always sweeps and never
// rests. A limit order that crosses the opposite best price sweeps for its
// full size and any unfilled remainder rests at its limit price; a limit
// order that does not cross rests immediately behind existing orders at its
// price.
//
// A user order never trades with a resting user order: the resting order is
// cancelled (reported in Execution.Cancelled) and the sweep moves on.
func (ob *OrderBook) PlaceAndMatch(o *Order, t time.Time) (Placement, error) {
	if err := ob.prepare(o, t); err != nil {
		return Placement{}, err
	}

	if o.Kind == Market {
		exec := ob.sweep(o, o.Size, t)
		return Placement{Execution: exec}, nil
	}

	if !ob.crosses(o.Side, ob.mkt.Ticks(o.Price)) {
		ob.rest(o)
		return Placement{Remaining: o}, nil
	}

	exec := ob.sweep(o, o.Size, t)
	placement := Placement{Execution: exec}
	if rem := market.SnapZero(o.Size - exec.FilledSize); rem > 0 {
		o.Size = rem
		ob.rest(o)
		placement.Remaining = o
	}
	return placement, nil
}

// Snapshot returns up to depth aggregated levels per side (all levels when
// depth <= 0). Bids are sorted high to low, asks low to high.
func (ob *OrderBook) Snapshot(depth int) Depth {
	return Depth{
		Bids: ob.levels(Buy, depth),
		Asks: ob.levels(Sell, depth),
	}
}

func (ob *OrderBook) levels(s Side, depth int) []Level {
	book, _ := ob.side(s)

	ticks := make([]int64, 0, len(book))
	for tick, orders := range book {
		if len(orders) > 0 {
			ticks = append(ticks, tick)
		}
	}
	sort.Slice(ticks, func(i, j int) bool {
		if s == Buy {
			return ticks[i] > ticks[j]
		}
		return ticks[i] < ticks[j]
	})
	if depth > 0 && len(ticks) > depth {
		ticks = ticks[:depth]
	}

	out := make([]Level, len(ticks))
	for i, tick := range ticks {
		var total float64
		for _, o := range book[tick] {
			total += o.Size
		}
		out[i] = Level{Price: ob.mkt.Price(tick), Size: total}
	}
	return out
}

// OrdersAt returns copies of the resting orders at price on side s, in queue
// order
func (ob *OrderBook) OrdersAt(s Side, price float64) []Order {
	book, _ := ob.side(s)
	level := book[ob.mkt.Ticks(price)]
	out := make([]Order, len(level))
	for i, o := range level {
		out[i] = *o
	}
	return out
}

// TotalSize sums all resting size on side s
func (ob *OrderBook) TotalSize(s Side) float64 {
	book, _ := ob.side(s)
	var total float64
	for _, level := range book {
		for _, o := range level {
			total += o.Size
		}
	}
	return total
}

// OrderCount returns the number of resting orders on side s
func (ob *OrderBook) OrderCount(s Side) int {
	book, _ := ob.side(s)
	n := 0
	for _, level := range book {
		n += len(level)
	}
	return n
}
