package orderbook

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/lobsim/pkg/app/core/market"
)

var t0 = time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)

func newTestBook(t testing.TB, maker MakerParams) *OrderBook {
	t.Helper()
	mkt, err := market.NewMarketWithDefaults("SIM-USD", "SIM", "USD")
	require.NoError(t, err)
	return NewOrderBook(mkt, maker, rand.New(rand.NewSource(1)))
}

func limit(id string, side Side, price, size float64) *Order {
	return &Order{ID: id, Owner: OwnerSynthetic, Side: side, Kind: Limit, Price: price, Size: size, Time: t0}
}

func userLimit(id string, side Side, price, size float64) *Order {
	o := limit(id, side, price, size)
	o.Owner = OwnerUser
	return o
}

func TestNewOrderBookIsEmpty(t *testing.T) {
	ob := newTestBook(t, DefaultMakerParams)

	_, ok := ob.BestBid()
	assert.False(t, ok)
	_, ok = ob.BestAsk()
	assert.False(t, ok)
	_, ok = ob.Mid()
	assert.False(t, ok)

	depth := ob.Snapshot(10)
	assert.Empty(t, depth.Bids)
	assert.Empty(t, depth.Asks)
}

func TestAddQuantizesAndAppends(t *testing.T) {
	ob := newTestBook(t, DefaultMakerParams)

	require.NoError(t, ob.Add(limit("a", Buy, 99.994, 1)))
	require.NoError(t, ob.Add(limit("b", Buy, 99.99, 2)))
	require.NoError(t, ob.Add(limit("c", Sell, 100.006, 3)))

	bid, ok := ob.BestBid()
	require.True(t, ok)
	assert.Equal(t, 99.99, bid)
	ask, ok := ob.BestAsk()
	require.True(t, ok)
	assert.Equal(t, 100.01, ask)

	orders := ob.OrdersAt(Buy, 99.99)
	require.Len(t, orders, 2)
	assert.Equal(t, "a", orders[0].ID)
	assert.Equal(t, "b", orders[1].ID)
	assert.Equal(t, 99.99, orders[0].Price)
}

func TestAddRejectsInvalidOrders(t *testing.T) {
	ob := newTestBook(t, DefaultMakerParams)
	require.NoError(t, ob.Add(limit("ask", Sell, 100, 1)))

	tests := []struct {
		name  string
		order *Order
		want  error
	}{
		{"zero size", limit("x", Buy, 99, 0), market.ErrInvalidOrderParameters},
		{"negative size", limit("x", Buy, 99, -1), market.ErrInvalidOrderParameters},
		{"zero price", limit("x", Buy, 0, 1), market.ErrInvalidOrderParameters},
		{"market kind", &Order{Side: Buy, Kind: Market, Size: 1}, market.ErrInvalidOrderParameters},
		{"bad side", &Order{Side: 0, Kind: Limit, Price: 99, Size: 1}, market.ErrInvalidOrderParameters},
		{"crossing", limit("x", Buy, 100, 1), ErrCrossingOrder},
		{"nil", nil, market.ErrInvalidOrderParameters},
		{"NaN size", limit("x", Buy, 99, math.NaN()), market.ErrInvalidOrderParameters},
		{"infinite size", limit("x", Buy, 99, math.Inf(1)), market.ErrInvalidOrderParameters},
		{"NaN price", limit("x", Buy, math.NaN(), 1), market.ErrInvalidOrderParameters},
		{"infinite price", limit("x", Buy, math.Inf(1), 1), market.ErrInvalidOrderParameters},
		{"price beyond tick range", limit("x", Buy, 1.9e17, 1), market.ErrInvalidOrderParameters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ob.Add(tt.order)
			if !errors.Is(err, tt.want) {
				t.Errorf("Add() error = %v, want %v", err, tt.want)
			}
		})
	}
	assert.Equal(t, 0, ob.OrderCount(Buy))
}

func TestExecuteMarketEmptyBook(t *testing.T) {
	ob := newTestBook(t, DefaultMakerParams)

	exec := ob.ExecuteMarket(Buy, 5, t0)
	assert.Empty(t, exec.Trades)
	assert.Equal(t, 0.0, exec.FilledSize)
	assert.Equal(t, 0.0, exec.AvgFillPrice)
}

func TestExecuteMarketWalksAsksAscending(t *testing.T) {
	ob := newTestBook(t, DefaultMakerParams)
	require.NoError(t, ob.Add(limit("a101", Sell, 101, 2)))
	require.NoError(t, ob.Add(limit("a100.5", Sell, 100.5, 1)))
	require.NoError(t, ob.Add(limit("a102", Sell, 102, 5)))

	exec := ob.ExecuteMarket(Buy, 4, t0)

	require.Len(t, exec.Trades, 3)
	assert.Equal(t, 100.5, exec.Trades[0].Price)
	assert.Equal(t, 101.0, exec.Trades[1].Price)
	assert.Equal(t, 102.0, exec.Trades[2].Price)
	assert.Equal(t, 1.0, exec.Trades[2].Size)
	assert.Equal(t, 4.0, exec.FilledSize)
	assert.InDelta(t, (100.5+2*101+102)/4, exec.AvgFillPrice, 1e-9)
	for _, tr := range exec.Trades {
		assert.Equal(t, Buy, tr.TakerSide)
		assert.Equal(t, Sell, tr.MakerSide())
		assert.Equal(t, t0, tr.Time)
	}

	ask, ok := ob.BestAsk()
	require.True(t, ok)
	assert.Equal(t, 102.0, ask)
	assert.InDelta(t, 4.0, ob.TotalSize(Sell), 1e-9)
}

func TestExecuteMarketWalksBidsDescending(t *testing.T) {
	ob := newTestBook(t, DefaultMakerParams)
	require.NoError(t, ob.Add(limit("low", Buy, 99, 1)))
	require.NoError(t, ob.Add(limit("high", Buy, 100, 1)))

	exec := ob.ExecuteMarket(Sell, 1, t0)

	require.Len(t, exec.Trades, 1)
	assert.Equal(t, "high", exec.Trades[0].MakerOrderID)
	assert.Equal(t, 100.0, exec.Trades[0].Price)
	bid, _ := ob.BestBid()
	assert.Equal(t, 99.0, bid)
}

func TestExecuteMarketPartialFill(t *testing.T) {
	ob := newTestBook(t, DefaultMakerParams)
	require.NoError(t, ob.Add(limit("a", Sell, 100, 1)))
	require.NoError(t, ob.Add(limit("b", Sell, 100.01, 2)))

	exec := ob.ExecuteMarket(Buy, 5, t0)

	assert.Equal(t, 3.0, exec.FilledSize)
	assert.Less(t, exec.FilledSize, 5.0)
	_, ok := ob.BestAsk()
	assert.False(t, ok, "ask side should be exhausted")
	assert.Empty(t, ob.Snapshot(0).Asks)
}

func TestFIFOWithinLevel(t *testing.T) {
	ob := newTestBook(t, DefaultMakerParams)
	require.NoError(t, ob.Add(limit("A", Sell, 100, 1)))
	require.NoError(t, ob.Add(limit("B", Sell, 100, 1)))

	exec := ob.ExecuteMarket(Buy, 1.5, t0)

	require.Len(t, exec.Trades, 2)
	assert.Equal(t, "A", exec.Trades[0].MakerOrderID)
	assert.Equal(t, 1.0, exec.Trades[0].Size)
	assert.Equal(t, "B", exec.Trades[1].MakerOrderID)
	assert.Equal(t, 0.5, exec.Trades[1].Size)

	rest := ob.OrdersAt(Sell, 100)
	require.Len(t, rest, 1)
	assert.Equal(t, "B", rest[0].ID)
	assert.Equal(t, 0.5, rest[0].Size)
}

func TestOneTradePerRestingOrder(t *testing.T) {
	ob := newTestBook(t, DefaultMakerParams)
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, ob.Add(limit(id, Buy, 99.5, 1)))
	}

	exec := ob.ExecuteMarket(Sell, 3, t0)

	require.Len(t, exec.Trades, 3, "same-price fills must not be coalesced")
	assert.Equal(t, 0, ob.OrderCount(Buy))
}

func TestDustIsSnappedAway(t *testing.T) {
	ob := newTestBook(t, DefaultMakerParams)
	require.NoError(t, ob.Add(limit("a", Sell, 100, 0.3)))

	ob.ExecuteMarket(Buy, 0.1, t0)
	ob.ExecuteMarket(Buy, 0.2, t0)

	assert.Equal(t, 0, ob.OrderCount(Sell))
	_, ok := ob.BestAsk()
	assert.False(t, ok)
}

func TestPlaceAndMatch(t *testing.T) {
	t.Run("non-crossing limit rests", func(t *testing.T) {
		ob := newTestBook(t, DefaultMakerParams)
		require.NoError(t, ob.Add(limit("ask", Sell, 100, 1)))

		p, err := ob.PlaceAndMatch(limit("bid", Buy, 99.5, 2), t0)
		require.NoError(t, err)
		assert.Empty(t, p.Trades)
		require.NotNil(t, p.Remaining)
		assert.Equal(t, 2.0, p.Remaining.Size)
		bid, _ := ob.BestBid()
		assert.Equal(t, 99.5, bid)
	})

	t.Run("crossing limit fills then rests remainder", func(t *testing.T) {
		ob := newTestBook(t, DefaultMakerParams)
		require.NoError(t, ob.Add(limit("ask", Sell, 100, 1)))

		p, err := ob.PlaceAndMatch(limit("bid", Buy, 100.5, 3), t0)
		require.NoError(t, err)
		require.Len(t, p.Trades, 1)
		assert.Equal(t, 100.0, p.Trades[0].Price)
		assert.Equal(t, 1.0, p.FilledSize)
		require.NotNil(t, p.Remaining)
		assert.Equal(t, 2.0, p.Remaining.Size)
		assert.Equal(t, "bid", p.Remaining.ID)

		bid, ok := ob.BestBid()
		require.True(t, ok)
		assert.Equal(t, 100.5, bid)
		_, ok = ob.BestAsk()
		assert.False(t, ok)
	})

	t.Run("crossing limit fully filled leaves nothing", func(t *testing.T) {
		ob := newTestBook(t, DefaultMakerParams)
		require.NoError(t, ob.Add(limit("ask", Sell, 100, 5)))

		p, err := ob.PlaceAndMatch(limit("bid", Buy, 100, 2), t0)
		require.NoError(t, err)
		assert.Nil(t, p.Remaining)
		assert.Equal(t, 2.0, p.FilledSize)
		assert.Equal(t, 0, ob.OrderCount(Buy))
	})

	t.Run("market order never rests", func(t *testing.T) {
		ob := newTestBook(t, DefaultMakerParams)
		require.NoError(t, ob.Add(limit("bid", Buy, 99, 1)))

		p, err := ob.PlaceAndMatch(&Order{Side: Sell, Kind: Market, Size: 4}, t0)
		require.NoError(t, err)
		assert.Nil(t, p.Remaining)
		assert.Equal(t, 1.0, p.FilledSize)
		assert.Equal(t, 0, ob.OrderCount(Sell))
		assert.Equal(t, OwnerUser, p.Trades[0].TakerOwner)
	})

	t.Run("out of range limit price does not sweep", func(t *testing.T) {
		ob := newTestBook(t, DefaultMakerParams)
		ob.SeedAround(100, 3, 2)
		bids, asks := ob.TotalSize(Buy), ob.OrderCount(Sell)

		_, err := ob.PlaceAndMatch(&Order{Side: Sell, Kind: Limit, Price: 1.844674407370956e17, Size: 5}, t0)
		assert.ErrorIs(t, err, market.ErrInvalidOrderParameters)
		assert.Equal(t, bids, ob.TotalSize(Buy))
		assert.Equal(t, asks, ob.OrderCount(Sell))
		bid, _ := ob.BestBid()
		assert.Equal(t, 99.99, bid)
	})

	t.Run("user order cancels own resting order instead of trading", func(t *testing.T) {
		ob := newTestBook(t, DefaultMakerParams)
		require.NoError(t, ob.Add(limit("synthetic", Buy, 99, 2)))
		require.NoError(t, ob.Add(userLimit("mine", Buy, 100, 1)))

		p, err := ob.PlaceAndMatch(&Order{Side: Sell, Kind: Market, Size: 1}, t0)
		require.NoError(t, err)
		require.Len(t, p.Cancelled, 1)
		assert.Equal(t, "mine", p.Cancelled[0].ID)
		require.Len(t, p.Trades, 1)
		assert.Equal(t, "synthetic", p.Trades[0].MakerOrderID)
		assert.Equal(t, 99.0, p.Trades[0].Price)
		assert.Empty(t, ob.OrdersAt(Buy, 100))
		assert.InDelta(t, 1.0, ob.TotalSize(Buy), 1e-9)
	})

	t.Run("synthetic taker still fills user orders", func(t *testing.T) {
		ob := newTestBook(t, DefaultMakerParams)
		require.NoError(t, ob.Add(userLimit("mine", Sell, 101, 1)))

		exec := ob.ExecuteMarket(Buy, 1, t0)
		require.Len(t, exec.Trades, 1)
		assert.Empty(t, exec.Cancelled)
		assert.Equal(t, OwnerUser, exec.Trades[0].MakerOwner)
	})

	t.Run("crossing user limit rests after cancelling own orders", func(t *testing.T) {
		ob := newTestBook(t, DefaultMakerParams)
		require.NoError(t, ob.Add(userLimit("mine", Sell, 100, 1)))

		p, err := ob.PlaceAndMatch(userLimit("bid", Buy, 100.5, 2), t0)
		require.NoError(t, err)
		assert.Empty(t, p.Trades)
		require.Len(t, p.Cancelled, 1)
		require.NotNil(t, p.Remaining)
		_, ok := ob.BestAsk()
		assert.False(t, ok)
		bid, _ := ob.BestBid()
		assert.Equal(t, 100.5, bid)
	})

	t.Run("invalid parameters rejected", func(t *testing.T) {
		ob := newTestBook(t, DefaultMakerParams)
		_, err := ob.PlaceAndMatch(&Order{Side: Buy, Kind: Limit, Size: 1}, t0)
		assert.ErrorIs(t, err, market.ErrInvalidOrderParameters)
		_, err = ob.PlaceAndMatch(&Order{Side: Buy, Kind: Market, Size: 0}, t0)
		assert.ErrorIs(t, err, market.ErrInvalidOrderParameters)
	})
}

func TestSnapshotAggregatesAndSorts(t *testing.T) {
	ob := newTestBook(t, DefaultMakerParams)
	require.NoError(t, ob.Add(limit("b1", Buy, 99, 1)))
	require.NoError(t, ob.Add(limit("b2", Buy, 99, 2.5)))
	require.NoError(t, ob.Add(limit("b3", Buy, 98, 1)))
	require.NoError(t, ob.Add(limit("b4", Buy, 99.5, 1)))
	require.NoError(t, ob.Add(limit("a1", Sell, 101, 4)))
	require.NoError(t, ob.Add(limit("a2", Sell, 100, 1)))

	depth := ob.Snapshot(2)

	assert.Equal(t, []Level{{Price: 99.5, Size: 1}, {Price: 99, Size: 3.5}}, depth.Bids)
	assert.Equal(t, []Level{{Price: 100, Size: 1}, {Price: 101, Size: 4}}, depth.Asks)
	assert.Len(t, ob.Snapshot(0).Bids, 3)
	// read-only
	assert.Len(t, ob.OrdersAt(Buy, 99), 2)
}

func TestSeedAroundScenario(t *testing.T) {
	ob := newTestBook(t, MakerParams{OrdersPerLevel: 3, MinQty: 1})

	added := ob.SeedAround(100, 3, 5)
	assert.Len(t, added, 18)

	bid, ok := ob.BestBid()
	require.True(t, ok)
	assert.Equal(t, 99.99, bid)
	ask, ok := ob.BestAsk()
	require.True(t, ok)
	assert.Equal(t, 100.01, ask)

	depth := ob.Snapshot(0)
	assert.Equal(t, []float64{99.99, 99.98, 99.97}, levelPrices(depth.Bids))
	assert.Equal(t, []float64{100.01, 100.02, 100.03}, levelPrices(depth.Asks))
	for _, o := range added {
		assert.Equal(t, OwnerSynthetic, o.Owner)
		assert.GreaterOrEqual(t, o.Size, 1.0)
		assert.LessOrEqual(t, o.Size, 5.0)
	}

	exec := ob.ExecuteMarket(Buy, 2, t0)
	assert.InDelta(t, 2.0, exec.FilledSize, 1e-9)
	for i := 1; i < len(exec.Trades); i++ {
		assert.GreaterOrEqual(t, exec.Trades[i].Price, exec.Trades[i-1].Price)
	}
	assert.GreaterOrEqual(t, exec.AvgFillPrice, 100.01-1e-9)
}

func TestSeedAroundPreservesExistingOrders(t *testing.T) {
	ob := newTestBook(t, DefaultMakerParams)
	require.NoError(t, ob.Add(limit("mine", Buy, 99.99, 7)))

	ob.SeedAround(100, 2, 1)

	level := ob.OrdersAt(Buy, 99.99)
	require.Len(t, level, 3)
	assert.Equal(t, "mine", level[0].ID)
	assert.Equal(t, 7.0, level[0].Size)

	again := ob.SeedAround(100, 2, 1)
	assert.Empty(t, again, "levels already at target count")

	wider := ob.SeedAround(100, 3, 1)
	assert.Len(t, wider, 6, "only the new outer levels are seeded")
}

func TestSeedAroundSkipsCrossingLevels(t *testing.T) {
	ob := newTestBook(t, DefaultMakerParams)
	require.NoError(t, ob.Add(limit("low-ask", Sell, 99.98, 1)))

	ob.SeedAround(100, 3, 1)

	bid, ok := ob.BestBid()
	require.True(t, ok)
	ask, ok := ob.BestAsk()
	require.True(t, ok)
	assert.Less(t, bid, ask)
	assert.Equal(t, 99.97, bid)
}

func levelPrices(levels []Level) []float64 {
	out := make([]float64, len(levels))
	for i, l := range levels {
		out[i] = l.Price
	}
	return out
}
