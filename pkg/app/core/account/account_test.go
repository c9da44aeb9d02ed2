package account

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/uhyunpark/lobsim/pkg/app/core/orderbook"
)

func TestNewAccountIsFlat(t *testing.T) {
	acc := New(10_000)

	assert.Equal(t, 10_000.0, acc.Cash)
	assert.True(t, acc.IsFlat())
	assert.Equal(t, 0.0, acc.AvgEntryPrice)
	require.NoError(t, acc.Validate())

	snap := acc.Snapshot(100)
	assert.Equal(t, 10_000.0, snap.Equity)
	assert.Equal(t, 10_000.0, snap.NetLiquidation)
	assert.Equal(t, 0.0, snap.UnrealizedPnL)
}

func TestApplyFills(t *testing.T) {
	type step struct {
		side  orderbook.Side
		fills []Fill
	}
	tests := []struct {
		name         string
		steps        []step
		wantPos      float64
		wantAvg      float64
		wantRealized float64
		wantCash     float64
	}{
		{
			name:     "open long",
			steps:    []step{{orderbook.Buy, []Fill{{Price: 10, Size: 5}}}},
			wantPos:  5,
			wantAvg:  10,
			wantCash: 950,
		},
		{
			name: "extend long averages",
			steps: []step{
				{orderbook.Buy, []Fill{{Price: 10, Size: 2}, {Price: 13, Size: 1}}},
			},
			wantPos:  3,
			wantAvg:  11,
			wantCash: 967,
		},
		{
			name: "reduce long keeps average",
			steps: []step{
				{orderbook.Buy, []Fill{{Price: 10, Size: 4}}},
				{orderbook.Sell, []Fill{{Price: 12, Size: 1}}},
			},
			wantPos:      3,
			wantAvg:      10,
			wantRealized: 2,
			wantCash:     972,
		},
		{
			name: "close long",
			steps: []step{
				{orderbook.Buy, []Fill{{Price: 10, Size: 4}}},
				{orderbook.Sell, []Fill{{Price: 9, Size: 4}}},
			},
			wantPos:      0,
			wantAvg:      0,
			wantRealized: -4,
			wantCash:     996,
		},
		{
			name: "flip long to short",
			steps: []step{
				{orderbook.Buy, []Fill{{Price: 10, Size: 5}}},
				{orderbook.Sell, []Fill{{Price: 12, Size: 8}}},
			},
			wantPos:      -3,
			wantAvg:      12,
			wantRealized: 10,
			wantCash:     1046,
		},
		{
			name: "short profits when price falls",
			steps: []step{
				{orderbook.Sell, []Fill{{Price: 20, Size: 2}}},
				{orderbook.Buy, []Fill{{Price: 15, Size: 2}}},
			},
			wantPos:      0,
			wantAvg:      0,
			wantRealized: 10,
			wantCash:     1010,
		},
		{
			name: "flip short to long within one batch",
			steps: []step{
				{orderbook.Sell, []Fill{{Price: 20, Size: 1}}},
				{orderbook.Buy, []Fill{{Price: 19, Size: 1}, {Price: 21, Size: 2}}},
			},
			wantPos:      2,
			wantAvg:      21,
			wantRealized: 1,
			wantCash:     959,
		},
		{
			name: "ignores empty fills",
			steps: []step{
				{orderbook.Buy, []Fill{{Price: 10, Size: 0}, {Price: 10, Size: -1}}},
			},
			wantCash: 1000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := New(1000)
			for _, s := range tt.steps {
				acc.ApplyFills(s.side, s.fills)
			}
			assert.InDelta(t, tt.wantPos, acc.Position, 1e-9, "position")
			assert.InDelta(t, tt.wantAvg, acc.AvgEntryPrice, 1e-9, "avg entry")
			assert.InDelta(t, tt.wantRealized, acc.RealizedPnL, 1e-9, "realized")
			assert.InDelta(t, tt.wantCash, acc.Cash, 1e-9, "cash")
			require.NoError(t, acc.Validate())
		})
	}
}

func TestApplyFillsSnapsDust(t *testing.T) {
	acc := New(1000)
	acc.ApplyFills(orderbook.Buy, []Fill{{Price: 10, Size: 0.1}, {Price: 10, Size: 0.2}})
	acc.ApplyFills(orderbook.Sell, []Fill{{Price: 10, Size: 0.3}})

	assert.Equal(t, 0.0, acc.Position)
	assert.Equal(t, 0.0, acc.AvgEntryPrice)
	assert.True(t, acc.IsFlat())
}

func TestSnapshotValuation(t *testing.T) {
	acc := New(1000)
	acc.ApplyFills(orderbook.Buy, []Fill{{Price: 10, Size: 5}})
	acc.ApplyFills(orderbook.Sell, []Fill{{Price: 12, Size: 2}})

	snap := acc.Snapshot(11)

	assert.InDelta(t, 3.0, snap.UnrealizedPnL, 1e-9) // 3 × (11 - 10)
	assert.InDelta(t, 4.0, snap.RealizedPnL, 1e-9)
	assert.InDelta(t, 974+4+3, snap.Equity, 1e-9)
	assert.InDelta(t, 974+3*11, snap.NetLiquidation, 1e-9)
	assert.Equal(t, int64(2), snap.TradeCount)
	assert.InDelta(t, 7.0, snap.Volume, 1e-9)
	assert.InDelta(t, 33.0, snap.Exposure, 1e-9)
}

func TestResetIsIdempotent(t *testing.T) {
	acc := New(2500)
	acc.ApplyFills(orderbook.Sell, []Fill{{Price: 50, Size: 3}})
	require.True(t, acc.IsShort())

	acc.Reset()
	first := *acc
	acc.Reset()

	assert.Equal(t, first, *acc)
	assert.Equal(t, *New(2500), *acc)
}

// TestAverageEntryProperty checks the average-cost bookkeeping against an
// independent model after every fill: the cost basis scales down on reducing
// fills, and realized plus unrealized always equals the cash-flow PnL.
func TestAverageEntryProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		const initial = 1_000_000.0
		acc := New(initial)

		var pos, cost float64 // model: signed size and |size|×avg
		n := rapid.IntRange(1, 40).Draw(rt, "fills")
		for i := 0; i < n; i++ {
			side := rapid.SampledFrom([]orderbook.Side{orderbook.Buy, orderbook.Sell}).Draw(rt, "side")
			price := float64(rapid.IntRange(1, 20000).Draw(rt, "price")) / 100
			size := float64(rapid.IntRange(1, 1000).Draw(rt, "size")) / 100
			mark := float64(rapid.IntRange(1, 20000).Draw(rt, "mark")) / 100

			acc.ApplyFills(side, []Fill{{Price: price, Size: size}})

			dir := float64(side)
			if pos == 0 || pos*dir > 0 {
				pos += dir * size
				cost += price * size
			} else {
				closed := math.Min(size, math.Abs(pos))
				cost *= (math.Abs(pos) - closed) / math.Abs(pos)
				pos += dir * closed
				if left := size - closed; left > 1e-9 {
					pos = dir * left
					cost = price * left
				}
			}
			if math.Abs(pos) < 1e-7 {
				pos, cost = 0, 0
			}

			if math.Abs(acc.Position-pos) > 1e-6 {
				rt.Fatalf("position %v, model %v", acc.Position, pos)
			}
			if pos == 0 {
				if acc.AvgEntryPrice != 0 {
					rt.Fatalf("flat account has avg %v", acc.AvgEntryPrice)
				}
			} else if want := cost / math.Abs(pos); math.Abs(acc.AvgEntryPrice-want) > 1e-6*want {
				rt.Fatalf("avg entry %v, model %v", acc.AvgEntryPrice, want)
			}

			snap := acc.Snapshot(mark)
			flowPnL := acc.Cash - initial + acc.Position*mark
			if math.Abs(snap.RealizedPnL+snap.UnrealizedPnL-flowPnL) > 1e-4 {
				rt.Fatalf("realized %v + unrealized %v != cash-flow pnl %v",
					snap.RealizedPnL, snap.UnrealizedPnL, flowPnL)
			}
			if err := acc.Validate(); err != nil {
				rt.Fatalf("validate: %v", err)
			}
		}
	})
}
