package sim

import (
	"math"
	"math/rand"

	"github.com/uhyunpark/lobsim/pkg/app/core/orderbook"
)

// NoiseTrader decides each tick whether the market sees a synthetic market
// order, and with which side and size
type NoiseTrader struct {
	probability float64
	minSize     float64
	maxSize     float64
	rng         *rand.Rand

	orders int // decisions that produced an order
}

func NewNoiseTrader(probability, minSize, maxSize float64, rng *rand.Rand) *NoiseTrader {
	if maxSize < minSize {
		maxSize = minSize
	}
	return &NoiseTrader{
		probability: probability,
		minSize:     minSize,
		maxSize:     maxSize,
		rng:         rng,
	}
}

// Next draws the next decision. ok is false when no order is sent this tick.
// Side is 50/50; size is uniform in [minSize, maxSize], rounded to 0.001.
func (n *NoiseTrader) Next() (side orderbook.Side, size float64, ok bool) {
	if n.rng.Float64() >= n.probability {
		return 0, 0, false
	}

	side = orderbook.Buy
	if n.rng.Intn(2) == 1 {
		side = orderbook.Sell
	}

	size = n.minSize + n.rng.Float64()*(n.maxSize-n.minSize)
	size = math.Max(math.Round(size*1000)/1000, n.minSize)

	n.orders++
	return side, size, true
}

// Orders returns how many synthetic orders were generated
func (n *NoiseTrader) Orders() int { return n.orders }
