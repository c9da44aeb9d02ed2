package sim

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCandleSeriesBucketing(t *testing.T) {
	start := time.Date(2026, 1, 2, 9, 30, 1, 0, time.UTC)
	s := NewCandleSeries(5*time.Second, 10)

	assert.True(t, s.Update(start, 100, 1))
	assert.False(t, s.Update(start.Add(2*time.Second), 101, 0.5))
	assert.False(t, s.Update(start.Add(3*time.Second), 99.5, 0))

	c := s.List(1)[0]
	assert.Equal(t, time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC), c.OpenTime)
	assert.Equal(t, Candle{OpenTime: c.OpenTime, Open: 100, High: 101, Low: 99.5, Close: 99.5, Volume: 1.5}, c)

	// bucket [09:30:00, 09:30:05) is over at 09:30:05
	assert.True(t, s.Update(start.Add(4*time.Second), 102, 2))
	c = s.List(1)[0]
	assert.Equal(t, 99.5, c.Open, "opens at previous close")
	assert.Equal(t, 102.0, c.High)
	assert.Equal(t, 99.5, c.Low)
	assert.Equal(t, 102.0, c.Close)
	assert.Equal(t, 2.0, c.Volume)
	assert.Equal(t, 2, s.Len())
}

func TestCandleSeriesGapOpensOneCandle(t *testing.T) {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	s := NewCandleSeries(time.Second, 10)

	s.Update(start, 100, 0)
	s.Update(start.Add(30*time.Second), 100.2, 0)

	assert.Equal(t, 2, s.Len(), "idle buckets are not back-filled")
}

func TestCandleSeriesIsBounded(t *testing.T) {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	s := NewCandleSeries(time.Second, 3)

	for i := 0; i < 5; i++ {
		s.Update(start.Add(time.Duration(i)*time.Second), float64(100+i), 0)
	}

	all := s.List(0)
	require.Len(t, all, 3)
	assert.Equal(t, 102.0, all[0].Close)
	assert.Equal(t, 104.0, all[2].Close)

	last2 := s.List(2)
	assert.Equal(t, []float64{103, 104}, []float64{last2[0].Close, last2[1].Close})

	// copies
	all[0].Close = -1
	assert.Equal(t, 102.0, s.List(0)[0].Close)
}

// TestCandleSeriesProperty feeds random (time, price, volume) sequences and
// checks every candle stays a valid OHLC bar, buckets never repeat, and
// volume is conserved.
func TestCandleSeriesProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		bucket := time.Duration(rapid.IntRange(1, 10).Draw(rt, "bucket_s")) * time.Second
		s := NewCandleSeries(bucket, 1000)

		now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
		var totalVolume float64
		n := rapid.IntRange(1, 80).Draw(rt, "updates")
		for i := 0; i < n; i++ {
			now = now.Add(time.Duration(rapid.IntRange(0, 25_000).Draw(rt, "gap_ms")) * time.Millisecond)
			ref := float64(rapid.IntRange(9000, 11000).Draw(rt, "ref_ticks")) / 100
			vol := float64(rapid.IntRange(0, 500).Draw(rt, "vol")) / 100
			s.Update(now, ref, vol)
			totalVolume += vol

			candles := s.List(0)
			last := candles[len(candles)-1]
			if last.Close != ref {
				rt.Fatalf("close %v, want latest ref %v", last.Close, ref)
			}
			if now.Before(last.OpenTime) || !now.Before(last.OpenTime.Add(bucket)) {
				rt.Fatalf("update at %v landed in candle opened %v", now, last.OpenTime)
			}
			for j, c := range candles {
				if c.High < math.Max(c.Open, c.Close) || c.Low > math.Min(c.Open, c.Close) {
					rt.Fatalf("candle %d is not a valid bar: %+v", j, c)
				}
				if !c.OpenTime.Equal(c.OpenTime.Truncate(bucket)) {
					rt.Fatalf("candle %d open %v is not bucket aligned", j, c.OpenTime)
				}
				if j > 0 && !candles[j-1].OpenTime.Before(c.OpenTime) {
					rt.Fatalf("candles %d and %d share or reverse a bucket", j-1, j)
				}
			}
		}

		var sum float64
		for _, c := range s.List(0) {
			sum += c.Volume
		}
		if math.Abs(sum-totalVolume) > 1e-6 {
			rt.Fatalf("volume %v, fed %v", sum, totalVolume)
		}
	})
}
