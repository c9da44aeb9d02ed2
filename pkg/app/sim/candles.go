package sim

import (
	"math"
	"time"
)

// Candle is one OHLC bucket. OpenTime is aligned to the series bucket.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// CandleSeries aggregates reference prices into fixed-width buckets,
// keeping at most max candles (oldest dropped first).
type CandleSeries struct {
	bucket  time.Duration
	max     int
	candles []Candle
}

func NewCandleSeries(bucket time.Duration, max int) *CandleSeries {
	if max < 1 {
		max = 1
	}
	return &CandleSeries{
		bucket:  bucket,
		max:     max,
		candles: make([]Candle, 0, max),
	}
}

// Update folds a reference price and traded volume observed at now into the
// series. A new candle opens when there is none yet or now has reached the
// end of the last candle's bucket; it opens at the previous close (or ref
// for the first candle). Returns true when a candle was opened.
func (s *CandleSeries) Update(now time.Time, ref, volume float64) bool {
	n := len(s.candles)
	if n > 0 && now.Before(s.candles[n-1].OpenTime.Add(s.bucket)) {
		c := &s.candles[n-1]
		c.High = math.Max(c.High, ref)
		c.Low = math.Min(c.Low, ref)
		c.Close = ref
		c.Volume += volume
		return false
	}

	open := ref
	if n > 0 {
		open = s.candles[n-1].Close
	}
	s.candles = append(s.candles, Candle{
		OpenTime: now.Truncate(s.bucket),
		Open:     open,
		High:     math.Max(open, ref),
		Low:      math.Min(open, ref),
		Close:    ref,
		Volume:   volume,
	})
	if len(s.candles) > s.max {
		s.candles = append(s.candles[:0], s.candles[len(s.candles)-s.max:]...)
	}
	return true
}

// List returns a copy of the newest limit candles, oldest first (all of them
// when limit <= 0)
func (s *CandleSeries) List(limit int) []Candle {
	src := s.candles
	if limit > 0 && len(src) > limit {
		src = src[len(src)-limit:]
	}
	out := make([]Candle, len(src))
	copy(out, src)
	return out
}

func (s *CandleSeries) Len() int { return len(s.candles) }
