package sim

import "github.com/uhyunpark/lobsim/pkg/app/core/orderbook"

// DefaultTapeLimit is how many trades Recent returns when asked for 0
const DefaultTapeLimit = 50

// TradeTape keeps the most recent trades, newest last
type TradeTape struct {
	max    int
	trades []orderbook.Trade
}

func NewTradeTape(max int) *TradeTape {
	if max < 1 {
		max = 1
	}
	return &TradeTape{max: max}
}

// Append records trades in execution order, evicting the oldest beyond capacity
func (t *TradeTape) Append(trades ...orderbook.Trade) {
	t.trades = append(t.trades, trades...)
	if over := len(t.trades) - t.max; over > 0 {
		t.trades = append(t.trades[:0], t.trades[over:]...)
	}
}

// Recent returns a copy of the newest limit trades, newest last.
// limit <= 0 means DefaultTapeLimit.
func (t *TradeTape) Recent(limit int) []orderbook.Trade {
	if limit <= 0 {
		limit = DefaultTapeLimit
	}
	src := t.trades
	if len(src) > limit {
		src = src[len(src)-limit:]
	}
	out := make([]orderbook.Trade, len(src))
	copy(out, src)
	return out
}

func (t *TradeTape) Len() int { return len(t.trades) }
