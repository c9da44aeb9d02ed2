package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/uhyunpark/lobsim/params"
	"github.com/uhyunpark/lobsim/pkg/app/core/account"
	"github.com/uhyunpark/lobsim/pkg/app/core/market"
	"github.com/uhyunpark/lobsim/pkg/app/core/orderbook"
	"github.com/uhyunpark/lobsim/pkg/util"
)

// Speed multiplier bounds
const (
	MinSpeed = 0.25
	MaxSpeed = 4.0
)

type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// OrderRequest is user intent as entered in the UI
type OrderRequest struct {
	Side  orderbook.Side
	Kind  orderbook.Kind
	Size  float64
	Price float64 // limit orders only
}

// SubmitResult reports what a user order did. Resting is the part of a limit
// order left on the book, nil when nothing rests. Cancelled holds the user's
// own resting orders the sweep removed instead of trading against.
type SubmitResult struct {
	OrderID      string
	Trades       []orderbook.Trade
	FilledSize   float64
	AvgFillPrice float64
	Resting      *orderbook.Order
	Cancelled    []orderbook.Order
	Account      account.Snapshot
}

// BestPrices is the top of book plus the current reference price
type BestPrices struct {
	Bid    float64
	Ask    float64
	HasBid bool
	HasAsk bool
	Mid    float64 // 0 unless both sides exist
	Mark   float64
}

// Status describes the clock
type Status struct {
	State       State
	Speed       float64
	Period      time.Duration
	Ticks       uint64
	Mark        float64
	MakerDepth  int
	NoiseOrders int // synthetic market orders since the last reset
}

type UpdateKind string

const (
	UpdateTick    UpdateKind = "tick"
	UpdateOrder   UpdateKind = "order"
	UpdateControl UpdateKind = "control"
	UpdateReset   UpdateKind = "reset"
)

// Update is passed to observers after state changed. Trades holds the trades
// produced by the change, if any.
type Update struct {
	Kind   UpdateKind
	Trades []orderbook.Trade
}

// Session owns the whole simulated market: book, account, candles, trade
// tape, reference price and random source. Every read and write goes through
// one mutex, and clock ticks take the same mutex as user submissions, so
// callers see a single ordered history.
type Session struct {
	cfg    params.Config
	mkt    *market.Market
	clock  util.Clock
	logger *zap.SugaredLogger

	mu      sync.Mutex
	book    *orderbook.OrderBook
	acct    *account.Account
	candles *CandleSeries
	tape    *TradeTape
	noise   *NoiseTrader
	mark    float64
	depth   int
	ticks   uint64

	state State
	speed float64
	gen   uint64 // bumped on pause/reset/speed change; stale timers compare against it
	timer *clock.Timer

	obsMu     sync.RWMutex
	observers []func(Update)
}

// NewSession builds an idle session from cfg. Call Resume or Start to run
// the clock.
func NewSession(cfg params.Config, clk util.Clock, logger *zap.SugaredLogger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	mkt, err := market.NewMarket(cfg.Market.Symbol, cfg.Market.BaseAsset, cfg.Market.QuoteAsset, market.Params{
		TickSize:     cfg.Market.TickSize,
		MaxOrderSize: cfg.Market.MaxOrderSize,
	})
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = util.NewClock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	s := &Session{
		cfg:    cfg,
		mkt:    mkt,
		clock:  clk,
		logger: logger,
		state:  StateIdle,
		speed:  clampSpeed(cfg.Clock.Speed),
	}
	s.buildLocked()
	return s, nil
}

// buildLocked replaces all market state with fresh values and seeds the
// initial liquidity around the configured price
func (s *Session) buildLocked() {
	seed := s.cfg.Clock.Seed
	if seed == 0 {
		seed = s.clock.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	s.book = orderbook.NewOrderBook(s.mkt, orderbook.MakerParams{
		OrdersPerLevel: s.cfg.Maker.OrdersPerLevel,
		MinQty:         s.cfg.Maker.MinQty,
	}, rng)
	s.book.SetNow(s.clock.Now)
	s.acct = account.New(s.cfg.Account.InitialCash)
	s.candles = NewCandleSeries(s.cfg.History.CandleBucket, s.cfg.History.MaxCandles)
	s.tape = NewTradeTape(s.cfg.History.MaxTrades)
	s.noise = NewNoiseTrader(s.cfg.Noise.Probability, s.cfg.Noise.MinSize, s.cfg.Noise.MaxSize, rng)
	s.mark = s.mkt.Quantize(s.cfg.Market.InitialPrice)
	s.depth = s.cfg.Maker.InitialDepth
	s.ticks = 0

	s.book.SeedAround(s.mark, s.depth, s.cfg.Maker.MaxQty)
}

// Market returns the instrument parameters
func (s *Session) Market() market.Market { return *s.mkt }

// OnUpdate registers fn to be called after every tick, submission and
// control change. fn runs outside the session lock and may call back into
// the session.
func (s *Session) OnUpdate(fn func(Update)) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Session) notify(u Update) {
	s.obsMu.RLock()
	observers := s.observers
	s.obsMu.RUnlock()
	for _, fn := range observers {
		fn(u)
	}
}

// Start runs the clock until ctx is done
func (s *Session) Start(ctx context.Context) {
	s.Resume()
	go func() {
		<-ctx.Done()
		s.Pause()
	}()
}

func (s *Session) period() time.Duration {
	return time.Duration(float64(s.cfg.Clock.BaseInterval) / s.speed)
}

// scheduleLocked arms the timer for the next tick of the current generation
func (s *Session) scheduleLocked() {
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.period(), func() { s.onTimer(gen) })
}

func (s *Session) stopTimerLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) onTimer(gen uint64) {
	s.mu.Lock()
	if s.state != StateRunning || gen != s.gen {
		// paused, reset or rescheduled after this timer fired
		s.mu.Unlock()
		return
	}
	u := s.stepLocked()
	s.scheduleLocked()
	s.mu.Unlock()

	s.notify(u)
}

// Step runs one tick immediately, whether or not the clock is running
func (s *Session) Step() {
	s.mu.Lock()
	u := s.stepLocked()
	s.mu.Unlock()

	s.notify(u)
}

// stepLocked is one clock tick: optional noise order, maker top-up,
// reference price, candle
func (s *Session) stepLocked() Update {
	now := s.clock.Now()

	var trades []orderbook.Trade
	if side, size, ok := s.noise.Next(); ok {
		exec := s.book.ExecuteMarket(side, size, now)
		trades = exec.Trades
		s.applyUserFillsLocked(trades)
		s.tape.Append(trades...)
	}

	if s.depth < s.cfg.Maker.MaxDepth {
		s.depth++
	}
	s.book.SeedAround(s.mark, s.depth, s.cfg.Maker.MaxQty)

	// Reference price: last trade of this tick, else book mid, else unchanged
	if n := len(trades); n > 0 {
		s.mark = trades[n-1].Price
	} else if mid, ok := s.book.Mid(); ok {
		s.mark = mid
	}

	var volume float64
	for _, t := range trades {
		volume += t.Size
	}
	s.candles.Update(now, s.mark, volume)
	s.ticks++

	s.logger.Debugw("tick",
		"n", s.ticks,
		"mark", s.mark,
		"trades", len(trades),
		"volume", volume,
		"depth", s.depth,
	)
	return Update{Kind: UpdateTick, Trades: trades}
}

// applyUserFillsLocked books every user leg of trades on the account, taker
// and maker legs alike, in execution order. Consecutive legs on the same side
// go in one ApplyFills batch.
func (s *Session) applyUserFillsLocked(trades []orderbook.Trade) {
	var (
		side  orderbook.Side
		batch []account.Fill
	)
	flush := func() {
		if len(batch) > 0 {
			s.acct.ApplyFills(side, batch)
			batch = nil
		}
	}
	add := func(legSide orderbook.Side, t orderbook.Trade) {
		if legSide != side {
			flush()
			side = legSide
		}
		batch = append(batch, account.Fill{Price: t.Price, Size: t.Size})
	}

	for _, t := range trades {
		if t.TakerOwner == orderbook.OwnerUser {
			add(t.TakerSide, t)
		}
		if t.MakerOwner == orderbook.OwnerUser {
			add(t.MakerSide(), t)
		}
	}
	flush()

	if err := s.acct.Validate(); err != nil {
		s.logger.Errorw("account_invariant_broken", "err", err)
	}
}

// Submit places a user order. Market orders sweep and never rest; limit
// orders follow the book's place-and-match rules. Invalid input is
// reported as market.ErrInvalidOrderParameters and changes nothing.
func (s *Session) Submit(req OrderRequest) (SubmitResult, error) {
	s.mu.Lock()
	res, err := s.submitLocked(req)
	s.mu.Unlock()
	if err != nil {
		return res, err
	}

	s.notify(Update{Kind: UpdateOrder, Trades: res.Trades})
	return res, nil
}

func (s *Session) submitLocked(req OrderRequest) (SubmitResult, error) {
	o := &orderbook.Order{
		Owner: orderbook.OwnerUser,
		Side:  req.Side,
		Kind:  req.Kind,
		Price: req.Price,
		Size:  req.Size,
	}
	p, err := s.book.PlaceAndMatch(o, s.clock.Now())
	if err != nil {
		s.logger.Warnw("order_rejected",
			"side", req.Side.String(),
			"kind", req.Kind.String(),
			"size", req.Size,
			"price", req.Price,
			"err", err,
		)
		return SubmitResult{}, err
	}

	s.applyUserFillsLocked(p.Trades)
	s.tape.Append(p.Trades...)

	res := SubmitResult{
		OrderID:      o.ID,
		Trades:       p.Trades,
		FilledSize:   p.FilledSize,
		AvgFillPrice: p.AvgFillPrice,
		Cancelled:    p.Cancelled,
		Account:      s.acct.Snapshot(s.mark),
	}
	if p.Remaining != nil {
		rest := *p.Remaining
		res.Resting = &rest
	}

	s.logger.Infow("order_submitted",
		"id", o.ID,
		"side", o.Side.String(),
		"kind", o.Kind.String(),
		"size", req.Size,
		"price", o.Price,
		"filled", p.FilledSize,
		"avg_price", p.AvgFillPrice,
		"resting", res.Resting != nil,
		"self_trade_cancelled", len(p.Cancelled),
	)
	return res, nil
}

// Flatten closes the open position with a market order. A flat account is
// left alone and yields an empty result. A thin book may leave part of the
// position open.
func (s *Session) Flatten() (SubmitResult, error) {
	s.mu.Lock()
	if s.acct.IsFlat() {
		res := SubmitResult{Account: s.acct.Snapshot(s.mark)}
		s.mu.Unlock()
		return res, nil
	}
	side := orderbook.Sell
	if s.acct.IsShort() {
		side = orderbook.Buy
	}
	res, err := s.submitLocked(OrderRequest{Side: side, Kind: orderbook.Market, Size: math.Abs(s.acct.Position)})
	s.mu.Unlock()
	if err != nil {
		return res, err
	}

	s.notify(Update{Kind: UpdateOrder, Trades: res.Trades})
	return res, nil
}

// Pause stops the clock. A tick already waiting on the mutex is dropped.
func (s *Session) Pause() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateIdle
	s.stopTimerLocked()
	s.mu.Unlock()

	s.logger.Infow("clock_paused")
	s.notify(Update{Kind: UpdateControl})
}

// Resume starts the clock; the first tick fires one period from now
func (s *Session) Resume() {
	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateRunning
	s.stopTimerLocked()
	s.scheduleLocked()
	period := s.period()
	s.mu.Unlock()

	s.logger.Infow("clock_resumed", "period", period)
	s.notify(Update{Kind: UpdateControl})
}

// SetSpeed sets the speed multiplier, clamped to [MinSpeed, MaxSpeed], and
// returns the value applied. A running clock is rescheduled at the new period.
func (s *Session) SetSpeed(speed float64) float64 {
	s.mu.Lock()
	if math.IsNaN(speed) {
		speed = s.speed
	}
	s.speed = clampSpeed(speed)
	if s.state == StateRunning {
		s.stopTimerLocked()
		s.scheduleLocked()
	}
	applied, period := s.speed, s.period()
	s.mu.Unlock()

	s.logger.Infow("clock_speed", "speed", applied, "period", period)
	s.notify(Update{Kind: UpdateControl})
	return applied
}

// Reset pauses the clock, rebuilds book, account, candles and tape from the
// configuration, and starts the clock again. The speed setting is kept.
func (s *Session) Reset() {
	s.mu.Lock()
	s.state = StateIdle
	s.stopTimerLocked()

	s.buildLocked()

	s.state = StateRunning
	s.scheduleLocked()
	s.mu.Unlock()

	s.logger.Infow("session_reset", "mark", s.cfg.Market.InitialPrice)
	s.notify(Update{Kind: UpdateReset})
}

// Status reports the clock state
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:       s.state,
		Speed:       s.speed,
		Period:      s.period(),
		Ticks:       s.ticks,
		Mark:        s.mark,
		MakerDepth:  s.depth,
		NoiseOrders: s.noise.Orders(),
	}
}

// Book returns up to depth aggregated levels per side
func (s *Session) Book(depth int) orderbook.Depth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Snapshot(depth)
}

func (s *Session) BestPrices() BestPrices {
	s.mu.Lock()
	defer s.mu.Unlock()

	bp := BestPrices{Mark: s.mark}
	bp.Bid, bp.HasBid = s.book.BestBid()
	bp.Ask, bp.HasAsk = s.book.BestAsk()
	if mid, ok := s.book.Mid(); ok {
		bp.Mid = mid
	}
	return bp
}

// Trades returns the newest limit trades, newest last (DefaultTapeLimit when
// limit <= 0)
func (s *Session) Trades(limit int) []orderbook.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tape.Recent(limit)
}

// Candles returns the newest limit candles, oldest first (all when limit <= 0)
func (s *Session) Candles(limit int) []Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.candles.List(limit)
}

// Account returns the user account valued at the reference price
func (s *Session) Account() account.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acct.Snapshot(s.mark)
}

func clampSpeed(v float64) float64 {
	return math.Max(MinSpeed, math.Min(MaxSpeed, v))
}
