package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/lobsim/pkg/app/core/account"
	"github.com/uhyunpark/lobsim/pkg/app/core/market"
	"github.com/uhyunpark/lobsim/pkg/app/core/orderbook"
	"github.com/uhyunpark/lobsim/pkg/app/sim"
)

const (
	defaultBookDepth = 20
	maxQueryLimit    = 1000
)

// Server handles REST API and WebSocket connections
type Server struct {
	session *sim.Session
	router  *mux.Router
	hub     *Hub // WebSocket hub
	logger  *zap.SugaredLogger
	origins []string
}

// NewServer creates a new API server and subscribes it to session updates
func NewServer(session *sim.Session, allowedOrigins []string, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		session: session,
		router:  mux.NewRouter(),
		hub:     NewHub(logger),
		logger:  logger,
		origins: allowedOrigins,
	}

	s.setupRoutes()
	session.OnUpdate(s.broadcastUpdate)
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Market data
	api.HandleFunc("/market", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/bbo", s.handleGetBBO).Methods("GET")
	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/candles", s.handleGetCandles).Methods("GET")

	// Account
	api.HandleFunc("/account", s.handleGetAccount).Methods("GET")

	// Order submission
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")

	// Clock and session controls
	ctl := api.PathPrefix("/control").Subrouter()
	ctl.HandleFunc("/pause", s.handlePause).Methods("POST")
	ctl.HandleFunc("/resume", s.handleResume).Methods("POST")
	ctl.HandleFunc("/step", s.handleStep).Methods("POST")
	ctl.HandleFunc("/flatten", s.handleFlatten).Methods("POST")
	ctl.HandleFunc("/reset", s.handleReset).Methods("POST")
	ctl.HandleFunc("/speed", s.handleSetSpeed).Methods("PUT")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Run serves on addr until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("api_listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Infow("api_shutdown")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	m := s.session.Market()
	respondJSON(w, MarketInfo{
		Symbol:       m.Symbol,
		BaseAsset:    m.BaseAsset,
		QuoteAsset:   m.QuoteAsset,
		TickSize:     m.TickSize,
		MaxOrderSize: m.MaxOrderSize,
		Status:       toStatusInfo(s.session.Status()),
	})
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	depth, err := queryInt(r, "depth", defaultBookDepth)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid depth", err.Error())
		return
	}
	respondJSON(w, s.orderbookSnapshot(depth))
}

func (s *Server) handleGetBBO(w http.ResponseWriter, r *http.Request) {
	bp := s.session.BestPrices()
	resp := BBO{Mark: bp.Mark}
	if bp.HasBid {
		resp.Bid = &bp.Bid
	}
	if bp.HasAsk {
		resp.Ask = &bp.Ask
	}
	if bp.HasBid && bp.HasAsk {
		resp.Mid = &bp.Mid
	}
	respondJSON(w, resp)
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", sim.DefaultTapeLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid limit", err.Error())
		return
	}
	respondJSON(w, toTradeInfos(s.session.Trades(limit)))
}

func (s *Server) handleGetCandles(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid limit", err.Error())
		return
	}
	respondJSON(w, toCandleInfos(s.session.Candles(limit)))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, toAccountInfo(s.session.Account()))
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	side, err := orderbook.ParseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	kind, err := orderbook.ParseKind(req.Kind)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}

	res, err := s.session.Submit(sim.OrderRequest{Side: side, Kind: kind, Size: req.Size, Price: req.Price})
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	respondJSON(w, toSubmitResponse(req.Size, res))
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.session.Pause()
	respondJSON(w, toStatusInfo(s.session.Status()))
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.session.Resume()
	respondJSON(w, toStatusInfo(s.session.Status()))
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	s.session.Step()
	respondJSON(w, toStatusInfo(s.session.Status()))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.session.Reset()
	respondJSON(w, toStatusInfo(s.session.Status()))
}

func (s *Server) handleFlatten(w http.ResponseWriter, r *http.Request) {
	res, err := s.session.Flatten()
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	respondJSON(w, toSubmitResponse(res.FilledSize, res))
}

func (s *Server) handleSetSpeed(w http.ResponseWriter, r *http.Request) {
	var req SpeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	s.session.SetSpeed(req.Speed)
	respondJSON(w, toStatusInfo(s.session.Status()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) respondSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, market.ErrInvalidOrderParameters) {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	s.logger.Errorw("api_internal_error", "err", err)
	respondError(w, http.StatusInternalServerError, "internal error", err.Error())
}

// ==============================
// Broadcast (called from session observers)
// ==============================

// broadcastUpdate pushes fresh snapshots to WebSocket subscribers
func (s *Server) broadcastUpdate(u sim.Update) {
	if s.hub.ClientCount() == 0 {
		return
	}

	ob := s.orderbookSnapshot(defaultBookDepth)
	s.hub.BroadcastToChannel(ChannelOrderbook, OrderbookUpdate{
		Type:      ChannelOrderbook,
		Symbol:    ob.Symbol,
		Bids:      ob.Bids,
		Asks:      ob.Asks,
		Timestamp: ob.Timestamp,
	})

	if len(u.Trades) > 0 {
		s.hub.BroadcastToChannel(ChannelTrades, TradesUpdate{
			Type:   ChannelTrades,
			Trades: toTradeInfos(u.Trades),
		})
	}

	switch u.Kind {
	case sim.UpdateTick:
		s.hub.BroadcastToChannel(ChannelCandles, CandlesUpdate{
			Type:    ChannelCandles,
			Candles: toCandleInfos(s.session.Candles(1)),
		})
	case sim.UpdateReset:
		s.hub.BroadcastToChannel(ChannelCandles, CandlesUpdate{
			Type:    ChannelCandles,
			Reset:   true,
			Candles: toCandleInfos(s.session.Candles(0)),
		})
	}

	if u.Kind != sim.UpdateTick {
		s.hub.BroadcastToChannel(ChannelStatus, StatusUpdate{
			Type:   ChannelStatus,
			Status: toStatusInfo(s.session.Status()),
		})
	}

	s.hub.BroadcastToChannel(ChannelAccount, AccountUpdate{
		Type:    ChannelAccount,
		Account: toAccountInfo(s.session.Account()),
	})
}

// ==============================
// Helper Functions
// ==============================

func (s *Server) orderbookSnapshot(depth int) OrderbookSnapshot {
	d := s.session.Book(depth)
	return OrderbookSnapshot{
		Symbol:    s.session.Market().Symbol,
		Bids:      toPriceLevels(d.Bids),
		Asks:      toPriceLevels(d.Asks),
		Timestamp: time.Now().UnixMilli(),
	}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("must not be negative")
	}
	if n > maxQueryLimit {
		n = maxQueryLimit
	}
	return n, nil
}

func toPriceLevels(levels []orderbook.Level) []PriceLevel {
	out := make([]PriceLevel, len(levels))
	for i, l := range levels {
		out[i] = PriceLevel{Price: l.Price, Size: l.Size}
	}
	return out
}

func toTradeInfos(trades []orderbook.Trade) []TradeInfo {
	out := make([]TradeInfo, len(trades))
	for i, t := range trades {
		out[i] = TradeInfo{
			ID:           t.ID,
			Price:        t.Price,
			Size:         t.Size,
			Side:         t.TakerSide.String(),
			TakerOwner:   string(t.TakerOwner),
			MakerOwner:   string(t.MakerOwner),
			TakerOrderID: t.TakerOrderID,
			MakerOrderID: t.MakerOrderID,
			Timestamp:    t.Time.UnixMilli(),
		}
	}
	return out
}

func toCandleInfos(candles []sim.Candle) []CandleInfo {
	out := make([]CandleInfo, len(candles))
	for i, c := range candles {
		out[i] = CandleInfo{
			Time:   c.OpenTime.UnixMilli(),
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		}
	}
	return out
}

func toAccountInfo(a account.Snapshot) AccountInfo {
	return AccountInfo{
		Cash:           a.Cash,
		Position:       a.Position,
		AvgEntryPrice:  a.AvgEntryPrice,
		RealizedPnL:    a.RealizedPnL,
		UnrealizedPnL:  a.UnrealizedPnL,
		Equity:         a.Equity,
		NetLiquidation: a.NetLiquidation,
		Exposure:       a.Exposure,
		Mark:           a.Mark,
		TradeCount:     a.TradeCount,
		Volume:         a.Volume,
	}
}

func toStatusInfo(st sim.Status) StatusInfo {
	return StatusInfo{
		State:       string(st.State),
		Speed:       st.Speed,
		PeriodMs:    st.Period.Milliseconds(),
		Ticks:       st.Ticks,
		Mark:        st.Mark,
		MakerDepth:  st.MakerDepth,
		NoiseOrders: st.NoiseOrders,
	}
}

func toOrderInfo(o orderbook.Order) OrderInfo {
	return OrderInfo{
		ID:        o.ID,
		Side:      o.Side.String(),
		Kind:      o.Kind.String(),
		Price:     o.Price,
		Size:      o.Size,
		Timestamp: o.Time.UnixMilli(),
	}
}

func toSubmitResponse(requested float64, res sim.SubmitResult) SubmitOrderResponse {
	resp := SubmitOrderResponse{
		OrderID:      res.OrderID,
		FilledSize:   res.FilledSize,
		AvgFillPrice: res.AvgFillPrice,
		Trades:       toTradeInfos(res.Trades),
		Account:      toAccountInfo(res.Account),
	}
	if o := res.Resting; o != nil {
		info := toOrderInfo(*o)
		resp.Resting = &info
	}
	for _, o := range res.Cancelled {
		resp.Cancelled = append(resp.Cancelled, toOrderInfo(o))
	}

	switch {
	case res.FilledSize == 0 && res.Resting != nil:
		resp.Status = "resting"
	case res.FilledSize == 0:
		resp.Status = "unfilled"
	case res.Resting != nil || market.SnapZero(requested-res.FilledSize) > 0:
		resp.Status = "partially_filled"
	default:
		resp.Status = "filled"
	}
	return resp
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
