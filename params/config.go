package params

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Market struct {
	Symbol       string
	BaseAsset    string
	QuoteAsset   string
	TickSize     float64
	MaxOrderSize float64 // 0 = unlimited
	InitialPrice float64 // mark before the first trade
}

type Account struct {
	InitialCash float64
}

type Clock struct {
	// BaseInterval is the tick period at speed 1. The effective period is
	// BaseInterval / Speed.
	BaseInterval time.Duration
	Speed        float64
	// Seed drives every random draw (maker sizes, noise side and size).
	// 0 picks a time-based seed.
	Seed int64
}

type Noise struct {
	Probability float64 // chance of a synthetic market order per tick
	MinSize     float64
	MaxSize     float64
}

type Maker struct {
	InitialDepth   int // levels per side seeded at start
	MaxDepth       int // depth grows by one level per tick up to this
	OrdersPerLevel int
	MinQty         float64
	MaxQty         float64
}

type History struct {
	CandleBucket time.Duration
	MaxCandles   int
	MaxTrades    int // trade tape capacity
}

type API struct {
	Addr           string
	AllowedOrigins []string
}

type Log struct {
	File  string // empty = stdout only
	Level string
}

type Config struct {
	Market  Market
	Account Account
	Clock   Clock
	Noise   Noise
	Maker   Maker
	History History
	API     API
	Log     Log
}

func Default() Config {
	return Config{
		Market: Market{
			Symbol:       "SIM-USD",
			BaseAsset:    "SIM",
			QuoteAsset:   "USD",
			TickSize:     0.01,
			InitialPrice: 100,
		},
		Account: Account{
			InitialCash: 10_000,
		},
		Clock: Clock{
			BaseInterval: 1000 * time.Millisecond,
			Speed:        1,
		},
		Noise: Noise{
			Probability: 0.7,
			MinSize:     0.1,
			MaxSize:     2,
		},
		Maker: Maker{
			InitialDepth:   3,
			MaxDepth:       10,
			OrdersPerLevel: 3,
			MinQty:         0.1,
			MaxQty:         2,
		},
		History: History{
			CandleBucket: 5 * time.Second,
			MaxCandles:   200,
			MaxTrades:    100,
		},
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Validate checks config sanity
func (c Config) Validate() error {
	var errs []error
	if c.Market.Symbol == "" {
		errs = append(errs, errors.New("market symbol cannot be empty"))
	}
	if c.Market.BaseAsset == "" || c.Market.QuoteAsset == "" {
		errs = append(errs, errors.New("base and quote assets must be specified"))
	}
	if c.Market.TickSize <= 0 {
		errs = append(errs, fmt.Errorf("tick size must be positive, got %g", c.Market.TickSize))
	}
	if c.Market.InitialPrice <= 0 {
		errs = append(errs, fmt.Errorf("initial price must be positive, got %g", c.Market.InitialPrice))
	}
	if c.Market.MaxOrderSize < 0 {
		errs = append(errs, errors.New("max order size cannot be negative"))
	}
	if c.Account.InitialCash < 0 {
		errs = append(errs, errors.New("initial cash cannot be negative"))
	}
	if c.Clock.BaseInterval <= 0 {
		errs = append(errs, fmt.Errorf("base interval must be positive, got %v", c.Clock.BaseInterval))
	}
	if c.Clock.Speed <= 0 {
		errs = append(errs, fmt.Errorf("speed must be positive, got %g", c.Clock.Speed))
	}
	if c.Noise.Probability < 0 || c.Noise.Probability > 1 {
		errs = append(errs, fmt.Errorf("noise probability must be in [0,1], got %g", c.Noise.Probability))
	}
	if c.Noise.MinSize <= 0 || c.Noise.MaxSize < c.Noise.MinSize {
		errs = append(errs, fmt.Errorf("noise size range [%g,%g] is invalid", c.Noise.MinSize, c.Noise.MaxSize))
	}
	if c.Maker.InitialDepth < 1 || c.Maker.MaxDepth < c.Maker.InitialDepth {
		errs = append(errs, fmt.Errorf("maker depth range [%d,%d] is invalid", c.Maker.InitialDepth, c.Maker.MaxDepth))
	}
	if c.Maker.OrdersPerLevel < 1 {
		errs = append(errs, errors.New("maker orders per level must be at least 1"))
	}
	if c.Maker.MinQty <= 0 || c.Maker.MaxQty < c.Maker.MinQty {
		errs = append(errs, fmt.Errorf("maker qty range [%g,%g] is invalid", c.Maker.MinQty, c.Maker.MaxQty))
	}
	if c.History.CandleBucket <= 0 {
		errs = append(errs, errors.New("candle bucket must be positive"))
	}
	if c.History.MaxCandles < 1 || c.History.MaxTrades < 1 {
		errs = append(errs, errors.New("history limits must be at least 1"))
	}
	// NaN slips past every comparison above
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"tick size", c.Market.TickSize},
		{"max order size", c.Market.MaxOrderSize},
		{"initial price", c.Market.InitialPrice},
		{"initial cash", c.Account.InitialCash},
		{"speed", c.Clock.Speed},
		{"noise probability", c.Noise.Probability},
		{"noise min size", c.Noise.MinSize},
		{"noise max size", c.Noise.MaxSize},
		{"maker min qty", c.Maker.MinQty},
		{"maker max qty", c.Maker.MaxQty},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			errs = append(errs, fmt.Errorf("%s must be finite, got %g", f.name, f.v))
		}
	}
	return errors.Join(errs...)
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	// .env is optional; a missing file is not an error
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", envPath, err)
		}
	} else {
		_ = godotenv.Load()
	}

	p := envParser{}
	// LOBSIM_SYMBOL=ABC-EUR implies base ABC and quote EUR; the explicit
	// asset keys win, and are required for a symbol without a dash
	if symbol := os.Getenv("LOBSIM_SYMBOL"); symbol != "" {
		cfg.Market.Symbol = symbol
		base, quote, ok := strings.Cut(symbol, "-")
		if !ok {
			base, quote = "", ""
		}
		cfg.Market.BaseAsset, cfg.Market.QuoteAsset = base, quote
	}
	cfg.Market.BaseAsset = getEnv("LOBSIM_BASE_ASSET", cfg.Market.BaseAsset)
	cfg.Market.QuoteAsset = getEnv("LOBSIM_QUOTE_ASSET", cfg.Market.QuoteAsset)
	if cfg.Market.BaseAsset == "" || cfg.Market.QuoteAsset == "" {
		p.errs = append(p.errs, fmt.Errorf("LOBSIM_SYMBOL %q is not BASE-QUOTE: set LOBSIM_BASE_ASSET and LOBSIM_QUOTE_ASSET", cfg.Market.Symbol))
	}
	p.float("LOBSIM_TICK_SIZE", &cfg.Market.TickSize)
	p.float("LOBSIM_MAX_ORDER_SIZE", &cfg.Market.MaxOrderSize)
	p.float("LOBSIM_INITIAL_PRICE", &cfg.Market.InitialPrice)
	p.float("LOBSIM_INITIAL_CASH", &cfg.Account.InitialCash)

	p.millis("LOBSIM_BASE_INTERVAL_MS", &cfg.Clock.BaseInterval)
	p.float("LOBSIM_SPEED", &cfg.Clock.Speed)
	p.int64("LOBSIM_SEED", &cfg.Clock.Seed)

	p.float("LOBSIM_NOISE_PROBABILITY", &cfg.Noise.Probability)
	p.float("LOBSIM_NOISE_MIN_SIZE", &cfg.Noise.MinSize)
	p.float("LOBSIM_NOISE_MAX_SIZE", &cfg.Noise.MaxSize)

	p.int("LOBSIM_MAKER_INITIAL_DEPTH", &cfg.Maker.InitialDepth)
	p.int("LOBSIM_MAKER_MAX_DEPTH", &cfg.Maker.MaxDepth)
	p.int("LOBSIM_MAKER_ORDERS_PER_LEVEL", &cfg.Maker.OrdersPerLevel)
	p.float("LOBSIM_MAKER_MIN_QTY", &cfg.Maker.MinQty)
	p.float("LOBSIM_MAKER_MAX_QTY", &cfg.Maker.MaxQty)

	p.millis("LOBSIM_CANDLE_BUCKET_MS", &cfg.History.CandleBucket)
	p.int("LOBSIM_MAX_CANDLES", &cfg.History.MaxCandles)
	p.int("LOBSIM_MAX_TRADES", &cfg.History.MaxTrades)

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	if origins := os.Getenv("API_ALLOWED_ORIGINS"); origins != "" {
		// Example: "http://localhost:3000,http://localhost:5173"
		cfg.API.AllowedOrigins = splitList(origins)
	}

	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	if err := p.err(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// envParser collects parse failures so every bad key is reported at once
type envParser struct {
	errs []error
}

func (p *envParser) float(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			p.errs = append(p.errs, fmt.Errorf("%s: %q is not a finite number", key, v))
			return
		}
		*dst = f
	}
}

func (p *envParser) int(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (p *envParser) int64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (p *envParser) millis(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = time.Duration(ms) * time.Millisecond
	}
}

func (p *envParser) err() error {
	return errors.Join(p.errs...)
}

// Load is LoadFromEnv followed by Validate
func Load(envPath string) (Config, error) {
	cfg, err := LoadFromEnv(envPath)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
