package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/lobsim/params"
	"github.com/uhyunpark/lobsim/pkg/api"
	"github.com/uhyunpark/lobsim/pkg/app/sim"
	"github.com/uhyunpark/lobsim/pkg/util"
)

func main() {
	app := &cli.App{
		Name:  "lobsim",
		Usage: "simulated limit order book with synthetic liquidity",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env", Usage: "path to .env file (default: ./.env)"},
			&cli.StringFlag{Name: "addr", Usage: "API listen address, overrides API_ADDR"},
			&cli.Float64Flag{Name: "speed", Usage: "initial clock speed multiplier"},
			&cli.Int64Flag{Name: "seed", Usage: "random seed, 0 picks one from the clock"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.BoolFlag{Name: "paused", Usage: "start with the clock idle"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "lobsim:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := params.LoadFromEnv(c.String("env"))
	if err != nil {
		return err
	}
	// flags win over the environment
	if c.IsSet("addr") {
		cfg.API.Addr = c.String("addr")
	}
	if c.IsSet("speed") {
		cfg.Clock.Speed = c.Float64("speed")
	}
	if c.IsSet("seed") {
		cfg.Clock.Seed = c.Int64("seed")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sugar, err := util.NewSugared(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer sugar.Sync()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File, "level", cfg.Log.Level)

	session, err := sim.NewSession(cfg, util.NewClock(), sugar)
	if err != nil {
		return err
	}
	server := api.NewServer(session, cfg.API.AllowedOrigins, sugar)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sugar.Infow("lobsim_starting",
		"symbol", cfg.Market.Symbol,
		"initial_price", cfg.Market.InitialPrice,
		"tick_size", cfg.Market.TickSize,
		"speed", cfg.Clock.Speed,
		"addr", cfg.API.Addr)

	g, ctx := errgroup.WithContext(ctx)
	if !c.Bool("paused") {
		g.Go(func() error {
			session.Start(ctx)
			return nil
		})
	}
	g.Go(func() error {
		return server.Run(ctx, cfg.API.Addr)
	})

	err = g.Wait()
	session.Pause()
	if err != nil && !errors.Is(err, context.Canceled) {
		sugar.Errorw("lobsim_failed", "err", err)
		return err
	}
	sugar.Infow("lobsim_stopped", "ticks", session.Status().Ticks)
	return nil
}
