package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/uhyunpark/lobsim/pkg/api"
)

func main() {
	app := &cli.App{
		Name:  "lobctl",
		Usage: "inspect and drive a running lobsim",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Value:   "http://localhost:8080",
				Usage:   "lobsim base URL",
				EnvVars: []string{"LOBSIM_SERVER"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "market",
				Usage: "show instrument and clock status",
				Action: func(c *cli.Context) error {
					return show(client(c).Market(c.Context))
				},
			},
			{
				Name:  "book",
				Usage: "show aggregated depth",
				Flags: []cli.Flag{&cli.IntFlag{Name: "depth", Value: 10}},
				Action: func(c *cli.Context) error {
					return show(client(c).Orderbook(c.Context, c.Int("depth")))
				},
			},
			{
				Name:  "bbo",
				Usage: "show best bid, best ask and reference price",
				Action: func(c *cli.Context) error {
					return show(client(c).BBO(c.Context))
				},
			},
			{
				Name:  "trades",
				Usage: "show the recent trade tape",
				Flags: []cli.Flag{&cli.IntFlag{Name: "limit", Value: 20}},
				Action: func(c *cli.Context) error {
					return show(client(c).Trades(c.Context, c.Int("limit")))
				},
			},
			{
				Name:  "candles",
				Usage: "show OHLC candles, oldest first",
				Flags: []cli.Flag{&cli.IntFlag{Name: "limit", Value: 20}},
				Action: func(c *cli.Context) error {
					return show(client(c).Candles(c.Context, c.Int("limit")))
				},
			},
			{
				Name:  "account",
				Usage: "show cash, position and PnL",
				Action: func(c *cli.Context) error {
					return show(client(c).Account(c.Context))
				},
			},
			orderCommand("buy"),
			orderCommand("sell"),
			{
				Name:  "flatten",
				Usage: "close the open position at market",
				Action: func(c *cli.Context) error {
					return show(client(c).Flatten(c.Context))
				},
			},
			controlCommand("pause", "stop the clock"),
			controlCommand("resume", "restart the clock"),
			controlCommand("step", "run a single tick"),
			controlCommand("reset", "rebuild the book and account"),
			{
				Name:      "speed",
				Usage:     "set the clock speed multiplier",
				ArgsUsage: "<multiplier>",
				Action: func(c *cli.Context) error {
					v, err := strconv.ParseFloat(c.Args().First(), 64)
					if err != nil {
						return cli.Exit("speed: expected a number", 2)
					}
					return show(client(c).SetSpeed(c.Context, v))
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "lobctl:", err)
		os.Exit(1)
	}
}

func client(c *cli.Context) *api.Client {
	return api.NewClient(c.String("server"))
}

// orderCommand builds "buy" and "sell": market by default, limit with --price
func orderCommand(side string) *cli.Command {
	return &cli.Command{
		Name:      side,
		Usage:     side + " at market, or place a limit order with --price",
		ArgsUsage: "<size>",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "price", Usage: "limit price"},
		},
		Action: func(c *cli.Context) error {
			size, err := strconv.ParseFloat(c.Args().First(), 64)
			if err != nil {
				return cli.Exit(side+": expected a size", 2)
			}
			req := api.SubmitOrderRequest{Side: side, Kind: "market", Size: size}
			if c.IsSet("price") {
				req.Kind = "limit"
				req.Price = c.Float64("price")
			}
			return show(client(c).SubmitOrder(c.Context, req))
		},
	}
}

func controlCommand(action, usage string) *cli.Command {
	return &cli.Command{
		Name:  action,
		Usage: usage,
		Action: func(c *cli.Context) error {
			return show(client(c).Control(c.Context, action))
		},
	}
}

func show[T any](v T, err error) error {
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
