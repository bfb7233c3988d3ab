package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

var (
	host    string
	keyHex  string
	raw     bool
	timeout time.Duration
)

const defaultTimeout = time.Second * 10

func main() {
	app := cli.NewApp()
	app.Name = "dexctl"
	app.EnableBashCompletion = true
	app.Usage = "command line client for the hyperdex exchange API"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "host",
			Value:       "http://localhost:8080",
			Usage:       "the API base URL",
			EnvVars:     []string{"DEXCTL_HOST"},
			Destination: &host,
		},
		&cli.StringFlag{
			Name:        "key",
			Usage:       "hex private key used to sign requests",
			EnvVars:     []string{"DEXCTL_KEY"},
			Destination: &keyHex,
		},
		&cli.BoolFlag{
			Name:        "raw",
			Usage:       "read and print amounts in base units instead of token decimals",
			Destination: &raw,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Value:       defaultTimeout,
			Usage:       "the request timeout",
			Destination: &timeout,
		},
	}
	app.Commands = []*cli.Command{
		keygenCommand,
		tokensCommand,
		addTokenCommand,
		bookCommand,
		ordersCommand,
		tradesCommand,
		balancesCommand,
		faucetCommand,
		approveCommand,
		depositCommand,
		withdrawCommand,
		limitCommand,
		marketCommand,
		stateCommand,
		payoutsCommand,
		settlePayoutCommand,
		signCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
