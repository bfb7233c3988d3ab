package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/uhyunpark/hyperdex/pkg/api"
	"github.com/uhyunpark/hyperdex/pkg/crypto"
)

var errArgs = errors.New("invalid arguments, see --help")

var keygenCommand = &cli.Command{
	Name:   "keygen",
	Usage:  "generates a new signing key",
	Action: keygen,
}

func keygen(_ *cli.Context) error {
	s, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	fmt.Printf("Address:     %s\n", s.Address().Hex())
	fmt.Printf("Private Key: %s (KEEP SECRET!)\n", s.PrivateKeyHex())
	return nil
}

var tokensCommand = &cli.Command{
	Name:   "tokens",
	Usage:  "lists every listed token",
	Action: listTokens,
}

func listTokens(c *cli.Context) error {
	cl, err := newClient(c, false)
	if err != nil {
		return err
	}
	var list []api.AssetInfo
	if err := cl.get(c.Context, "/api/v1/tokens", &list); err != nil {
		return err
	}

	writer := tablewriter.NewWriter(os.Stdout)
	writer.SetHeader([]string{"ticker", "handle", "decimals", "quote"})
	for _, a := range list {
		writer.Append([]string{a.Ticker, a.Handle, strconv.Itoa(int(a.Decimals)), strconv.FormatBool(a.IsQuote)})
	}
	writer.SetCaption(true, "tokens")
	writer.Render()
	return nil
}

var addTokenCommand = &cli.Command{
	Name:      "add-token",
	Usage:     "lists a new token (admin key only)",
	ArgsUsage: "<ticker> <handle>",
	Action:    addToken,
}

func addToken(c *cli.Context) error {
	if c.NArg() != 2 {
		return errArgs
	}
	cl, err := newClient(c, true)
	if err != nil {
		return err
	}
	var out api.AssetInfo
	err = cl.post(c.Context, "/api/v1/tokens", api.ActionAddToken, map[string]any{
		"ticker": c.Args().Get(0),
		"handle": c.Args().Get(1),
	}, &out)
	if err != nil {
		return err
	}
	jsonOutput(out)
	return nil
}

var bookCommand = &cli.Command{
	Name:      "book",
	Usage:     "shows the aggregated order book of a token",
	ArgsUsage: "<ticker>",
	Action:    showBook,
}

func showBook(c *cli.Context) error {
	if c.NArg() != 1 {
		return errArgs
	}
	ticker := c.Args().First()
	cl, err := newClient(c, false)
	if err != nil {
		return err
	}
	if err := cl.loadTokens(c.Context); err != nil {
		return err
	}
	var snap api.OrderbookSnapshot
	if err := cl.get(c.Context, "/api/v1/markets/"+url.PathEscape(ticker)+"/orderbook", &snap); err != nil {
		return err
	}

	writer := tablewriter.NewWriter(os.Stdout)
	writer.SetHeader([]string{"side", "price", "size", "orders"})
	for i := len(snap.Asks) - 1; i >= 0; i-- {
		l := snap.Asks[i]
		writer.Append([]string{"ask", cl.priceOut(ticker, l.Price), cl.amountOut(ticker, l.Size), strconv.Itoa(l.Orders)})
	}
	for _, l := range snap.Bids {
		writer.Append([]string{"bid", cl.priceOut(ticker, l.Price), cl.amountOut(ticker, l.Size), strconv.Itoa(l.Orders)})
	}
	writer.SetCaption(true, ticker+" book")
	writer.Render()
	return nil
}

var ordersCommand = &cli.Command{
	Name:      "orders",
	Usage:     "lists resting orders of a token in priority order",
	ArgsUsage: "<ticker>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "side",
			Usage: "buy or sell; both when empty",
		},
	},
	Action: listOrders,
}

func listOrders(c *cli.Context) error {
	if c.NArg() != 1 {
		return errArgs
	}
	ticker := c.Args().First()
	cl, err := newClient(c, false)
	if err != nil {
		return err
	}
	if err := cl.loadTokens(c.Context); err != nil {
		return err
	}
	path := "/api/v1/markets/" + url.PathEscape(ticker) + "/orders"
	if side := c.String("side"); side != "" {
		path += "?side=" + url.QueryEscape(side)
	}
	var orders []api.OrderInfo
	if err := cl.get(c.Context, path, &orders); err != nil {
		return err
	}

	writer := tablewriter.NewWriter(os.Stdout)
	writer.SetHeader([]string{"ID", "side", "price", "amount", "filled", "trader"})
	for _, o := range orders {
		writer.Append([]string{strconv.FormatUint(o.ID, 10), o.Side, cl.priceOut(ticker, o.Price),
			cl.amountOut(ticker, o.Amount), cl.amountOut(ticker, o.Filled), o.Trader})
	}
	writer.SetCaption(true, ticker+" orders")
	writer.Render()
	return nil
}

var tradesCommand = &cli.Command{
	Name:      "trades",
	Usage:     "lists recent trades of a token, newest first",
	ArgsUsage: "<ticker>",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "limit",
			Value: 20,
			Usage: "maximum number of trades",
		},
	},
	Action: listTrades,
}

func listTrades(c *cli.Context) error {
	if c.NArg() != 1 {
		return errArgs
	}
	ticker := c.Args().First()
	cl, err := newClient(c, false)
	if err != nil {
		return err
	}
	if err := cl.loadTokens(c.Context); err != nil {
		return err
	}
	var trades []api.TradeInfo
	path := fmt.Sprintf("/api/v1/markets/%s/trades?limit=%d", url.PathEscape(ticker), c.Int("limit"))
	if err := cl.get(c.Context, path, &trades); err != nil {
		return err
	}
	printTrades(cl, trades)
	return nil
}

func printTrades(cl *client, trades []api.TradeInfo) {
	writer := tablewriter.NewWriter(os.Stdout)
	writer.SetHeader([]string{"ID", "order", "side", "price", "amount", "taker", "maker"})
	for _, t := range trades {
		writer.Append([]string{strconv.FormatUint(t.ID, 10), strconv.FormatUint(t.OrderID, 10), t.Side,
			cl.priceOut(t.Ticker, t.Price), cl.amountOut(t.Ticker, t.Amount), t.Taker, t.Maker})
	}
	writer.SetCaption(true, "trades")
	writer.Render()
}

var balancesCommand = &cli.Command{
	Name:      "balances",
	Usage:     "shows custodial balances of an address (the signing key's when omitted)",
	ArgsUsage: "[address]",
	Action:    showBalances,
}

func showBalances(c *cli.Context) error {
	cl, err := newClient(c, c.NArg() == 0)
	if err != nil {
		return err
	}
	address := c.Args().First()
	if address == "" {
		address = cl.signer.Address().Hex()
	}
	if err := cl.loadTokens(c.Context); err != nil {
		return err
	}
	var out api.AccountBalances
	if err := cl.get(c.Context, "/api/v1/accounts/"+url.PathEscape(address)+"/balances", &out); err != nil {
		return err
	}

	writer := tablewriter.NewWriter(os.Stdout)
	writer.SetHeader([]string{"ticker", "amount"})
	for _, b := range out.Balances {
		writer.Append([]string{b.Ticker, cl.amountOut(b.Ticker, b.Amount)})
	}
	writer.SetCaption(true, out.Address)
	writer.Render()
	return nil
}

var faucetCommand = &cli.Command{
	Name:      "faucet",
	Usage:     "mints devnet tokens to the signing key",
	ArgsUsage: "<ticker> <amount>",
	Action: func(c *cli.Context) error {
		return tokenCall(c, api.ActionFaucet)
	},
}

var approveCommand = &cli.Command{
	Name:      "approve",
	Usage:     "lets custody pull devnet tokens from the signing key",
	ArgsUsage: "<ticker> <amount>",
	Action: func(c *cli.Context) error {
		return tokenCall(c, api.ActionApprove)
	},
}

func tokenCall(c *cli.Context, op string) error {
	if c.NArg() != 2 {
		return errArgs
	}
	ticker := c.Args().Get(0)
	cl, err := newClient(c, true)
	if err != nil {
		return err
	}
	amount, err := cl.amountIn(c.Context, ticker, c.Args().Get(1))
	if err != nil {
		return err
	}
	var out api.StatusResponse
	path := "/api/v1/tokens/" + url.PathEscape(ticker) + "/" + op
	if err := cl.post(c.Context, path, op, map[string]any{"ticker": ticker, "amount": amount}, &out); err != nil {
		return err
	}
	fmt.Printf("%s %s %s: %s\n", op, c.Args().Get(1), ticker, out.Status)
	return nil
}

var depositCommand = &cli.Command{
	Name:      "deposit",
	Usage:     "moves approved tokens into custody",
	ArgsUsage: "<ticker> <amount>",
	Action: func(c *cli.Context) error {
		return transfer(c, api.ActionDeposit)
	},
}

var withdrawCommand = &cli.Command{
	Name:      "withdraw",
	Usage:     "pays custodial tokens back to the signing key",
	ArgsUsage: "<ticker> <amount>",
	Action: func(c *cli.Context) error {
		return transfer(c, api.ActionWithdraw)
	},
}

func transfer(c *cli.Context, op string) error {
	if c.NArg() != 2 {
		return errArgs
	}
	ticker := c.Args().Get(0)
	cl, err := newClient(c, true)
	if err != nil {
		return err
	}
	amount, err := cl.amountIn(c.Context, ticker, c.Args().Get(1))
	if err != nil {
		return err
	}
	var out api.BalanceInfo
	if err := cl.post(c.Context, "/api/v1/"+op, op, map[string]any{"ticker": ticker, "amount": amount}, &out); err != nil {
		return err
	}
	fmt.Printf("%s balance: %s\n", ticker, cl.amountOut(ticker, out.Amount))
	return nil
}

var limitCommand = &cli.Command{
	Name:      "limit",
	Usage:     "places a limit order; price is in quote per whole token",
	ArgsUsage: "<ticker> <buy|sell> <amount> <price>",
	Action:    placeLimit,
}

func placeLimit(c *cli.Context) error {
	if c.NArg() != 4 {
		return errArgs
	}
	ticker := c.Args().Get(0)
	cl, err := newClient(c, true)
	if err != nil {
		return err
	}
	amount, err := cl.amountIn(c.Context, ticker, c.Args().Get(2))
	if err != nil {
		return err
	}
	price, err := cl.priceIn(c.Context, ticker, c.Args().Get(3))
	if err != nil {
		return err
	}
	var out api.LimitOrderResponse
	err = cl.post(c.Context, "/api/v1/orders/limit", api.ActionLimit, map[string]any{
		"ticker": ticker,
		"side":   strings.ToLower(c.Args().Get(1)),
		"amount": amount,
		"price":  price,
	}, &out)
	if err != nil {
		return err
	}
	fmt.Printf("order id: %d\n", out.OrderID)
	return nil
}

var marketCommand = &cli.Command{
	Name:      "market",
	Usage:     "matches against resting orders immediately",
	ArgsUsage: "<ticker> <buy|sell> <amount>",
	Action:    placeMarket,
}

func placeMarket(c *cli.Context) error {
	if c.NArg() != 3 {
		return errArgs
	}
	ticker := c.Args().Get(0)
	cl, err := newClient(c, true)
	if err != nil {
		return err
	}
	amount, err := cl.amountIn(c.Context, ticker, c.Args().Get(2))
	if err != nil {
		return err
	}
	var out api.MarketOrderResponse
	err = cl.post(c.Context, "/api/v1/orders/market", api.ActionMarket, map[string]any{
		"ticker": ticker,
		"side":   strings.ToLower(c.Args().Get(1)),
		"amount": amount,
	}, &out)
	if err != nil {
		return err
	}
	if len(out.Trades) == 0 {
		fmt.Println("no resting orders matched")
		return nil
	}
	printTrades(cl, out.Trades)
	return nil
}

var stateCommand = &cli.Command{
	Name:   "state",
	Usage:  "prints the exchange state digest",
	Action: showState,
}

func showState(c *cli.Context) error {
	cl, err := newClient(c, false)
	if err != nil {
		return err
	}
	var out api.StateInfo
	if err := cl.get(c.Context, "/api/v1/state", &out); err != nil {
		return err
	}
	jsonOutput(out)
	return nil
}

var payoutsCommand = &cli.Command{
	Name:   "payouts",
	Usage:  "lists withdrawals whose payout is unsettled",
	Action: showPayouts,
}

func showPayouts(c *cli.Context) error {
	cl, err := newClient(c, false)
	if err != nil {
		return err
	}
	if err := cl.loadTokens(c.Context); err != nil {
		return err
	}
	var out []api.PayoutInfo
	if err := cl.get(c.Context, "/api/v1/payouts", &out); err != nil {
		return err
	}

	writer := tablewriter.NewWriter(os.Stdout)
	writer.SetHeader([]string{"trader", "ticker", "amount"})
	for _, p := range out {
		writer.Append([]string{p.Trader, p.Ticker, cl.amountOut(p.Ticker, p.Amount)})
	}
	writer.SetCaption(true, "unsettled payouts")
	writer.Render()
	return nil
}

var settlePayoutCommand = &cli.Command{
	Name:      "settle-payout",
	Usage:     "resolves an unsettled withdrawal (admin key only); --paid=false refunds it",
	ArgsUsage: "<trader> <ticker>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "paid", Usage: "the tokens reached the trader"},
	},
	Action: settlePayout,
}

func settlePayout(c *cli.Context) error {
	if c.NArg() != 2 {
		return errArgs
	}
	cl, err := newClient(c, true)
	if err != nil {
		return err
	}
	ticker := c.Args().Get(1)
	var out api.BalanceInfo
	err = cl.post(c.Context, "/api/v1/payouts/settle", api.ActionSettle, map[string]any{
		"trader": c.Args().Get(0),
		"ticker": ticker,
		"paid":   c.Bool("paid"),
	}, &out)
	if err != nil {
		return err
	}
	if err := cl.loadTokens(c.Context); err != nil {
		return err
	}
	fmt.Printf("%s balance: %s\n", ticker, cl.amountOut(ticker, out.Amount))
	return nil
}

var signCommand = &cli.Command{
	Name:      "sign",
	Usage:     "wraps a JSON payload (with its action and nonce) in a signed envelope, for use with curl",
	ArgsUsage: "<json>",
	Action:    signPayload,
}

func signPayload(c *cli.Context) error {
	if c.NArg() != 1 {
		return errArgs
	}
	cl, err := newClient(c, true)
	if err != nil {
		return err
	}
	var payload map[string]any
	dec := json.NewDecoder(strings.NewReader(c.Args().First()))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	env, err := cl.signer.Seal(payload)
	if err != nil {
		return err
	}
	jsonOutput(env)
	return nil
}
