package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/uhyunpark/hyperdex/pkg/api"
	"github.com/uhyunpark/hyperdex/pkg/crypto"
)

type client struct {
	base   string
	http   *http.Client
	signer *crypto.Signer
	tokens map[string]api.AssetInfo
	quote  string
}

func newClient(c *cli.Context, needKey bool) (*client, error) {
	cl := &client{
		base: strings.TrimRight(host, "/"),
		http: &http.Client{Timeout: timeout},
	}
	if needKey {
		if keyHex == "" {
			return nil, errors.New("a signing key is required (--key or DEXCTL_KEY)")
		}
		s, err := crypto.FromPrivateKeyHex(keyHex)
		if err != nil {
			return nil, err
		}
		cl.signer = s
	}
	return cl, nil
}

func (cl *client) do(ctx context.Context, req *http.Request, out any) error {
	resp, err := cl.http.Do(req.WithContext(ctx))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var e api.ErrorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			if e.Message != "" {
				return fmt.Errorf("%s (%d): %s", e.Error, resp.StatusCode, e.Message)
			}
			return fmt.Errorf("%s (%d)", e.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (cl *client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, cl.base+path, nil)
	if err != nil {
		return err
	}
	return cl.do(ctx, req, out)
}

// post signs payload for action and submits it
// The nonce is the current unix time in nanoseconds, which increases across invocations.
func (cl *client) post(ctx context.Context, path, action string, payload map[string]any, out any) error {
	payload["action"] = action
	payload["nonce"] = uint64(time.Now().UnixNano())
	env, err := cl.signer.Seal(payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, cl.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return cl.do(ctx, req, out)
}

// loadTokens fetches listed tokens so amounts can be scaled
func (cl *client) loadTokens(ctx context.Context) error {
	if cl.tokens != nil {
		return nil
	}
	var list []api.AssetInfo
	if err := cl.get(ctx, "/api/v1/tokens", &list); err != nil {
		return err
	}
	cl.tokens = make(map[string]api.AssetInfo, len(list))
	for _, a := range list {
		cl.tokens[a.Ticker] = a
		if a.IsQuote {
			cl.quote = a.Ticker
		}
	}
	return nil
}

func (cl *client) decimals(ticker string) int32 {
	if raw {
		return 0
	}
	return int32(cl.tokens[ticker].Decimals)
}

// amountIn converts a command line amount of ticker into base units
func (cl *client) amountIn(ctx context.Context, ticker, amount string) (string, error) {
	if raw {
		return toBaseUnits(amount, 0)
	}
	if err := cl.loadTokens(ctx); err != nil {
		return "", err
	}
	if _, ok := cl.tokens[ticker]; !ok {
		return "", fmt.Errorf("unknown token %s", ticker)
	}
	return toBaseUnits(amount, cl.decimals(ticker))
}

// priceIn converts a price in quote per whole token into engine units
func (cl *client) priceIn(ctx context.Context, ticker, price string) (string, error) {
	if raw {
		return toBaseUnits(price, 0)
	}
	if err := cl.loadTokens(ctx); err != nil {
		return "", err
	}
	a, ok := cl.tokens[ticker]
	if !ok {
		return "", fmt.Errorf("unknown token %s", ticker)
	}
	return toBaseUnits(price, priceShift(cl.tokens[cl.quote].Decimals, a.Decimals))
}

func (cl *client) amountOut(ticker, base string) string {
	return fromBaseUnits(base, cl.decimals(ticker))
}

func (cl *client) priceOut(ticker, base string) string {
	if raw {
		return base
	}
	return fromBaseUnits(base, priceShift(cl.tokens[cl.quote].Decimals, cl.tokens[ticker].Decimals))
}

func jsonOutput(in any) {
	j, err := json.MarshalIndent(in, "", " ")
	if err != nil {
		return
	}
	fmt.Println(string(j))
}
