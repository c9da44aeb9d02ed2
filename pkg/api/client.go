package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to a running simulator over its REST API
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for the server at base (e.g. http://localhost:8080)
func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// APIError is a non-2xx response decoded from ErrorResponse
type APIError struct {
	StatusCode int
	ErrorResponse
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%d %s: %s", e.StatusCode, e.ErrorResponse.Error, e.Message)
	}
	return fmt.Sprintf("%d %s", e.StatusCode, e.ErrorResponse.Error)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr.ErrorResponse); err != nil {
			apiErr.ErrorResponse.Error = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func limitQuery(key string, n int) url.Values {
	if n <= 0 {
		return nil
	}
	return url.Values{key: []string{strconv.Itoa(n)}}
}

func (c *Client) Market(ctx context.Context) (MarketInfo, error) {
	var m MarketInfo
	err := c.do(ctx, http.MethodGet, "/api/v1/market", nil, nil, &m)
	return m, err
}

func (c *Client) Orderbook(ctx context.Context, depth int) (OrderbookSnapshot, error) {
	var ob OrderbookSnapshot
	err := c.do(ctx, http.MethodGet, "/api/v1/orderbook", limitQuery("depth", depth), nil, &ob)
	return ob, err
}

func (c *Client) BBO(ctx context.Context) (BBO, error) {
	var b BBO
	err := c.do(ctx, http.MethodGet, "/api/v1/bbo", nil, nil, &b)
	return b, err
}

func (c *Client) Trades(ctx context.Context, limit int) ([]TradeInfo, error) {
	var t []TradeInfo
	err := c.do(ctx, http.MethodGet, "/api/v1/trades", limitQuery("limit", limit), nil, &t)
	return t, err
}

func (c *Client) Candles(ctx context.Context, limit int) ([]CandleInfo, error) {
	var cs []CandleInfo
	err := c.do(ctx, http.MethodGet, "/api/v1/candles", limitQuery("limit", limit), nil, &cs)
	return cs, err
}

func (c *Client) Account(ctx context.Context) (AccountInfo, error) {
	var a AccountInfo
	err := c.do(ctx, http.MethodGet, "/api/v1/account", nil, nil, &a)
	return a, err
}

// SubmitOrder places a user order
func (c *Client) SubmitOrder(ctx context.Context, req SubmitOrderRequest) (SubmitOrderResponse, error) {
	var r SubmitOrderResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/orders", nil, req, &r)
	return r, err
}

// Flatten closes the user position at market
func (c *Client) Flatten(ctx context.Context) (SubmitOrderResponse, error) {
	var r SubmitOrderResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/control/flatten", nil, nil, &r)
	return r, err
}

// Control posts one of pause, resume, step or reset
func (c *Client) Control(ctx context.Context, action string) (StatusInfo, error) {
	var st StatusInfo
	err := c.do(ctx, http.MethodPost, "/api/v1/control/"+action, nil, nil, &st)
	return st, err
}

func (c *Client) SetSpeed(ctx context.Context, speed float64) (StatusInfo, error) {
	var st StatusInfo
	err := c.do(ctx, http.MethodPut, "/api/v1/control/speed", nil, SpeedRequest{Speed: speed}, &st)
	return st, err
}
