package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"pokedesk/internal/exchange"
)

const DefaultBaseURL = "https://api.hyperliquid.xyz"

// Client reads account and market state from the /info endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type InfoRequest struct {
	Type string `json:"type"`
	User string `json:"user,omitempty"`
}

// Info posts an arbitrary info request and returns the decoded body.
func (c *Client) Info(ctx context.Context, req any) (any, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, exchange.ClassifyTransport(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.log.Debug("info request rejected", zap.Int("status", resp.StatusCode), zap.ByteString("body", body))
		return nil, exchange.Classify(resp.StatusCode, "", string(body), exchange.ParseRetryAfter(resp.Header))
	}
	var data any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &exchange.Error{Kind: exchange.KindUnknown, Status: resp.StatusCode, Text: "unreadable info response", Err: err}
	}
	return data, nil
}

// Universe returns the perp asset list in asset-index order.
func (c *Client) Universe(ctx context.Context) ([]map[string]any, error) {
	data, err := c.Info(ctx, InfoRequest{Type: "meta"})
	if err != nil {
		return nil, err
	}
	body, ok := exchange.ToMap(data)
	if !ok {
		return nil, fmt.Errorf("meta: unexpected response %T", data)
	}
	return exchange.Maps(body["universe"]), nil
}

// AllMids maps coin names to mid prices.
func (c *Client) AllMids(ctx context.Context) (map[string]float64, error) {
	data, err := c.Info(ctx, InfoRequest{Type: "allMids"})
	if err != nil {
		return nil, err
	}
	body, ok := exchange.ToMap(data)
	if !ok {
		return nil, fmt.Errorf("allMids: unexpected response %T", data)
	}
	return ParseMids(body), nil
}

func (c *Client) ClearinghouseState(ctx context.Context, user string) (map[string]any, error) {
	data, err := c.Info(ctx, InfoRequest{Type: "clearinghouseState", User: user})
	if err != nil {
		return nil, err
	}
	body, ok := exchange.ToMap(data)
	if !ok {
		return nil, fmt.Errorf("clearinghouseState: unexpected response %T", data)
	}
	return body, nil
}

func (c *Client) UserFills(ctx context.Context, user string) ([]map[string]any, error) {
	data, err := c.Info(ctx, InfoRequest{Type: "userFills", User: user})
	if err != nil {
		return nil, err
	}
	return exchange.Maps(data), nil
}

func (c *Client) FrontendOpenOrders(ctx context.Context, user string) ([]map[string]any, error) {
	data, err := c.Info(ctx, InfoRequest{Type: "frontendOpenOrders", User: user})
	if err != nil {
		return nil, err
	}
	return exchange.Maps(data), nil
}

// ParseMids reads a coin to price map, skipping values that do not parse.
func ParseMids(raw map[string]any) map[string]float64 {
	out := make(map[string]float64, len(raw))
	for coin, v := range raw {
		if px, ok := exchange.FloatAny(v); ok && px > 0 {
			out[strings.ToUpper(coin)] = px
		}
	}
	return out
}
