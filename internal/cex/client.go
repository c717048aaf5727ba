package cex

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"pokedesk/internal/exchange"
)

const productType = "USDT-FUTURES"

// Credentials sign private REST calls.
type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
}

func (c Credentials) Complete() bool {
	return c.APIKey != "" && c.APISecret != "" && c.Passphrase != ""
}

// Client is a signed REST client. Live and demo calls differ only in base
// URL.
type Client struct {
	baseURL string
	demoURL string
	creds   Credentials
	locale  string
	http    *http.Client
	log     *zap.Logger
	now     func() time.Time
}

func NewClient(baseURL, demoURL string, creds Credentials, locale string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	baseURL = strings.TrimRight(baseURL, "/")
	demoURL = strings.TrimRight(demoURL, "/")
	if demoURL == "" {
		demoURL = baseURL
	}
	if locale == "" {
		locale = "en-US"
	}
	return &Client{
		baseURL: baseURL,
		demoURL: demoURL,
		creds:   creds,
		locale:  locale,
		http:    &http.Client{Timeout: timeout},
		log:     log,
		now:     time.Now,
	}
}

type request struct {
	method string
	path   string
	query  url.Values
	body   map[string]any
	signed bool
	demo   bool
}

// Sign computes base64(HMAC-SHA256(secret, timestamp+METHOD+path[?query]+body)).
func Sign(secret, timestamp, method, pathWithQuery, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + strings.ToUpper(method) + pathWithQuery + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, req request) (exchange.Envelope, error) {
	withProductType(&req)

	var body string
	if req.body != nil {
		encoded, err := json.Marshal(req.body)
		if err != nil {
			return exchange.Envelope{}, err
		}
		body = string(encoded)
	}
	pathWithQuery := req.path
	if len(req.query) > 0 {
		pathWithQuery += "?" + req.query.Encode()
	}
	base := c.baseURL
	if req.demo {
		base = c.demoURL
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, base+pathWithQuery, bytes.NewReader([]byte(body)))
	if err != nil {
		return exchange.Envelope{}, err
	}
	if body != "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("locale", c.locale)
	if req.signed {
		if !c.creds.Complete() {
			return exchange.Envelope{}, exchange.ErrCredentialsMissing
		}
		ts := strconv.FormatInt(c.now().UnixMilli(), 10)
		httpReq.Header.Set("ACCESS-KEY", c.creds.APIKey)
		httpReq.Header.Set("ACCESS-SIGN", Sign(c.creds.APISecret, ts, req.method, pathWithQuery, body))
		httpReq.Header.Set("ACCESS-TIMESTAMP", ts)
		httpReq.Header.Set("ACCESS-PASSPHRASE", c.creds.Passphrase)
	}
	if strings.Contains(req.path, "/mix/order") && req.body != nil {
		c.log.Info("mix order request", zap.String("path", req.path), zap.Strings("keys", sortedKeys(req.body)))
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return exchange.Envelope{}, exchange.ClassifyTransport(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return exchange.Envelope{}, exchange.ClassifyTransport(err)
	}
	var decoded any
	decodeErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code, msg := "", strings.TrimSpace(string(raw))
		if decodeErr == nil {
			env := exchange.NewEnvelope(decoded)
			code, msg = env.Code, env.Msg
		}
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return exchange.Envelope{}, exchange.Classify(resp.StatusCode, code, msg, exchange.ParseRetryAfter(resp.Header))
	}
	if decodeErr != nil {
		return exchange.Envelope{}, &exchange.Error{
			Kind:   exchange.KindUnknown,
			Status: resp.StatusCode,
			Text:   "the exchange sent unreadable data. Please confirm again.",
			Err:    decodeErr,
		}
	}
	env := exchange.NewEnvelope(decoded)
	if !env.OK {
		return env, exchange.Classify(resp.StatusCode, env.Code, env.Msg, 0)
	}
	return env, nil
}

// withProductType defaults productType on every futures endpoint.
func withProductType(req *request) {
	if !strings.HasPrefix(req.path, "/api/") || !strings.Contains(req.path, "/mix/") {
		return
	}
	if req.body != nil {
		if _, ok := req.body["productType"]; !ok {
			req.body["productType"] = productType
		}
		return
	}
	if req.query == nil {
		req.query = url.Values{}
	}
	if req.query.Get("productType") == "" {
		req.query.Set("productType", productType)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
