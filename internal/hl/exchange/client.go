package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	venue "pokedesk/internal/exchange"
)

const DefaultBaseURL = "https://api.hyperliquid.xyz"

// Client posts signed actions to the /exchange endpoint.
type Client struct {
	baseURL      string
	http         *http.Client
	signer       *Signer
	vaultAddress *common.Address
	lastNonce    atomic.Uint64
	log          *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, signer *Signer, vaultAddress string, log *zap.Logger) (*Client, error) {
	if signer == nil {
		return nil, errors.New("signer is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	var vault *common.Address
	if strings.TrimSpace(vaultAddress) != "" {
		addr := common.HexToAddress(vaultAddress)
		vault = &addr
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: timeout},
		signer:       signer,
		vaultAddress: vault,
		log:          log,
	}, nil
}

// Address is the account the client trades for: the vault when set,
// otherwise the signing wallet.
func (c *Client) Address() common.Address {
	if c.vaultAddress != nil {
		return *c.vaultAddress
	}
	return c.signer.Address()
}

func (c *Client) PlaceOrders(ctx context.Context, orders []OrderWire, grouping string) (map[string]any, error) {
	action := OrderAction{Type: "order", Orders: orders, Grouping: grouping}
	if action.Grouping == "" {
		action.Grouping = GroupingNone
	}
	encoded, err := EncodeOrderAction(action)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, action, encoded)
}

func (c *Client) PlaceOrder(ctx context.Context, order OrderWire) (map[string]any, error) {
	return c.PlaceOrders(ctx, []OrderWire{order}, GroupingNone)
}

func (c *Client) CancelOrder(ctx context.Context, asset int, orderID int64) (map[string]any, error) {
	action := CancelAction{Type: "cancel", Cancels: []CancelWire{{Asset: asset, OrderID: orderID}}}
	encoded, err := EncodeCancelAction(action)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, action, encoded)
}

func (c *Client) CancelByCloid(ctx context.Context, asset int, cloid string) (map[string]any, error) {
	action := CancelByCloidAction{Type: "cancelByCloid", Cancels: []CancelByCloidWire{{Asset: asset, Cloid: cloid}}}
	encoded, err := EncodeCancelByCloidAction(action)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, action, encoded)
}

func (c *Client) UpdateLeverage(ctx context.Context, asset int, isCross bool, leverage int) (map[string]any, error) {
	action := UpdateLeverageAction{Type: "updateLeverage", Asset: asset, IsCross: isCross, Leverage: leverage}
	encoded, err := EncodeUpdateLeverageAction(action)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, action, encoded)
}

func (c *Client) submit(ctx context.Context, action any, encoded []byte) (map[string]any, error) {
	nonce := c.nextNonce()
	sig, err := c.signer.SignL1(encoded, nonce, c.vaultAddress)
	if err != nil {
		return nil, err
	}
	var vault *string
	if c.vaultAddress != nil {
		addr := c.vaultAddress.Hex()
		vault = &addr
	}
	resp, err := c.post(ctx, "/exchange", SignedAction{
		Action:       action,
		Nonce:        nonce,
		Signature:    sig,
		VaultAddress: vault,
	})
	if err != nil {
		return nil, err
	}
	if err := StatusError(resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// nextNonce returns a millisecond timestamp that never repeats, even when
// the clock does not advance between calls.
func (c *Client) nextNonce() uint64 {
	now := uint64(time.Now().UnixMilli())
	for {
		prev := c.lastNonce.Load()
		next := now
		if prev >= next {
			next = prev + 1
		}
		if c.lastNonce.CompareAndSwap(prev, next) {
			return next
		}
	}
}

func (c *Client) post(ctx context.Context, path string, req any) (map[string]any, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, venue.ClassifyTransport(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.log.Warn("exchange action rejected", zap.Int("status", resp.StatusCode), zap.String("path", path))
		return nil, venue.Classify(resp.StatusCode, "", string(payload), venue.ParseRetryAfter(resp.Header))
	}
	var data map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &venue.Error{Kind: venue.KindUnknown, Status: resp.StatusCode, Text: "unreadable exchange response", Err: err}
	}
	return data, nil
}
