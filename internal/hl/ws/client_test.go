package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

func TestClientSendsPing(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msgCh := make(chan map[string]any, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept ws: %v", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg map[string]any
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			select {
			case msgCh <- msg:
			default:
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client := New(wsURL, 10*time.Millisecond, 20*time.Millisecond, zap.NewNop())
	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	go func() {
		_ = client.Run(runCtx, nil)
	}()

	for {
		select {
		case msg := <-msgCh:
			if msg["method"] == "ping" {
				return
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for ping")
		}
	}
}

func TestClientReplaysSubscriptionAndDeliversFrames(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept ws: %v", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var sub Subscription
		if err := json.Unmarshal(data, &sub); err != nil || sub.Subscription.Type != "allMids" {
			t.Errorf("expected allMids subscription, got %s", data)
			return
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"channel":"pong"}`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"channel":"allMids","data":{"mids":{"BTC":"65000"}}}`))
		<-ctx.Done()
	}))
	defer server.Close()

	client := New("ws"+strings.TrimPrefix(server.URL, "http"), 10*time.Millisecond, 0, zap.NewNop())
	if err := client.Subscribe(ctx, AllMids()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	got := make(chan Message, 2)
	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	go func() {
		_ = client.Run(runCtx, func(msg Message) { got <- msg })
	}()
	select {
	case msg := <-got:
		if msg.Channel != "allMids" {
			t.Fatalf("expected allMids frame, got %s", msg.Channel)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for frame")
	}
}
