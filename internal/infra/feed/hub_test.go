package feed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nft_market/internal/event"
	"nft_market/internal/infra"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
)

func startHub(t *testing.T) (*Hub, *infra.Metrics, string) {
	t.Helper()
	metrics := &infra.Metrics{}
	hub := NewHub(metrics, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, metrics, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if msg := read(t, conn); msg.Type != "welcome" {
		t.Fatalf("first message = %q, want welcome", msg.Type)
	}
	return conn
}

type frame struct {
	Type    string          `json:"type"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("bad frame %s: %v", data, err)
	}
	return f
}

func receipt(seq uint64) *event.Receipt {
	market := common.HexToAddress("0x1000000000000000000000000000000000000001")
	bidder := common.HexToAddress("0xa0")
	transfer := &event.TransferEvent{BaseEvent: event.At(market), From: bidder, To: market, Value: uint256.NewInt(15)}
	bid := &event.BidMadeEvent{BaseEvent: event.At(market), Bidder: bidder, Amount: uint256.NewInt(15), TokenID: uint256.NewInt(1)}
	transfer.Stamp(seq, 1000)
	bid.Stamp(seq, 1000)
	return &event.Receipt{
		Seq:    seq,
		From:   bidder,
		Method: "market.bid",
		Status: event.ReceiptStatusSuccessful,
		Logs:   []event.Event{transfer, bid},
	}
}

func TestHub_Publish(t *testing.T) {
	hub, metrics, url := startHub(t)
	all := dial(t, url)
	bids := dial(t, url+"?channel=BidMade")

	hub.Publish(receipt(7))

	want := []string{ChannelReceipts, "Transfer", "BidMade"}
	for _, w := range want {
		if msg := read(t, all); msg.Type != w || msg.Seq != 7 {
			t.Errorf("all: got %s/%d, want %s/7", msg.Type, msg.Seq, w)
		}
	}

	msg := read(t, bids)
	if msg.Type != "BidMade" {
		t.Fatalf("filtered client got %q, want BidMade", msg.Type)
	}
	var payload struct {
		Amount string `json:"amount"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Amount != "15" {
		t.Errorf("payload = %s (%v)", msg.Payload, err)
	}

	// Registration happened before the broadcast was handled.
	if got := metrics.Snapshot().FeedSubscribers; got != 2 {
		t.Errorf("subscribers = %d, want 2", got)
	}
}

func TestHub_FailedReceiptHasNoLogs(t *testing.T) {
	hub, _, url := startHub(t)
	conn := dial(t, url)

	failed := receipt(1)
	failed.Status = event.ReceiptStatusFailed
	failed.Logs = nil
	hub.Publish(failed)
	hub.Publish(receipt(2))

	if msg := read(t, conn); msg.Type != ChannelReceipts || msg.Seq != 1 {
		t.Errorf("got %s/%d, want receipts/1", msg.Type, msg.Seq)
	}
	if msg := read(t, conn); msg.Type != ChannelReceipts || msg.Seq != 2 {
		t.Errorf("got %s/%d, want receipts/2", msg.Type, msg.Seq)
	}
}

func TestHub_Subscribe(t *testing.T) {
	hub, _, url := startHub(t)
	conn := dial(t, url+"?channel=FeeWithdrawn")

	sub, _ := json.Marshal(subscribeMsg{Action: "subscribe", Channels: []string{"Transfer"}})
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// The subscription is applied asynchronously by the read pump.
	deadline := time.Now().Add(2 * time.Second)
	for !hub.anySubscribed("Transfer") {
		if time.Now().After(deadline) {
			t.Fatal("subscription never took effect")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Publish(receipt(1))
	if msg := read(t, conn); msg.Type != "Transfer" {
		t.Errorf("got %q, want Transfer", msg.Type)
	}
}

func (h *Hub) anySubscribed(channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.isSubscribed(channel) {
			return true
		}
	}
	return false
}

func TestHub_WelcomeQueuedBeforeRegister(t *testing.T) {
	hub := NewHub(&infra.Metrics{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c := hub.newClient(nil, []string{ChannelReceipts})
	if len(c.send) != 1 {
		t.Fatalf("queued frames = %d, want 1", len(c.send))
	}

	// Hub stops right after registering the client: send is closed but the
	// welcome frame is still delivered first.
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	hub.register <- c
	cancel()
	<-hub.done

	data, ok := <-c.send
	if !ok {
		t.Fatal("welcome frame lost")
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil || f.Type != "welcome" {
		t.Fatalf("first frame = %s (%v)", data, err)
	}
	if _, ok := <-c.send; ok {
		t.Error("send should be closed after the hub stops")
	}
}
