package handler

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

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/bidman/internal/broadcast"
	"github.com/hitoshi/bidman/internal/lifecycle"
	"github.com/hitoshi/bidman/internal/metrics"
	"github.com/hitoshi/bidman/internal/model"
)

type mockSnapshotReader struct {
	getSnapshotFn func(ctx context.Context, auctionID string) (*model.AuctionSnapshot, *lifecycle.Labels, error)
}

func (m *mockSnapshotReader) GetSnapshot(ctx context.Context, auctionID string) (*model.AuctionSnapshot, *lifecycle.Labels, error) {
	return m.getSnapshotFn(ctx, auctionID)
}

func newStreamTestServer(t *testing.T, hub *broadcast.Hub, reader SnapshotReaderInterface) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewStreamHandler(hub, reader, logger, "")

	r := chi.NewRouter()
	r.Get("/api/auctions/{id}/stream", h.Stream)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func dialStream(t *testing.T, server *httptest.Server, auctionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/auctions/" + auctionID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) *model.AuctionSnapshot {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var snap model.AuctionSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		t.Fatalf("failed to unmarshal snapshot: %v", err)
	}
	return &snap
}

func newStreamTestHub() *broadcast.Hub {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return broadcast.NewHub(logger, metrics.NopCollector{})
}

// TestStream_InitialSnapshot は接続直後に初期スナップショットが届くことを検証する。
func TestStream_InitialSnapshot(t *testing.T) {
	hub := newStreamTestHub()
	reader := &mockSnapshotReader{
		getSnapshotFn: func(ctx context.Context, auctionID string) (*model.AuctionSnapshot, *lifecycle.Labels, error) {
			return &model.AuctionSnapshot{
				AuctionID:  auctionID,
				CurrentBid: decimal.NewFromInt(1500),
				Version:    3,
				Status:     model.StatusActive,
			}, &lifecycle.Labels{}, nil
		},
	}

	server := newStreamTestServer(t, hub, reader)
	conn := dialStream(t, server, "auction-1")

	snap := readSnapshot(t, conn)
	if snap.AuctionID != "auction-1" {
		t.Errorf("auction_id = %q, want %q", snap.AuctionID, "auction-1")
	}
	if snap.Version != 3 {
		t.Errorf("version = %d, want 3", snap.Version)
	}
}

// TestStream_ReceivesPublishedSnapshots はコミット後の配信が接続中のクライアントに届くことを検証する。
func TestStream_ReceivesPublishedSnapshots(t *testing.T) {
	hub := newStreamTestHub()
	reader := &mockSnapshotReader{
		getSnapshotFn: func(ctx context.Context, auctionID string) (*model.AuctionSnapshot, *lifecycle.Labels, error) {
			return &model.AuctionSnapshot{AuctionID: auctionID, Version: 1, Status: model.StatusActive}, &lifecycle.Labels{}, nil
		},
	}

	server := newStreamTestServer(t, hub, reader)
	conn := dialStream(t, server, "auction-1")

	// 初期スナップショット
	if snap := readSnapshot(t, conn); snap.Version != 1 {
		t.Fatalf("initial version = %d, want 1", snap.Version)
	}

	// 購読が登録されるまで待つ
	waitForSubscriber(t, hub, "auction-1")

	hub.Publish(&model.AuctionSnapshot{
		AuctionID:  "auction-1",
		CurrentBid: decimal.NewFromInt(1100),
		Version:    2,
		Status:     model.StatusActive,
	})

	snap := readSnapshot(t, conn)
	if snap.Version != 2 {
		t.Errorf("version = %d, want 2", snap.Version)
	}
	if !snap.CurrentBid.Equal(decimal.NewFromInt(1100)) {
		t.Errorf("current_bid = %s, want 1100", snap.CurrentBid)
	}
}

// TestStream_DropsStaleSnapshots はバージョンが増加しない配信が破棄されることを検証する。
func TestStream_DropsStaleSnapshots(t *testing.T) {
	hub := newStreamTestHub()
	reader := &mockSnapshotReader{
		getSnapshotFn: func(ctx context.Context, auctionID string) (*model.AuctionSnapshot, *lifecycle.Labels, error) {
			return &model.AuctionSnapshot{AuctionID: auctionID, Version: 5, Status: model.StatusActive}, &lifecycle.Labels{}, nil
		},
	}

	server := newStreamTestServer(t, hub, reader)
	conn := dialStream(t, server, "auction-1")

	if snap := readSnapshot(t, conn); snap.Version != 5 {
		t.Fatalf("initial version = %d, want 5", snap.Version)
	}

	waitForSubscriber(t, hub, "auction-1")

	// 初期スナップショットより古い配信は破棄され、次の新しい配信のみ届く
	hub.Publish(&model.AuctionSnapshot{AuctionID: "auction-1", Version: 4, Status: model.StatusActive})
	hub.Publish(&model.AuctionSnapshot{AuctionID: "auction-1", Version: 6, Status: model.StatusActive})

	snap := readSnapshot(t, conn)
	if snap.Version != 6 {
		t.Errorf("version = %d, want 6 (stale version 4 dropped)", snap.Version)
	}
}

// TestStream_NotFound は存在しないオークションへの接続がアップグレード前に404になることを検証する。
func TestStream_NotFound(t *testing.T) {
	hub := newStreamTestHub()
	reader := &mockSnapshotReader{
		getSnapshotFn: func(ctx context.Context, auctionID string) (*model.AuctionSnapshot, *lifecycle.Labels, error) {
			return nil, nil, model.NewAuctionNotFoundError(auctionID)
		},
	}

	server := newStreamTestServer(t, hub, reader)

	resp, err := http.Get(server.URL + "/api/auctions/missing/stream")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

// waitForSubscriber はハブへの購読登録を待つ。
func waitForSubscriber(t *testing.T, hub *broadcast.Hub, auctionID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.SubscriberCount(auctionID) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("subscriber was not registered in time")
}
