package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/bidman/internal/lifecycle"
	"github.com/hitoshi/bidman/internal/model"
)

// --- モック ---

type mockAuctionQuery struct {
	getSnapshotFn func(ctx context.Context, auctionID string) (*model.AuctionSnapshot, *lifecycle.Labels, error)
	listOpenFn    func(ctx context.Context) ([]auctionListEntry, error)
}

func (m *mockAuctionQuery) GetSnapshot(ctx context.Context, auctionID string) (*model.AuctionSnapshot, *lifecycle.Labels, error) {
	return m.getSnapshotFn(ctx, auctionID)
}

func (m *mockAuctionQuery) ListOpen(ctx context.Context) ([]auctionListEntry, error) {
	return m.listOpenFn(ctx)
}

func newAuctionTestRouter(service AuctionQueryInterface) http.Handler {
	r := chi.NewRouter()
	h := NewAuctionHandler(service)
	r.Get("/api/auctions", h.ListOpen)
	r.Get("/api/auctions/{id}", h.GetSnapshot)
	return r
}

// --- テスト ---

// TestGetSnapshot はスナップショットとラベルの取得を検証する。
func TestGetSnapshot(t *testing.T) {
	end := time.Now().Add(30 * time.Minute)
	service := &mockAuctionQuery{
		getSnapshotFn: func(ctx context.Context, auctionID string) (*model.AuctionSnapshot, *lifecycle.Labels, error) {
			if auctionID != "auction-1" {
				t.Errorf("auctionID = %q, want %q", auctionID, "auction-1")
			}
			return &model.AuctionSnapshot{
					AuctionID:   "auction-1",
					CurrentBid:  decimal.NewFromInt(1500),
					BidderCount: 12,
					EndTime:     end,
					Version:     8,
					Status:      model.StatusCritical,
				}, &lifecycle.Labels{
					IsHot:             true,
					IsEndingSoon:      true,
					ValueAppreciation: decimal.NewFromFloat(0.5),
				}, nil
		},
	}

	router := newAuctionTestRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/api/auctions/auction-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp snapshotResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.AuctionID != "auction-1" {
		t.Errorf("auction_id = %q, want %q", resp.AuctionID, "auction-1")
	}
	if resp.Status != string(model.StatusCritical) {
		t.Errorf("status = %q, want %q", resp.Status, model.StatusCritical)
	}
	if resp.Version != 8 {
		t.Errorf("version = %d, want 8", resp.Version)
	}
	if !resp.Labels.IsHot {
		t.Error("expected labels.is_hot = true")
	}
}

// TestGetSnapshot_NotFound は存在しないオークションの404を検証する。
func TestGetSnapshot_NotFound(t *testing.T) {
	service := &mockAuctionQuery{
		getSnapshotFn: func(ctx context.Context, auctionID string) (*model.AuctionSnapshot, *lifecycle.Labels, error) {
			return nil, nil, model.NewAuctionNotFoundError(auctionID)
		},
	}

	router := newAuctionTestRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/api/auctions/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}

	var resp apiErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Code != model.ErrCodeAuctionNotFound {
		t.Errorf("code = %q, want %q", resp.Code, model.ErrCodeAuctionNotFound)
	}
}

// TestListOpen は未終了オークション一覧の取得を検証する。
func TestListOpen(t *testing.T) {
	service := &mockAuctionQuery{
		listOpenFn: func(ctx context.Context) ([]auctionListEntry, error) {
			return []auctionListEntry{
				{AuctionID: "auction-1", Title: "Vintage Camera", Status: string(model.StatusActive)},
				{AuctionID: "auction-2", Title: "Old Lens", Status: string(model.StatusCritical)},
			}, nil
		},
	}

	router := newAuctionTestRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/api/auctions", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string][]auctionListEntry
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp["auctions"]) != 2 {
		t.Fatalf("auctions count = %d, want 2", len(resp["auctions"]))
	}
	if resp["auctions"][0].AuctionID != "auction-1" {
		t.Errorf("first auction_id = %q, want %q", resp["auctions"][0].AuctionID, "auction-1")
	}
}
