package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/bidman/internal/lifecycle"
	"github.com/hitoshi/bidman/internal/model"
)

// AuctionQueryInterface はオークション参照ハンドラーが必要とするサービスインターフェース。
type AuctionQueryInterface interface {
	// GetSnapshot はオークションの現在スナップショットと分析ラベルを返す。
	GetSnapshot(ctx context.Context, auctionID string) (*model.AuctionSnapshot, *lifecycle.Labels, error)
	// ListOpen は未終了オークションのスナップショット一覧を返す。
	ListOpen(ctx context.Context) ([]auctionListEntry, error)
}

// AuctionHandler はオークション参照のHTTPハンドラー。
type AuctionHandler struct {
	service AuctionQueryInterface
}

// NewAuctionHandler はAuctionHandlerを生成する。
func NewAuctionHandler(service AuctionQueryInterface) *AuctionHandler {
	return &AuctionHandler{service: service}
}

// snapshotResponse はスナップショット取得のAPIレスポンス。
type snapshotResponse struct {
	AuctionID   string           `json:"auction_id"`
	CurrentBid  decimal.Decimal  `json:"current_bid"`
	BidderCount int              `json:"bidder_count"`
	EndTime     time.Time        `json:"end_time"`
	Version     int64            `json:"version"`
	Status      string           `json:"status"`
	Labels      lifecycle.Labels `json:"labels"`
}

// auctionListEntry は一覧レスポンスの1エントリ。メタデータとスナップショットを併せ持つ。
type auctionListEntry struct {
	AuctionID   string           `json:"auction_id"`
	Title       string           `json:"title"`
	Category    string           `json:"category"`
	Condition   string           `json:"condition"`
	CurrentBid  decimal.Decimal  `json:"current_bid"`
	BidderCount int              `json:"bidder_count"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     time.Time        `json:"end_time"`
	Version     int64            `json:"version"`
	Status      string           `json:"status"`
	Labels      lifecycle.Labels `json:"labels"`
}

// GetSnapshot はオークションの現在スナップショットを取得する。
// GET /api/auctions/{id}
func (h *AuctionHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "id")

	snap, labels, err := h.service.GetSnapshot(r.Context(), auctionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshotResponse{
		AuctionID:   snap.AuctionID,
		CurrentBid:  snap.CurrentBid,
		BidderCount: snap.BidderCount,
		EndTime:     snap.EndTime,
		Version:     snap.Version,
		Status:      string(snap.Status),
		Labels:      *labels,
	})
}

// ListOpen は未終了オークションの一覧を取得する。
// GET /api/auctions
func (h *AuctionHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListOpen(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]auctionListEntry{"auctions": entries})
}
