package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/bidman/internal/admin"
	"github.com/hitoshi/bidman/internal/model"
)

// AdminServiceInterface は管理者ハンドラーが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	// CreateAuction はオークションを新規作成する。
	CreateAuction(ctx context.Context, input admin.CreateAuctionInput) (*model.Auction, error)
	// EndNow はオークションを即時終了する。冪等。
	EndNow(ctx context.Context, auctionID string) (*model.AuctionSnapshot, error)
	// Extend はオークションの終了時刻を延長する。
	Extend(ctx context.Context, auctionID string, additionalMinutes int) (*model.AuctionSnapshot, error)
	// BidLog は入札監査ログを提出時刻降順で取得する。
	BidLog(ctx context.Context, auctionID string, limit int) ([]*model.Bid, error)
}

// AdminHandler は管理者操作のHTTPハンドラー。
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

// createAuctionRequest はオークション新規作成リクエストのボディ。
type createAuctionRequest struct {
	Title        string          `json:"title"`
	Category     string          `json:"category"`
	Condition    string          `json:"condition"`
	StartingBid  decimal.Decimal `json:"starting_bid"`
	BidIncrement decimal.Decimal `json:"bid_increment"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time"`
}

// createAuctionResponse はオークション新規作成のAPIレスポンス。
type createAuctionResponse struct {
	AuctionID  string          `json:"auction_id"`
	Title      string          `json:"title"`
	CurrentBid decimal.Decimal `json:"current_bid"`
	StartTime  time.Time       `json:"start_time"`
	EndTime    time.Time       `json:"end_time"`
	Version    int64           `json:"version"`
}

// extendRequest は終了時刻延長リクエストのボディ。
type extendRequest struct {
	AdditionalMinutes int `json:"additional_minutes"`
}

// bidLogEntry は入札監査ログ1件のAPIレスポンス。
type bidLogEntry struct {
	BidID        string          `json:"bid_id"`
	Email        string          `json:"email"`
	DisplayName  string          `json:"display_name"`
	Amount       decimal.Decimal `json:"amount"`
	Outcome      string          `json:"outcome"`
	RejectReason string          `json:"reject_reason,omitempty"`
	SubmittedAt  time.Time       `json:"submitted_at"`
}

// CreateAuction はオークションを新規作成する。
// POST /api/admin/auctions
func (h *AdminHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	auction, err := h.service.CreateAuction(r.Context(), admin.CreateAuctionInput{
		Title:        req.Title,
		Category:     req.Category,
		Condition:    req.Condition,
		StartingBid:  req.StartingBid,
		BidIncrement: req.BidIncrement,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(createAuctionResponse{
		AuctionID:  auction.ID,
		Title:      auction.Title,
		CurrentBid: auction.CurrentBid,
		StartTime:  auction.StartTime,
		EndTime:    auction.EndTime,
		Version:    auction.Version,
	})
}

// EndNow はオークションを即時終了する。
// POST /api/admin/auctions/{id}/end
func (h *AdminHandler) EndNow(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "id")

	snap, err := h.service.EndNow(r.Context(), auctionID)
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
	})
}

// BidLog は入札監査ログを提出時刻降順で返す。拒否された入札も含む。
// GET /api/admin/auctions/{id}/bids?limit=N
func (h *AdminHandler) BidLog(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_REQUEST",
				Message:  "limitは正の整数である必要があります。",
				Category: "validation",
				Action:   "limitパラメータを正の整数で指定してください。",
			})
			return
		}
		limit = parsed
	}

	bids, err := h.service.BidLog(r.Context(), auctionID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	entries := make([]bidLogEntry, 0, len(bids))
	for _, b := range bids {
		entries = append(entries, bidLogEntry{
			BidID:        b.ID,
			Email:        b.NormalizedEmail,
			DisplayName:  b.DisplayName,
			Amount:       b.Amount,
			Outcome:      string(b.Outcome),
			RejectReason: string(b.RejectReason),
			SubmittedAt:  b.SubmittedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"bids": entries})
}

// Extend はオークションの終了時刻を延長する。
// POST /api/admin/auctions/{id}/extend
func (h *AdminHandler) Extend(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "id")

	var req extendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	snap, err := h.service.Extend(r.Context(), auctionID, req.AdditionalMinutes)
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
	})
}
