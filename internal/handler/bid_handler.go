// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/bidman/internal/model"
)

// BidServiceInterface は入札ハンドラーが必要とするサービスインターフェース。
type BidServiceInterface interface {
	// SubmitBid は入札をバリデーションし、コミットを試みる。
	SubmitBid(ctx context.Context, auctionID, email, name string, amount decimal.Decimal) (*model.BidResult, error)
}

// BidHandler は入札提出のHTTPハンドラー。
type BidHandler struct {
	service BidServiceInterface
}

// NewBidHandler はBidHandlerを生成する。
func NewBidHandler(service BidServiceInterface) *BidHandler {
	return &BidHandler{service: service}
}

// submitBidRequest は入札提出リクエストのボディ。
// amountはJSON数値・文字列のどちらでも受け付ける。
type submitBidRequest struct {
	Email  string          `json:"email"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// bidResultResponse は入札結果のAPIレスポンス。
// 拒否された場合も、即座に再提出できるよう現在の最低入札額を含む。
type bidResultResponse struct {
	Accepted       bool            `json:"accepted"`
	CurrentBid     decimal.Decimal `json:"current_bid"`
	MinimumNextBid decimal.Decimal `json:"minimum_next_bid"`
	EndTime        time.Time       `json:"end_time"`
	RejectReason   string          `json:"reject_reason,omitempty"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// SubmitBid は入札提出を処理する。
// POST /api/auctions/{id}/bids
func (h *BidHandler) SubmitBid(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "id")

	var req submitBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	result, err := h.service.SubmitBid(r.Context(), auctionID, req.Email, req.Name, req.Amount)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(bidResultStatus(result))
	json.NewEncoder(w).Encode(toBidResultResponse(result))
}

// bidResultStatus は入札結果をHTTPステータスコードにマッピングする。
func bidResultStatus(result *model.BidResult) int {
	if result.Accepted {
		return http.StatusOK
	}

	switch result.RejectReason {
	case model.RejectReasonAuctionEnded:
		// 終了済みは再試行不可の終端的な拒否
		return http.StatusGone
	case model.RejectReasonTransientConflict:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

// toBidResultResponse はmodel.BidResultからAPIレスポンスに変換する。
func toBidResultResponse(result *model.BidResult) bidResultResponse {
	return bidResultResponse{
		Accepted:       result.Accepted,
		CurrentBid:     result.CurrentBid,
		MinimumNextBid: result.MinimumNextBid,
		EndTime:        result.EndTime,
		RejectReason:   string(result.RejectReason),
	}
}

// --- ヘルパー関数 ---

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeAuctionNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidEmail, model.ErrCodeInvalidName,
		model.ErrCodeInvalidBidAmount, model.ErrCodeInvalidExtension,
		model.ErrCodeInvalidAuction:
		return http.StatusBadRequest
	case model.ErrCodeTransientConflict:
		return http.StatusConflict
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
