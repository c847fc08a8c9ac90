package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, auction, concurrency, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuctionNotFound   = "AUCTION_NOT_FOUND"
	ErrCodeInvalidEmail      = "INVALID_EMAIL"
	ErrCodeInvalidName       = "INVALID_DISPLAY_NAME"
	ErrCodeInvalidBidAmount  = "INVALID_BID_AMOUNT"
	ErrCodeInvalidExtension  = "INVALID_EXTENSION"
	ErrCodeInvalidAuction    = "INVALID_AUCTION"
	ErrCodeTransientConflict = "TRANSIENT_CONFLICT"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
)

// NewAuctionNotFoundError はオークション未検出エラーを生成する。
func NewAuctionNotFoundError(auctionID string) *APIError {
	return &APIError{
		Code:     ErrCodeAuctionNotFound,
		Message:  fmt.Sprintf("指定されたオークションが見つかりません: %s", auctionID),
		Category: "auction",
		Action:   "オークションIDを確認してください。",
	}
}

// NewInvalidEmailError は無効なメールアドレスエラーを生成する。
func NewInvalidEmailError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  fmt.Sprintf("無効なメールアドレスです: %s", reason),
		Category: "validation",
		Action:   "正しい形式のメールアドレスを入力してください。",
	}
}

// NewInvalidNameError は無効な表示名エラーを生成する。
func NewInvalidNameError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidName,
		Message:  fmt.Sprintf("無効な表示名です: %s", reason),
		Category: "validation",
		Action:   "1文字以上の表示名を入力してください。",
	}
}

// NewInvalidBidAmountError は無効な入札額エラーを生成する。
func NewInvalidBidAmountError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidBidAmount,
		Message:  fmt.Sprintf("無効な入札額です: %s", reason),
		Category: "validation",
		Action:   "0より大きい金額を指定してください。",
	}
}

// NewInvalidExtensionError は無効な延長リクエストエラーを生成する。
func NewInvalidExtensionError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidExtension,
		Message:  fmt.Sprintf("オークションを延長できません: %s", reason),
		Category: "validation",
		Action:   "延長時間と対象オークションの状態を確認してください。",
	}
}

// NewInvalidAuctionError は無効なオークション定義エラーを生成する。
func NewInvalidAuctionError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAuction,
		Message:  fmt.Sprintf("無効なオークション定義です: %s", reason),
		Category: "validation",
		Action:   "開始価格・入札単位・終了時刻を確認してください。",
	}
}

// NewTransientConflictError はコミット競合のリトライ上限到達エラーを生成する。
func NewTransientConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeTransientConflict,
		Message:  "他の操作と競合したため処理を完了できませんでした。",
		Category: "concurrency",
		Action:   "最新の状態を確認のうえ、再度お試しください。",
	}
}
