package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BidderIdentity は正規化済みの入札者アイデンティティを表す。
// NormalizedEmailが入札者数の重複排除キーとなる。
type BidderIdentity struct {
	NormalizedEmail string
	DisplayName     string
}

// BidOutcome は入札の結果を表す。
type BidOutcome string

const (
	// BidOutcomeAccepted は受理された入札。
	BidOutcomeAccepted BidOutcome = "accepted"
	// BidOutcomeRejected は拒否された入札。監査ログには記録されるが正本は変更しない。
	BidOutcomeRejected BidOutcome = "rejected"
)

// RejectReason は入札拒否の理由を表す。
type RejectReason string

const (
	// RejectReasonBidTooLow は最低入札額未満による拒否。
	RejectReasonBidTooLow RejectReason = "bid_too_low"
	// RejectReasonBidTooHigh は上限係数超過による拒否。
	RejectReasonBidTooHigh RejectReason = "bid_too_high"
	// RejectReasonAuctionEnded は終了済みオークションへの入札による拒否。再試行不可。
	RejectReasonAuctionEnded RejectReason = "auction_ended"
	// RejectReasonTransientConflict はコミット競合のリトライ上限到達による拒否。再試行可能。
	RejectReasonTransientConflict RejectReason = "transient_conflict"
)

// Bid は入札の監査ログエントリを表す。追記専用で、拒否された入札も記録される。
type Bid struct {
	ID              string
	AuctionID       string
	NormalizedEmail string
	DisplayName     string
	Amount          decimal.Decimal
	Outcome         BidOutcome
	RejectReason    RejectReason
	SubmittedAt     time.Time
}

// BidResult は入札の処理結果を表す。
// 拒否された入札でも呼び出し側が即座に再提出できるよう、常に現在の最低入札額を含む。
type BidResult struct {
	Accepted       bool
	CurrentBid     decimal.Decimal
	MinimumNextBid decimal.Decimal
	EndTime        time.Time
	RejectReason   RejectReason
}
