package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionSnapshot はコミット後に購読者へ配信される不変のスナップショット。
// Versionは状態変更ごとに単調増加し、購読側はVersionが増加していない
// スナップショットを破棄することで冪等に消費できる。
type AuctionSnapshot struct {
	AuctionID   string          `json:"auction_id"`
	CurrentBid  decimal.Decimal `json:"current_bid"`
	BidderCount int             `json:"bidder_count"`
	EndTime     time.Time       `json:"end_time"`
	Version     int64           `json:"version"`
	Status      Status          `json:"status"`
}
