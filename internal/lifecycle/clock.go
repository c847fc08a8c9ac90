// Package lifecycle はオークションのライフサイクル状態と表示用ラベルの導出を提供する。
// いずれも現在時刻とオークションメタデータからの純粋な導出であり、状態を持たない。
package lifecycle

import (
	"time"

	"github.com/hitoshi/bidman/internal/model"
)

const (
	// criticalWindow はCritical判定の残り時間しきい値。
	criticalWindow = time.Hour
	// endingSoonWindow はEndingSoon判定の残り時間しきい値。
	endingSoonWindow = 24 * time.Hour
)

// Classify は現在時刻とオークションからライフサイクル状態を導出する。
// AdminEnded/Closedフラグは正本として優先され、一度終了したオークションが
// 延長等で復活することはない。それ以外の状態はキャッシュせず読み取りごとに再計算する。
func Classify(now time.Time, a *model.Auction) model.Status {
	if a.AdminEnded || a.Closed {
		return model.StatusEnded
	}
	if !now.Before(a.EndTime) {
		return model.StatusEnded
	}
	if now.Before(a.StartTime) {
		return model.StatusScheduled
	}

	remaining := a.EndTime.Sub(now)
	if remaining <= criticalWindow {
		return model.StatusCritical
	}
	if remaining <= endingSoonWindow {
		return model.StatusEndingSoon
	}
	return model.StatusActive
}

// Snapshot は現在時刻で状態を再計算したスナップショットを構築する。
func Snapshot(now time.Time, a *model.Auction) *model.AuctionSnapshot {
	return &model.AuctionSnapshot{
		AuctionID:   a.ID,
		CurrentBid:  a.CurrentBid,
		BidderCount: a.BidderCount,
		EndTime:     a.EndTime,
		Version:     a.Version,
		Status:      Classify(now, a),
	}
}
