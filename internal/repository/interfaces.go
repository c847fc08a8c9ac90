// Package repository はデータアクセス層のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/bidman/internal/model"
)

// ErrVersionConflict は楽観ロックのバージョン不一致を表す。
// 呼び出し側は最新の状態を読み直してリトライできる。
var ErrVersionConflict = errors.New("auction version conflict")

// AuctionRepository はオークション正本レコードのデータアクセスインターフェース。
type AuctionRepository interface {
	// FindByID は指定IDのオークションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Auction, error)
	// Create はオークションを新規作成する。
	Create(ctx context.Context, a *model.Auction) error
	// UpdateCAS はexpectedVersionが一致する場合のみオークションを更新する。
	// newBidderがnilでない場合、同一トランザクション内で入札者集合にも追加する
	// （既存の場合は何もしない）。バージョン不一致時はErrVersionConflictを返す。
	UpdateCAS(ctx context.Context, a *model.Auction, expectedVersion int64, newBidder *model.BidderIdentity) error
	// HasBidder は指定アイデンティティが入札者集合に含まれるかを返す。
	HasBidder(ctx context.Context, auctionID, normalizedEmail string) (bool, error)
	// ListOpen は未終了のオークションを終了時刻昇順で取得する。
	ListOpen(ctx context.Context) ([]*model.Auction, error)
	// ListExpiredOpen は終了時刻を過ぎているのに未確定のオークションを取得する。
	// スイープワーカーが終了確定処理の対象を取得するために使用する。
	ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]*model.Auction, error)
}

// BidRepository は入札監査ログのデータアクセスインターフェース。
type BidRepository interface {
	// Append は入札ログエントリを追記する。受理・拒否を問わず全ての入札を記録する。
	Append(ctx context.Context, b *model.Bid) error
	// ListByAuction は指定オークションの入札ログを提出時刻降順で取得する。
	ListByAuction(ctx context.Context, auctionID string, limit int) ([]*model.Bid, error)
}
