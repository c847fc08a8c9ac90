// Package registry はオークション正本レコードへの唯一の書き込み経路を提供する。
//
// 全ての状態変更（入札・管理者終了・延長・スイープ確定）はCommitを経由し、
// versionカラムによる楽観ロックで直列化される。異なるオークション同士は
// 完全に独立しており、並行してコミットできる。
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/bidman/internal/lifecycle"
	"github.com/hitoshi/bidman/internal/model"
	"github.com/hitoshi/bidman/internal/repository"
)

// MutationFunc は正本レコードのコピーに対して変更を適用する。
// 入札者集合に新規追加すべきアイデンティティがあればそれを返す（なければnil）。
// エラーを返した場合、コミットは中断され正本は変更されない。
type MutationFunc func(a *model.Auction) (*model.BidderIdentity, error)

// Registry はオークションごとの直列化ポイント。
type Registry struct {
	auctions repository.AuctionRepository
	now      func() time.Time
}

// New はRegistryを生成する。
func New(auctions repository.AuctionRepository) *Registry {
	return &Registry{
		auctions: auctions,
		now:      time.Now,
	}
}

// Commit は読み取り時点のexpectedVersionを条件にミューテーションを適用する。
//
// 呼び出し側は現在のスナップショット（versionを含む）を読み、変更を計算した上で
// そのversionを添えて提出する。保存済みversionが変わっていた場合は
// repository.ErrVersionConflictを返し、正本は一切変更されない。
// 呼び出し側は最新状態を読み直してバリデーションからやり直すこと。
// 成功時はversionをインクリメントし、コミット後のスナップショットを返す。
func (r *Registry) Commit(ctx context.Context, auctionID string, expectedVersion int64, mutate MutationFunc) (*model.AuctionSnapshot, error) {
	a, err := r.auctions.FindByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, model.NewAuctionNotFoundError(auctionID)
	}

	// 読み取りから提出までの間に別のコミットが入った場合は
	// ストレージまで行かずに競合を返す
	if a.Version != expectedVersion {
		return nil, repository.ErrVersionConflict
	}

	candidate := a.Clone()
	newBidder, err := mutate(candidate)
	if err != nil {
		return nil, err
	}

	candidate.Version = expectedVersion + 1
	candidate.UpdatedAt = r.now()

	if err := r.auctions.UpdateCAS(ctx, candidate, expectedVersion, newBidder); err != nil {
		return nil, err
	}

	return lifecycle.Snapshot(r.now(), candidate), nil
}

// Read は現在のオークションと、現在時刻で状態を再計算したスナップショットを返す。
func (r *Registry) Read(ctx context.Context, auctionID string) (*model.Auction, *model.AuctionSnapshot, error) {
	a, err := r.auctions.FindByID(ctx, auctionID)
	if err != nil {
		return nil, nil, fmt.Errorf("オークションの読み取りに失敗しました: %w", err)
	}
	if a == nil {
		return nil, nil, model.NewAuctionNotFoundError(auctionID)
	}

	return a, lifecycle.Snapshot(r.now(), a), nil
}
