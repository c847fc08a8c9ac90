package handler

import (
	"context"
	"time"

	"github.com/hitoshi/bidman/internal/lifecycle"
	"github.com/hitoshi/bidman/internal/model"
	"github.com/hitoshi/bidman/internal/registry"
	"github.com/hitoshi/bidman/internal/repository"
)

// AuctionQueryAdapter はregistryとリポジトリをAuctionQueryInterfaceに適合させるアダプタ。
type AuctionQueryAdapter struct {
	reg          *registry.Registry
	auctions     repository.AuctionRepository
	hotThreshold int
	now          func() time.Time
}

// NewAuctionQueryAdapter はAuctionQueryAdapterを生成する。
func NewAuctionQueryAdapter(reg *registry.Registry, auctions repository.AuctionRepository, hotThreshold int) *AuctionQueryAdapter {
	return &AuctionQueryAdapter{
		reg:          reg,
		auctions:     auctions,
		hotThreshold: hotThreshold,
		now:          time.Now,
	}
}

// GetSnapshot はオークションの現在スナップショットと分析ラベルを返す。
func (a *AuctionQueryAdapter) GetSnapshot(ctx context.Context, auctionID string) (*model.AuctionSnapshot, *lifecycle.Labels, error) {
	auction, snap, err := a.reg.Read(ctx, auctionID)
	if err != nil {
		return nil, nil, err
	}

	labels := lifecycle.DeriveLabels(snap, auction, a.hotThreshold)
	return snap, &labels, nil
}

// ListOpen は未終了オークションのスナップショット一覧を返す。
func (a *AuctionQueryAdapter) ListOpen(ctx context.Context) ([]auctionListEntry, error) {
	auctions, err := a.auctions.ListOpen(ctx)
	if err != nil {
		return nil, err
	}

	now := a.now()
	entries := make([]auctionListEntry, 0, len(auctions))
	for _, auction := range auctions {
		snap := lifecycle.Snapshot(now, auction)
		labels := lifecycle.DeriveLabels(snap, auction, a.hotThreshold)
		entries = append(entries, auctionListEntry{
			AuctionID:   auction.ID,
			Title:       auction.Title,
			Category:    auction.Category,
			Condition:   auction.Condition,
			CurrentBid:  snap.CurrentBid,
			BidderCount: snap.BidderCount,
			StartTime:   auction.StartTime,
			EndTime:     snap.EndTime,
			Version:     snap.Version,
			Status:      string(snap.Status),
			Labels:      labels,
		})
	}
	return entries, nil
}
