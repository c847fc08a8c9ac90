// Package admin は管理者向けのオークション操作を提供する。
//
// 即時終了・延長は入札と同じregistry.Commitを経由するため、並行する入札との
// 競合もversionによる楽観ロックで保護される。
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/bidman/internal/broadcast"
	"github.com/hitoshi/bidman/internal/lifecycle"
	"github.com/hitoshi/bidman/internal/metrics"
	"github.com/hitoshi/bidman/internal/model"
	"github.com/hitoshi/bidman/internal/registry"
	"github.com/hitoshi/bidman/internal/repository"
)

// maxCommitRetries は管理者操作のコミット競合リトライ上限。
const maxCommitRetries = 5

// defaultBidLogLimit は入札ログ取得のデフォルト件数。
const defaultBidLogLimit = 100

// CreateAuctionInput はオークション新規作成の入力。
type CreateAuctionInput struct {
	Title        string
	Category     string
	Condition    string
	StartingBid  decimal.Decimal
	BidIncrement decimal.Decimal
	StartTime    time.Time
	EndTime      time.Time
}

// Service は管理者操作のサービス。
type Service struct {
	auctions  repository.AuctionRepository
	bids      repository.BidRepository
	reg       *registry.Registry
	publisher broadcast.Publisher
	collector metrics.Collector
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	auctions repository.AuctionRepository,
	bids repository.BidRepository,
	reg *registry.Registry,
	publisher broadcast.Publisher,
	collector metrics.Collector,
	logger *slog.Logger,
) *Service {
	return &Service{
		auctions:  auctions,
		bids:      bids,
		reg:       reg,
		publisher: publisher,
		collector: collector,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateAuction はオークションを新規作成する。
// 開始時刻が未指定（ゼロ値）の場合は即時開始として扱う。
func (s *Service) CreateAuction(ctx context.Context, input CreateAuctionInput) (*model.Auction, error) {
	if input.Title == "" {
		return nil, model.NewInvalidAuctionError("タイトルが空です")
	}
	if !input.StartingBid.IsPositive() {
		return nil, model.NewInvalidAuctionError("開始価格は正の数である必要があります")
	}
	if !input.BidIncrement.IsPositive() {
		return nil, model.NewInvalidAuctionError("入札単位は正の数である必要があります")
	}

	now := s.now()
	startTime := input.StartTime
	if startTime.IsZero() {
		startTime = now
	}
	if !input.EndTime.After(startTime) {
		return nil, model.NewInvalidAuctionError("終了時刻は開始時刻より後である必要があります")
	}

	a := &model.Auction{
		ID:           uuid.New().String(),
		Title:        input.Title,
		Category:     input.Category,
		Condition:    input.Condition,
		StartingBid:  input.StartingBid,
		CurrentBid:   input.StartingBid,
		BidIncrement: input.BidIncrement,
		StartTime:    startTime,
		EndTime:      input.EndTime,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.auctions.Create(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info("auction created",
		slog.String("auction_id", a.ID),
		slog.String("title", a.Title),
		slog.Time("end_time", a.EndTime),
	)

	return a, nil
}

// EndNow はオークションを即時終了する。
// 冪等であり、すでに終了しているオークションへの呼び出しは何もせず成功する。
// この呼び出し以降、endTimeが未来であっても全ての入札は拒否される。
func (s *Service) EndNow(ctx context.Context, auctionID string) (*model.AuctionSnapshot, error) {
	for attempt := 0; attempt < maxCommitRetries; attempt++ {
		a, err := s.auctions.FindByID(ctx, auctionID)
		if err != nil {
			return nil, fmt.Errorf("オークションの読み取りに失敗しました: %w", err)
		}
		if a == nil {
			return nil, model.NewAuctionNotFoundError(auctionID)
		}

		// すでに終了確定済みなら何もしない
		if a.AdminEnded || a.Closed {
			return lifecycle.Snapshot(s.now(), a), nil
		}

		snap, err := s.reg.Commit(ctx, auctionID, a.Version, func(c *model.Auction) (*model.BidderIdentity, error) {
			c.AdminEnded = true
			c.Closed = true
			return nil, nil
		})
		if errors.Is(err, repository.ErrVersionConflict) {
			s.collector.RecordCommitConflict()
			continue
		}
		if err != nil {
			return nil, err
		}

		s.publisher.Publish(snap)
		s.logger.Info("auction ended by admin",
			slog.String("auction_id", auctionID),
			slog.Int64("version", snap.Version),
		)

		return snap, nil
	}

	return nil, model.NewTransientConflictError()
}

// BidLog は指定オークションの入札監査ログを提出時刻降順で取得する。
// 拒否された入札も含む。limitが0以下の場合はデフォルト件数を使用する。
func (s *Service) BidLog(ctx context.Context, auctionID string, limit int) ([]*model.Bid, error) {
	if limit <= 0 {
		limit = defaultBidLogLimit
	}

	a, err := s.auctions.FindByID(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("オークションの読み取りに失敗しました: %w", err)
	}
	if a == nil {
		return nil, model.NewAuctionNotFoundError(auctionID)
	}

	return s.bids.ListByAuction(ctx, auctionID, limit)
}

// Extend はオークションの終了時刻を指定分数だけ延長する。
// additionalMinutesは正の値である必要があり、終了済みオークションは延長できない。
// 管理者延長は自動延長と異なり回数に上限がない。
func (s *Service) Extend(ctx context.Context, auctionID string, additionalMinutes int) (*model.AuctionSnapshot, error) {
	if additionalMinutes <= 0 {
		return nil, model.NewInvalidExtensionError("延長時間は正の値である必要があります")
	}

	for attempt := 0; attempt < maxCommitRetries; attempt++ {
		a, err := s.auctions.FindByID(ctx, auctionID)
		if err != nil {
			return nil, fmt.Errorf("オークションの読み取りに失敗しました: %w", err)
		}
		if a == nil {
			return nil, model.NewAuctionNotFoundError(auctionID)
		}

		if lifecycle.Classify(s.now(), a) == model.StatusEnded {
			return nil, model.NewInvalidExtensionError("終了済みのオークションです")
		}

		snap, err := s.reg.Commit(ctx, auctionID, a.Version, func(c *model.Auction) (*model.BidderIdentity, error) {
			c.EndTime = c.EndTime.Add(time.Duration(additionalMinutes) * time.Minute)
			c.ExtensionsUsed++
			return nil, nil
		})
		if errors.Is(err, repository.ErrVersionConflict) {
			s.collector.RecordCommitConflict()
			continue
		}
		if err != nil {
			return nil, err
		}

		s.publisher.Publish(snap)
		s.logger.Info("auction extended by admin",
			slog.String("auction_id", auctionID),
			slog.Int("additional_minutes", additionalMinutes),
			slog.Time("end_time", snap.EndTime),
		)

		return snap, nil
	}

	return nil, model.NewTransientConflictError()
}
