// Package sweep はオークションの自然終了を確定するバックグラウンド処理を提供する。
//
// ライフサイクル状態は読み取りごとに導出されるため、終了時刻を過ぎた
// オークションは新しい入札がなくても即座にEndedとして扱われる。ただし
// 購読者に終了スナップショットを配信するには状態変更イベントが必要なため、
// スイープが終了確定コミット（versionインクリメント）を行い配信する。
package sweep

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/bidman/internal/broadcast"
	"github.com/hitoshi/bidman/internal/metrics"
	"github.com/hitoshi/bidman/internal/model"
	"github.com/hitoshi/bidman/internal/registry"
	"github.com/hitoshi/bidman/internal/repository"
)

// Sweeper は終了時刻を過ぎた未確定オークションを定期的に確定する。
type Sweeper struct {
	auctions  repository.AuctionRepository
	reg       *registry.Registry
	publisher broadcast.Publisher
	collector metrics.Collector
	logger    *slog.Logger
	batchSize int
	now       func() time.Time
}

// NewSweeper はSweeperを生成する。batchSizeが0以下の場合はデフォルト値100を使用する。
func NewSweeper(
	auctions repository.AuctionRepository,
	reg *registry.Registry,
	publisher broadcast.Publisher,
	collector metrics.Collector,
	logger *slog.Logger,
	batchSize int,
) *Sweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{
		auctions:  auctions,
		reg:       reg,
		publisher: publisher,
		collector: collector,
		logger:    logger,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Start は指定間隔のティッカーでスイープを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("lifecycle sweeper started",
		slog.Duration("interval", interval),
		slog.Int("batch_size", s.batchSize),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("sweep cycle failed",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("lifecycle sweeper stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("sweep cycle failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は終了時刻を過ぎた未確定オークションを1バッチ分確定する。
// コミット競合したオークションはスキップし、次のサイクルで再度対象になる。
func (s *Sweeper) RunOnce(ctx context.Context) error {
	now := s.now()

	expired, err := s.auctions.ListExpiredOpen(ctx, now, s.batchSize)
	if err != nil {
		return err
	}

	if len(expired) == 0 {
		return nil
	}

	s.logger.Info("sweep cycle started",
		slog.Int("expired_count", len(expired)),
	)

	finalized := 0
	for _, a := range expired {
		snap, err := s.reg.Commit(ctx, a.ID, a.Version, func(c *model.Auction) (*model.BidderIdentity, error) {
			c.Closed = true
			return nil, nil
		})
		if errors.Is(err, repository.ErrVersionConflict) {
			// 入札延長や管理者操作と競合した。確定が依然必要なら次サイクルで拾う
			continue
		}
		if err != nil {
			s.logger.Error("failed to finalize auction",
				slog.String("auction_id", a.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		s.publisher.Publish(snap)
		s.collector.RecordAuctionFinalized()
		finalized++
	}

	s.logger.Info("sweep cycle completed",
		slog.Int("finalized", finalized),
		slog.Int("skipped", len(expired)-finalized),
	)

	return nil
}
