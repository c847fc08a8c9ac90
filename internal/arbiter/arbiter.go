// Package arbiter は入札のバリデーションとコミットを提供する。
//
// 入札はregistry.Commitの楽観ロックで直列化され、競合した場合は最新の
// 状態を読み直してバリデーションからやり直す。これにより、並行した入札が
// いくつ競合しても、最終的なcurrent_bidは受理された入札の最大額と一致する。
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/bidman/internal/broadcast"
	"github.com/hitoshi/bidman/internal/identity"
	"github.com/hitoshi/bidman/internal/lifecycle"
	"github.com/hitoshi/bidman/internal/metrics"
	"github.com/hitoshi/bidman/internal/model"
	"github.com/hitoshi/bidman/internal/registry"
	"github.com/hitoshi/bidman/internal/repository"
)

// retryBaseDelay はコミット競合リトライの基準遅延。試行回数に比例して伸び、
// さらに同量までのジッタが加わる。
const retryBaseDelay = 10 * time.Millisecond

// Config は入札処理の調整パラメータを保持する。
type Config struct {
	// CeilingFactor は現在価格に対する入札上限の倍率。0以下で上限チェック無効。
	CeilingFactor int64
	// MaxRetries はコミット競合時の最大試行回数。
	MaxRetries int
	// AntiSnipeWindow は終了間際の自動延長が発動する残り時間。
	AntiSnipeWindow time.Duration
	// AntiSnipeDelta は自動延長1回あたりの延長時間。
	AntiSnipeDelta time.Duration
	// MaxAutoExtensions は自動延長の上限回数。管理者延長はこの上限に縛られない。
	MaxAutoExtensions int
}

// DefaultConfig はデフォルトの入札設定を返す。
func DefaultConfig() Config {
	return Config{
		CeilingFactor:     10,
		MaxRetries:        5,
		AntiSnipeWindow:   2 * time.Minute,
		AntiSnipeDelta:    5 * time.Minute,
		MaxAutoExtensions: 3,
	}
}

// Arbiter は入札のバリデーションとコミットを行う。
type Arbiter struct {
	auctions  repository.AuctionRepository
	bids      repository.BidRepository
	reg       *registry.Registry
	resolver  *identity.Resolver
	publisher broadcast.Publisher
	collector metrics.Collector
	logger    *slog.Logger
	config    Config
	now       func() time.Time
}

// New はArbiterを生成する。
func New(
	auctions repository.AuctionRepository,
	bids repository.BidRepository,
	reg *registry.Registry,
	resolver *identity.Resolver,
	publisher broadcast.Publisher,
	collector metrics.Collector,
	logger *slog.Logger,
	config Config,
) *Arbiter {
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultConfig().MaxRetries
	}
	return &Arbiter{
		auctions:  auctions,
		bids:      bids,
		reg:       reg,
		resolver:  resolver,
		publisher: publisher,
		collector: collector,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// SubmitBid は入札をバリデーションし、新しい現在価格としてコミットを試みる。
//
// 入札の拒否（最低額未満・上限超過・終了済み・競合リトライ上限）は
// エラーではなくBidResultとして返し、監査ログに記録する。エラーを返すのは
// 入力不正（バリデーション）・オークション未検出・ストレージ障害の場合のみ。
// 拒否結果には常に現在の最低入札額を含めるため、呼び出し側は即座に
// 有効な金額で再提出できる。
func (s *Arbiter) SubmitBid(ctx context.Context, auctionID, email, name string, amount decimal.Decimal) (*model.BidResult, error) {
	if !amount.IsPositive() {
		return nil, model.NewInvalidBidAmountError(amount.String())
	}

	ident, err := s.resolver.Resolve(email, name)
	if err != nil {
		return nil, err
	}

	var last *model.Auction

	for attempt := 0; attempt < s.config.MaxRetries; attempt++ {
		a, err := s.auctions.FindByID(ctx, auctionID)
		if err != nil {
			return nil, fmt.Errorf("入札対象オークションの読み取りに失敗しました: %w", err)
		}
		if a == nil {
			return nil, model.NewAuctionNotFoundError(auctionID)
		}
		last = a

		now := s.now()

		// 終了済みオークションへの入札は恒久的に拒否
		if lifecycle.Classify(now, a) == model.StatusEnded {
			return s.reject(ctx, a, ident, amount, model.RejectReasonAuctionEnded), nil
		}

		minimum := a.MinimumNextBid()
		if amount.LessThan(minimum) {
			return s.reject(ctx, a, ident, amount, model.RejectReasonBidTooLow), nil
		}

		if s.config.CeilingFactor > 0 {
			ceiling := a.CurrentBid.Mul(decimal.NewFromInt(s.config.CeilingFactor))
			if amount.GreaterThan(ceiling) {
				return s.reject(ctx, a, ident, amount, model.RejectReasonBidTooHigh), nil
			}
		}

		// 入札者集合の有無はコミット対象のversionと同じ読み取りに基づくため、
		// 競合時はリトライで読み直される。二重カウントはCASが防ぐ。
		has, err := s.auctions.HasBidder(ctx, a.ID, ident.NormalizedEmail)
		if err != nil {
			return nil, fmt.Errorf("入札者集合の確認に失敗しました: %w", err)
		}

		start := time.Now()
		snap, err := s.reg.Commit(ctx, a.ID, a.Version, func(c *model.Auction) (*model.BidderIdentity, error) {
			c.CurrentBid = amount

			var newBidder *model.BidderIdentity
			if !has {
				c.BidderCount++
				newBidder = ident
			}

			// 終了間際の有効入札はスナイプ対策として終了時刻を延長する
			if c.EndTime.Sub(now) <= s.config.AntiSnipeWindow && c.ExtensionsUsed < s.config.MaxAutoExtensions {
				c.EndTime = c.EndTime.Add(s.config.AntiSnipeDelta)
				c.ExtensionsUsed++
			}

			return newBidder, nil
		})
		s.collector.RecordCommitLatency(time.Since(start))

		if errors.Is(err, repository.ErrVersionConflict) {
			s.collector.RecordCommitConflict()
			s.logger.Info("bid commit conflicted, retrying",
				slog.String("auction_id", auctionID),
				slog.Int("attempt", attempt+1),
			)
			if !sleepWithJitter(ctx, attempt) {
				break
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		s.appendLog(ctx, a.ID, ident, amount, model.BidOutcomeAccepted, "")
		s.publisher.Publish(snap)
		s.collector.RecordBidAccepted()

		s.logger.Info("bid accepted",
			slog.String("auction_id", a.ID),
			slog.String("bidder", ident.NormalizedEmail),
			slog.String("amount", amount.String()),
			slog.Int64("version", snap.Version),
		)

		return &model.BidResult{
			Accepted:       true,
			CurrentBid:     snap.CurrentBid,
			MinimumNextBid: snap.CurrentBid.Add(a.BidIncrement),
			EndTime:        snap.EndTime,
		}, nil
	}

	// リトライ上限到達。呼び出し側が安全に再試行できる一時的な拒否として返す
	return s.reject(ctx, last, ident, amount, model.RejectReasonTransientConflict), nil
}

// reject は拒否された入札を監査ログに記録し、拒否結果を構築する。
func (s *Arbiter) reject(ctx context.Context, a *model.Auction, ident *model.BidderIdentity, amount decimal.Decimal, reason model.RejectReason) *model.BidResult {
	s.appendLog(ctx, a.ID, ident, amount, model.BidOutcomeRejected, reason)
	s.collector.RecordBidRejected(string(reason))

	s.logger.Info("bid rejected",
		slog.String("auction_id", a.ID),
		slog.String("bidder", ident.NormalizedEmail),
		slog.String("amount", amount.String()),
		slog.String("reason", string(reason)),
	)

	return &model.BidResult{
		Accepted:       false,
		CurrentBid:     a.CurrentBid,
		MinimumNextBid: a.MinimumNextBid(),
		EndTime:        a.EndTime,
		RejectReason:   reason,
	}
}

// appendLog は入札監査ログを追記する。ログの追記失敗が入札の結果を
// 変えることはなく、エラーログに記録するのみとする。
func (s *Arbiter) appendLog(ctx context.Context, auctionID string, ident *model.BidderIdentity, amount decimal.Decimal, outcome model.BidOutcome, reason model.RejectReason) {
	bid := &model.Bid{
		ID:              uuid.New().String(),
		AuctionID:       auctionID,
		NormalizedEmail: ident.NormalizedEmail,
		DisplayName:     ident.DisplayName,
		Amount:          amount,
		Outcome:         outcome,
		RejectReason:    reason,
		SubmittedAt:     s.now(),
	}

	if err := s.bids.Append(ctx, bid); err != nil {
		s.logger.Error("failed to append bid log",
			slog.String("auction_id", auctionID),
			slog.String("outcome", string(outcome)),
			slog.String("error", err.Error()),
		)
	}
}

// sleepWithJitter は試行回数に応じたジッタ付き遅延を入れる。
// コンテキストがキャンセルされた場合はfalseを返す。
func sleepWithJitter(ctx context.Context, attempt int) bool {
	delay := retryBaseDelay * time.Duration(attempt+1)
	delay += time.Duration(rand.Int63n(int64(retryBaseDelay)))

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
