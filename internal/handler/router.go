package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/bidman/internal/metrics"
	"github.com/hitoshi/bidman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	AdminToken        string

	// 入札
	BidService BidServiceInterface

	// オークション参照
	AuctionQuery AuctionQueryInterface

	// 管理者操作
	AdminService AdminServiceInterface

	// スナップショット配信
	StreamHandler *StreamHandler

	// メトリクス公開（nilの場合 /metrics は登録しない）
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORSMiddleware → SecurityHeaders → Recovery → Logging → RateLimit(General)
//
// 入札エンドポイントには入札専用レート制限を追加する。
// 管理者ルート（/api/admin/*）にはトークン認証を追加する。
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効くミドルウェアを最上位に適用
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	bidHandler := NewBidHandler(deps.BidService)
	auctionHandler := NewAuctionHandler(deps.AuctionQuery)
	adminHandler := NewAdminHandler(deps.AdminService)

	// --- レート制限の外のルート ---

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheusメトリクス
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- 一般APIルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/auctions", func(r chi.Router) {
			r.Get("/", auctionHandler.ListOpen)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", auctionHandler.GetSnapshot)

				// POST /api/auctions/{id}/bids - 入札提出（入札専用レート制限を追加）
				r.With(deps.RateLimiter.BidMiddleware()).Post("/bids", bidHandler.SubmitBid)

				// GET /api/auctions/{id}/stream - WebSocketスナップショット配信
				r.Get("/stream", deps.StreamHandler.Stream)
			})
		})

		// 管理者ルート（トークン認証を追加）
		r.Route("/api/admin/auctions", func(r chi.Router) {
			r.Use(middleware.NewAdminAuthMiddleware(deps.AdminToken))

			r.Post("/", adminHandler.CreateAuction)
			r.Post("/{id}/end", adminHandler.EndNow)
			r.Post("/{id}/extend", adminHandler.Extend)
			r.Get("/{id}/bids", adminHandler.BidLog)
		})
	})

	return r
}
