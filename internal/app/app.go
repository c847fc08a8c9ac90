// Package app はアプリケーションの起動とコンポーネントのワイヤリングを担う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/bidman/internal/admin"
	"github.com/hitoshi/bidman/internal/arbiter"
	"github.com/hitoshi/bidman/internal/broadcast"
	"github.com/hitoshi/bidman/internal/config"
	"github.com/hitoshi/bidman/internal/database"
	"github.com/hitoshi/bidman/internal/handler"
	"github.com/hitoshi/bidman/internal/identity"
	"github.com/hitoshi/bidman/internal/logger"
	"github.com/hitoshi/bidman/internal/metrics"
	"github.com/hitoshi/bidman/internal/middleware"
	"github.com/hitoshi/bidman/internal/registry"
	"github.com/hitoshi/bidman/internal/repository"
	"github.com/hitoshi/bidman/internal/worker/sweep"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	auctionRepo := repository.NewPostgresAuctionRepo(db)
	bidRepo := repository.NewPostgresBidRepo(db)

	// 3. メトリクスの初期化
	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	// 4. スナップショット配信の初期化
	// Redisが設定されている場合はプロセス間ファンアウトを有効にする
	hub := broadcast.NewHub(slog.Default(), collector)

	var publisher broadcast.Publisher = hub
	var relay *broadcast.RedisRelay
	if cfg.RedisAddr != "" {
		client, err := broadcast.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer client.Close()

		publisher = broadcast.NewFanout(hub, broadcast.NewRedisPublisher(client, slog.Default()))
		relay = broadcast.NewRedisRelay(client, hub, slog.Default())

		slog.Info("redis snapshot fanout enabled", slog.String("addr", cfg.RedisAddr))
	}

	// 5. ドメインサービスの初期化
	reg := registry.New(auctionRepo)
	resolver := identity.NewResolver()

	bidService := arbiter.New(
		auctionRepo, bidRepo, reg, resolver, publisher, collector, slog.Default(),
		arbiter.Config{
			CeilingFactor:     cfg.BidCeilingFactor,
			MaxRetries:        cfg.CommitMaxRetries,
			AntiSnipeWindow:   cfg.AntiSnipeWindow,
			AntiSnipeDelta:    cfg.AntiSnipeDelta,
			MaxAutoExtensions: cfg.MaxAutoExtensions,
		},
	)
	adminService := admin.NewService(auctionRepo, bidRepo, reg, publisher, collector, slog.Default())

	// 6. ハンドラーアダプタの構築
	queryAdapter := handler.NewAuctionQueryAdapter(reg, auctionRepo, cfg.HotBidderThreshold)
	streamHandler := handler.NewStreamHandler(hub, queryAdapter, slog.Default(), cfg.CORSAllowedOrigin)

	// 7. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// configのレートはreq/min単位なのでreq/secに変換する
	if cfg.RateLimitGeneral > 0 {
		rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitBid > 0 {
		rateLimiterCfg.BidRate = rate.Limit(float64(cfg.RateLimitBid) / 60.0)
		rateLimiterCfg.BidBurst = cfg.RateLimitBid
	}

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       middleware.NewRateLimiter(rateLimiterCfg),
		AdminToken:        cfg.AdminToken,

		BidService:   bidService,
		AuctionQuery: queryAdapter,
		AdminService: adminService,

		StreamHandler: streamHandler,

		MetricsGatherer: promRegistry,
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Redisリレーをバックグラウンドで起動
	if relay != nil {
		go func() {
			if err := relay.Run(ctx); err != nil {
				slog.Error("redis relay stopped", slog.String("error", err.Error()))
			}
		}()
	}

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、終了時刻を過ぎたオークションを確定するスイーパーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリとメトリクスの初期化
	auctionRepo := repository.NewPostgresAuctionRepo(db)
	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	// 3. スナップショット配信の初期化
	// ワーカーには購読者がいないため、Redisがなければ配信はHub内で消える
	hub := broadcast.NewHub(slog.Default(), collector)

	var publisher broadcast.Publisher = hub
	if cfg.RedisAddr != "" {
		client, err := broadcast.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer client.Close()

		publisher = broadcast.NewFanout(hub, broadcast.NewRedisPublisher(client, slog.Default()))

		slog.Info("redis snapshot fanout enabled (worker)", slog.String("addr", cfg.RedisAddr))
	}

	// 4. スイーパーの初期化
	reg := registry.New(auctionRepo)
	sweeper := sweep.NewSweeper(
		auctionRepo, reg, publisher, collector, slog.Default(), cfg.SweepBatchSize,
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.SweepInterval),
		slog.Int("batch_size", cfg.SweepBatchSize),
	)

	// スイーパーをメインgoroutineで実行（ブロッキング）
	sweeper.Start(ctx, cfg.SweepInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
