package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Admin
	AdminToken string

	// Broadcast
	// RedisAddr が空の場合はプロセス内ハブのみで配信する（単一ノード構成）。
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Bidding
	BidCeilingFactor  int64
	CommitMaxRetries  int
	AntiSnipeWindow   time.Duration
	AntiSnipeDelta    time.Duration
	MaxAutoExtensions int

	// Analytics
	HotBidderThreshold int

	// Sweep
	SweepInterval  time.Duration
	SweepBatchSize int

	// Rate Limit（req/min単位）
	RateLimitGeneral int
	RateLimitBid     int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")
	if cfg.AdminToken == "" {
		missing = append(missing, "ADMIN_TOKEN")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "")
	cfg.RedisPassword = getEnvString("REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)
	cfg.BidCeilingFactor = getEnvInt64("BID_CEILING_FACTOR", 10)
	cfg.CommitMaxRetries = getEnvInt("COMMIT_MAX_RETRIES", 5)
	cfg.AntiSnipeWindow = getEnvDuration("ANTI_SNIPE_WINDOW", 2*time.Minute)
	cfg.AntiSnipeDelta = getEnvDuration("ANTI_SNIPE_EXTENSION", 5*time.Minute)
	cfg.MaxAutoExtensions = getEnvInt("MAX_AUTO_EXTENSIONS", 3)
	cfg.HotBidderThreshold = getEnvInt("HOT_BIDDER_THRESHOLD", 10)
	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", 30*time.Second)
	cfg.SweepBatchSize = getEnvInt("SWEEP_BATCH_SIZE", 100)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 240)
	cfg.RateLimitBid = getEnvInt("RATE_LIMIT_BID", 60)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
