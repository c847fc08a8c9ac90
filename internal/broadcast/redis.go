package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/bidman/internal/model"
)

// channelPrefix はRedis Pub/Subのチャネルプレフィックス。
// チャネル名は "auction.snapshots.{auctionID}" となる。
const channelPrefix = "auction.snapshots."

// publishTimeout はRedisへの1回の配信に許容する時間。
const publishTimeout = 5 * time.Second

// channelFor はオークションIDからPub/Subチャネル名を組み立てる。
func channelFor(auctionID string) string {
	return channelPrefix + auctionID
}

// auctionIDFromChannel はPub/Subチャネル名からオークションIDを取り出す。
func auctionIDFromChannel(channel string) string {
	return strings.TrimPrefix(channel, channelPrefix)
}

// NewRedisClient はRedisクライアントを生成し、接続を確認する。
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redisへの接続に失敗しました: %w", err)
	}

	return client, nil
}

// RedisPublisher はスナップショットをRedis Pub/Subに配信する。
// 配信は非同期のベストエフォートであり、失敗してもログに記録するのみで
// 呼び出し側には伝播しない。
type RedisPublisher struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisPublisher はRedisPublisherを生成する。
func NewRedisPublisher(client *redis.Client, logger *slog.Logger) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		logger: logger,
	}
}

// Publish はスナップショットをJSONにして該当チャネルへ配信する。
// コミット経路をブロックしないよう、送信はgoroutineで行う。
func (p *RedisPublisher) Publish(snap *model.AuctionSnapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		p.logger.Error("failed to marshal snapshot",
			slog.String("auction_id", snap.AuctionID),
			slog.String("error", err.Error()),
		)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := p.client.Publish(ctx, channelFor(snap.AuctionID), payload).Err(); err != nil {
			p.logger.Error("failed to publish snapshot to redis",
				slog.String("auction_id", snap.AuctionID),
				slog.Int64("version", snap.Version),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// RedisRelay は他ノードが配信したスナップショットをRedis Pub/Subから受信し、
// ローカルのHubに流し込む。これによりWebSocket購読者がどのノードに
// 接続していても全コミットを観測できる。
type RedisRelay struct {
	client *redis.Client
	hub    *Hub
	logger *slog.Logger
}

// NewRedisRelay はRedisRelayを生成する。
func NewRedisRelay(client *redis.Client, hub *Hub, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{
		client: client,
		hub:    hub,
		logger: logger,
	}
}

// Run は全オークションのチャネルをパターン購読し、受信したスナップショットを
// Hubに配信する。コンテキストがキャンセルされるまでブロックする。
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	r.logger.Info("redis relay started",
		slog.String("pattern", channelPrefix+"*"),
	)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("redis relay stopped")
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("Redis購読チャネルがクローズされました")
			}

			var snap model.AuctionSnapshot
			if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
				r.logger.Warn("failed to unmarshal relayed snapshot",
					slog.String("channel", msg.Channel),
					slog.String("error", err.Error()),
				)
				continue
			}

			// チャネル名とペイロードのIDが食い違う場合はペイロードを信頼しない
			if snap.AuctionID != auctionIDFromChannel(msg.Channel) {
				r.logger.Warn("relayed snapshot auction id mismatch",
					slog.String("channel", msg.Channel),
					slog.String("auction_id", snap.AuctionID),
				)
				continue
			}

			r.hub.Publish(&snap)
		}
	}
}

// Fanout はローカルHubと任意のリモートPublisherへの複合配信を行う。
// remoteがnilの場合はローカル配信のみとなる（単一ノード構成）。
type Fanout struct {
	hub    *Hub
	remote Publisher
}

// NewFanout はFanoutを生成する。
func NewFanout(hub *Hub, remote Publisher) *Fanout {
	return &Fanout{
		hub:    hub,
		remote: remote,
	}
}

// Publish はローカルHubとリモートPublisherの両方に配信する。
func (f *Fanout) Publish(snap *model.AuctionSnapshot) {
	f.hub.Publish(snap)
	if f.remote != nil {
		f.remote.Publish(snap)
	}
}
