// Package broadcast はコミット後スナップショットの購読者への配信を提供する。
//
// 配信はベストエフォートのat-least-onceであり、コミット経路から切り離されている。
// 配信の失敗や購読者の遅延が入札コミットをブロックしたり失敗させることはない。
// 購読側はVersionGateでバージョンが増加していないスナップショットを破棄することで
// 重複配信を冪等に消費できる。
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/hitoshi/bidman/internal/metrics"
	"github.com/hitoshi/bidman/internal/model"
)

// Publisher はスナップショット配信のインターフェース。
// Publishはブロックせず、エラーを返さない（配信失敗はログとメトリクスで観測する）。
type Publisher interface {
	Publish(snap *model.AuctionSnapshot)
}

// defaultBufferSize は購読者ごとの配信バッファ長。
// バッファが溢れた購読者へのスナップショットは破棄される。
const defaultBufferSize = 16

// subscriber は1つの購読を表す。
type subscriber struct {
	ch chan *model.AuctionSnapshot
}

// Hub はプロセス内のオークション別ファンアウトを行う。
// 単一ノード構成ではこれ単体で配信が完結し、複数ノード構成では
// RedisRelayが他ノードのスナップショットをこのハブに流し込む。
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{}

	logger    *slog.Logger
	collector metrics.Collector
}

// NewHub はHubを生成する。
func NewHub(logger *slog.Logger, collector metrics.Collector) *Hub {
	return &Hub{
		subscribers: make(map[string]map[*subscriber]struct{}),
		logger:      logger,
		collector:   collector,
	}
}

// Subscribe は指定オークションのスナップショットを受信するチャネルと、
// 購読を解除するキャンセル関数を返す。キャンセル後、チャネルはクローズされる。
func (h *Hub) Subscribe(auctionID string) (<-chan *model.AuctionSnapshot, func()) {
	sub := &subscriber{
		ch: make(chan *model.AuctionSnapshot, defaultBufferSize),
	}

	h.mu.Lock()
	subs, ok := h.subscribers[auctionID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.subscribers[auctionID] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if subs, ok := h.subscribers[auctionID]; ok {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(h.subscribers, auctionID)
				}
			}
			h.mu.Unlock()
			close(sub.ch)
		})
	}

	return sub.ch, cancel
}

// Publish はスナップショットを該当オークションの全購読者に配信する。
// 購読者ごとに非ブロッキング送信を行い、バッファが溢れている購読者への
// 配信は破棄する。遅い購読者が他の購読者や呼び出し側に影響することはない。
func (h *Hub) Publish(snap *model.AuctionSnapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs, ok := h.subscribers[snap.AuctionID]
	if !ok {
		return
	}

	for sub := range subs {
		select {
		case sub.ch <- snap:
			h.collector.RecordSnapshotPublished()
		default:
			h.collector.RecordSnapshotDropped()
			h.logger.Warn("snapshot dropped for slow subscriber",
				slog.String("auction_id", snap.AuctionID),
				slog.Int64("version", snap.Version),
			)
		}
	}
}

// SubscriberCount は指定オークションの現在の購読者数を返す。テストおよびメトリクス用。
func (h *Hub) SubscriberCount(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[auctionID])
}

// VersionGate は購読側のバージョン単調増加チェックを行う。
// 並行利用は想定しない（購読ごとに1つ生成すること）。
type VersionGate struct {
	last int64
}

// Admit はスナップショットのバージョンが既観測値より大きい場合にtrueを返し、
// 観測値を更新する。増加していない場合はfalseを返す（購読側は破棄すること）。
func (g *VersionGate) Admit(snap *model.AuctionSnapshot) bool {
	if snap.Version <= g.last {
		return false
	}
	g.last = snap.Version
	return true
}
