// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はメトリクス収集のインターフェース。
// サービス層・配信層・スイープワーカーから利用する。
type Collector interface {
	RecordBidAccepted()
	RecordBidRejected(reason string)
	RecordCommitConflict()
	RecordCommitLatency(duration time.Duration)
	RecordSnapshotPublished()
	RecordSnapshotDropped()
	RecordAuctionFinalized()
}

// PrometheusCollector はPrometheusメトリクスを収集する実装。
type PrometheusCollector struct {
	bidsAccepted       prometheus.Counter
	bidsRejected       *prometheus.CounterVec
	commitConflicts    prometheus.Counter
	commitLatency      prometheus.Histogram
	snapshotsPublished prometheus.Counter
	snapshotsDropped   prometheus.Counter
	auctionsFinalized  prometheus.Counter
}

// NewCollector は新しいPrometheusCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		bidsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bidman_bids_accepted_total",
			Help: "受理された入札の合計数",
		}),
		bidsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bidman_bids_rejected_total",
			Help: "拒否理由別の入札拒否数",
		}, []string{"reason"}),
		commitConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bidman_commit_conflicts_total",
			Help: "楽観ロックのバージョン競合の合計数",
		}),
		commitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bidman_commit_latency_seconds",
			Help:    "入札コミットのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		snapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bidman_snapshots_published_total",
			Help: "配信されたスナップショットの合計数",
		}),
		snapshotsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bidman_snapshots_dropped_total",
			Help: "購読者のバッファ溢れで破棄されたスナップショットの合計数",
		}),
		auctionsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bidman_auctions_finalized_total",
			Help: "スイープワーカーが終了確定したオークションの合計数",
		}),
	}

	reg.MustRegister(
		c.bidsAccepted,
		c.bidsRejected,
		c.commitConflicts,
		c.commitLatency,
		c.snapshotsPublished,
		c.snapshotsDropped,
		c.auctionsFinalized,
	)

	return c
}

// RecordBidAccepted は入札受理を記録する。
func (c *PrometheusCollector) RecordBidAccepted() {
	c.bidsAccepted.Inc()
}

// RecordBidRejected は入札拒否を理由付きで記録する。
func (c *PrometheusCollector) RecordBidRejected(reason string) {
	c.bidsRejected.WithLabelValues(reason).Inc()
}

// RecordCommitConflict はバージョン競合を記録する。
func (c *PrometheusCollector) RecordCommitConflict() {
	c.commitConflicts.Inc()
}

// RecordCommitLatency はコミットレイテンシを記録する。
func (c *PrometheusCollector) RecordCommitLatency(duration time.Duration) {
	c.commitLatency.Observe(duration.Seconds())
}

// RecordSnapshotPublished はスナップショット配信を記録する。
func (c *PrometheusCollector) RecordSnapshotPublished() {
	c.snapshotsPublished.Inc()
}

// RecordSnapshotDropped はスナップショット破棄を記録する。
func (c *PrometheusCollector) RecordSnapshotDropped() {
	c.snapshotsDropped.Inc()
}

// RecordAuctionFinalized はオークションの終了確定を記録する。
func (c *PrometheusCollector) RecordAuctionFinalized() {
	c.auctionsFinalized.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないCollector実装。テストおよび未設定時に使用する。
type NopCollector struct{}

func (NopCollector) RecordBidAccepted()                  {}
func (NopCollector) RecordBidRejected(reason string)     {}
func (NopCollector) RecordCommitConflict()               {}
func (NopCollector) RecordCommitLatency(d time.Duration) {}
func (NopCollector) RecordSnapshotPublished()            {}
func (NopCollector) RecordSnapshotDropped()              {}
func (NopCollector) RecordAuctionFinalized()             {}
