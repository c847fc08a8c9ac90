package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordBidAccepted_IncrementsCounter は入札受理カウンタが増加することを検証する。
func TestRecordBidAccepted_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBidAccepted()
	c.RecordBidAccepted()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "bidman_bids_accepted_total" {
			found = true
			val := mf.GetMetric()[0].GetCounter().GetValue()
			if val != 2 {
				t.Errorf("bids_accepted_total = %v, want 2", val)
			}
		}
	}
	if !found {
		t.Error("bidman_bids_accepted_total metric not found")
	}
}

// TestRecordBidRejected_LabelsByReason は入札拒否カウンタが理由別に記録されることを検証する。
func TestRecordBidRejected_LabelsByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBidRejected("bid_too_low")
	c.RecordBidRejected("bid_too_low")
	c.RecordBidRejected("auction_ended")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "bidman_bids_rejected_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 labeled metrics, got %d", len(mf.GetMetric()))
			}
		}
	}
	if !found {
		t.Error("bidman_bids_rejected_total metric not found")
	}
}

// TestRecordCommitLatency_ObservesHistogram はコミットレイテンシがヒストグラムに記録されることを検証する。
func TestRecordCommitLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCommitLatency(5 * time.Millisecond)
	c.RecordCommitLatency(20 * time.Millisecond)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "bidman_commit_latency_seconds" {
			found = true
			count := mf.GetMetric()[0].GetHistogram().GetSampleCount()
			if count != 2 {
				t.Errorf("sample count = %d, want 2", count)
			}
		}
	}
	if !found {
		t.Error("bidman_commit_latency_seconds metric not found")
	}
}

// TestHandler_ServesMetrics はHandlerがメトリクスをテキスト形式で返すことを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordSnapshotPublished()

	handler := Handler(reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if !strings.Contains(string(body), "bidman_snapshots_published_total") {
		t.Error("expected body to contain bidman_snapshots_published_total")
	}
}

// TestNopCollector_ImplementsInterface はNopCollectorがCollectorを満たすことを検証する。
func TestNopCollector_ImplementsInterface(t *testing.T) {
	var _ Collector = NopCollector{}
}
