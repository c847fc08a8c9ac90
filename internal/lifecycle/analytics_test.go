package lifecycle

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// TestDeriveLabels_IsHot は入札者数しきい値によるホット判定を検証する。
func TestDeriveLabels_IsHot(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		bidderCount int
		threshold   int
		want        bool
	}{
		{"しきい値未満はホットでない", 9, 10, false},
		{"しきい値ちょうどはホット", 10, 10, true},
		{"しきい値超過はホット", 25, 10, true},
		{"しきい値0は常にホットでない", 100, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := buildAuction(now.Add(-time.Hour), now.Add(48*time.Hour))
			a.BidderCount = tt.bidderCount
			snap := Snapshot(now, a)

			labels := DeriveLabels(snap, a, tt.threshold)
			if labels.IsHot != tt.want {
				t.Errorf("IsHot = %v, want %v", labels.IsHot, tt.want)
			}
		})
	}
}

// TestDeriveLabels_IsEndingSoon は終了間際ラベルがending_soonとcriticalの両状態で立つことを検証する。
func TestDeriveLabels_IsEndingSoon(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		remaining time.Duration
		want      bool
	}{
		{"残り48時間は対象外", 48 * time.Hour, false},
		{"残り12時間は対象", 12 * time.Hour, true},
		{"残り30分も対象", 30 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := buildAuction(now.Add(-time.Hour), now.Add(tt.remaining))
			snap := Snapshot(now, a)

			labels := DeriveLabels(snap, a, 10)
			if labels.IsEndingSoon != tt.want {
				t.Errorf("IsEndingSoon = %v, want %v", labels.IsEndingSoon, tt.want)
			}
		})
	}
}

// TestDeriveLabels_ValueAppreciation は開始価格に対する上昇率の計算を検証する。
func TestDeriveLabels_ValueAppreciation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a := buildAuction(now.Add(-time.Hour), now.Add(48*time.Hour))
	a.StartingBid = decimal.NewFromInt(1000)
	a.CurrentBid = decimal.NewFromInt(1500)
	snap := Snapshot(now, a)

	labels := DeriveLabels(snap, a, 10)

	want := decimal.NewFromFloat(0.5)
	if !labels.ValueAppreciation.Equal(want) {
		t.Errorf("ValueAppreciation = %s, want %s", labels.ValueAppreciation, want)
	}
}

// TestDeriveLabels_ZeroStartingBid は開始価格0でもゼロ除算せず上昇率0を返すことを検証する。
func TestDeriveLabels_ZeroStartingBid(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a := buildAuction(now.Add(-time.Hour), now.Add(48*time.Hour))
	a.StartingBid = decimal.Zero
	a.CurrentBid = decimal.NewFromInt(500)
	snap := Snapshot(now, a)

	labels := DeriveLabels(snap, a, 10)

	if !labels.ValueAppreciation.IsZero() {
		t.Errorf("ValueAppreciation = %s, want 0", labels.ValueAppreciation)
	}
}
