package lifecycle

import (
	"github.com/shopspring/decimal"

	"github.com/hitoshi/bidman/internal/model"
)

// Labels は表示専用の分析ラベル。正本の状態には一切影響しない。
type Labels struct {
	IsHot        bool            `json:"is_hot"`
	IsEndingSoon bool            `json:"is_ending_soon"`
	// ValueAppreciation は開始価格に対する現在価格の上昇率。
	// 例: 開始1000円・現在1500円なら0.5。
	ValueAppreciation decimal.Decimal `json:"value_appreciation"`
}

// DeriveLabels はスナップショットとオークションメタデータからラベルを導出する。
// hotThresholdが0以下の場合、IsHotは常にfalseになる。
func DeriveLabels(snap *model.AuctionSnapshot, a *model.Auction, hotThreshold int) Labels {
	labels := Labels{
		IsHot:        hotThreshold > 0 && snap.BidderCount >= hotThreshold,
		IsEndingSoon: snap.Status == model.StatusEndingSoon || snap.Status == model.StatusCritical,
	}

	// 開始価格0は不正データだが、ゼロ除算だけは避けて上昇率0として扱う
	if a.StartingBid.IsPositive() {
		labels.ValueAppreciation = snap.CurrentBid.Sub(a.StartingBid).Div(a.StartingBid)
	}

	return labels
}
