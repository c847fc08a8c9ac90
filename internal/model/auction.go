// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Auction はオークションの正本レコードを表す。
// 書き込みは必ずregistry.Commitを経由し、versionによる楽観ロックで保護される。
type Auction struct {
	ID             string
	Title          string
	Category       string
	Condition      string
	StartingBid    decimal.Decimal
	CurrentBid     decimal.Decimal
	BidIncrement   decimal.Decimal
	StartTime      time.Time
	EndTime        time.Time
	ExtensionsUsed int
	BidderCount    int
	// AdminEnded は管理者による即時終了フラグ。一度trueになると恒久的に終了扱い。
	AdminEnded bool
	// Closed は終了確定フラグ。自然終了のスイープまたは管理者終了で設定される。
	Closed    bool
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone はAuctionのコピーを返す。
// Commitのミューテーションは正本を直接変更せず、コピーに対して適用する。
func (a *Auction) Clone() *Auction {
	c := *a
	return &c
}

// MinimumNextBid は次に受理可能な最低入札額を返す。
func (a *Auction) MinimumNextBid() decimal.Decimal {
	return a.CurrentBid.Add(a.BidIncrement)
}

// Status はオークションのライフサイクル状態を表す。
// 保存された値ではなく、現在時刻とオークションメタデータから毎回導出される。
// 例外はAdminEnded/Closedフラグで、これらは正本として保持される。
type Status string

const (
	// StatusScheduled は開始前の状態。
	StatusScheduled Status = "scheduled"
	// StatusActive は入札受付中の状態。
	StatusActive Status = "active"
	// StatusEndingSoon は終了まで24時間以内の状態。
	StatusEndingSoon Status = "ending_soon"
	// StatusCritical は終了まで1時間以内の状態。
	StatusCritical Status = "critical"
	// StatusEnded は終了済みの状態。一度この状態になると以後の入札は全て拒否される。
	StatusEnded Status = "ended"
)
