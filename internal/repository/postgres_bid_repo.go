package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/bidman/internal/model"
)

// PostgresBidRepo はPostgreSQLを使用した入札監査ログリポジトリ。
// ログは追記専用で、更新・削除は行わない。
type PostgresBidRepo struct {
	db *sql.DB
}

// NewPostgresBidRepo はPostgresBidRepoを生成する。
func NewPostgresBidRepo(db *sql.DB) *PostgresBidRepo {
	return &PostgresBidRepo{db: db}
}

// Append は入札ログエントリを追記する。
func (r *PostgresBidRepo) Append(ctx context.Context, b *model.Bid) error {
	var rejectReason sql.NullString
	if b.RejectReason != "" {
		rejectReason = sql.NullString{String: string(b.RejectReason), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bids (id, auction_id, normalized_email, display_name, amount,
		                   outcome, reject_reason, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.AuctionID, b.NormalizedEmail, b.DisplayName, b.Amount,
		string(b.Outcome), rejectReason, b.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("入札ログの追記に失敗しました: %w", err)
	}

	return nil
}

// ListByAuction は指定オークションの入札ログを提出時刻降順で取得する。
func (r *PostgresBidRepo) ListByAuction(ctx context.Context, auctionID string, limit int) ([]*model.Bid, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, auction_id, normalized_email, display_name, amount,
		        outcome, reject_reason, submitted_at
		 FROM bids
		 WHERE auction_id = $1
		 ORDER BY submitted_at DESC
		 LIMIT $2`,
		auctionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("入札ログの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var bids []*model.Bid
	for rows.Next() {
		b := &model.Bid{}
		var outcome string
		var rejectReason sql.NullString

		err := rows.Scan(
			&b.ID, &b.AuctionID, &b.NormalizedEmail, &b.DisplayName,
			&b.Amount, &outcome, &rejectReason, &b.SubmittedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("入札ログのスキャンに失敗しました: %w", err)
		}

		b.Outcome = model.BidOutcome(outcome)
		if rejectReason.Valid {
			b.RejectReason = model.RejectReason(rejectReason.String)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("入札ログの読み取りに失敗しました: %w", err)
	}

	return bids, nil
}
