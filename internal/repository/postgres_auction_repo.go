package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/bidman/internal/model"
)

// PostgresAuctionRepo はPostgreSQLを使用したオークションリポジトリ。
type PostgresAuctionRepo struct {
	db *sql.DB
}

// NewPostgresAuctionRepo はPostgresAuctionRepoを生成する。
func NewPostgresAuctionRepo(db *sql.DB) *PostgresAuctionRepo {
	return &PostgresAuctionRepo{db: db}
}

const auctionColumns = `id, title, category, condition, starting_bid, current_bid,
	        bid_increment, start_time, end_time, extensions_used, bidder_count,
	        admin_ended, closed, version, created_at, updated_at`

// scanAuction は1行分のオークションレコードをスキャンする。
func scanAuction(row interface{ Scan(dest ...any) error }) (*model.Auction, error) {
	a := &model.Auction{}
	err := row.Scan(
		&a.ID, &a.Title, &a.Category, &a.Condition,
		&a.StartingBid, &a.CurrentBid, &a.BidIncrement,
		&a.StartTime, &a.EndTime, &a.ExtensionsUsed, &a.BidderCount,
		&a.AdminEnded, &a.Closed, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// FindByID は指定IDのオークションを取得する。見つからない場合はnilを返す。
func (r *PostgresAuctionRepo) FindByID(ctx context.Context, id string) (*model.Auction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = $1`,
		id,
	)

	a, err := scanAuction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("オークションの取得に失敗しました: %w", err)
	}

	return a, nil
}

// Create はオークションを新規作成する。
func (r *PostgresAuctionRepo) Create(ctx context.Context, a *model.Auction) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auctions (id, title, category, condition, starting_bid, current_bid,
		                       bid_increment, start_time, end_time, extensions_used,
		                       bidder_count, admin_ended, closed, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		a.ID, a.Title, a.Category, a.Condition, a.StartingBid, a.CurrentBid,
		a.BidIncrement, a.StartTime, a.EndTime, a.ExtensionsUsed,
		a.BidderCount, a.AdminEnded, a.Closed, a.Version, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("オークションの作成に失敗しました: %w", err)
	}

	return nil
}

// UpdateCAS はバージョン一致を条件にオークションを更新する。
// UPDATEの条件にversionを含めることで、読み取り時点から他の書き込みが
// 割り込んだ場合は0行更新となり、ErrVersionConflictを返す。
// newBidderがnilでない場合は同一トランザクションで入札者集合にも追加する。
func (r *PostgresAuctionRepo) UpdateCAS(ctx context.Context, a *model.Auction, expectedVersion int64, newBidder *model.BidderIdentity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE auctions
		 SET current_bid = $1, end_time = $2, extensions_used = $3, bidder_count = $4,
		     admin_ended = $5, closed = $6, version = $7, updated_at = $8
		 WHERE id = $9 AND version = $10`,
		a.CurrentBid, a.EndTime, a.ExtensionsUsed, a.BidderCount,
		a.AdminEnded, a.Closed, a.Version, a.UpdatedAt,
		a.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("オークションの更新に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	if newBidder != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO auction_bidders (auction_id, normalized_email, display_name, first_bid_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (auction_id, normalized_email) DO NOTHING`,
			a.ID, newBidder.NormalizedEmail, newBidder.DisplayName, a.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("入札者の登録に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	return nil
}

// HasBidder は指定アイデンティティが入札者集合に含まれるかを返す。
func (r *PostgresAuctionRepo) HasBidder(ctx context.Context, auctionID, normalizedEmail string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM auction_bidders WHERE auction_id = $1 AND normalized_email = $2
		 )`,
		auctionID, normalizedEmail,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("入札者の検索に失敗しました: %w", err)
	}

	return exists, nil
}

// ListOpen は未終了のオークションを終了時刻昇順で取得する。
func (r *PostgresAuctionRepo) ListOpen(ctx context.Context) ([]*model.Auction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auctionColumns+`
		 FROM auctions
		 WHERE closed = false AND admin_ended = false
		 ORDER BY end_time ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("オークション一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectAuctions(rows)
}

// ListExpiredOpen は終了時刻を過ぎているのに未確定のオークションを取得する。
func (r *PostgresAuctionRepo) ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]*model.Auction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auctionColumns+`
		 FROM auctions
		 WHERE closed = false AND end_time <= $1
		 ORDER BY end_time ASC
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("終了対象オークションの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectAuctions(rows)
}

// collectAuctions は複数行のオークションレコードをスキャンして返す。
func collectAuctions(rows *sql.Rows) ([]*model.Auction, error) {
	var auctions []*model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("オークションのスキャンに失敗しました: %w", err)
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("オークション一覧の読み取りに失敗しました: %w", err)
	}

	return auctions, nil
}
