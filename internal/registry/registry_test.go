package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/bidman/internal/model"
	"github.com/hitoshi/bidman/internal/repository"
)

// --- モック ---

// memAuctionRepo はCAS意味論を再現するインメモリリポジトリ。
type memAuctionRepo struct {
	mu       sync.Mutex
	auctions map[string]*model.Auction
	bidders  map[string]map[string]struct{}
}

func newMemAuctionRepo() *memAuctionRepo {
	return &memAuctionRepo{
		auctions: make(map[string]*model.Auction),
		bidders:  make(map[string]map[string]struct{}),
	}
}

func (m *memAuctionRepo) FindByID(ctx context.Context, id string) (*model.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[id]
	if !ok {
		return nil, nil
	}
	return a.Clone(), nil
}

func (m *memAuctionRepo) Create(ctx context.Context, a *model.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auctions[a.ID] = a.Clone()
	return nil
}

func (m *memAuctionRepo) UpdateCAS(ctx context.Context, a *model.Auction, expectedVersion int64, newBidder *model.BidderIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.auctions[a.ID]
	if !ok || stored.Version != expectedVersion {
		return repository.ErrVersionConflict
	}

	m.auctions[a.ID] = a.Clone()
	if newBidder != nil {
		if m.bidders[a.ID] == nil {
			m.bidders[a.ID] = make(map[string]struct{})
		}
		m.bidders[a.ID][newBidder.NormalizedEmail] = struct{}{}
	}
	return nil
}

func (m *memAuctionRepo) HasBidder(ctx context.Context, auctionID, normalizedEmail string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.bidders[auctionID][normalizedEmail]
	return ok, nil
}

func (m *memAuctionRepo) ListOpen(ctx context.Context) ([]*model.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.Auction
	for _, a := range m.auctions {
		if !a.Closed {
			result = append(result, a.Clone())
		}
	}
	return result, nil
}

func (m *memAuctionRepo) ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]*model.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.Auction
	for _, a := range m.auctions {
		if !a.Closed && !now.Before(a.EndTime) {
			result = append(result, a.Clone())
		}
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func seedAuction(t *testing.T, repo *memAuctionRepo) *model.Auction {
	t.Helper()
	now := time.Now()
	a := &model.Auction{
		ID:           "auction-1",
		Title:        "Vintage Camera",
		StartingBid:  decimal.NewFromInt(1000),
		CurrentBid:   decimal.NewFromInt(1000),
		BidIncrement: decimal.NewFromInt(50),
		StartTime:    now.Add(-time.Hour),
		EndTime:      now.Add(48 * time.Hour),
		Version:      1,
	}
	if err := repo.Create(context.Background(), a); err != nil {
		t.Fatalf("failed to seed auction: %v", err)
	}
	return a
}

// --- テスト ---

// TestCommit_Success は期待versionが一致する場合のコミット成功を検証する。
func TestCommit_Success(t *testing.T) {
	repo := newMemAuctionRepo()
	seedAuction(t, repo)
	reg := New(repo)

	snap, err := reg.Commit(context.Background(), "auction-1", 1, func(a *model.Auction) (*model.BidderIdentity, error) {
		a.CurrentBid = decimal.NewFromInt(1100)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}

	if snap.Version != 2 {
		t.Errorf("Version = %d, want 2", snap.Version)
	}
	if !snap.CurrentBid.Equal(decimal.NewFromInt(1100)) {
		t.Errorf("CurrentBid = %s, want 1100", snap.CurrentBid)
	}

	// 正本にも反映されていること
	stored, _ := repo.FindByID(context.Background(), "auction-1")
	if stored.Version != 2 {
		t.Errorf("stored Version = %d, want 2", stored.Version)
	}
}

// TestCommit_VersionConflict は古いversionでの提出が拒否され正本が変更されないことを検証する。
func TestCommit_VersionConflict(t *testing.T) {
	repo := newMemAuctionRepo()
	seedAuction(t, repo)
	reg := New(repo)

	// 先行コミットでversionを2に進める
	_, err := reg.Commit(context.Background(), "auction-1", 1, func(a *model.Auction) (*model.BidderIdentity, error) {
		a.CurrentBid = decimal.NewFromInt(1100)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("first Commit returned error: %v", err)
	}

	// 古いversion=1での提出は競合になる
	_, err = reg.Commit(context.Background(), "auction-1", 1, func(a *model.Auction) (*model.BidderIdentity, error) {
		a.CurrentBid = decimal.NewFromInt(1050)
		return nil, nil
	})
	if !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	// 正本は先行コミットの値のまま
	stored, _ := repo.FindByID(context.Background(), "auction-1")
	if !stored.CurrentBid.Equal(decimal.NewFromInt(1100)) {
		t.Errorf("CurrentBid = %s, want 1100", stored.CurrentBid)
	}
}

// TestCommit_MutationError はミューテーションがエラーを返した場合に正本が変更されないことを検証する。
func TestCommit_MutationError(t *testing.T) {
	repo := newMemAuctionRepo()
	seedAuction(t, repo)
	reg := New(repo)

	wantErr := errors.New("mutation failed")
	_, err := reg.Commit(context.Background(), "auction-1", 1, func(a *model.Auction) (*model.BidderIdentity, error) {
		a.CurrentBid = decimal.NewFromInt(9999)
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected mutation error, got %v", err)
	}

	stored, _ := repo.FindByID(context.Background(), "auction-1")
	if !stored.CurrentBid.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("CurrentBid = %s, want 1000 (unchanged)", stored.CurrentBid)
	}
	if stored.Version != 1 {
		t.Errorf("Version = %d, want 1 (unchanged)", stored.Version)
	}
}

// TestCommit_NotFound は存在しないオークションへのコミットを検証する。
func TestCommit_NotFound(t *testing.T) {
	repo := newMemAuctionRepo()
	reg := New(repo)

	_, err := reg.Commit(context.Background(), "missing", 1, func(a *model.Auction) (*model.BidderIdentity, error) {
		return nil, nil
	})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeAuctionNotFound {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeAuctionNotFound)
	}
}

// TestCommit_NewBidder はコミット成功時に新規入札者が入札者集合へ追加されることを検証する。
func TestCommit_NewBidder(t *testing.T) {
	repo := newMemAuctionRepo()
	seedAuction(t, repo)
	reg := New(repo)

	_, err := reg.Commit(context.Background(), "auction-1", 1, func(a *model.Auction) (*model.BidderIdentity, error) {
		a.CurrentBid = decimal.NewFromInt(1100)
		a.BidderCount++
		return &model.BidderIdentity{NormalizedEmail: "alice@example.com", DisplayName: "Alice"}, nil
	})
	if err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}

	has, err := repo.HasBidder(context.Background(), "auction-1", "alice@example.com")
	if err != nil {
		t.Fatalf("HasBidder returned error: %v", err)
	}
	if !has {
		t.Error("expected bidder to be recorded in bidder set")
	}
}

// TestCommit_ConcurrentNoLostUpdate は並行コミットで更新が失われないことを検証する。
// 各goroutineは競合時に読み直して再試行し、最終的に全員の加算が反映される。
func TestCommit_ConcurrentNoLostUpdate(t *testing.T) {
	repo := newMemAuctionRepo()
	seedAuction(t, repo)
	reg := New(repo)

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				a, err := repo.FindByID(context.Background(), "auction-1")
				if err != nil {
					t.Errorf("FindByID returned error: %v", err)
					return
				}

				_, err = reg.Commit(context.Background(), "auction-1", a.Version, func(a *model.Auction) (*model.BidderIdentity, error) {
					a.CurrentBid = a.CurrentBid.Add(decimal.NewFromInt(50))
					return nil, nil
				})
				if err == nil {
					return
				}
				if !errors.Is(err, repository.ErrVersionConflict) {
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
		}()
	}

	wg.Wait()

	stored, _ := repo.FindByID(context.Background(), "auction-1")
	want := decimal.NewFromInt(1000 + 50*workers)
	if !stored.CurrentBid.Equal(want) {
		t.Errorf("CurrentBid = %s, want %s", stored.CurrentBid, want)
	}
	if stored.Version != int64(1+workers) {
		t.Errorf("Version = %d, want %d", stored.Version, 1+workers)
	}
}

// TestRead_NotFound は存在しないオークションの読み取りを検証する。
func TestRead_NotFound(t *testing.T) {
	repo := newMemAuctionRepo()
	reg := New(repo)

	_, _, err := reg.Read(context.Background(), "missing")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeAuctionNotFound {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeAuctionNotFound)
	}
}
