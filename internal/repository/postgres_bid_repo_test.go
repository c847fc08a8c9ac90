package repository

import (
	"testing"
)

// PostgresBidRepoはBidRepositoryインターフェースを満たすことを検証
func TestPostgresBidRepo_ImplementsInterface(t *testing.T) {
	var _ BidRepository = (*PostgresBidRepo)(nil)
}

// NewPostgresBidRepoが正しく初期化されることを検証
func TestNewPostgresBidRepo_Initializes(t *testing.T) {
	repo := NewPostgresBidRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}
