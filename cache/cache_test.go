package cache_test

import (
	"context"
	"testing"

	"github.com/shruggr/headerchain/cache"
	"github.com/shruggr/headerchain/cache/memory"
	"github.com/shruggr/headerchain/headerstore"
	storemem "github.com/shruggr/headerchain/headerstore/memory"
	"github.com/shruggr/headerchain/models"
)

var (
	_ headerstore.Store    = (*cache.Store)(nil)
	_ headerstore.Replacer = (*cache.Store)(nil)
	_ headerstore.Wrapper  = (*cache.Store)(nil)
)

func TestStoreReadThroughAndReplace(t *testing.T) {
	ctx := context.Background()
	lru, err := memory.New(16)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	base := storemem.New(
		&models.Header{Height: 0, Nonce: 1},
		&models.Header{Height: 1, Nonce: 1},
		&models.Header{Height: 2, Nonce: 1},
	)
	store := cache.NewStore(base, lru)

	h, err := store.Get(ctx, 2)
	if err != nil || h == nil {
		t.Fatalf("Get failed: %v", err)
	}
	if lru.Len() != 1 {
		t.Errorf("Expected header to be cached, cache len %d", lru.Len())
	}

	replacement := &models.Header{Height: 2, Nonce: 9}
	if err := store.Replace(ctx, 2, []*models.Header{replacement}); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	h, err = store.Get(ctx, 2)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if h.Nonce != 9 {
		t.Errorf("Expected replaced header, got nonce %d", h.Nonce)
	}

	if err := store.Truncate(ctx, 1); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}
	if h, _ := store.Get(ctx, 1); h != nil {
		t.Error("Expected nil after truncate")
	}
	if store.Unwrap() != base {
		t.Error("Unwrap should return the underlying store")
	}
}
