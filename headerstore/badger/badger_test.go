package badger

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/shruggr/headerchain/headerstore"
	"github.com/shruggr/headerchain/models"
)

var (
	_ headerstore.Store      = (*Store)(nil)
	_ headerstore.Replacer   = (*Store)(nil)
	_ headerstore.HashLookup = (*Store)(nil)
)

func testHeaders(n int, nonce uint32) []*models.Header {
	headers := make([]*models.Header, n)
	for i := range headers {
		headers[i] = &models.Header{
			Height:    uint64(i),
			Version:   1,
			Timestamp: uint32(1000 + i),
			Bits:      0x207fffff,
			Nonce:     nonce,
		}
		if i > 0 {
			headers[i].PrevHash = headers[i-1].Hash()
		}
	}
	return headers
}

func openStore(t *testing.T, dir string) *Store {
	t.Helper()
	store, err := New(&Config{DataDir: dir})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestAppendAndGet(t *testing.T) {
	store := openStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	headers := testHeaders(5, 0)
	if err := store.Append(ctx, headers...); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	n, err := store.Len(ctx)
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if n != 5 {
		t.Fatalf("Expected length 5, got %d", n)
	}

	got, err := store.Get(ctx, 3)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || *got != *headers[3] {
		t.Errorf("Header mismatch: got %+v, want %+v", got, headers[3])
	}

	missing, err := store.Get(ctx, 5)
	if err != nil || missing != nil {
		t.Errorf("Expected nil for missing position, got %+v, %v", missing, err)
	}
}

func TestGetByHash(t *testing.T) {
	store := openStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	headers := testHeaders(3, 0)
	if err := store.Append(ctx, headers...); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := store.GetByHash(ctx, headers[2].Hash())
	if err != nil {
		t.Fatalf("GetByHash failed: %v", err)
	}
	if got == nil || got.Height != 2 {
		t.Errorf("Expected header at height 2, got %+v", got)
	}

	if err := store.Truncate(ctx, 2); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}
	got, err = store.GetByHash(ctx, headers[2].Hash())
	if err != nil || got != nil {
		t.Errorf("Expected truncated header to be unindexed, got %+v, %v", got, err)
	}
}

func TestReplace(t *testing.T) {
	store := openStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	original := testHeaders(4, 0)
	if err := store.Append(ctx, original...); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	fork := testHeaders(6, 1)
	fork[0] = original[0]
	fork[1].PrevHash = original[0].Hash()
	for i := 2; i < len(fork); i++ {
		fork[i].PrevHash = fork[i-1].Hash()
	}

	if err := store.Replace(ctx, 1, fork[1:]); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	n, _ := store.Len(ctx)
	if n != 6 {
		t.Fatalf("Expected length 6, got %d", n)
	}
	for i := 1; i < 4; i++ {
		if h, _ := store.GetByHash(ctx, original[i].Hash()); h != nil {
			t.Errorf("Replaced header %d still indexed", i)
		}
	}
	got, _ := store.Get(ctx, 5)
	if got == nil || *got != *fork[5] {
		t.Errorf("Expected fork tip at position 5, got %+v", got)
	}

	if err := store.Replace(ctx, 10, nil); err == nil {
		t.Error("Expected error replacing past the end")
	}
	n, _ = store.Len(ctx)
	if n != 6 {
		t.Errorf("Failed replace changed length to %d", n)
	}
}

func TestCheckIndex(t *testing.T) {
	store := openStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	headers := testHeaders(10, 0)
	if err := store.Append(ctx, headers...); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.CheckIndex(ctx); err != nil {
		t.Fatalf("CheckIndex after append failed: %v", err)
	}

	fork := testHeaders(12, 1)[5:]
	if err := store.Replace(ctx, 5, fork); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if err := store.CheckIndex(ctx); err != nil {
		t.Fatalf("CheckIndex after replace failed: %v", err)
	}

	// Point the hash of position 2 at position 3
	key, err := hashKey(headers[2].Hash())
	if err != nil {
		t.Fatalf("hashKey failed: %v", err)
	}
	err = store.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, binary.BigEndian.AppendUint64(nil, 3))
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := store.CheckIndex(ctx); err == nil {
		t.Error("CheckIndex should fail for a misdirected entry")
	}

	err = store.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := store.CheckIndex(ctx); err == nil {
		t.Error("CheckIndex should fail for a missing entry")
	}
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	headers := testHeaders(3, 0)

	store := openStore(t, dir)
	if err := store.Append(ctx, headers...); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	store = openStore(t, dir)
	defer store.Close()

	n, _ := store.Len(ctx)
	if n != 3 {
		t.Fatalf("Expected length 3 after reopen, got %d", n)
	}
	got, _ := store.Get(ctx, 2)
	if got == nil || *got != *headers[2] {
		t.Errorf("Header mismatch after reopen: got %+v", got)
	}
}

func TestNewRequiresDataDir(t *testing.T) {
	if _, err := New(&Config{}); err == nil {
		t.Fatal("Expected error without DataDir")
	}
}
