package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/dgraph-io/badger/v4"
	"github.com/shruggr/headerchain/models"
	"github.com/shruggr/headerchain/multihash"
)

// Key layout:
//
//	"len"                   -> uint64 header count
//	'h' || uint64 position  -> Seal(uint64 height || 80-byte header)
//	'x' || multihash(hash)  -> uint64 position
var (
	lenKey       = []byte("len")
	headerPrefix = byte('h')
	hashPrefix   = byte('x')
)

// Store is a BadgerDB-backed implementation of headerstore.Store
// Records are checksummed and a hash index is kept in the same transactions
type Store struct {
	db *badger.DB
}

// Config holds configuration for BadgerDB
type Config struct {
	DataDir  string       // Directory for data storage
	InMemory bool         // Keep everything in memory, DataDir is ignored
	Logger   *slog.Logger // Receives badger's own log output; nil silences it
}

// New creates a new BadgerDB-backed header store
func New(config *Config) (*Store, error) {
	if config.DataDir == "" && !config.InMemory {
		return nil, fmt.Errorf("DataDir is required")
	}

	opts := badger.DefaultOptions(config.DataDir)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	if config.Logger != nil {
		opts = opts.WithLogger(&slogAdapter{logger: config.Logger.With("component", "badger")})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &Store{db: db}, nil
}

// Get retrieves the header at a position
// Returns nil if the position is past the end
func (s *Store) Get(ctx context.Context, index uint64) (*models.Header, error) {
	var header *models.Header
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		header, err = getHeader(txn, index)
		return err
	})
	if err != nil {
		return nil, err
	}
	return header, nil
}

// GetByHash retrieves a header through the persistent hash index
// Returns nil if no stored header has the hash
func (s *Store) GetByHash(ctx context.Context, hash chainhash.Hash) (*models.Header, error) {
	key, err := hashKey(hash)
	if err != nil {
		return nil, err
	}

	var header *models.Header
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		header, err = getHeader(txn, binary.BigEndian.Uint64(val))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up hash %s: %w", hash, err)
	}
	return header, nil
}

// Len returns the number of stored headers
func (s *Store) Len(ctx context.Context) (uint64, error) {
	var n uint64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		n, err = readLen(txn)
		return err
	})
	return n, err
}

// Append adds headers after the last position
func (s *Store) Append(ctx context.Context, headers ...*models.Header) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return appendHeaders(txn, headers)
	})
}

// Truncate drops every header at or after position length
func (s *Store) Truncate(ctx context.Context, length uint64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return truncate(txn, length)
	})
}

// Replace truncates and appends in a single transaction
func (s *Store) Replace(ctx context.Context, length uint64, headers []*models.Header) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := truncate(txn, length); err != nil {
			return err
		}
		return appendHeaders(txn, headers)
	})
}

// Close releases all BadgerDB resources
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RunGC runs BadgerDB garbage collection
// Call this periodically to reclaim space from truncated headers
func (s *Store) RunGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil // Not an error - just means no rewrite was needed
	}
	return err
}

// CheckIndex walks the hash index and confirms every entry points at a stored
// header with that hash, and that every position is indexed exactly once
func (s *Store) CheckIndex(ctx context.Context) error {
	return s.db.View(func(txn *badger.Txn) error {
		n, err := readLen(txn)
		if err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{hashPrefix}
		it := txn.NewIterator(opts)
		defer it.Close()

		var count uint64
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			hash, err := multihash.HeaderHash(item.KeyCopy(nil)[1:]).Raw()
			if err != nil {
				return fmt.Errorf("invalid index key: %w", err)
			}

			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if len(val) != 8 {
				return fmt.Errorf("invalid index entry for %s: %d bytes", hash, len(val))
			}
			pos := binary.BigEndian.Uint64(val)
			if pos >= n {
				return fmt.Errorf("index entry for %s points past the end: %d >= %d", hash, pos, n)
			}

			h, err := getHeader(txn, pos)
			if err != nil {
				return err
			}
			if h == nil {
				return fmt.Errorf("index entry for %s points at missing position %d", hash, pos)
			}
			if h.Hash() != hash {
				return fmt.Errorf("index entry for %s points at header %s", hash, h.Hash())
			}
			count++
		}

		if count != n {
			return fmt.Errorf("index holds %d entries for %d headers", count, n)
		}
		return nil
	})
}

func appendHeaders(txn *badger.Txn, headers []*models.Header) error {
	n, err := readLen(txn)
	if err != nil {
		return err
	}

	for _, h := range headers {
		record, err := encodeRecord(h)
		if err != nil {
			return err
		}
		if err := txn.Set(positionKey(n), record); err != nil {
			return fmt.Errorf("failed to store header %d: %w", h.Height, err)
		}

		key, err := hashKey(h.Hash())
		if err != nil {
			return err
		}
		if err := txn.Set(key, binary.BigEndian.AppendUint64(nil, n)); err != nil {
			return fmt.Errorf("failed to index header %d: %w", h.Height, err)
		}
		n++
	}

	return txn.Set(lenKey, binary.BigEndian.AppendUint64(nil, n))
}

func truncate(txn *badger.Txn, length uint64) error {
	n, err := readLen(txn)
	if err != nil {
		return err
	}
	if length > n {
		return fmt.Errorf("truncate length %d exceeds store length %d", length, n)
	}

	for i := length; i < n; i++ {
		h, err := getHeader(txn, i)
		if err != nil {
			return err
		}
		if h != nil {
			key, err := hashKey(h.Hash())
			if err != nil {
				return err
			}
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("failed to unindex header %d: %w", h.Height, err)
			}
		}
		if err := txn.Delete(positionKey(i)); err != nil {
			return fmt.Errorf("failed to delete position %d: %w", i, err)
		}
	}

	return txn.Set(lenKey, binary.BigEndian.AppendUint64(nil, length))
}

func getHeader(txn *badger.Txn, index uint64) (*models.Header, error) {
	item, err := txn.Get(positionKey(index))
	if err == badger.ErrKeyNotFound {
		return nil, nil // Return nil for positions past the end
	}
	if err != nil {
		return nil, err
	}

	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return decodeRecord(val)
}

func readLen(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get(lenKey)
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var n uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("invalid length record: %d bytes", len(val))
		}
		n = binary.BigEndian.Uint64(val)
		return nil
	})
	return n, err
}

func positionKey(index uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte{headerPrefix}, index)
}

func hashKey(hash chainhash.Hash) ([]byte, error) {
	wrapped, err := multihash.WrapChainHash(hash)
	if err != nil {
		return nil, err
	}
	return append([]byte{hashPrefix}, wrapped.Bytes()...), nil
}

func encodeRecord(h *models.Header) ([]byte, error) {
	record := binary.BigEndian.AppendUint64(make([]byte, 0, 8+models.HeaderSize), h.Height)
	record = append(record, h.Bytes()...)
	return multihash.Seal(record)
}

func decodeRecord(sealed []byte) (*models.Header, error) {
	record, err := multihash.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("corrupt header record: %w", err)
	}
	if len(record) != 8+models.HeaderSize {
		return nil, fmt.Errorf("invalid header record length: %d", len(record))
	}
	return models.ParseHeader(record[8:], binary.BigEndian.Uint64(record[:8]))
}
