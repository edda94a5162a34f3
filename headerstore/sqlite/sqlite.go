package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shruggr/headerchain/models"
)

// Store is a SQLite-backed implementation of headerstore.Store
// It also keeps a journal of reorgs applied to the chain
type Store struct {
	db *sql.DB
}

// Config holds configuration for SQLite
type Config struct {
	DBPath string // Path to SQLite database file
}

// ReorgRecord is one journaled reorg
type ReorgRecord struct {
	ForkHeight uint64
	OldTip     chainhash.Hash
	NewTip     chainhash.Hash
	Removed    int
	Added      int
	CreatedAt  int64
}

// New creates a new SQLite-backed header store
func New(config *Config) (*Store, error) {
	if config.DBPath == "" {
		return nil, fmt.Errorf("DBPath is required")
	}

	db, err := sql.Open("sqlite3", config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	store := &Store{db: db}

	// Initialize schema
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the necessary tables
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS headers (
		position   INTEGER PRIMARY KEY,
		height     INTEGER NOT NULL,
		block_hash BLOB NOT NULL,
		raw        BLOB NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_headers_hash ON headers(block_hash);

	CREATE TABLE IF NOT EXISTS reorgs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		fork_height INTEGER NOT NULL,
		old_tip     BLOB NOT NULL,
		new_tip     BLOB NOT NULL,
		removed     INTEGER NOT NULL,
		added       INTEGER NOT NULL,
		created_at  INTEGER DEFAULT (strftime('%s', 'now'))
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Get retrieves the header at a position
// Returns nil if the position is past the end
func (s *Store) Get(ctx context.Context, index uint64) (*models.Header, error) {
	var height uint64
	var raw []byte

	err := s.db.QueryRowContext(ctx,
		`SELECT height, raw FROM headers WHERE position = ?`,
		index,
	).Scan(&height, &raw)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query header: %w", err)
	}

	return models.ParseHeader(raw, height)
}

// GetByHash retrieves a header by block hash
// Returns nil if no stored header has the hash
func (s *Store) GetByHash(ctx context.Context, hash chainhash.Hash) (*models.Header, error) {
	var height uint64
	var raw []byte

	err := s.db.QueryRowContext(ctx,
		`SELECT height, raw FROM headers WHERE block_hash = ?`,
		hash[:],
	).Scan(&height, &raw)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query header by hash: %w", err)
	}

	return models.ParseHeader(raw, height)
}

// Len returns the number of stored headers
func (s *Store) Len(ctx context.Context) (uint64, error) {
	var n uint64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM headers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count headers: %w", err)
	}
	return n, nil
}

// Append adds headers after the last position
func (s *Store) Append(ctx context.Context, headers ...*models.Header) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return appendHeaders(ctx, tx, headers)
	})
}

// Truncate drops every header at or after position length
func (s *Store) Truncate(ctx context.Context, length uint64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return truncate(ctx, tx, length)
	})
}

// Replace truncates and appends in a single transaction
func (s *Store) Replace(ctx context.Context, length uint64, headers []*models.Header) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := truncate(ctx, tx, length); err != nil {
			return err
		}
		return appendHeaders(ctx, tx, headers)
	})
}

// RecordReorg journals a reorg
func (s *Store) RecordReorg(ctx context.Context, r *ReorgRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reorgs (fork_height, old_tip, new_tip, removed, added) VALUES (?, ?, ?, ?, ?)`,
		r.ForkHeight, r.OldTip[:], r.NewTip[:], r.Removed, r.Added,
	)
	if err != nil {
		return fmt.Errorf("failed to record reorg: %w", err)
	}
	return nil
}

// Reorgs returns journaled reorgs, most recent first
func (s *Store) Reorgs(ctx context.Context, limit int) ([]*ReorgRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fork_height, old_tip, new_tip, removed, added, created_at
		 FROM reorgs ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query reorgs: %w", err)
	}
	defer rows.Close()

	var records []*ReorgRecord
	for rows.Next() {
		var r ReorgRecord
		var oldTip, newTip []byte

		if err := rows.Scan(&r.ForkHeight, &oldTip, &newTip, &r.Removed, &r.Added, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reorg: %w", err)
		}

		copy(r.OldTip[:], oldTip)
		copy(r.NewTip[:], newTip)
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reorgs: %w", err)
	}

	return records, nil
}

// Close releases all database resources
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func appendHeaders(ctx context.Context, tx *sql.Tx, headers []*models.Header) error {
	var n uint64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM headers`).Scan(&n); err != nil {
		return fmt.Errorf("failed to count headers: %w", err)
	}

	for _, h := range headers {
		hash := h.Hash()
		_, err := tx.ExecContext(ctx,
			`INSERT INTO headers (position, height, block_hash, raw) VALUES (?, ?, ?, ?)`,
			n, h.Height, hash[:], h.Bytes(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert header %d: %w", h.Height, err)
		}
		n++
	}
	return nil
}

func truncate(ctx context.Context, tx *sql.Tx, length uint64) error {
	var n uint64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM headers`).Scan(&n); err != nil {
		return fmt.Errorf("failed to count headers: %w", err)
	}
	if length > n {
		return fmt.Errorf("truncate length %d exceeds store length %d", length, n)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM headers WHERE position >= ?`, length); err != nil {
		return fmt.Errorf("failed to truncate headers: %w", err)
	}
	return nil
}
