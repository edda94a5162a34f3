package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/shruggr/headerchain/cache"
	cachemem "github.com/shruggr/headerchain/cache/memory"
	"github.com/shruggr/headerchain/chain"
	"github.com/shruggr/headerchain/consensus"
	"github.com/shruggr/headerchain/headerstore"
	"github.com/shruggr/headerchain/headerstore/badger"
	"github.com/shruggr/headerchain/headerstore/memory"
	"github.com/shruggr/headerchain/headerstore/sqlite"
	"github.com/shruggr/headerchain/miner"
	"github.com/shruggr/headerchain/models"
	"github.com/shruggr/headerchain/processor"
)

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadStart reads the starting header from a JSON file, defaulting to the
// regtest genesis header
func loadStart(path string) (*models.Header, error) {
	if path == "" {
		return miner.Genesis(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var h models.Header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// parseMaxTarget decodes a compact target given in hex, such as 207fffff
func parseMaxTarget(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	bits, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return nil, err
	}
	return consensus.CompactToBig(uint32(bits)), nil
}

// defaultMaxTarget fills in the regtest limit for chains starting from a
// regtest-difficulty header, which the mainnet limit would reject
func defaultMaxTarget(target *big.Int, first *models.Header) *big.Int {
	if target == nil && first != nil && first.Bits == miner.RegtestBits {
		return miner.RegtestMaxTarget
	}
	return target
}

func main() {
	// Parse flags
	storageType := flag.String("storage", "badger", "Storage type: memory, badger or sqlite")
	dataDir := flag.String("data-dir", "./data", "Data directory for BadgerDB")
	dbPath := flag.String("db-path", "./headers.db", "Database file for SQLite")
	cacheSize := flag.Int("cache-size", 4096, "Header cache size, 0 to disable")
	indexed := flag.Bool("indexed", true, "Enable lookups by block hash")
	startFile := flag.String("start", "", "JSON file holding the starting header (default regtest genesis)")
	maxTarget := flag.String("max-target", "", "Maximum target as compact bits in hex, e.g. 207fffff")
	maxDrift := flag.Uint("max-drift", consensus.DefaultMaxTimestampDrift, "Maximum seconds a timestamp may run ahead of its parent")
	batchSize := flag.Int("batch", processor.DefaultBatchSize, "Headers per validation batch")
	input := flag.String("input", "", "JSON-lines header file to ingest, - for stdin")
	mineCount := flag.Int("mine", 0, "Mine this many regtest headers onto the tip")
	checkIndex := flag.Bool("check-index", false, "Verify the BadgerDB hash index before starting")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(*logLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage based on type
	var store headerstore.Store
	var journal processor.Journal
	var badgerStore *badger.Store
	var err error

	switch *storageType {
	case "memory":
		log.Println("Using in-memory storage")
		store = memory.New()
	case "badger":
		log.Printf("Using BadgerDB storage at %s", *dataDir)
		badgerStore, err = badger.New(&badger.Config{
			DataDir: *dataDir,
			Logger:  logger,
		})
		if err != nil {
			log.Fatalf("Failed to initialize BadgerDB: %v", err)
		}
		store = badgerStore
	case "sqlite":
		log.Printf("Using SQLite storage at %s", *dbPath)
		db, err := sqlite.New(&sqlite.Config{DBPath: *dbPath})
		if err != nil {
			log.Fatalf("Failed to initialize SQLite: %v", err)
		}
		store = db
		journal = db
	default:
		log.Fatalf("Unknown storage type: %s (use 'memory', 'badger' or 'sqlite')", *storageType)
	}
	defer store.Close()

	if *cacheSize > 0 {
		lru, err := cachemem.New(*cacheSize)
		if err != nil {
			log.Fatalf("Failed to create header cache: %v", err)
		}
		store = cache.NewStore(store, lru)
	}

	target, err := parseMaxTarget(*maxTarget)
	if err != nil {
		log.Fatalf("Invalid max target %q: %v", *maxTarget, err)
	}

	cfg := &chain.Config{
		Store:             store,
		Indexed:           *indexed,
		MaxTarget:         target,
		MaxTimestampDrift: uint32(*maxDrift),
		Logger:            logger,
	}

	n, err := store.Len(ctx)
	if err != nil {
		log.Fatalf("Failed to read store: %v", err)
	}
	first := cfg.Start
	if n == 0 {
		if cfg.Start, err = loadStart(*startFile); err != nil {
			log.Fatalf("Failed to load starting header: %v", err)
		}
		first = cfg.Start
	} else if first, err = store.Get(ctx, 0); err != nil {
		log.Fatalf("Failed to read first header: %v", err)
	}
	cfg.MaxTarget = defaultMaxTarget(cfg.MaxTarget, first)

	if *checkIndex {
		if badgerStore == nil {
			log.Fatalf("-check-index needs badger storage")
		}
		if err := badgerStore.CheckIndex(ctx); err != nil {
			log.Fatalf("Hash index check failed: %v", err)
		}
		log.Println("Hash index OK")
	}

	tracker, err := chain.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create tracker: %v", err)
	}

	proc := processor.NewProcessor(tracker, &processor.Config{
		BatchSize: *batchSize,
		Journal:   journal,
		Logger:    logger,
	})
	defer proc.Stop()

	log.Printf("Tracker started | Height: %d | Tip: %s", tracker.Height(), tracker.Tip().Hash())

	if *input != "" {
		var r io.Reader = os.Stdin
		if *input != "-" {
			f, err := os.Open(*input)
			if err != nil {
				log.Fatalf("Failed to open input: %v", err)
			}
			defer f.Close()
			r = f
		}

		stats, err := proc.ProcessJSONLines(ctx, r)
		if err != nil {
			logger.Error("Ingestion stopped", "error", err, "kind", chain.KindOf(err).String())
		}
		logger.Info("Ingested headers",
			"headers", stats.Headers,
			"batches", stats.Batches,
			"reorgs", stats.Reorgs)
	}

	if *mineCount > 0 {
		headers, err := miner.New(tracker).Mine(ctx, *mineCount, false)
		if err != nil {
			log.Fatalf("Failed to mine headers: %v", err)
		}
		if _, err := proc.ProcessHeaders(ctx, headers); err != nil {
			log.Fatalf("Failed to add mined headers: %v", err)
		}
	}

	// Reorgs leave stale value log entries behind
	if badgerStore != nil {
		if err := badgerStore.RunGC(0.5); err != nil {
			logger.Warn("Value log GC failed", "error", err)
		}
	}

	log.Printf("Done | Height: %d | Tip: %s", tracker.Height(), tracker.Tip().Hash())
}
