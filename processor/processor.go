package processor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/shruggr/headerchain/chain"
	"github.com/shruggr/headerchain/headerstore/sqlite"
	"github.com/shruggr/headerchain/models"
)

// DefaultBatchSize bounds the number of headers validated per Add call
const DefaultBatchSize = 2000

// Journal records committed reorgs
type Journal interface {
	RecordReorg(ctx context.Context, r *sqlite.ReorgRecord) error
}

// Config holds configuration for a Processor
type Config struct {
	BatchSize int
	Journal   Journal // Optional
	Logger    *slog.Logger
}

// Stats summarizes one ingestion run
type Stats struct {
	Headers int
	Batches int
	Reorgs  int
}

// Processor feeds header sequences into a chain tracker in bounded batches
type Processor struct {
	tracker   *chain.Tracker
	journal   Journal
	batchSize int
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewProcessor creates a new header processor and subscribes it to reorgs
func NewProcessor(tracker *chain.Tracker, cfg *Config) *Processor {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg == nil {
		cfg = &Config{}
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Processor{
		tracker:   tracker,
		journal:   cfg.Journal,
		batchSize: batchSize,
		logger:    logger.With("component", "processor"),
		ctx:       ctx,
		cancel:    cancel,
	}
	tracker.OnReorg(p.HandleReorg)
	return p
}

// ProcessHeaders adds headers in batches. A batch rejected only for not
// reaching past the tip is merged with the next one, so a competing branch
// longer than a batch is still accepted.
func (p *Processor) ProcessHeaders(ctx context.Context, headers []*models.Header) (*Stats, error) {
	stats := &Stats{}
	start := 0
	end := min(p.batchSize, len(headers))

	for start < len(headers) {
		if err := p.checkContext(ctx); err != nil {
			return stats, err
		}

		reorg, err := p.tracker.Add(ctx, headers[start:end])
		if errors.Is(err, chain.ErrNotHigher) && end < len(headers) {
			end = min(end+p.batchSize, len(headers))
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("failed to add headers %d-%d: %w", headers[start].Height, headers[end-1].Height, err)
		}

		stats.Headers += end - start
		stats.Batches++
		if reorg != nil {
			stats.Reorgs++
		}

		p.logger.Debug("batch added", "from", headers[start].Height, "to", headers[end-1].Height, "tip", p.tracker.Height())

		start = end
		end = min(start+p.batchSize, len(headers))
	}
	return stats, nil
}

// ProcessJSONLines reads one JSON header per line and processes them
func (p *Processor) ProcessJSONLines(ctx context.Context, r io.Reader) (*Stats, error) {
	var headers []*models.Header

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var h models.Header
		if err := json.Unmarshal(scanner.Bytes(), &h); err != nil {
			return &Stats{}, fmt.Errorf("line %d: %w", line, err)
		}
		headers = append(headers, &h)
	}
	if err := scanner.Err(); err != nil {
		return &Stats{}, fmt.Errorf("failed to read headers: %w", err)
	}

	if len(headers) == 0 {
		return &Stats{}, nil
	}
	return p.ProcessHeaders(ctx, headers)
}

// HandleReorg logs a chain reorganization and records it in the journal
func (p *Processor) HandleReorg(r *chain.Reorg) {
	oldTip := r.Remove[0]
	newTip := r.Add[len(r.Add)-1]

	p.logger.Info("reorg",
		"fork", r.ForkHeight(),
		"removed", len(r.Remove),
		"added", len(r.Add),
		"tip", newTip.Hash().String())

	if p.journal == nil {
		return
	}

	err := p.journal.RecordReorg(p.ctx, &sqlite.ReorgRecord{
		ForkHeight: r.ForkHeight(),
		OldTip:     oldTip.Hash(),
		NewTip:     newTip.Hash(),
		Removed:    len(r.Remove),
		Added:      len(r.Add),
	})
	if err != nil {
		p.logger.Error("failed to journal reorg", "error", err)
	}
}

// GetTracker returns the chain tracker
func (p *Processor) GetTracker() *chain.Tracker {
	return p.tracker
}

// Stop shuts down the processor
func (p *Processor) Stop() error {
	p.cancel()
	return nil
}

func (p *Processor) checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.ctx.Err()
}
