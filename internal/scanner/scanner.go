package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/endpoints/internal/analyzer"
	"github.com/FranksOps/endpoints/internal/endpoint"
	"github.com/FranksOps/endpoints/internal/inventory"
	"github.com/FranksOps/endpoints/internal/metrics"
	"github.com/google/uuid"
)

const (
	// DefaultBatchSize is the number of items between progress reports.
	DefaultBatchSize = 100
	// DefaultMaxResponseBytes is the largest response body that is scanned.
	DefaultMaxResponseBytes = 5 * 1024 * 1024
)

// ErrNoAdapter is returned for message items when no MessageAdapter is set.
var ErrNoAdapter = errors.New("no message adapter configured for raw history items")

// Config provides parameters for a Scanner.
type Config struct {
	// BatchSize is the number of items between progress reports.
	// Zero or less puts every item in a single batch.
	BatchSize int
	// MaxResponseBytes skips bodies larger than this many bytes (0 = default 5 MiB).
	MaxResponseBytes int
	// Extract enables the optional extraction passes.
	Extract analyzer.Options
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		BatchSize:        DefaultBatchSize,
		MaxResponseBytes: DefaultMaxResponseBytes,
	}
}

// MessageAdapter decodes raw platform messages into payloads. ok is false
// when the message has no response to scan.
type MessageAdapter interface {
	Resolve(msg any) (payload endpoint.Payload, ok bool, err error)
}

// ProgressFunc receives a snapshot after every batch. It runs on the scan
// goroutine and must return quickly.
type ProgressFunc func(endpoint.Progress)

// Scanner drives extraction, normalization and the store over a list of
// history items. A Scanner runs one scan at a time; see Controller.
type Scanner struct {
	cfg        Config
	extractor  *analyzer.Extractor
	normalizer *analyzer.Normalizer
	store      *inventory.Store
	adapter    MessageAdapter
	logger     *slog.Logger
}

// New creates a Scanner writing into store. adapter may be nil when every
// item is an already decoded payload.
func New(cfg Config, store *inventory.Store, adapter MessageAdapter, logger *slog.Logger) *Scanner {
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if store == nil {
		store = inventory.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Scanner{
		cfg:        cfg,
		extractor:  analyzer.NewExtractor(cfg.Extract),
		normalizer: analyzer.NewNormalizer(),
		store:      store,
		adapter:    adapter,
		logger:     logger,
	}
}

// Scan clears the store and processes items in batches until they are
// exhausted or ctx is cancelled. Cancellation is checked before every batch
// and every item; an item already in progress always finishes. Failures of
// single items are logged and counted, never returned.
func (s *Scanner) Scan(ctx context.Context, items []endpoint.Item, progress ProgressFunc) endpoint.ScanResult {
	start := time.Now()
	s.store.Clear()

	res := endpoint.ScanResult{
		ID:         uuid.NewString(),
		TotalItems: len(items),
	}
	s.logger.Debug("scan started", "scan_id", res.ID, "items", len(items), "batch_size", s.cfg.BatchSize)

	stopped := false
	for _, batch := range batches(items, s.cfg.BatchSize) {
		if ctx.Err() != nil {
			stopped = true
			break
		}
		for _, item := range batch {
			if ctx.Err() != nil {
				stopped = true
				break
			}

			n, err := s.processItem(item)
			res.TotalCandidates += n
			if err != nil {
				res.ErrorCount++
				s.logger.Error("scan item failed", "scan_id", res.ID, "item", res.ProcessedItems, "err", err)
			}
			res.ProcessedItems++
		}

		s.notify(progress, endpoint.Progress{
			TotalItems:      res.TotalItems,
			ProcessedItems:  res.ProcessedItems,
			ErrorCount:      res.ErrorCount,
			UniqueEndpoints: s.store.Len(),
		})
		if stopped {
			break
		}
	}

	res.UniqueEndpoints = s.store.Len()
	res.DurationMS = time.Since(start).Milliseconds()
	res.Stopped = stopped

	s.logger.Info("scan finished",
		"scan_id", res.ID,
		"processed", res.ProcessedItems,
		"total", res.TotalItems,
		"candidates", res.TotalCandidates,
		"unique", res.UniqueEndpoints,
		"errors", res.ErrorCount,
		"stopped", res.Stopped,
		"duration_ms", res.DurationMS,
	)
	metrics.RecordScan(res)
	return res
}

// Records returns a snapshot of the current inventory.
func (s *Scanner) Records() []endpoint.Record {
	return s.store.All()
}

// processItem runs one item through the pipeline and returns the number of
// raw candidates extracted. Panics are turned into errors so that one bad
// item cannot end the scan.
func (s *Scanner) processItem(item endpoint.Item) (candidates int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing item: %v", r)
		}
	}()

	payload, ok, err := s.resolve(item)
	if err != nil {
		return 0, fmt.Errorf("resolve item: %w", err)
	}
	if !ok {
		return 0, nil
	}
	if len(payload.ResponseText) > s.cfg.MaxResponseBytes {
		return 0, nil
	}

	cands := s.extractor.Extract(payload.ResponseText, payload.ContentType, payload.SourceURL)
	candidates = len(cands)

	for _, c := range cands {
		endpointURL, ok := s.normalizer.Normalize(c, payload.SourceURL)
		if !ok {
			continue
		}
		s.store.Upsert(endpointURL, analyzer.HostOf(endpointURL), payload.SourceURL)
	}
	return candidates, nil
}

func (s *Scanner) resolve(item endpoint.Item) (endpoint.Payload, bool, error) {
	if p, ok := item.Payload(); ok {
		return p, true, nil
	}
	msg := item.Message()
	if msg == nil {
		return endpoint.Payload{}, false, nil
	}
	if s.adapter == nil {
		return endpoint.Payload{}, false, ErrNoAdapter
	}
	return s.adapter.Resolve(msg)
}

func (s *Scanner) notify(progress ProgressFunc, p endpoint.Progress) {
	if progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("progress callback failed", "err", r)
		}
	}()
	progress(p)
}

func batches(items []endpoint.Item, size int) [][]endpoint.Item {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(items)
	}

	out := make([][]endpoint.Item, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
