package jsonbackend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/FranksOps/endpoints/internal/endpoint"
	"github.com/FranksOps/endpoints/internal/storage"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

type jsonBackend struct {
	mu   sync.Mutex
	file *os.File
}

// line is one NDJSON row: the record flattened next to its scan id.
type line struct {
	ScanID string `json:"scan_id"`
	endpoint.Record
}

// New creates a new NDJSON-backed storage.Backend. Records are appended, so
// one file can hold several scans.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open ndjson export: %w", err)
	}

	return &jsonBackend{file: f}, nil
}

func (b *jsonBackend) Save(ctx context.Context, scanID string, records []endpoint.Record) error {
	var buf []byte
	for _, r := range records {
		data, err := json.Marshal(line{ScanID: scanID, Record: r})
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Write(buf); err != nil {
		return fmt.Errorf("write ndjson export: %w", err)
	}
	return nil
}

func (b *jsonBackend) Query(ctx context.Context, filter storage.Filter) ([]endpoint.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek ndjson export: %w", err)
	}
	defer func() {
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	scanner := bufio.NewScanner(b.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	// NDJSON has no engine; read everything and filter in memory.
	var all []endpoint.Record
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		if filter.ScanID != "" && l.ScanID != filter.ScanID {
			continue
		}
		all = append(all, l.Record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ndjson export: %w", err)
	}

	return storage.Select(all, filter), nil
}

func (b *jsonBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
