package xlsxbackend

import (
	"context"
	"fmt"
	"sync"

	"github.com/FranksOps/endpoints/internal/endpoint"
	"github.com/FranksOps/endpoints/internal/storage"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the exported records.
const SheetName = "Endpoints"

// ensure xlsxBackend implements storage.Backend
var _ storage.Backend = (*xlsxBackend)(nil)

var headers = []any{"Endpoint", "Host", "SourceURL", "Count", "ScanID"}

type row struct {
	scanID string
	record endpoint.Record
}

// xlsxBackend keeps records in memory and writes the workbook on Close.
type xlsxBackend struct {
	mu     sync.Mutex
	path   string
	rows   []row
	closed bool
}

// New creates a workbook export written to filePath on Close.
func New(filePath string) (storage.Backend, error) {
	if filePath == "" {
		return nil, fmt.Errorf("xlsx export needs a file path")
	}
	return &xlsxBackend{path: filePath}, nil
}

func (b *xlsxBackend) Save(ctx context.Context, scanID string, records []endpoint.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("xlsx export %s already written", b.path)
	}
	for _, r := range records {
		b.rows = append(b.rows, row{scanID: scanID, record: r})
	}
	return nil
}

func (b *xlsxBackend) Query(ctx context.Context, filter storage.Filter) ([]endpoint.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	all := make([]endpoint.Record, 0, len(b.rows))
	for _, r := range b.rows {
		if filter.ScanID != "" && r.scanID != filter.ScanID {
			continue
		}
		all = append(all, r.record)
	}
	return storage.Select(all, filter), nil
}

// Close writes the workbook. Calling it again is a no-op.
func (b *xlsxBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("name xlsx sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("open xlsx stream: %w", err)
	}
	if err := sw.SetColWidth(1, 1, 60); err != nil {
		return fmt.Errorf("size xlsx column: %w", err)
	}

	if err := sw.SetRow("A1", headers); err != nil {
		return fmt.Errorf("write xlsx header: %w", err)
	}
	for i, r := range b.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("xlsx cell name: %w", err)
		}
		values := []any{r.record.EndpointURL, r.record.Host, r.record.SourceURL, r.record.Count, r.scanID}
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("write xlsx row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush xlsx stream: %w", err)
	}

	if err := f.SaveAs(b.path); err != nil {
		return fmt.Errorf("save xlsx export: %w", err)
	}
	return nil
}
