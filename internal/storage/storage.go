package storage

import (
	"context"
	"slices"
	"strings"

	"github.com/FranksOps/endpoints/internal/endpoint"
)

// Filter allows querying exported endpoint records.
type Filter struct {
	// ScanID restricts results to one scan. Sinks that do not keep the scan
	// id (csv) ignore it.
	ScanID string
	// Host matches the record host, case-insensitively.
	Host string
	// Keyword is a case-insensitive substring over endpoint, host and source.
	Keyword string
	Limit   int
	Offset  int
}

// Backend defines the interface for exporting and reading back the records
// of a scan.
type Backend interface {
	Save(ctx context.Context, scanID string, records []endpoint.Record) error
	Query(ctx context.Context, filter Filter) ([]endpoint.Record, error)
	Close() error
}

// Select applies the Host and Keyword parts of filter to records, orders them
// by count descending then endpoint ascending, and pages the result. ScanID
// is left to the caller. The input slice is not modified.
func Select(records []endpoint.Record, filter Filter) []endpoint.Record {
	out := endpoint.Filter(records, filter.Keyword)
	if filter.Host != "" {
		out = slices.DeleteFunc(out, func(r endpoint.Record) bool {
			return !strings.EqualFold(r.Host, filter.Host)
		})
	}

	SortRecords(out)

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []endpoint.Record{}
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out
}

// SortRecords orders records by count descending then endpoint ascending.
func SortRecords(records []endpoint.Record) {
	slices.SortStableFunc(records, func(a, b endpoint.Record) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.EndpointURL, b.EndpointURL)
	})
}
