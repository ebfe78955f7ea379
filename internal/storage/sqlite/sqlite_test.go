package sqlite

import (
	"context"
	"testing"

	"github.com/FranksOps/endpoints/internal/endpoint"
	"github.com/FranksOps/endpoints/internal/storage"
)

func TestSQLiteBackend(t *testing.T) {
	// Use an in-memory database for testing
	dsn := "file:sqlite_backend?mode=memory&cache=shared"
	b, err := New(dsn)
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()

	records := []endpoint.Record{
		{EndpointURL: "https://site.test/api/v1/users", Host: "site.test", SourceURL: "https://site.test/page", Count: 1, FirstSeenAt: 100, LastSeenAt: 200},
		{EndpointURL: "http://other.test/ok", Host: "other.test", SourceURL: "https://site.test/page", Count: 2, FirstSeenAt: 100, LastSeenAt: 300},
		{EndpointURL: "https://site.test/b", Host: "site.test", SourceURL: "https://site.test/app.js", Count: 1, FirstSeenAt: 150, LastSeenAt: 150},
	}

	if err := b.Save(ctx, "scan-1", records); err != nil {
		t.Fatalf("Failed to save records: %v", err)
	}
	if err := b.Save(ctx, "scan-2", records[:1]); err != nil {
		t.Fatalf("Failed to save second scan: %v", err)
	}

	// Test ScanID filter and ordering
	results, err := b.Query(ctx, storage.Filter{ScanID: "scan-1"})
	if err != nil {
		t.Fatalf("Failed to query results: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}

	want := []string{"http://other.test/ok", "https://site.test/api/v1/users", "https://site.test/b"}
	for i, w := range want {
		if results[i].EndpointURL != w {
			t.Errorf("Expected %s at %d, got %s", w, i, results[i].EndpointURL)
		}
	}

	got := results[0]
	if got.Host != "other.test" || got.SourceURL != "https://site.test/page" {
		t.Errorf("Unexpected record %+v", got)
	}
	if got.Count != 2 || got.FirstSeenAt != 100 || got.LastSeenAt != 300 {
		t.Errorf("Expected count 2 seen 100..300, got %+v", got)
	}

	// Test upsert on the same key
	updated := records[0]
	updated.Count = 9
	updated.LastSeenAt = 900
	if err := b.Save(ctx, "scan-1", []endpoint.Record{updated}); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}
	results, err = b.Query(ctx, storage.Filter{ScanID: "scan-1"})
	if err != nil {
		t.Fatalf("Failed to query after upsert: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected upsert to keep 3 rows, got %d", len(results))
	}
	if results[0].EndpointURL != updated.EndpointURL || results[0].Count != 9 || results[0].LastSeenAt != 900 {
		t.Errorf("Expected upserted record first, got %+v", results[0])
	}

	// Test Host filter
	resultsHost, err := b.Query(ctx, storage.Filter{ScanID: "scan-1", Host: "OTHER.test"})
	if err != nil {
		t.Fatalf("Failed to query by host: %v", err)
	}
	if len(resultsHost) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(resultsHost))
	}

	// Test Keyword filter across source url
	resultsKeyword, err := b.Query(ctx, storage.Filter{ScanID: "scan-1", Keyword: "APP.JS"})
	if err != nil {
		t.Fatalf("Failed to query by keyword: %v", err)
	}
	if len(resultsKeyword) != 1 || resultsKeyword[0].EndpointURL != "https://site.test/b" {
		t.Errorf("Expected keyword match on source url, got %+v", resultsKeyword)
	}

	// Test offset without limit
	resultsOffset, err := b.Query(ctx, storage.Filter{ScanID: "scan-1", Offset: 2})
	if err != nil {
		t.Fatalf("Failed to query with offset: %v", err)
	}
	if len(resultsOffset) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(resultsOffset))
	}

	// Test limit
	resultsLimit, err := b.Query(ctx, storage.Filter{Limit: 2})
	if err != nil {
		t.Fatalf("Failed to query with limit: %v", err)
	}
	if len(resultsLimit) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(resultsLimit))
	}

	// Test no matches
	resultsNone, err := b.Query(ctx, storage.Filter{ScanID: "missing"})
	if err != nil {
		t.Fatalf("Failed to query missing scan: %v", err)
	}
	if len(resultsNone) != 0 {
		t.Fatalf("Expected 0 results, got %d", len(resultsNone))
	}
}
