package scanner

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"testing"

	"github.com/FranksOps/endpoints/internal/endpoint"
	"github.com/FranksOps/endpoints/internal/inventory"
)

// fakeAdapter resolves string messages through a lookup table.
type fakeAdapter struct {
	payloads map[string]endpoint.Payload
	onCall   func(n int)
	calls    int
}

func (a *fakeAdapter) Resolve(msg any) (endpoint.Payload, bool, error) {
	a.calls++
	if a.onCall != nil {
		a.onCall(a.calls)
	}
	key, ok := msg.(string)
	if !ok {
		return endpoint.Payload{}, false, errors.New("unsupported message")
	}
	switch key {
	case "no-response":
		return endpoint.Payload{}, false, nil
	case "boom":
		panic("decoder exploded")
	case "broken":
		return endpoint.Payload{}, false, errors.New("cannot decode")
	}
	p, ok := a.payloads[key]
	if !ok {
		return endpoint.Payload{}, false, errors.New("unknown message " + key)
	}
	return p, true, nil
}

var examplePayload = endpoint.Payload{
	SourceURL:    "https://site.test/page",
	ContentType:  "text/html",
	ResponseText: `<a href='/api/v1/users'>x</a> see http://other.test/ok?;`,
}

func newTestScanner(cfg Config, adapter MessageAdapter) *Scanner {
	return New(cfg, inventory.New(), adapter, slog.Default())
}

func sortedURLs(records []endpoint.Record) []string {
	urls := make([]string, 0, len(records))
	for _, r := range records {
		urls = append(urls, r.EndpointURL)
	}
	sort.Strings(urls)
	return urls
}

func TestScan_Example(t *testing.T) {
	s := newTestScanner(DefaultConfig(), nil)
	res := s.Scan(context.Background(), []endpoint.Item{endpoint.PayloadItem(examplePayload)}, nil)

	if res.TotalItems != 1 || res.ProcessedItems != 1 {
		t.Errorf("expected 1/1 items, got %d/%d", res.ProcessedItems, res.TotalItems)
	}
	if res.TotalCandidates != 2 {
		t.Errorf("expected 2 candidates, got %d", res.TotalCandidates)
	}
	if res.UniqueEndpoints != 2 || res.ErrorCount != 0 {
		t.Errorf("expected 2 unique and no errors, got %d unique %d errors", res.UniqueEndpoints, res.ErrorCount)
	}
	if res.ID == "" {
		t.Errorf("expected a scan id")
	}
	if res.Stopped {
		t.Errorf("expected scan not to be stopped")
	}

	records := s.Records()
	got := sortedURLs(records)
	want := []string{"http://other.test/ok", "https://site.test/api/v1/users"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
	for _, r := range records {
		if r.Count != 1 {
			t.Errorf("expected count 1 for %s, got %d", r.EndpointURL, r.Count)
		}
		if r.SourceURL != examplePayload.SourceURL {
			t.Errorf("expected source %s, got %s", examplePayload.SourceURL, r.SourceURL)
		}
		wantHost := "site.test"
		if strings.HasPrefix(r.EndpointURL, "http://other.test") {
			wantHost = "other.test"
		}
		if r.Host != wantHost {
			t.Errorf("expected host %s for %s, got %s", wantHost, r.EndpointURL, r.Host)
		}
	}
}

func TestScan_UnicodeSpaceEndsURL(t *testing.T) {
	for _, sep := range []string{"\u00a0", "\v", "\u3000"} {
		s := newTestScanner(DefaultConfig(), nil)
		p := endpoint.Payload{
			SourceURL:    "https://site.test/page",
			ContentType:  "text/plain",
			ResponseText: "see http://other.test/ok" + sep + "next and /api/v1" + sep + "x",
		}
		res := s.Scan(context.Background(), []endpoint.Item{endpoint.PayloadItem(p)}, nil)

		if res.TotalCandidates != 2 || res.UniqueEndpoints != 2 {
			t.Errorf("separator %q: expected 2 candidates and 2 endpoints, got %d and %d", sep, res.TotalCandidates, res.UniqueEndpoints)
		}
		got := strings.Join(sortedURLs(s.Records()), ",")
		if want := "http://other.test/ok,https://site.test/api/v1"; got != want {
			t.Errorf("separator %q: expected %s, got %s", sep, want, got)
		}
	}
}

func TestScan_DuplicateItemCountsTwice(t *testing.T) {
	s := newTestScanner(DefaultConfig(), nil)
	item := endpoint.PayloadItem(examplePayload)
	res := s.Scan(context.Background(), []endpoint.Item{item, item}, nil)

	if res.UniqueEndpoints != 2 {
		t.Errorf("expected 2 unique endpoints, got %d", res.UniqueEndpoints)
	}
	if res.TotalCandidates != 4 {
		t.Errorf("expected 4 raw candidates, got %d", res.TotalCandidates)
	}
	for _, r := range s.Records() {
		if r.Count != 2 {
			t.Errorf("expected count 2 for %s, got %d", r.EndpointURL, r.Count)
		}
	}
}

func TestScan_UnsupportedContentType(t *testing.T) {
	s := newTestScanner(DefaultConfig(), nil)
	p := examplePayload
	p.ContentType = "application/octet-stream"
	res := s.Scan(context.Background(), []endpoint.Item{endpoint.PayloadItem(p)}, nil)

	if res.TotalCandidates != 0 || res.ErrorCount != 0 || res.UniqueEndpoints != 0 {
		t.Errorf("expected nothing found, got %+v", res)
	}
	if res.ProcessedItems != 1 {
		t.Errorf("expected item to count as processed, got %d", res.ProcessedItems)
	}
}

func TestScan_SizeBoundary(t *testing.T) {
	// five bytes but four characters
	body := `"/é"`
	p := endpoint.Payload{SourceURL: "https://site.test/", ContentType: "text/plain", ResponseText: body}

	atLimit := newTestScanner(Config{BatchSize: 10, MaxResponseBytes: len(body)}, nil)
	res := atLimit.Scan(context.Background(), []endpoint.Item{endpoint.PayloadItem(p)}, nil)
	if res.TotalCandidates != 1 || res.UniqueEndpoints != 1 {
		t.Errorf("expected body at the limit to be scanned, got %+v", res)
	}

	overLimit := newTestScanner(Config{BatchSize: 10, MaxResponseBytes: len(body) - 1}, nil)
	res = overLimit.Scan(context.Background(), []endpoint.Item{endpoint.PayloadItem(p)}, nil)
	if res.TotalCandidates != 0 || res.UniqueEndpoints != 0 || res.ErrorCount != 0 {
		t.Errorf("expected oversized body to be skipped silently, got %+v", res)
	}
	if res.ProcessedItems != 1 {
		t.Errorf("expected skipped item to count as processed, got %d", res.ProcessedItems)
	}
}

func TestScan_StopBeforeStart(t *testing.T) {
	s := newTestScanner(DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	res := s.Scan(ctx, []endpoint.Item{endpoint.PayloadItem(examplePayload)}, func(endpoint.Progress) { calls++ })

	if res.ProcessedItems != 0 {
		t.Errorf("expected 0 processed items, got %d", res.ProcessedItems)
	}
	if res.TotalItems != 1 {
		t.Errorf("expected total items 1, got %d", res.TotalItems)
	}
	if len(s.Records()) != 0 {
		t.Errorf("expected empty store")
	}
	if !res.Stopped {
		t.Errorf("expected result to be marked stopped")
	}
	if calls != 0 {
		t.Errorf("expected no progress calls, got %d", calls)
	}
}

func TestScan_StopMidBatchFinishesCurrentItem(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adapter := &fakeAdapter{
		payloads: map[string]endpoint.Payload{"page": examplePayload},
		onCall: func(n int) {
			if n == 3 {
				cancel()
			}
		},
	}
	s := newTestScanner(Config{BatchSize: 2}, adapter)

	items := make([]endpoint.Item, 5)
	for i := range items {
		items[i] = endpoint.MessageItem("page")
	}

	var snapshots []endpoint.Progress
	res := s.Scan(ctx, items, func(p endpoint.Progress) { snapshots = append(snapshots, p) })

	if res.ProcessedItems != 3 {
		t.Errorf("expected 3 processed items, got %d", res.ProcessedItems)
	}
	if adapter.calls != 3 {
		t.Errorf("expected 3 resolved items, got %d", adapter.calls)
	}
	if !res.Stopped {
		t.Errorf("expected result to be marked stopped")
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 progress snapshots, got %d", len(snapshots))
	}
	if snapshots[1].ProcessedItems != 3 || snapshots[1].TotalItems != 5 {
		t.Errorf("unexpected final snapshot %+v", snapshots[1])
	}
	for _, r := range s.Records() {
		if r.Count != 3 {
			t.Errorf("expected count 3 for %s, got %d", r.EndpointURL, r.Count)
		}
	}
}

func TestScan_ItemErrorsAreIsolated(t *testing.T) {
	adapter := &fakeAdapter{payloads: map[string]endpoint.Payload{"page": examplePayload}}
	s := newTestScanner(DefaultConfig(), adapter)

	items := []endpoint.Item{
		endpoint.MessageItem("broken"),
		endpoint.MessageItem("boom"),
		endpoint.MessageItem("page"),
		endpoint.MessageItem(12345),
		endpoint.MessageItem("no-response"),
		{},
	}
	res := s.Scan(context.Background(), items, nil)

	if res.ErrorCount != 3 {
		t.Errorf("expected 3 errors, got %d", res.ErrorCount)
	}
	if res.ProcessedItems != len(items) {
		t.Errorf("expected %d processed items, got %d", len(items), res.ProcessedItems)
	}
	if res.UniqueEndpoints != 2 {
		t.Errorf("expected good item to be scanned, got %d unique", res.UniqueEndpoints)
	}
}

func TestScan_AllItemsFail(t *testing.T) {
	adapter := &fakeAdapter{}
	s := newTestScanner(Config{BatchSize: 2}, adapter)
	items := []endpoint.Item{
		endpoint.MessageItem("broken"),
		endpoint.MessageItem("boom"),
		endpoint.MessageItem("broken"),
	}
	res := s.Scan(context.Background(), items, nil)

	if res.ErrorCount != res.ProcessedItems || res.ProcessedItems != 3 {
		t.Errorf("expected every processed item to fail, got %+v", res)
	}
	if res.UniqueEndpoints != 0 {
		t.Errorf("expected no endpoints, got %d", res.UniqueEndpoints)
	}
}

func TestScan_MessageWithoutAdapter(t *testing.T) {
	s := newTestScanner(DefaultConfig(), nil)
	res := s.Scan(context.Background(), []endpoint.Item{endpoint.MessageItem("raw")}, nil)
	if res.ErrorCount != 1 || res.ProcessedItems != 1 {
		t.Errorf("expected one counted error, got %+v", res)
	}
}

func TestScan_ProgressSnapshots(t *testing.T) {
	s := newTestScanner(Config{BatchSize: 2}, nil)
	items := []endpoint.Item{
		endpoint.PayloadItem(examplePayload),
		endpoint.PayloadItem(examplePayload),
		endpoint.PayloadItem(examplePayload),
	}

	var snapshots []endpoint.Progress
	s.Scan(context.Background(), items, func(p endpoint.Progress) { snapshots = append(snapshots, p) })

	want := []endpoint.Progress{
		{TotalItems: 3, ProcessedItems: 2, ErrorCount: 0, UniqueEndpoints: 2},
		{TotalItems: 3, ProcessedItems: 3, ErrorCount: 0, UniqueEndpoints: 2},
	}
	if len(snapshots) != len(want) {
		t.Fatalf("expected %d snapshots, got %d", len(want), len(snapshots))
	}
	for i := range want {
		if snapshots[i] != want[i] {
			t.Errorf("snapshot %d: expected %+v, got %+v", i, want[i], snapshots[i])
		}
	}
}

func TestScan_NonPositiveBatchSizeIsOneBatch(t *testing.T) {
	for _, size := range []int{0, -5} {
		s := newTestScanner(Config{BatchSize: size}, nil)
		items := []endpoint.Item{endpoint.PayloadItem(examplePayload), endpoint.PayloadItem(examplePayload), endpoint.PayloadItem(examplePayload)}

		calls := 0
		res := s.Scan(context.Background(), items, func(endpoint.Progress) { calls++ })
		if calls != 1 {
			t.Errorf("batch size %d: expected 1 progress call, got %d", size, calls)
		}
		if res.ProcessedItems != 3 {
			t.Errorf("batch size %d: expected 3 processed, got %d", size, res.ProcessedItems)
		}
	}
}

func TestScan_ProgressPanicIsContained(t *testing.T) {
	s := newTestScanner(Config{BatchSize: 1}, nil)
	items := []endpoint.Item{endpoint.PayloadItem(examplePayload), endpoint.PayloadItem(examplePayload)}

	res := s.Scan(context.Background(), items, func(endpoint.Progress) { panic("ui gone") })
	if res.ProcessedItems != 2 || res.ErrorCount != 0 {
		t.Errorf("expected scan to complete cleanly, got %+v", res)
	}
}

func TestScan_ClearsPreviousInventory(t *testing.T) {
	s := newTestScanner(DefaultConfig(), nil)
	s.Scan(context.Background(), []endpoint.Item{endpoint.PayloadItem(examplePayload)}, nil)

	other := endpoint.Payload{SourceURL: "https://b.test/", ContentType: "application/json", ResponseText: `{"next":"/v2/next"}`}
	res := s.Scan(context.Background(), []endpoint.Item{endpoint.PayloadItem(other)}, nil)

	if res.UniqueEndpoints != 1 {
		t.Errorf("expected only the second scan's endpoint, got %d", res.UniqueEndpoints)
	}
	got := sortedURLs(s.Records())
	if len(got) != 1 || got[0] != "https://b.test/v2/next" {
		t.Errorf("unexpected records %v", got)
	}
}

func TestScan_EmptyInput(t *testing.T) {
	s := newTestScanner(DefaultConfig(), nil)
	calls := 0
	res := s.Scan(context.Background(), nil, func(endpoint.Progress) { calls++ })
	if res.TotalItems != 0 || res.ProcessedItems != 0 || calls != 0 {
		t.Errorf("expected empty result without progress, got %+v calls=%d", res, calls)
	}
}

func TestScan_RecordsAreSnapshots(t *testing.T) {
	s := newTestScanner(DefaultConfig(), nil)
	s.Scan(context.Background(), []endpoint.Item{endpoint.PayloadItem(examplePayload)}, nil)

	records := s.Records()
	records[0].Count = 50
	for _, r := range s.Records() {
		if r.Count != 1 {
			t.Errorf("expected stored count 1, got %d", r.Count)
		}
	}
}
