package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FranksOps/endpoints/internal/analyzer"
	"github.com/FranksOps/endpoints/internal/report"
	"github.com/FranksOps/endpoints/internal/scanner"
	"github.com/spf13/viper"
)

const testHAR = `{"log":{"entries":[
  {"request":{"url":"https://site.test/page"},
   "response":{"headers":[{"name":"Content-Type","value":"text/html; charset=utf-8"}],
               "content":{"mimeType":"text/html","text":"<a href='/api/v1/users'>x</a> see http://other.test/ok?;"}}},
  {"request":{"url":"https://site.test/page"},
   "response":{"headers":[],
               "content":{"mimeType":"application/json","text":"{\"next\":\"/api/v1/users\"}"}}}
]}}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestRunScan(t *testing.T) {
	harPath := writeFile(t, "capture.har", testHAR)
	rawPath := writeFile(t, "resp.txt", "HTTP/1.1 200 OK\r\nContent-Type: application/javascript\r\n\r\nfetch('https://api.test/v1')")
	csvPath := filepath.Join(t.TempDir(), "endpoints.csv")

	opts := scanOptions{
		HARFiles: []string{harPath},
		Raw:      []string{"https://site.test/app.js=" + rawPath},
		Scanner:  scanner.DefaultConfig(),
		Sinks:    []sinkSpec{{Kind: "csv", Target: csvPath}},
		Report:   "json",
		Top:      10,
	}

	var out bytes.Buffer
	if err := runScan(context.Background(), opts, &out, slog.Default()); err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	var summary report.Summary
	if err := json.Unmarshal(out.Bytes(), &summary); err != nil {
		t.Fatalf("failed to decode report: %v\n%s", err, out.String())
	}
	if summary.ProcessedItems != 3 || summary.UniqueEndpoints != 3 {
		t.Errorf("expected 3 items and 3 endpoints, got %+v", summary)
	}
	if len(summary.TopEndpoints) == 0 || summary.TopEndpoints[0].EndpointURL != "https://site.test/api/v1/users" || summary.TopEndpoints[0].Count != 2 {
		t.Errorf("expected users endpoint first with count 2, got %+v", summary.TopEndpoints)
	}

	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Errorf("expected header plus 3 rows, got %d lines:\n%s", len(lines), data)
	}
}

func TestRunScan_FilterLimitsExport(t *testing.T) {
	harPath := writeFile(t, "capture.har", testHAR)
	jsonPath := filepath.Join(t.TempDir(), "endpoints.ndjson")

	opts := scanOptions{
		HARFiles: []string{harPath},
		Scanner:  scanner.DefaultConfig(),
		Sinks:    []sinkSpec{{Kind: "json", Target: jsonPath}},
		Filter:   "other.test",
		Report:   "none",
	}

	var out bytes.Buffer
	if err := runScan(context.Background(), opts, &out, slog.Default()); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no report output, got %q", out.String())
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	if n := strings.Count(string(data), "\n"); n != 1 {
		t.Errorf("expected 1 filtered record, got %d", n)
	}
}

func TestRunScan_MissingFileFails(t *testing.T) {
	opts := scanOptions{
		HARFiles: []string{filepath.Join(t.TempDir(), "missing.har")},
		Scanner:  scanner.DefaultConfig(),
		Report:   "none",
	}
	if err := runScan(context.Background(), opts, &bytes.Buffer{}, slog.Default()); err == nil {
		t.Errorf("expected failure for missing har file")
	}
}

func TestResolveScanOptions(t *testing.T) {
	v := viper.New()
	cmd := newScanCmd(v)
	if err := cmd.Flags().Parse([]string{"--batch-size", "7", "--out", "csv:a.csv", "--out", "xlsx:b.xlsx", "--script-calls", "--skip-regex-literals"}); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		t.Fatalf("failed to bind flags: %v", err)
	}

	opts, err := resolveScanOptions(v, []string{"x.har"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Scanner.BatchSize != 7 {
		t.Errorf("expected batch size 7, got %d", opts.Scanner.BatchSize)
	}
	if opts.Scanner.MaxResponseBytes != scanner.DefaultMaxResponseBytes {
		t.Errorf("expected default max response bytes, got %d", opts.Scanner.MaxResponseBytes)
	}
	want := analyzer.Options{ScriptCalls: true, SkipRegexLiterals: true}
	if opts.Scanner.Extract != want {
		t.Errorf("unexpected extract options %+v", opts.Scanner.Extract)
	}
	if len(opts.Sinks) != 2 || opts.Sinks[1].Kind != "xlsx" {
		t.Errorf("unexpected sinks %v", opts.Sinks)
	}
	if opts.Report != "text" {
		t.Errorf("expected default text report, got %q", opts.Report)
	}

	if _, err := resolveScanOptions(v, nil); err == nil {
		t.Errorf("expected error without inputs")
	}
}

func TestResolveScanOptions_Env(t *testing.T) {
	t.Setenv("ENDPOINTS_BATCH_SIZE", "3")
	t.Setenv("ENDPOINTS_REPORT", "HTML")

	root := newRootCmd()
	scan, _, err := root.Find([]string{"scan"})
	if err != nil {
		t.Fatalf("failed to find scan command: %v", err)
	}
	if err := scan.ParseFlags(nil); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}

	v := viper.New()
	if err := loadConfig(v, scan); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	opts, err := resolveScanOptions(v, []string{"x.har"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Scanner.BatchSize != 3 || opts.Report != "html" {
		t.Errorf("expected env overrides, got batch=%d report=%q", opts.Scanner.BatchSize, opts.Report)
	}
}

func TestResolveScanOptions_ConfigFile(t *testing.T) {
	cfgPath := writeFile(t, "endpoints.yaml", "max-response-bytes: 1024\nreport: bogus\n")

	root := newRootCmd()
	scan, _, err := root.Find([]string{"scan"})
	if err != nil {
		t.Fatalf("failed to find scan command: %v", err)
	}
	if err := scan.ParseFlags([]string{"--config", cfgPath}); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}

	v := viper.New()
	if err := loadConfig(v, scan); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if got := v.GetInt("max-response-bytes"); got != 1024 {
		t.Errorf("expected 1024 from config file, got %d", got)
	}
	if _, err := resolveScanOptions(v, []string{"x.har"}); err == nil {
		t.Errorf("expected bogus report format to be rejected")
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := newLogger("debug"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := newLogger("loud"); err == nil {
		t.Errorf("expected error for unknown level")
	}
}
