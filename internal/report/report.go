package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/FranksOps/endpoints/internal/endpoint"
	"github.com/FranksOps/endpoints/internal/storage"
)

// HostCount aggregates the records of one host.
type HostCount struct {
	Host      string `json:"host"`
	Endpoints int    `json:"endpoints"`
	Hits      int    `json:"hits"`
}

// Summary contains aggregated figures about one scan.
type Summary struct {
	ScanID          string            `json:"scan_id"`
	Stopped         bool              `json:"stopped"`
	TotalItems      int               `json:"total_items"`
	ProcessedItems  int               `json:"processed_items"`
	ErrorCount      int               `json:"error_count"`
	TotalCandidates int               `json:"total_candidates"`
	UniqueEndpoints int               `json:"unique_endpoints"`
	TotalHits       int               `json:"total_hits"`
	Duration        time.Duration     `json:"duration"`
	FirstSeen       time.Time         `json:"first_seen"`
	LastSeen        time.Time         `json:"last_seen"`
	Hosts           []HostCount       `json:"hosts"`
	TopEndpoints    []endpoint.Record `json:"top_endpoints"`
}

// Summarize combines a scan result with its records. Hosts are ordered by
// endpoint count descending then name; at most topN endpoints are kept
// (topN <= 0 keeps all).
func Summarize(res endpoint.ScanResult, records []endpoint.Record, topN int) Summary {
	s := Summary{
		ScanID:          res.ID,
		Stopped:         res.Stopped,
		TotalItems:      res.TotalItems,
		ProcessedItems:  res.ProcessedItems,
		ErrorCount:      res.ErrorCount,
		TotalCandidates: res.TotalCandidates,
		UniqueEndpoints: res.UniqueEndpoints,
		Duration:        time.Duration(res.DurationMS) * time.Millisecond,
		Hosts:           []HostCount{},
	}

	byHost := make(map[string]*HostCount)
	var first, last int64
	for _, r := range records {
		s.TotalHits += r.Count

		h, ok := byHost[r.Host]
		if !ok {
			h = &HostCount{Host: r.Host}
			byHost[r.Host] = h
		}
		h.Endpoints++
		h.Hits += r.Count

		if first == 0 || (r.FirstSeenAt > 0 && r.FirstSeenAt < first) {
			first = r.FirstSeenAt
		}
		if r.LastSeenAt > last {
			last = r.LastSeenAt
		}
	}
	if first > 0 {
		s.FirstSeen = time.UnixMilli(first).UTC()
	}
	if last > 0 {
		s.LastSeen = time.UnixMilli(last).UTC()
	}

	for _, h := range byHost {
		s.Hosts = append(s.Hosts, *h)
	}
	slices.SortFunc(s.Hosts, func(a, b HostCount) int {
		if a.Endpoints != b.Endpoints {
			return b.Endpoints - a.Endpoints
		}
		return strings.Compare(a.Host, b.Host)
	})

	s.TopEndpoints = storage.Select(records, storage.Filter{Limit: topN})
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode json report: %w", err)
	}
	return nil
}

const textTmpl = `Endpoint Scan Summary
---------------------
Scan:          {{.ScanID}}{{if .Stopped}} (stopped){{end}}
Duration:      {{.Duration}}
Items:         {{.ProcessedItems}}/{{.TotalItems}}
Errors:        {{.ErrorCount}}
Candidates:    {{.TotalCandidates}}
Unique:        {{.UniqueEndpoints}} endpoints, {{.TotalHits}} hits
{{- if not .FirstSeen.IsZero}}
Seen:          {{.FirstSeen.Format "2006-01-02 15:04:05"}} - {{.LastSeen.Format "2006-01-02 15:04:05"}}
{{- end}}

Hosts:
{{- range .Hosts}}
  {{.Host}}: {{.Endpoints}} endpoints, {{.Hits}} hits
{{- else}}
  None
{{- end}}

Top Endpoints:
{{- range .TopEndpoints}}
  {{printf "%5d" .Count}}  {{.EndpointURL}}
{{- else}}
  None
{{- end}}
`

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse text report: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render text report: %w", err)
	}

	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Endpoint Scan Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Endpoint Scan Report</h1>
  <p><strong>Scan:</strong> {{.ScanID}}{{if .Stopped}} (stopped){{end}} ({{.Duration}})</p>

  <div class="stat-card">
    <div>Items</div>
    <div class="stat-val">{{.ProcessedItems}}/{{.TotalItems}}</div>
  </div>
  <div class="stat-card">
    <div>Errors</div>
    <div class="stat-val" style="color: {{if gt .ErrorCount 0}}red{{else}}green{{end}};">{{.ErrorCount}}</div>
  </div>
  <div class="stat-card">
    <div>Unique Endpoints</div>
    <div class="stat-val">{{.UniqueEndpoints}}</div>
  </div>
  <div class="stat-card">
    <div>Candidates</div>
    <div class="stat-val">{{.TotalCandidates}}</div>
  </div>

  <h3>Hosts</h3>
  <table>
    <tr><th>Host</th><th>Endpoints</th><th>Hits</th></tr>
    {{- range .Hosts}}
    <tr><td>{{.Host}}</td><td>{{.Endpoints}}</td><td>{{.Hits}}</td></tr>
    {{- else}}
    <tr><td colspan="3">None</td></tr>
    {{- end}}
  </table>

  <h3>Top Endpoints</h3>
  <table>
    <tr><th>Endpoint</th><th>Count</th><th>Source</th></tr>
    {{- range .TopEndpoints}}
    <tr><td>{{.EndpointURL}}</td><td>{{.Count}}</td><td>{{.SourceURL}}</td></tr>
    {{- else}}
    <tr><td colspan="3">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`

// WriteHTML writes a basic HTML report to the provided writer. Endpoint
// values come from untrusted responses, so the html/template escaper is used.
func WriteHTML(w io.Writer, summary Summary) error {
	t, err := htmltemplate.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("parse html report: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}

	return nil
}
