package endpoint

import "strings"

// MatchType tells which extraction pattern produced a candidate. It selects
// the normalization path downstream.
type MatchType string

const (
	// MatchAbsolute is an http(s) URL used as is.
	MatchAbsolute MatchType = "absolute"
	// MatchRelative is a rooted path resolved against the source URL.
	MatchRelative MatchType = "relative"
)

// Candidate is a syntactically plausible but unvalidated endpoint string
// found in a response body.
type Candidate struct {
	RawValue    string    `json:"raw_value"`
	SourceURL   string    `json:"source_url"`
	ContentType string    `json:"content_type"`
	MatchType   MatchType `json:"match_type"`
}

// Record is the aggregate kept for one canonical endpoint URL.
// Host and SourceURL are the values seen at first sighting.
type Record struct {
	EndpointURL string `json:"endpoint_url"`
	Host        string `json:"host"`
	SourceURL   string `json:"source_url"`
	Count       int    `json:"count"`
	FirstSeenAt int64  `json:"first_seen_at"` // unix millis
	LastSeenAt  int64  `json:"last_seen_at"`  // unix millis
}

// ScanResult summarizes one completed or stopped scan.
type ScanResult struct {
	ID              string `json:"id"`
	TotalItems      int    `json:"total_items"`
	ProcessedItems  int    `json:"processed_items"`
	TotalCandidates int    `json:"total_candidates"`
	UniqueEndpoints int    `json:"unique_endpoints"`
	ErrorCount      int    `json:"error_count"`
	DurationMS      int64  `json:"duration_ms"`
	Stopped         bool   `json:"stopped"`
}

// Progress is the snapshot handed to progress callbacks after each batch.
type Progress struct {
	TotalItems      int `json:"total_items"`
	ProcessedItems  int `json:"processed_items"`
	ErrorCount      int `json:"error_count"`
	UniqueEndpoints int `json:"unique_endpoints"`
}

// Filter returns the records whose endpoint, host or source URL contains
// keyword, ignoring case. An empty keyword matches everything. The returned
// slice never aliases records.
func Filter(records []Record, keyword string) []Record {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if keyword == "" || r.matches(keyword) {
			out = append(out, r)
		}
	}
	return out
}

func (r Record) matches(lowerKeyword string) bool {
	haystack := strings.ToLower(r.EndpointURL + " " + r.Host + " " + r.SourceURL)
	return strings.Contains(haystack, lowerKeyword)
}
