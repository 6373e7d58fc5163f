package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventExplain    EventType = "explain"
	EventSearchFail EventType = "search_error"
)

// SearchEvent describes one served search request.
type SearchEvent struct {
	Type EventType `json:"type"`
	// Query is the parsed query in its string form.
	Query     string `json:"query"`
	Filter    string `json:"filter,omitempty"`
	Sorted    bool   `json:"sorted"`
	TotalHits int    `json:"total_hits"`
	Returned  int    `json:"returned"`
	LatencyMs int64  `json:"latency_ms"`
	CacheHit  bool   `json:"cache_hit"`
	// Version is the index snapshot the search ran on.
	Version   int64     `json:"version"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}
