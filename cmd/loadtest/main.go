// Command loadtest drives the search API with a mix of query types and
// reports throughput, latency percentiles and the result cache hit rate.
// With -seed it first indexes synthetic documents so a fresh service has
// something to search.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Queries     []json.RawMessage
}

// defaultQueries exercises every scoring path of the engine against the
// documents produced by seedDocument.
var defaultQueries = []string{
	`{"query": {"term": {"field": "body", "value": "engine"}}}`,
	`{"query": {"match": {"field": "body", "text": "fast search engine"}}}`,
	`{"query": {"bool": {"must": [{"term": {"field": "body", "value": "index"}}], "must_not": [{"term": {"field": "body", "value": "slow"}}]}}}`,
	`{"query": {"dis_max": {"queries": [{"term": {"field": "title", "value": "cache"}}, {"term": {"field": "body", "value": "cache"}}], "tie_breaker": 0.1}}}`,
	`{"query": {"phrase": {"field": "body", "text": "search engine", "slop": 2}}}`,
	`{"query": {"prefix": {"field": "body", "value": "seg"}}}`,
	`{"query": {"wildcard": {"field": "body", "value": "sc?r*"}}}`,
	`{"query": {"fuzzy": {"field": "body", "value": "serch", "max_edits": 1}}}`,
	`{"query": {"numeric_range": {"field": "rank", "type": "long", "min": 100, "max": 500}}}`,
	`{"query": {"match_all": {}}, "sort": [{"field": "rank", "type": "long", "reverse": true}], "size": 20}`,
	`{"query": {"term": {"field": "body", "value": "query"}}, "filter": {"numeric_range": {"field": "rank", "type": "long", "min": 0, "max": 250}}, "cache_filter": true}`,
}

var words = []string{
	"search", "engine", "index", "segment", "query", "score", "cache", "filter",
	"fast", "slow", "term", "phrase", "merge", "reader", "writer", "posting",
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	throttled     atomic.Int64
	cacheHits     atomic.Int64
	mu            sync.Mutex
	latencies     []time.Duration
	statusCodes   map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, cacheHit bool, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	switch {
	case statusCode >= 200 && statusCode < 300:
		s.successCount.Add(1)
	case statusCode == http.StatusTooManyRequests:
		s.throttled.Add(1)
	default:
		s.errorCount.Add(1)
	}
	if cacheHit {
		s.cacheHits.Add(1)
	}

	s.mu.Lock()
	s.latencies = append(s.latencies, duration)
	s.statusCodes[statusCode]++
	s.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	queryFile := flag.String("queries", "", "file with one JSON search request per line; built-in mix when empty")
	seed := flag.Int("seed", 0, "number of synthetic documents to index before the run")
	flag.Parse()

	queries, err := loadQueries(*queryFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading queries: %v\n", err)
		os.Exit(1)
	}
	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Queries:     queries,
	}
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	fmt.Println("=== Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	if *seed > 0 {
		if err := seedIndex(context.Background(), client, cfg, *seed); err != nil {
			fmt.Fprintf(os.Stderr, "seeding index: %v\n", err)
			os.Exit(1)
		}
	}
	stats := runLoadTest(client, cfg)
	if !printReport(os.Stdout, stats, cfg.Duration) {
		os.Exit(1)
	}
}

func loadQueries(path string) ([]json.RawMessage, error) {
	var lines []string
	if path == "" {
		lines = defaultQueries
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
				lines = append(lines, line)
			}
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
	}
	queries := make([]json.RawMessage, 0, len(lines))
	for i, line := range lines {
		if !json.Valid([]byte(line)) {
			return nil, fmt.Errorf("query %d is not valid JSON", i+1)
		}
		queries = append(queries, json.RawMessage(line))
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("no queries")
	}
	return queries, nil
}

// seedDocument builds a deterministic document for id.
func seedDocument(r *rand.Rand, id int) map[string]any {
	body := make([]string, 8+r.IntN(24))
	for i := range body {
		body[i] = words[r.IntN(len(words))]
	}
	return map[string]any{
		"op": "upsert",
		"id": fmt.Sprintf("doc-%d", id),
		"fields": []map[string]any{
			{"name": "title", "type": "text", "value": words[r.IntN(len(words))] + " " + words[r.IntN(len(words))], "stored": true},
			{"name": "body", "type": "text", "value": strings.Join(body, " ")},
			{"name": "rank", "type": "long", "value": r.IntN(1000)},
		},
	}
}

func seedIndex(ctx context.Context, client *http.Client, cfg Config, n int) error {
	fmt.Printf("Seeding %d documents", n)
	start := time.Now()
	var next atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Concurrency; w++ {
		r := rand.New(rand.NewPCG(uint64(w), 42))
		g.Go(func() error {
			for {
				id := int(next.Add(1))
				if id > n {
					return nil
				}
				body, err := json.Marshal(seedDocument(r, id))
				if err != nil {
					return err
				}
				status, _, err := post(ctx, client, cfg.BaseURL+"/api/v1/documents", body)
				if err != nil {
					return err
				}
				if status >= 300 {
					return fmt.Errorf("document %d: status %d", id, status)
				}
				if id%1000 == 0 {
					fmt.Print(".")
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Println()
		return err
	}
	fmt.Printf(" done in %s\n\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func post(ctx context.Context, client *http.Client, url string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

func runLoadTest(client *http.Client, cfg Config) *Stats {
	stats := NewStats()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := workerID; ctx.Err() == nil; i++ {
				query := cfg.Queries[i%len(cfg.Queries)]
				start := time.Now()
				status, body, err := post(ctx, client, cfg.BaseURL+"/api/v1/search", query)
				if ctx.Err() != nil {
					return
				}
				stats.RecordRequest(time.Since(start), status, cacheHit(body), err)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func cacheHit(body []byte) bool {
	var resp struct {
		CacheHit bool `json:"cache_hit"`
	}
	return json.Unmarshal(body, &resp) == nil && resp.CacheHit
}

// printReport writes the summary and reports whether any request completed.
func printReport(w io.Writer, stats *Stats, duration time.Duration) bool {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", success)
	fmt.Fprintf(w, "Errors:          %d\n", stats.errorCount.Load())
	fmt.Fprintf(w, "Throttled:       %d\n", stats.throttled.Load())
	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(stats.errorCount.Load())/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}
	if success > 0 {
		fmt.Fprintf(w, "Cache Hit Rate:  %.2f%%\n", float64(stats.cacheHits.Load())/float64(success)*100)
	}

	stats.mu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	counts := make(map[int]int64, len(codes))
	for _, code := range codes {
		counts[code] = stats.statusCodes[code]
	}
	stats.mu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))
		var sumSquared float64
		for _, l := range latencies {
			diff := float64(l - avg)
			sumSquared += diff * diff
		}

		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", avg)
		fmt.Fprintf(w, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(w, "P90:    %s\n", percentile(latencies, 90))
		fmt.Fprintf(w, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])
		fmt.Fprintf(w, "StdDev: %s\n", time.Duration(math.Sqrt(sumSquared/float64(len(latencies)))))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, counts[code])
	}

	if total == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "WARNING: No requests completed. Is the service running?")
		return false
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
