// Command loadtest drives the recommender's suggestion and search endpoints
// with concurrent synthetic users and reports latency percentiles, status
// codes and the distribution of suggestion tiers.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Users       int
	Duration    time.Duration
	Queries     []string
	Documents   []string
}

// Endpoint names a request kind in the report.
type Endpoint string

const (
	EndpointSuggestions Endpoint = "suggestions"
	EndpointSearch      Endpoint = "search"
	EndpointActivity    Endpoint = "activity"
)

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cachedCount   atomic.Int64
	degradedCount atomic.Int64

	mu          sync.Mutex
	latencies   map[Endpoint][]time.Duration
	statusCodes map[int]int64
	tiers       map[string]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make(map[Endpoint][]time.Duration),
		statusCodes: make(map[int]int64),
		tiers:       make(map[string]int64),
	}
}

func (s *Stats) RecordRequest(ep Endpoint, duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}
	s.mu.Lock()
	s.latencies[ep] = append(s.latencies[ep], duration)
	s.statusCodes[statusCode]++
	s.mu.Unlock()
}

func (s *Stats) RecordSuggestion(tier string, degraded, cached bool) {
	if degraded {
		s.degradedCount.Add(1)
	}
	if cached {
		s.cachedCount.Add(1)
	}
	s.mu.Lock()
	s.tiers[tier]++
	s.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the recommender")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	users := flag.Int("users", 50, "number of synthetic users")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Users:       *users,
		Duration:    *duration,
		Queries: []string{
			"quarterly revenue",
			"budget forecast",
			"leave policy",
			"onboarding checklist",
			"incident runbook",
			"sales pipeline",
			"contract template",
			"release notes",
			"security audit",
			"expense report",
		},
		Documents: []string{"doc-1", "doc-2", "doc-3", "doc-4", "doc-5", "doc-6", "doc-7", "doc-8"},
	}
	if cfg.Users < 1 {
		cfg.Users = 1
	}

	fmt.Println("=== DocGenius Recommender Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Users:       %d\n", cfg.Users)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := workerID; ; i++ {
				select {
				case <-ctx.Done():
					return
				default:
				}
				user := fmt.Sprintf("loadtest-user-%d", i%cfg.Users)
				// view, suggest, search in rotation so suggestions move
				// through the tiers as history accumulates
				switch i % 3 {
				case 0:
					doc := cfg.Documents[i%len(cfg.Documents)]
					body, _ := json.Marshal(map[string]string{"documentId": doc, "activityType": "view"})
					call(ctx, client, stats, EndpointActivity, http.MethodPost, cfg.BaseURL+"/api/v1/activities", user, body)
				case 1:
					call(ctx, client, stats, EndpointSuggestions, http.MethodGet, cfg.BaseURL+"/api/v1/suggestions/personalized", user, nil)
				default:
					q := cfg.Queries[i%len(cfg.Queries)]
					call(ctx, client, stats, EndpointSearch, http.MethodGet,
						fmt.Sprintf("%s/api/v1/search?q=%s", cfg.BaseURL, url.QueryEscape(q)), user, nil)
				}
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

func call(ctx context.Context, client *http.Client, stats *Stats, ep Endpoint, method, target, user string, body []byte) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	req.Header.Set("X-User-ID", user)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			stats.RecordRequest(ep, duration, 0, err)
		}
		return
	}
	defer resp.Body.Close()

	if ep == EndpointSuggestions && resp.StatusCode == http.StatusOK {
		var payload struct {
			Tier     string `json:"tier"`
			Degraded bool   `json:"degraded"`
			Cached   bool   `json:"cached"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
			stats.RecordSuggestion(payload.Tier, payload.Degraded, payload.Cached)
		}
	}
	io.Copy(io.Discard, resp.Body)
	stats.RecordRequest(ep, duration, resp.StatusCode, nil)
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(errors)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.mu.Lock()
	defer stats.mu.Unlock()

	endpoints := make([]string, 0, len(stats.latencies))
	for ep := range stats.latencies {
		endpoints = append(endpoints, string(ep))
	}
	sort.Strings(endpoints)
	for _, ep := range endpoints {
		latencies := append([]time.Duration(nil), stats.latencies[Endpoint(ep)]...)
		if len(latencies) == 0 {
			continue
		}
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		var sumSquared float64
		for _, l := range latencies {
			diff := float64(l) - float64(avg)
			sumSquared += diff * diff
		}
		stddev := time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))

		fmt.Println()
		fmt.Printf("=== Latency: %s (%d requests) ===\n", ep, len(latencies))
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
		fmt.Printf("StdDev: %s\n", stddev)
	}

	if len(stats.tiers) > 0 {
		fmt.Println()
		fmt.Println("=== Suggestion Tiers ===")
		tiers := make([]string, 0, len(stats.tiers))
		for tier := range stats.tiers {
			tiers = append(tiers, tier)
		}
		sort.Strings(tiers)
		for _, tier := range tiers {
			fmt.Printf("  %-12s %d\n", tier, stats.tiers[tier])
		}
		fmt.Printf("  degraded     %d\n", stats.degradedCount.Load())
		fmt.Printf("  cached       %d\n", stats.cachedCount.Load())
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code])
	}

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the recommender running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
