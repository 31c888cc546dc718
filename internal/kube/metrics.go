package kube

import (
	"net/http"
	"sync"
	"time"

	"k8s.io/client-go/rest"
)

// CallStats counts API requests made during one command.
type CallStats struct {
	mu       sync.Mutex
	byMethod map[string]int
	failed   int
	total    time.Duration
}

// CallSummary is a point-in-time copy of CallStats.
type CallSummary struct {
	Requests int
	Failed   int
	ByMethod map[string]int
	Total    time.Duration
}

func NewCallStats() *CallStats {
	return &CallStats{byMethod: map[string]int{}}
}

func (s *CallStats) observe(method string, d time.Duration, failed bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.byMethod[method]++
	s.total += d
	if failed {
		s.failed++
	}
	s.mu.Unlock()
}

// Summary returns the counters observed so far.
func (s *CallStats) Summary() CallSummary {
	if s == nil {
		return CallSummary{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := CallSummary{Failed: s.failed, Total: s.total, ByMethod: make(map[string]int, len(s.byMethod))}
	for m, n := range s.byMethod {
		out.ByMethod[m] = n
		out.Requests += n
	}
	return out
}

type callStatsRoundTripper struct {
	base  http.RoundTripper
	stats *CallStats
}

func (rt *callStatsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	base := rt.base
	if base == nil {
		base = http.DefaultTransport
	}
	start := time.Now()
	resp, err := base.RoundTrip(req)
	failed := err != nil || (resp != nil && resp.StatusCode >= http.StatusInternalServerError)
	rt.stats.observe(req.Method, time.Since(start), failed)
	return resp, err
}

// AttachCallStats wraps the REST config transport so every request is counted.
func AttachCallStats(cfg *rest.Config, stats *CallStats) {
	if cfg == nil || stats == nil {
		return
	}
	wrap := cfg.WrapTransport
	cfg.WrapTransport = func(rt http.RoundTripper) http.RoundTripper {
		if wrap != nil {
			rt = wrap(rt)
		}
		return &callStatsRoundTripper{base: rt, stats: stats}
	}
}
