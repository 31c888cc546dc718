// File: internal/health/gate.go
// Brief: Bounded fixed-interval readiness polling.

// Package health waits for a freshly started service to answer.
package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

// Default polling bounds: 60 attempts every 3 seconds, three minutes total.
const (
	DefaultInterval    = 3 * time.Second
	DefaultMaxAttempts = 60
)

// Outcome of a gate wait.
type Outcome string

const (
	Ready   Outcome = "ready"
	Timeout Outcome = "timeout"
)

// Result describes how a wait ended.
type Result struct {
	Outcome  Outcome
	Attempts int
	Elapsed  time.Duration
	// LastErr is the last probe failure, if any.
	LastErr error
}

// Probe is a single readiness check; nil means the target is ready.
type Probe interface {
	Check(ctx context.Context) error
	String() string
}

// Gate polls a probe at a fixed interval up to MaxAttempts times.
type Gate struct {
	Interval    time.Duration
	MaxAttempts int
	Clock       clock.Clock
	Log         logr.Logger
}

// Await polls probe until it succeeds or MaxAttempts failures were observed.
// The gate sleeps Interval after every failed attempt, so a timeout takes
// MaxAttempts*Interval. The returned error is non-nil only when ctx ends.
func (g Gate) Await(ctx context.Context, probe Probe) (Result, error) {
	interval := g.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	clk := g.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	start := clk.Now()
	var res Result
	for res.Attempts < attempts {
		res.Attempts++
		err := probe.Check(ctx)
		if err == nil {
			res.Outcome = Ready
			res.LastErr = nil
			res.Elapsed = clk.Since(start)
			g.Log.V(1).Info("probe ready", "probe", probe.String(), "attempt", res.Attempts)
			return res, nil
		}
		res.LastErr = err
		g.Log.V(1).Info("probe not ready", "probe", probe.String(), "attempt", res.Attempts, "max", attempts, "error", err.Error())

		timer := clk.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			res.Elapsed = clk.Since(start)
			return res, ctx.Err()
		case <-timer.C():
		}
	}
	res.Outcome = Timeout
	res.Elapsed = clk.Since(start)
	return res, nil
}

// FuncProbe adapts a function into a Probe.
type FuncProbe struct {
	Name string
	Fn   func(ctx context.Context) error
}

func (p FuncProbe) Check(ctx context.Context) error { return p.Fn(ctx) }
func (p FuncProbe) String() string                  { return p.Name }

// HTTPProbe treats any response below 500 as ready: the front proxy may
// answer 401 or a redirect before the app is fully warm, which still proves
// the stack is serving.
type HTTPProbe struct {
	URL    string
	Client *http.Client
}

func (p HTTPProbe) String() string { return p.URL }

func (p HTTPProbe) Check(ctx context.Context) error {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("GET %s: %s", p.URL, resp.Status)
	}
	return nil
}
