// Package health runs liveness and readiness probes for the assistant server.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lewisedginton/organizer/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Check is a single named probe. Check returns nil when healthy.
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to Check.
type CheckFunc struct {
	name string
	fn   func(context.Context) error
}

// NewCheckFunc creates a Check named name that runs fn.
func NewCheckFunc(name string, fn func(context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

func (c *CheckFunc) Name() string                    { return c.name }
func (c *CheckFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// CheckResult is the outcome of one probe.
type CheckResult struct {
	Name    string
	Healthy bool
	Error   string
	Latency time.Duration
}

// Status aggregates the results of one probe run, sorted by name.
type Status struct {
	Healthy bool
	Checks  []CheckResult
}

// HealthChecker holds liveness and readiness checks. A readiness check only
// reports unhealthy after failureThreshold consecutive failures.
type HealthChecker struct {
	mu               sync.Mutex
	livenessChecks   []Check
	readinessChecks  []Check
	timeout          time.Duration
	failureThreshold int
	failures         map[string]int
	log              logger.Logger
}

// Option configures a HealthChecker.
type Option func(*HealthChecker)

// WithTimeout bounds every individual check. Default 5s.
func WithTimeout(d time.Duration) Option {
	return func(h *HealthChecker) { h.timeout = d }
}

// WithLogger logs failing checks.
func WithLogger(l logger.Logger) Option {
	return func(h *HealthChecker) { h.log = l }
}

// WithFailureThreshold sets how many consecutive failures make a check unhealthy. Default 1.
func WithFailureThreshold(n int) Option {
	return func(h *HealthChecker) {
		if n > 0 {
			h.failureThreshold = n
		}
	}
}

// New creates a HealthChecker.
func New(opts ...Option) *HealthChecker {
	h := &HealthChecker{
		timeout:          5 * time.Second,
		failureThreshold: 1,
		failures:         make(map[string]int),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HealthChecker) AddLivenessCheck(c Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.livenessChecks = append(h.livenessChecks, c)
}

func (h *HealthChecker) AddReadinessCheck(c Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessChecks = append(h.readinessChecks, c)
}

// CheckLiveness runs the liveness checks. An empty set is healthy.
func (h *HealthChecker) CheckLiveness(ctx context.Context) (*Status, error) {
	h.mu.Lock()
	checks := append([]Check(nil), h.livenessChecks...)
	h.mu.Unlock()
	return h.run(ctx, checks)
}

// CheckReadiness runs the readiness checks. An empty set is healthy.
func (h *HealthChecker) CheckReadiness(ctx context.Context) (*Status, error) {
	h.mu.Lock()
	checks := append([]Check(nil), h.readinessChecks...)
	h.mu.Unlock()
	return h.run(ctx, checks)
}

func (h *HealthChecker) run(ctx context.Context, checks []Check) (*Status, error) {
	results := make([]CheckResult, len(checks))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range checks {
		g.Go(func() error {
			results[i] = h.runOne(gctx, c)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	status := &Status{Healthy: true, Checks: results}
	var failed []string
	for _, r := range results {
		if !r.Healthy {
			status.Healthy = false
			failed = append(failed, r.Name)
		}
	}
	if !status.Healthy {
		return status, fmt.Errorf("health checks failed: %v", failed)
	}
	return status, nil
}

func (h *HealthChecker) runOne(parent context.Context, c Check) CheckResult {
	ctx, cancel := context.WithTimeout(parent, h.timeout)
	defer cancel()

	start := time.Now()
	err := c.Check(ctx)
	res := CheckResult{Name: c.Name(), Healthy: true, Latency: time.Since(start)}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err == nil {
		h.failures[c.Name()] = 0
		return res
	}

	h.failures[c.Name()]++
	if h.failures[c.Name()] < h.failureThreshold {
		return res
	}
	res.Healthy = false
	res.Error = err.Error()
	if h.log != nil {
		h.log.Warn("Health check failed",
			logger.StringField("check", c.Name()),
			logger.ErrorField(err),
			logger.IntField("failures", h.failures[c.Name()]),
			logger.DurationField("latency", res.Latency))
	}
	return res
}
