package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Outcome labels a finished task execution.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// defaultBuckets covers sub-second stub agents up to slow LLM round trips.
var defaultBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram() *histogram {
	return &histogram{
		buckets: defaultBuckets,
		counts:  make([]uint64, len(defaultBuckets)),
	}
}

func (h *histogram) observe(seconds float64) {
	h.sum += seconds
	h.count++
	for i, bound := range h.buckets {
		if seconds <= bound {
			h.counts[i]++
		}
	}
}

// Collector aggregates task execution counters and latency in process.
// A nil *Collector is a no-op so callers never need to guard observation calls.
type Collector struct {
	mu         sync.Mutex
	executions map[Outcome]uint64
	latency    *histogram
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		executions: make(map[Outcome]uint64),
		latency:    newHistogram(),
	}
}

// ObserveExecution records one finished task execution.
func (c *Collector) ObserveExecution(outcome Outcome, duration time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.executions[outcome]++
	c.latency.observe(duration.Seconds())
}

// Snapshot returns the per-outcome execution counts.
func (c *Collector) Snapshot() map[Outcome]uint64 {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make(map[Outcome]uint64, len(c.executions))
	for outcome, count := range c.executions {
		snapshot[outcome] = count
	}
	return snapshot
}

// Render produces a text exposition of the collected metrics.
func (c *Collector) Render() string {
	if c == nil {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	b.WriteString("# TYPE agentweave_task_executions_total counter\n")
	outcomes := make([]string, 0, len(c.executions))
	for outcome := range c.executions {
		outcomes = append(outcomes, string(outcome))
	}
	sort.Strings(outcomes)
	for _, outcome := range outcomes {
		fmt.Fprintf(&b, "agentweave_task_executions_total{outcome=%q} %d\n", outcome, c.executions[Outcome(outcome)])
	}

	b.WriteString("# TYPE agentweave_task_duration_seconds histogram\n")
	cumulative := uint64(0)
	for i, bound := range c.latency.buckets {
		cumulative = c.latency.counts[i]
		fmt.Fprintf(&b, "agentweave_task_duration_seconds_bucket{le=%q} %d\n", formatBound(bound), cumulative)
	}
	fmt.Fprintf(&b, "agentweave_task_duration_seconds_bucket{le=\"+Inf\"} %d\n", c.latency.count)
	fmt.Fprintf(&b, "agentweave_task_duration_seconds_sum %g\n", c.latency.sum)
	fmt.Fprintf(&b, "agentweave_task_duration_seconds_count %d\n", c.latency.count)
	return b.String()
}

func formatBound(bound float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", bound), "0"), ".")
}
