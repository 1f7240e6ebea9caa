package observability

import (
	"sync"
	"time"
)

// OpSnapshot summarizes one operation's call stats.
type OpSnapshot struct {
	Count         int64   `json:"count"`
	Errors        int64   `json:"errors"`
	InFlight      int64   `json:"in_flight"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	LastLatencyMs float64 `json:"last_latency_ms"`
}

// Snapshot is the full metrics export.
type Snapshot struct {
	UptimeSec     int64                 `json:"uptime_sec"`
	TotalRequests int64                 `json:"total_requests"`
	TotalErrors   int64                 `json:"total_errors"`
	InFlight      int64                 `json:"in_flight"`
	RateLimited   int64                 `json:"rate_limited"`
	Lifecycle     *LifecycleSnapshot    `json:"lifecycle,omitempty"`
	Ops           map[string]OpSnapshot `json:"ops"`
}

// LifecycleSnapshot records the shutdown mark.
type LifecycleSnapshot struct {
	ShutdownAt         time.Time `json:"shutdown_at"`
	InFlightAtShutdown int64     `json:"inflight_at_shutdown"`
}

type opStats struct {
	count        int64
	errors       int64
	inFlight     int64
	totalLatency time.Duration
	maxLatency   time.Duration
	lastLatency  time.Duration
}

// Metrics tracks per-operation call counts and latencies.
type Metrics struct {
	mu          sync.Mutex
	start       time.Time
	ops         map[string]*opStats
	rateLimited int64
	shutdownAt  time.Time
	inflightAt  int64
}

// NewMetrics constructs a Metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		start: time.Now(),
		ops:   make(map[string]*opStats),
	}
}

// CallSpan measures one in-flight call.
type CallSpan struct {
	metrics *Metrics
	op      string
	start   time.Time
}

// Start opens a span for an operation.
func (m *Metrics) Start(op string) *CallSpan {
	if m == nil {
		return &CallSpan{}
	}
	m.mu.Lock()
	m.ensureOp(op).inFlight++
	m.mu.Unlock()
	return &CallSpan{metrics: m, op: op, start: time.Now()}
}

// End closes the span, recording whether the call failed.
func (s *CallSpan) End(err error) {
	if s == nil || s.metrics == nil {
		return
	}
	s.metrics.finish(s.op, time.Since(s.start), err != nil)
}

// AddRateLimited counts one rejected request.
func (m *Metrics) AddRateLimited() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.rateLimited++
	m.mu.Unlock()
}

// MarkShutdown records when graceful shutdown began.
func (m *Metrics) MarkShutdown() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.shutdownAt = time.Now()
	for _, stats := range m.ops {
		m.inflightAt += stats.inFlight
	}
	m.mu.Unlock()
}

// Snapshot exports the current stats.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		UptimeSec:   int64(time.Since(m.start).Seconds()),
		RateLimited: m.rateLimited,
		Ops:         make(map[string]OpSnapshot),
	}

	for op, stats := range m.ops {
		avg := 0.0
		if stats.count > 0 {
			avg = float64(stats.totalLatency.Milliseconds()) / float64(stats.count)
		}
		snap.Ops[op] = OpSnapshot{
			Count:         stats.count,
			Errors:        stats.errors,
			InFlight:      stats.inFlight,
			AvgLatencyMs:  avg,
			MaxLatencyMs:  float64(stats.maxLatency.Milliseconds()),
			LastLatencyMs: float64(stats.lastLatency.Milliseconds()),
		}
		snap.TotalRequests += stats.count
		snap.TotalErrors += stats.errors
		snap.InFlight += stats.inFlight
	}

	if !m.shutdownAt.IsZero() {
		snap.Lifecycle = &LifecycleSnapshot{
			ShutdownAt:         m.shutdownAt,
			InFlightAtShutdown: m.inflightAt,
		}
	}

	return snap
}

func (m *Metrics) ensureOp(op string) *opStats {
	stats, ok := m.ops[op]
	if !ok {
		stats = &opStats{}
		m.ops[op] = stats
	}
	return stats
}

func (m *Metrics) finish(op string, dur time.Duration, failed bool) {
	m.mu.Lock()
	stats := m.ensureOp(op)
	stats.inFlight--
	stats.count++
	if failed {
		stats.errors++
	}
	stats.totalLatency += dur
	if dur > stats.maxLatency {
		stats.maxLatency = dur
	}
	stats.lastLatency = dur
	m.mu.Unlock()
}
