// Package monitor keeps rolling request and memory statistics and derives a health verdict.
package monitor

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultResponseSamples = 1000
	DefaultMemorySamples   = 100
	DefaultSlowThreshold   = time.Second
)

// RequestSample describes one completed HTTP request.
type RequestSample struct {
	Method string
	Path   string
	// Route is the matched route pattern, used for low-cardinality metric labels.
	Route     string
	Status    int
	Elapsed   time.Duration
	ClientIP  string
	UserAgent string
	At        time.Time
}

// Observer receives every sample the aggregator records. obs.Collectors satisfies it.
type Observer interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
	ObserveMemory(heapUsed, heapTotal, sys uint64)
}

// Aggregator accumulates process-wide request, error, latency and memory statistics
// in bounded buffers. Construct one per process and share it between handlers.
type Aggregator struct {
	mu            sync.Mutex
	started       time.Time
	total         uint64
	errors        uint64
	statusClasses [6]uint64
	responseTimes *Ring[time.Duration]
	memory        *Ring[MemoryStats]

	log      *zap.Logger
	observer Observer
	readMem  MemReader
	now      func() time.Time
	slow     time.Duration
}

type Option func(*Aggregator)

func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.log = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(a *Aggregator) { a.observer = o }
}

func WithMemReader(fn MemReader) Option {
	return func(a *Aggregator) {
		if fn != nil {
			a.readMem = fn
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(a *Aggregator) {
		if fn != nil {
			a.now = fn
		}
	}
}

// WithSlowThreshold sets the latency above which a slow_request entry is logged.
func WithSlowThreshold(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.slow = d
		}
	}
}

// WithCapacity overrides the response-time and memory buffer sizes.
func WithCapacity(responses, memory int) Option {
	return func(a *Aggregator) {
		a.responseTimes = NewRing[time.Duration](responses)
		a.memory = NewRing[MemoryStats](memory)
	}
}

func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		responseTimes: NewRing[time.Duration](DefaultResponseSamples),
		memory:        NewRing[MemoryStats](DefaultMemorySamples),
		log:           zap.NewNop(),
		readMem:       RuntimeMemory,
		now:           time.Now,
		slow:          DefaultSlowThreshold,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.started = a.now()
	return a
}

// Observe records a completed request.
func (a *Aggregator) Observe(s RequestSample) {
	a.mu.Lock()
	a.total++
	a.responseTimes.Push(s.Elapsed)
	if class := s.Status / 100; class >= 1 && class <= 5 {
		a.statusClasses[class]++
	}
	failed := s.Status >= 400
	if failed {
		a.errors++
	}
	a.mu.Unlock()

	if a.observer != nil {
		a.observer.ObserveRequest(s.Method, s.Route, s.Status, s.Elapsed)
	}

	if failed {
		fields := requestFields(s)
		if s.Status >= 500 {
			a.log.Error("request_error", fields...)
		} else {
			a.log.Warn("request_error", fields...)
		}
	}
	if s.Elapsed > a.slow {
		a.log.Warn("slow_request", requestFields(s)...)
	}
}

func requestFields(s RequestSample) []zap.Field {
	return []zap.Field{
		zap.String("method", s.Method),
		zap.String("path", s.Path),
		zap.Int("status", s.Status),
		zap.Int64("duration_ms", s.Elapsed.Milliseconds()),
		zap.String("ip", s.ClientIP),
		zap.String("user_agent", s.UserAgent),
	}
}

// AverageResponseTime is the mean over the buffered samples, 0 when empty.
func (a *Aggregator) AverageResponseTime() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.averageLocked()
}

func (a *Aggregator) averageLocked() time.Duration {
	n := a.responseTimes.Len()
	if n == 0 {
		return 0
	}
	var sum time.Duration
	a.responseTimes.Each(func(d time.Duration) { sum += d })
	return sum / time.Duration(n)
}

// ErrorRate is errors over total requests, 0 before the first request.
func (a *Aggregator) ErrorRate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.errorRateLocked()
}

func (a *Aggregator) errorRateLocked() float64 {
	if a.total == 0 {
		return 0
	}
	return float64(a.errors) / float64(a.total)
}

// RequestStats is a consistent view of the request counters.
type RequestStats struct {
	Total               uint64
	Errors              uint64
	ErrorRate           float64
	AverageResponseTime time.Duration
	Uptime              time.Duration
}

// Stats reads all request counters under one lock.
func (a *Aggregator) Stats() RequestStats {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()
	return RequestStats{
		Total:               a.total,
		Errors:              a.errors,
		ErrorRate:           a.errorRateLocked(),
		AverageResponseTime: a.averageLocked(),
		Uptime:              now.Sub(a.started),
	}
}

func (a *Aggregator) TotalRequests() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// ResponseSamples reports how many response times are buffered.
func (a *Aggregator) ResponseSamples() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.responseTimes.Len()
}

func (a *Aggregator) MemorySamples() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.memory.Len()
}

func (a *Aggregator) StartedAt() time.Time { return a.started }

func (a *Aggregator) Uptime() time.Duration { return a.now().Sub(a.started) }

// CurrentMemory reads live figures without recording them.
func (a *Aggregator) CurrentMemory() MemoryStats { return a.readMem() }

// SampleMemory records one memory snapshot.
func (a *Aggregator) SampleMemory() MemoryStats {
	ms := a.readMem()
	if ms.At.IsZero() {
		ms.At = a.now().UTC()
	}
	a.mu.Lock()
	a.memory.Push(ms)
	a.mu.Unlock()
	if a.observer != nil {
		a.observer.ObserveMemory(ms.HeapUsed, ms.HeapTotal, ms.Sys)
	}
	return ms
}

// StartSampler samples memory immediately and then every interval until ctx is done.
// The returned channel is closed when the sampler goroutine exits.
func (a *Aggregator) StartSampler(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		defer close(done)
		a.SampleMemory()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.SampleMemory()
			}
		}
	}()
	return done
}

// Snapshot is the raw aggregator state served on /api/metrics.
type Snapshot struct {
	StartedAt             time.Time         `json:"startedAt"`
	UptimeSeconds         int64             `json:"uptimeSeconds"`
	Uptime                string            `json:"uptime"`
	TotalRequests         uint64            `json:"totalRequests"`
	ErrorCount            uint64            `json:"errorCount"`
	ErrorRate             float64           `json:"errorRate"`
	AverageResponseTimeMS float64           `json:"averageResponseTime"`
	ResponseSamples       int               `json:"responseTimeSamples"`
	StatusClasses         map[string]uint64 `json:"statusClasses"`
	Memory                *MemoryStats      `json:"memory,omitempty"`
	MemoryHistory         []MemoryStats     `json:"memoryHistory,omitempty"`
}

func (a *Aggregator) Snapshot() Snapshot {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()
	classes := make(map[string]uint64, 5)
	for i := 1; i <= 5; i++ {
		classes[strconv.Itoa(i)+"xx"] = a.statusClasses[i]
	}
	snap := Snapshot{
		StartedAt:             a.started.UTC(),
		UptimeSeconds:         int64(now.Sub(a.started).Seconds()),
		Uptime:                FormatUptime(now.Sub(a.started)),
		TotalRequests:         a.total,
		ErrorCount:            a.errors,
		ErrorRate:             a.errorRateLocked(),
		AverageResponseTimeMS: float64(a.averageLocked()) / float64(time.Millisecond),
		ResponseSamples:       a.responseTimes.Len(),
		StatusClasses:         classes,
		MemoryHistory:         a.memory.Values(),
	}
	if last, ok := a.memory.Last(); ok {
		snap.Memory = &last
	}
	return snap
}
