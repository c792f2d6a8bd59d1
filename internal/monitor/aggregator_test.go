package monitor

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func fixedMemory(heap uint64) MemReader {
	return func() MemoryStats {
		return MemoryStats{HeapUsed: heap, HeapTotal: heap * 2, Sys: heap * 3}
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	requests int
	memory   int
}

func (r *recordingObserver) ObserveRequest(string, string, int, time.Duration) {
	r.mu.Lock()
	r.requests++
	r.mu.Unlock()
}

func (r *recordingObserver) ObserveMemory(uint64, uint64, uint64) {
	r.mu.Lock()
	r.memory++
	r.mu.Unlock()
}

func TestBuffersStayBounded(t *testing.T) {
	a := NewAggregator(WithMemReader(fixedMemory(1)))
	for i := 0; i < 1200; i++ {
		a.Observe(RequestSample{Status: http.StatusOK, Elapsed: time.Millisecond})
	}
	for i := 0; i < 150; i++ {
		a.SampleMemory()
	}
	require.Equal(t, DefaultResponseSamples, a.ResponseSamples())
	require.Equal(t, DefaultMemorySamples, a.MemorySamples())
	require.EqualValues(t, 1200, a.TotalRequests())
}

func TestErrorRate(t *testing.T) {
	a := NewAggregator()
	require.Zero(t, a.ErrorRate())
	require.Zero(t, a.AverageResponseTime())

	for _, status := range []int{200, 201, 404, 500, 302} {
		a.Observe(RequestSample{Status: status, Elapsed: 10 * time.Millisecond})
	}
	require.Equal(t, 0.4, a.ErrorRate())
	require.Equal(t, 10*time.Millisecond, a.AverageResponseTime())

	snap := a.Snapshot()
	require.EqualValues(t, 2, snap.ErrorCount)
	require.EqualValues(t, 2, snap.StatusClasses["2xx"])
	require.EqualValues(t, 1, snap.StatusClasses["4xx"])
	require.Equal(t, 10.0, snap.AverageResponseTimeMS)
}

func TestObserveLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	rec := &recordingObserver{}
	a := NewAggregator(WithLogger(zap.New(core)), WithObserver(rec))

	a.Observe(RequestSample{Method: "GET", Path: "/ok", Status: 200, Elapsed: 5 * time.Millisecond})
	require.Zero(t, logs.Len())

	a.Observe(RequestSample{Method: "POST", Path: "/api/auth/login", Status: 503, Elapsed: 1500 * time.Millisecond})
	require.Equal(t, 1, logs.FilterMessage("request_error").FilterField(zap.Int("status", 503)).Len())
	require.Equal(t, zapcore.ErrorLevel, logs.FilterMessage("request_error").All()[0].Level)
	require.Equal(t, 1, logs.FilterMessage("slow_request").Len())
	require.Equal(t, 2, rec.requests)

	a.Observe(RequestSample{Status: 404})
	require.Equal(t, zapcore.WarnLevel, logs.FilterMessage("request_error").All()[1].Level)
}

func TestSamplerStopsWithContext(t *testing.T) {
	rec := &recordingObserver{}
	a := NewAggregator(WithMemReader(fixedMemory(1024)), WithObserver(rec))
	ctx, cancel := context.WithCancel(context.Background())
	done := a.StartSampler(ctx, 5*time.Millisecond)

	require.Eventually(t, func() bool { return a.MemorySamples() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sampler did not stop")
	}
	snap := a.Snapshot()
	require.NotNil(t, snap.Memory)
	require.EqualValues(t, 1024, snap.Memory.HeapUsed)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.GreaterOrEqual(t, rec.memory, 2)
}

func TestConcurrentObserve(t *testing.T) {
	a := NewAggregator()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				a.Observe(RequestSample{Status: 200, Elapsed: time.Millisecond})
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 2000, a.TotalRequests())
	require.Equal(t, DefaultResponseSamples, a.ResponseSamples())
}
