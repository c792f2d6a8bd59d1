package monitor

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusWarning   Status = "warning"
	StatusUnhealthy Status = "unhealthy"
)

// severity orders statuses so a verdict only moves toward less healthy.
func (s Status) severity() int {
	switch s {
	case StatusWarning:
		return 1
	case StatusUnhealthy:
		return 2
	}
	return 0
}

const (
	IssueHighErrorRate = "high error rate"
	IssueSlowResponse  = "slow response time"
	IssueHighMemory    = "high memory usage"
)

// Thresholds are the limits above which a rule triggers.
type Thresholds struct {
	ErrorRate    float64
	ResponseTime time.Duration
	HeapUsed     uint64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		ErrorRate:    0.10,
		ResponseTime: 2000 * time.Millisecond,
		HeapUsed:     500 * 1024 * 1024,
	}
}

// HealthReport is recomputed on every health check.
type HealthReport struct {
	Status                Status      `json:"status"`
	Timestamp             time.Time   `json:"timestamp"`
	Uptime                string      `json:"uptime"`
	UptimeSeconds         int64       `json:"uptimeSeconds"`
	ErrorRate             float64     `json:"errorRate"`
	AverageResponseTimeMS float64     `json:"averageResponseTime"`
	TotalRequests         uint64      `json:"totalRequests"`
	Memory                MemoryStats `json:"memory"`
	Issues                []string    `json:"issues"`
}

func (r HealthReport) Healthy() bool { return r.Status != StatusUnhealthy }

// Evaluator classifies the aggregator's state against fixed thresholds.
type Evaluator struct {
	agg        *Aggregator
	thresholds Thresholds
}

func NewEvaluator(agg *Aggregator, th Thresholds) *Evaluator {
	return &Evaluator{agg: agg, thresholds: th}
}

func (e *Evaluator) Evaluate() HealthReport {
	stats := e.agg.Stats()
	mem := e.agg.CurrentMemory()

	report := HealthReport{
		Status:                StatusHealthy,
		Timestamp:             e.agg.now().UTC(),
		Uptime:                FormatUptime(stats.Uptime),
		UptimeSeconds:         int64(stats.Uptime.Seconds()),
		ErrorRate:             stats.ErrorRate,
		AverageResponseTimeMS: float64(stats.AverageResponseTime) / float64(time.Millisecond),
		TotalRequests:         stats.Total,
		Memory:                mem,
		Issues:                []string{},
	}
	raise := func(s Status, issue string) {
		if s.severity() > report.Status.severity() {
			report.Status = s
		}
		report.Issues = append(report.Issues, issue)
	}
	if stats.ErrorRate > e.thresholds.ErrorRate {
		raise(StatusUnhealthy, IssueHighErrorRate)
	}
	if stats.AverageResponseTime > e.thresholds.ResponseTime {
		raise(StatusUnhealthy, IssueSlowResponse)
	}
	if mem.HeapUsed > e.thresholds.HeapUsed {
		raise(StatusWarning, IssueHighMemory)
	}
	return report
}

// FormatUptime renders d as "Xd Yh Zm".
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Minute)
	days := total / (24 * 60)
	hours := (total % (24 * 60)) / 60
	minutes := total % 60
	return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
}
