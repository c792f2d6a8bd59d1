package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/netip"

	"go.uber.org/zap"

	"corpsite.org/internal/audit"
	"corpsite.org/internal/auth"
	"corpsite.org/internal/monitor"
	"corpsite.org/internal/obs"
	"corpsite.org/internal/stream"
)

// Pinger is anything readiness can ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessCheck checks the backing stores.
type ReadinessCheck struct {
	Users       Pinger
	Revocations Pinger
}

// Check returns per-dependency results and the first failure.
func (rp ReadinessCheck) Check(ctx context.Context) (map[string]string, error) {
	results := map[string]string{}
	var first error
	for name, p := range map[string]Pinger{"users": rp.Users, "revocations": rp.Revocations} {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			results[name] = "unavailable"
			if first == nil {
				first = errors.New(name + ": " + err.Error())
			}
			continue
		}
		results[name] = "ok"
	}
	return results, first
}

// Options carries HTTP behavior settings from config.
type Options struct {
	Version         string
	Production      bool
	AllowQueryToken bool
	MaxBodyBytes    int64
	RateBurst       int
	RatePerSecond   int
	AllowedOrigins  []string
	// TrustedProxies may set X-Forwarded-For; other peers are taken at face value.
	TrustedProxies []netip.Prefix
}

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Auth    *auth.Service
	Admin   *auth.AdminService
	Monitor *monitor.Aggregator
	Health  *monitor.Evaluator
	Metrics *obs.Collectors
	Audit   *audit.Logger
	Ready   ReadinessCheck
	Log     *zap.Logger

	// Events feeds the health SSE stream. Nil disables it.
	Events *stream.Hub[monitor.HealthReport]
}

// API is the HTTP layer.
type API struct {
	mux     *http.ServeMux
	auth    *auth.Service
	admin   *auth.AdminService
	agg     *monitor.Aggregator
	health  *monitor.Evaluator
	metrics *obs.Collectors
	audit   *audit.Logger
	ready   ReadinessCheck
	events  *stream.Hub[monitor.HealthReport]
	log     *zap.Logger
	opts    Options

	// streams ends open event streams on shutdown without touching other requests.
	streams     context.Context
	stopStreams context.CancelFunc
}

func New(deps Deps, opts Options) *API {
	if opts.RateBurst <= 0 {
		opts.RateBurst = 20
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 5
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	a := &API{
		mux:     http.NewServeMux(),
		auth:    deps.Auth,
		admin:   deps.Admin,
		agg:     deps.Monitor,
		health:  deps.Health,
		metrics: deps.Metrics,
		audit:   deps.Audit,
		ready:   deps.Ready,
		events:  deps.Events,
		log:     deps.Log,
		opts:    opts,
	}
	a.streams, a.stopStreams = context.WithCancel(context.Background())
	if a.log == nil {
		a.log = zap.NewNop()
	}
	if a.audit == nil {
		a.audit = audit.New(a.log)
	}
	a.routes()
	return a
}

func (a *API) routes() {
	limited := func(h http.HandlerFunc) http.Handler {
		return RateLimit(h, a.opts.RateBurst, a.opts.RatePerSecond)
	}
	required := a.authenticate(false)

	a.mux.Handle("/api/auth/register", limited(a.handleRegister))
	a.mux.Handle("/api/auth/login", limited(a.handleLogin))
	a.mux.Handle("/api/auth/refresh", limited(a.handleRefresh))
	a.mux.Handle("/api/auth/logout", required(http.HandlerFunc(a.handleLogout)))
	a.mux.Handle("/api/auth/verify", required(http.HandlerFunc(a.handleVerify)))
	a.mux.Handle("/api/auth/me", required(http.HandlerFunc(a.handleMe)))
	a.mux.Handle("/api/auth/change-password", required(http.HandlerFunc(a.handleChangePassword)))

	a.mux.Handle("/api/admin/users", chain(http.HandlerFunc(a.handleListUsers), required, a.authorize(auth.Managers...)))
	a.mux.Handle("/api/admin/users/{id}/status", chain(http.HandlerFunc(a.handleSetStatus), required, a.authorize(auth.AdminOnly...)))
	a.mux.Handle("/api/admin/users/{id}/role", chain(http.HandlerFunc(a.handleSetRole), required, a.authorize(auth.AdminOnly...)))
	a.mux.Handle("/api/admin/dashboard", chain(http.HandlerFunc(a.handleDashboard), required, a.authorize(auth.Staff...)))
	a.mux.Handle("/api/admin/health/stream", chain(http.HandlerFunc(a.handleHealthStream), required, a.authorize(auth.Staff...)))

	a.mux.HandleFunc("/api/health", a.handleHealth)
	a.mux.Handle("/api/metrics", a.authenticate(true)(http.HandlerFunc(a.handleMetrics)))
	a.mux.HandleFunc("/readyz", a.handleReady)
	if a.metrics != nil {
		a.mux.Handle("/metrics", a.metrics.Handler())
	}
	a.mux.HandleFunc("/", notFound)
}

// Handler returns the mux wrapped in the full middleware chain.
func (a *API) Handler() http.Handler {
	return chain(a.mux,
		RequestID,
		RealIP(a.opts.TrustedProxies),
		Monitor(a.agg, a.metrics, a.log),
		Recover(a.log),
		SecurityHeaders(a.opts.Production),
		CORS(a.opts.AllowedOrigins, a.opts.Production),
		MaxBodyBytes(a.opts.MaxBodyBytes),
	)
}

// CloseStreams ends every open event stream. Register it with http.Server.RegisterOnShutdown.
func (a *API) CloseStreams() { a.stopStreams() }
