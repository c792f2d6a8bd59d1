package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"corpsite.org/internal/monitor"
)

func TestRateLimitExceeded(t *testing.T) {
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequestID(RateLimit(base, 1, 1))

	req := httptest.NewRequest(http.MethodGet, "/limited", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, req.Clone(context.Background()))
	require.Equal(t, http.StatusOK, rr1.Code)

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req.Clone(context.Background()))
	require.Equal(t, http.StatusTooManyRequests, rr2.Code)
	require.NotEmpty(t, rr2.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr2.Body.Bytes(), &body))
	require.Equal(t, false, body["success"])
	require.Equal(t, "RATE_LIMITED", body["code"])
	require.NotEmpty(t, body["request_id"])

	other := req.Clone(context.Background())
	other.RemoteAddr = "10.0.0.2:1234"
	rr3 := httptest.NewRecorder()
	handler.ServeHTTP(rr3, other)
	require.Equal(t, http.StatusOK, rr3.Code, "buckets must be per client")
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := chain(RateLimit(base, 1, 1), RealIP(nil))

	for i, xff := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "203.0.113.9:5000"
		req.Header.Set("X-Forwarded-For", xff)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if i == 0 {
			require.Equal(t, http.StatusOK, rr.Code)
			continue
		}
		require.Equal(t, http.StatusTooManyRequests, rr.Code, "X-Forwarded-For %s from an untrusted peer", xff)
	}
}

func TestRealIPTrustedProxies(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	cases := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{name: "direct peer", remote: "198.51.100.4:1000", want: "198.51.100.4"},
		{name: "untrusted peer keeps its address", remote: "198.51.100.4:1000", xff: "1.2.3.4", want: "198.51.100.4"},
		{name: "trusted proxy", remote: "10.1.2.3:1000", xff: "1.2.3.4", want: "1.2.3.4"},
		{name: "client cannot prepend", remote: "10.1.2.3:1000", xff: "6.6.6.6, 1.2.3.4", want: "1.2.3.4"},
		{name: "proxy chain", remote: "10.1.2.3:1000", xff: "1.2.3.4, 10.9.9.9", want: "1.2.3.4"},
		{name: "garbage hop", remote: "10.1.2.3:1000", xff: "not-an-ip", want: "10.1.2.3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			handler := RealIP(trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = clientIP(r)
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestMonitorEmitsRequestComplete(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	agg := monitor.NewAggregator()
	handler := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("ok"))
	}), RequestID, Monitor(agg, nil, zap.New(core)))

	req := httptest.NewRequest(http.MethodGet, "/log-test", nil)
	req.Header.Set("User-Agent", "middleware-test")
	req.Header.Set(requestIDHeader, "rid-1")
	req.RemoteAddr = "127.0.0.1:1234"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	entries := logs.FilterMessage("request_complete").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	for key, want := range map[string]any{
		"request_id": "rid-1",
		"method":     "GET",
		"path":       "/log-test",
		"status":     int64(http.StatusTeapot),
		"ip":         "127.0.0.1",
		"user_agent": "middleware-test",
	} {
		require.Equal(t, want, fields[key], "field %s", key)
	}
	require.Contains(t, fields, "duration_ms")
	require.EqualValues(t, 1, agg.TotalRequests())
	require.Equal(t, 1.0, agg.ErrorRate())
	require.Equal(t, "rid-1", rr.Header().Get(requestIDHeader))
}

func TestRecoverReturnsInternalError(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	agg := monitor.NewAggregator()
	handler := chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), RequestID, Monitor(agg, nil, zap.NewNop()), Recover(zap.New(core)))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/panic", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "INTERNAL_ERROR", body["code"])
	require.Equal(t, 1, logs.FilterMessage("panic recovered").Len())

	require.EqualValues(t, 1, agg.TotalRequests())
	require.Greater(t, agg.ErrorRate(), 0.0)
}

func TestHandlerCountsRecoveredPanics(t *testing.T) {
	env := newTestEnv(t)
	env.api.mux.HandleFunc("/api/panic", func(http.ResponseWriter, *http.Request) { panic("boom") })

	resp, body := env.do(http.MethodGet, "/api/panic", nil, "")
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "INTERNAL_ERROR", body["code"])
	require.Eventually(t, func() bool { return env.agg.ErrorRate() > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestCORSAndSecurityHeaders(t *testing.T) {
	handler := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), SecurityHeaders(true), CORS([]string{"https://corp.example"}, true))

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "https://corp.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "https://corp.example", rr.Header().Get("Access-Control-Allow-Origin"))
	require.NotEmpty(t, rr.Header().Get("Strict-Transport-Security"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"), "localhost must not be allowed in production")
}

func TestExtractBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":    "abc",
		"bearer  abc  ": "abc",
		"Basic abc":     "",
		"Bearer ":       "",
		"":              "",
	}
	for header, want := range cases {
		got, ok := extractBearerToken(header)
		require.Equal(t, want, got, "header %q", header)
		require.Equal(t, want != "", ok, "header %q", header)
	}
}
