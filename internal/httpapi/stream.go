package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"corpsite.org/internal/auth"
)

// handleHealthStream pushes health reports as Server-Sent Events. The current
// report is sent right away, then one per pump tick.
func (a *API) handleHealthStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.events == nil {
		a.fail(w, r, auth.ErrServiceUnavailable.WithMessage("health stream disabled"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.fail(w, r, auth.ErrInternal.WithMessage("streaming unsupported"))
		return
	}

	// The server write timeout would otherwise cut the stream.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(a.streams, cancel)
	defer stop()
	ch := a.events.Subscribe(ctx)

	_, _ = w.Write([]byte(": stream started\n\n"))
	if !a.writeEvent(w, a.health.Evaluate()) {
		return
	}
	flusher.Flush()

	for report := range ch {
		if !a.writeEvent(w, report) {
			return
		}
		flusher.Flush()
	}
}

func (a *API) writeEvent(w http.ResponseWriter, v any) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		a.log.Warn("encode stream event", zap.Error(err))
		return true
	}
	if _, err := w.Write([]byte("event: health\ndata: ")); err != nil {
		return false
	}
	_, _ = w.Write(payload)
	_, err = w.Write([]byte("\n\n"))
	return err == nil
}
