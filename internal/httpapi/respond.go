package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"corpsite.org/internal/auth"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOK writes the success envelope.
func writeOK(w http.ResponseWriter, code int, message string, data any) {
	body := map[string]any{"success": true}
	if message != "" {
		body["message"] = message
	}
	if data != nil {
		body["data"] = data
	}
	writeJSON(w, code, body)
}

func errorBody(r *http.Request, ae *auth.Error) map[string]any {
	body := map[string]any{
		"success": false,
		"message": ae.Message,
		"code":    ae.Code,
	}
	if ae.Code == auth.CodeInsufficientPermissions {
		body["required"] = ae.Required
		body["current"] = ae.Current
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		body["request_id"] = rid
	}
	return body
}

// writeError writes the failure envelope for err. Internal causes are never included.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := auth.AsError(err)
	writeJSON(w, ae.Status, errorBody(r, ae))
}

// fail is writeError plus auth failure accounting and, outside production, the cause text.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	ae := auth.AsError(err)
	if a.metrics != nil && (ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden) {
		a.metrics.AuthFailure(string(ae.Code))
	}
	body := errorBody(r, ae)
	if !a.opts.Production {
		if cause := errors.Unwrap(ae); cause != nil {
			body["error"] = cause.Error()
		}
	}
	if ae.Status >= http.StatusInternalServerError {
		a.log.Error("request failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("code", string(ae.Code)),
			zap.Error(err),
		)
	}
	writeJSON(w, ae.Status, body)
}

func writeStatus(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	body := map[string]any{
		"success": false,
		"message": msg,
		"code":    code,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		body["request_id"] = rid
	}
	writeJSON(w, status, body)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeStatus(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, r, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return decodeJSON(w, r, dst)
}

func badRequest(err error) error {
	return auth.ErrValidation.WithMessage(err.Error())
}
