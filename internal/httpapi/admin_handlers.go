package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"corpsite.org/internal/auth"
	"corpsite.org/internal/monitor"
)

type statusRequest struct {
	Status string `json:"status"`
}

type roleRequest struct {
	Role string `json:"role"`
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	q := r.URL.Query()
	limit, err := parsePositiveInt(q.Get("limit"), 50, 1, 200)
	if err != nil {
		a.fail(w, r, badRequest(err))
		return
	}
	offset, err := parseOffset(q.Get("offset"))
	if err != nil {
		a.fail(w, r, badRequest(err))
		return
	}
	users, err := a.admin.ListUsers(r.Context(), auth.ListFilter{
		Role:   auth.Role(strings.ToLower(strings.TrimSpace(q.Get("role")))),
		Status: auth.Status(strings.ToLower(strings.TrimSpace(q.Get("status")))),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", map[string]any{
		"users":  users,
		"limit":  limit,
		"offset": offset,
	})
}

func (a *API) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, badRequest(err))
		return
	}
	actor, _ := auth.PrincipalFromContext(r.Context())
	id := r.PathValue("id")
	user, err := a.admin.SetStatus(r.Context(), actor, id, req.Status)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	_ = a.audit.LogEvent(r.Context(), "admin.user.status",
		zap.String("target_id", user.ID),
		zap.String("status", string(user.Status)),
	)
	writeOK(w, http.StatusOK, "status updated", map[string]any{"user": user})
}

func (a *API) handleSetRole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, badRequest(err))
		return
	}
	actor, _ := auth.PrincipalFromContext(r.Context())
	user, err := a.admin.SetRole(r.Context(), actor, r.PathValue("id"), req.Role)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	_ = a.audit.LogEvent(r.Context(), "admin.user.role",
		zap.String("target_id", user.ID),
		zap.String("role", string(user.Role)),
	)
	writeOK(w, http.StatusOK, "role updated", map[string]any{"user": user})
}

type dashboardResponse struct {
	Viewer  auth.PrincipalView   `json:"viewer"`
	Health  monitor.HealthReport `json:"health"`
	Metrics monitor.Snapshot     `json:"metrics"`
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, _ := auth.PrincipalFromContext(r.Context())
	writeOK(w, http.StatusOK, "", dashboardResponse{
		Viewer:  auth.View(p),
		Health:  a.health.Evaluate(),
		Metrics: a.agg.Snapshot(),
	})
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max))
	}
	return val, nil
}

func parseOffset(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return 0, errors.New("offset must be a non-negative integer")
	}
	return val, nil
}
