package httpapi

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"corpsite.org/internal/auth"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

func (r loginRequest) login() string {
	for _, v := range []string{r.Identifier, r.Email, r.Username} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type sessionResponse struct {
	User   *auth.User     `json:"user,omitempty"`
	Tokens auth.TokenPair `json:"tokens"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, badRequest(err))
		return
	}
	user, pair, err := a.auth.Register(r.Context(), auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.setAuthCookies(w, pair, a.auth.Tokens().Now())
	_ = a.audit.LogEvent(auth.ContextWithPrincipal(r.Context(), auth.NewFullPrincipal(*user)), "auth.register",
		zap.String("username", user.Username),
	)
	writeOK(w, http.StatusCreated, "registration successful", sessionResponse{User: user, Tokens: pair})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, badRequest(err))
		return
	}
	identifier := req.login()
	user, pair, err := a.auth.Login(r.Context(), identifier, req.Password)
	if err != nil {
		_ = a.audit.LogEvent(r.Context(), "auth.login.failed",
			zap.String("identifier", identifier),
			zap.String("code", string(auth.AsError(err).Code)),
		)
		a.fail(w, r, err)
		return
	}
	a.setAuthCookies(w, pair, a.auth.Tokens().Now())
	_ = a.audit.LogEvent(auth.ContextWithPrincipal(r.Context(), auth.NewFullPrincipal(*user)), "auth.login",
		zap.String("role", string(user.Role)),
		zap.String("ip", clientIP(r)),
	)
	writeOK(w, http.StatusOK, "login successful", sessionResponse{User: user, Tokens: pair})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		a.fail(w, r, badRequest(err))
		return
	}
	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		token = refreshTokenFromCookie(r)
	}
	if token == "" {
		a.fail(w, r, auth.ErrMissingToken.WithMessage("refresh token is required"))
		return
	}
	pair, p, err := a.auth.Refresh(r.Context(), token)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.setAuthCookies(w, pair, a.auth.Tokens().Now())
	_ = a.audit.LogEvent(auth.ContextWithPrincipal(r.Context(), p), "auth.refresh")
	writeOK(w, http.StatusOK, "token refreshed", sessionResponse{Tokens: pair})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	// The body is optional and never blocks logout.
	_ = decodeOptionalJSON(w, r, &req)
	refresh := strings.TrimSpace(req.RefreshToken)
	if refresh == "" {
		refresh = refreshTokenFromCookie(r)
	}
	claims, _ := auth.ClaimsFromContext(r.Context())
	a.auth.Logout(r.Context(), claims, refresh)
	a.clearAuthCookies(w)
	_ = a.audit.LogEvent(r.Context(), "auth.logout")
	writeOK(w, http.StatusOK, "logout successful", nil)
}

type verifyResponse struct {
	Valid     bool               `json:"valid"`
	User      auth.PrincipalView `json:"user"`
	ExpiresAt time.Time          `json:"expiresAt"`
}

func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
		return
	}
	p, _ := auth.PrincipalFromContext(r.Context())
	claims, _ := auth.ClaimsFromContext(r.Context())
	resp := verifyResponse{Valid: true, User: auth.View(p)}
	if claims != nil && claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	writeOK(w, http.StatusOK, "", resp)
}

type meResponse struct {
	User    auth.PrincipalView `json:"user"`
	Profile *auth.User         `json:"profile,omitempty"`
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, _ := auth.PrincipalFromContext(r.Context())
	resp := meResponse{User: auth.View(p)}
	if full, ok := p.(auth.FullPrincipal); ok {
		u := full.User
		resp.Profile = &u
	}
	writeOK(w, http.StatusOK, "", resp)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, badRequest(err))
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())
	if err := a.auth.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		a.fail(w, r, err)
		return
	}
	_ = a.audit.LogEvent(r.Context(), "auth.password.changed")
	writeOK(w, http.StatusOK, "password updated", nil)
}
