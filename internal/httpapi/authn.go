package httpapi

import (
	"net/http"
	"strings"
	"time"

	"corpsite.org/internal/auth"
)

const (
	authHeader    = "Authorization"
	bearer        = "Bearer "
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
	queryToken    = "token"
)

// authenticate resolves the access token into a principal. With optional set, requests
// without a usable token continue anonymously instead of failing.
func (a *API) authenticate(optional bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			token := a.extractToken(r)
			if token == "" {
				if optional {
					next.ServeHTTP(w, r)
					return
				}
				a.fail(w, r, auth.ErrMissingToken)
				return
			}

			principal, claims, err := a.auth.Authenticate(r.Context(), token)
			if err != nil {
				if optional {
					next.ServeHTTP(w, r)
					return
				}
				a.fail(w, r, err)
				return
			}

			ctx := auth.ContextWithPrincipal(r.Context(), principal)
			ctx = auth.ContextWithToken(ctx, token)
			ctx = auth.ContextWithClaims(ctx, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authorize admits principals holding one of roles; an empty set admits any principal.
func (a *API) authorize(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := auth.PrincipalFromContext(r.Context())
			if err := auth.Authorize(p, roles...); err != nil {
				a.fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractToken looks at the Authorization header, then the access cookie, then
// (when enabled outside production) the token query parameter.
func (a *API) extractToken(r *http.Request) string {
	if token, ok := extractBearerToken(r.Header.Get(authHeader)); ok {
		return token
	}
	if c, err := r.Cookie(accessCookie); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value)
	}
	if a.opts.AllowQueryToken && !a.opts.Production {
		return strings.TrimSpace(r.URL.Query().Get(queryToken))
	}
	return ""
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearer):])
	return token, token != ""
}

func refreshTokenFromCookie(r *http.Request) string {
	if c, err := r.Cookie(refreshCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

func (a *API) setAuthCookies(w http.ResponseWriter, pair auth.TokenPair, now time.Time) {
	http.SetCookie(w, a.cookie(accessCookie, pair.AccessToken, pair.AccessExpiresAt.Sub(now)))
	http.SetCookie(w, a.cookie(refreshCookie, pair.RefreshToken, pair.RefreshExpiresAt.Sub(now)))
}

func (a *API) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookie, refreshCookie} {
		c := a.cookie(name, "", 0)
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func (a *API) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   a.opts.Production,
		SameSite: http.SameSiteStrictMode,
	}
}
