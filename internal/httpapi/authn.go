package httpapi

import (
	"net/http"
	"strings"

	"github.com/c-f-an/tov-nextjs-sub002/internal/auth"
)

const (
	authHeader        = "Authorization"
	bearer            = "Bearer "
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
)

// TokenVerifier checks access tokens. *auth.Tokens satisfies it.
type TokenVerifier interface {
	VerifyAccess(token string) (auth.AccessClaims, error)
}

// Authenticate admits requests carrying a valid access token in the
// Authorization header or the accessToken cookie and attaches the principal.
// It never logs and never touches the handler on failure.
func Authenticate(v TokenVerifier) func(http.Handler) http.Handler {
	return authenticate(v, true)
}

// RequireAdmin is the gate for privileged routes: a bearer header is required
// and the verified role must be ADMIN.
func RequireAdmin(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return authenticate(v, false)(RequireRole(auth.RoleAdmin)(next))
	}
}

// RequireRole rejects requests whose principal lacks role. It expects a
// preceding Authenticate.
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				writeUnauthorized(w, r, msgUnauthorized)
				return
			}
			if principal.Role != role {
				writeForbidden(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authenticate(v TokenVerifier, allowCookie bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractBearerToken(r.Header.Get(authHeader))
			if !ok && allowCookie {
				token, ok = cookieToken(r, accessCookieName)
			}
			if !ok {
				writeUnauthorized(w, r, msgUnauthorized)
				return
			}
			claims, err := v.VerifyAccess(token)
			if err != nil {
				writeUnauthorized(w, r, msgUnauthorized)
				return
			}
			ctx := auth.ContextWithPrincipal(r.Context(), auth.PrincipalFromClaims(claims))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearer):])
	return token, token != ""
}

func cookieToken(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(c.Value)
	return v, v != ""
}
