package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/c-f-an/tov-nextjs-sub002/internal/auth"
)

func newGateTokens(t *testing.T) *auth.Tokens {
	t.Helper()
	tokens, err := auth.NewTokens("gate-access", "gate-refresh", auth.WithAccessTTL(time.Minute))
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	return tokens
}

func issue(t *testing.T, tokens *auth.Tokens, role auth.Role) string {
	t.Helper()
	token, _, err := tokens.IssueAccess(auth.Identity{ID: "user-1", Role: role})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	return token
}

func gated(mw func(http.Handler) http.Handler, called *bool) http.Handler {
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		p, _ := auth.PrincipalFromContext(r.Context())
		w.Header().Set("X-Principal", p.ID+"/"+string(p.Role))
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRequireAdminAdmitsAdmin(t *testing.T) {
	tokens := newGateTokens(t)
	var called bool
	handler := gated(RequireAdmin(tokens), &called)

	req := httptest.NewRequest(http.MethodDelete, "/admin/users/1", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, tokens, auth.RoleAdmin))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || !called {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("X-Principal"); got != "user-1/ADMIN" {
		t.Fatalf("unexpected principal %q", got)
	}
}

func TestRequireAdminRejectsUserRole(t *testing.T) {
	tokens := newGateTokens(t)
	var called bool
	handler := gated(RequireAdmin(tokens), &called)

	req := httptest.NewRequest(http.MethodDelete, "/admin/users/1", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, tokens, auth.RoleUser))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if called {
		t.Fatal("handler must not run")
	}
	if got := rr.Header().Get("WWW-Authenticate"); got == "" {
		t.Fatalf("expected WWW-Authenticate header set")
	}
}

func TestRequireAdminIgnoresCookie(t *testing.T) {
	tokens := newGateTokens(t)
	var called bool
	handler := gated(RequireAdmin(tokens), &called)

	req := httptest.NewRequest(http.MethodDelete, "/admin/users/1", nil)
	req.AddCookie(&http.Cookie{Name: "accessToken", Value: issue(t, tokens, auth.RoleAdmin)})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized || called {
		t.Fatalf("expected 401 without bearer header, got %d", rr.Code)
	}
}

func TestAuthenticateRejectsRefreshToken(t *testing.T) {
	tokens := newGateTokens(t)
	refresh, _, err := tokens.IssueRefresh(auth.Identity{ID: "user-1", Role: auth.RoleAdmin})
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	var called bool
	handler := gated(Authenticate(tokens), &called)

	for _, header := range []string{"Bearer " + refresh, "Bearer ", "Basic dXNlcjpwYXNz", "Bearer not.a.jwt"} {
		called = false
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", header)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized || called {
			t.Fatalf("%q: expected 401, got %d", header, rr.Code)
		}
		if got := rr.Header().Get("WWW-Authenticate"); got == "" {
			t.Fatalf("expected WWW-Authenticate header set")
		}
	}
}

func TestRequireRoleRejectsMissingUser(t *testing.T) {
	handler := RequireRole(auth.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/internal", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got == "" {
		t.Fatalf("expected WWW-Authenticate header set")
	}
}
