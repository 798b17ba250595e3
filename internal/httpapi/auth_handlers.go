package httpapi

import (
	"net/http"
	"time"

	"github.com/c-f-an/tov-nextjs-sub002/internal/audit"
	"github.com/c-f-an/tov-nextjs-sub002/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type sessionResponse struct {
	User        auth.Identity `json:"user"`
	AccessToken string        `json:"accessToken"`
	ExpiresAt   time.Time     `json:"expiresAt"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	grant, err := a.svc.Login(r.Context(), req.Email, req.Password, clientMeta(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.writeGrant(w, http.StatusOK, grant)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	grant, err := a.svc.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	}, clientMeta(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.writeGrant(w, http.StatusCreated, grant)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, ok := cookieToken(r, refreshCookieName)
	if !ok {
		a.clearCookies(w)
		writeUnauthorized(w, r, msgUnauthorized)
		return
	}
	grant, err := a.svc.Refresh(r.Context(), token, clientMeta(r))
	if err != nil {
		a.clearCookies(w)
		a.writeServiceError(w, r, err)
		return
	}
	a.writeGrant(w, http.StatusOK, grant)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, _ := cookieToken(r, refreshCookieName)
	if err := a.svc.Logout(r.Context(), token); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.clearCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, r, msgUnauthorized)
		return
	}
	user, err := a.svc.GetUser(r.Context(), principal.ID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user.Identity})
}

func (a *API) writeGrant(w http.ResponseWriter, code int, g auth.Grant) {
	a.setCookie(w, accessCookieName, g.AccessToken, "/", g.AccessExpiresAt)
	a.setCookie(w, refreshCookieName, g.RefreshToken, "/auth", g.RefreshExpiresAt)
	writeJSON(w, code, sessionResponse{
		User:        g.User,
		AccessToken: g.AccessToken,
		ExpiresAt:   g.AccessExpiresAt,
	})
}

func (a *API) setCookie(w http.ResponseWriter, name, value, path string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   a.cookies.Domain,
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   a.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *API) clearCookies(w http.ResponseWriter) {
	for _, c := range []struct{ name, path string }{
		{accessCookieName, "/"},
		{refreshCookieName, "/auth"},
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    "",
			Path:     c.path,
			Domain:   a.cookies.Domain,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   a.cookies.Secure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func clientMeta(r *http.Request) auth.ClientMeta {
	ip, ua := audit.FromRequest(r)
	return auth.ClientMeta{IP: ip, UserAgent: ua}
}
