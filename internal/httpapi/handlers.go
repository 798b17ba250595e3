package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/c-f-an/tov-nextjs-sub002/internal/audit"
	"github.com/c-f-an/tov-nextjs-sub002/internal/auth"
	"github.com/c-f-an/tov-nextjs-sub002/internal/obs"
)

const (
	defaultMaxBodyBytes = 1 << 20
	defaultRatePerSec   = 5
	defaultRateBurst    = 10
)

// ReadyProbe: простая проверка готовности (ping БД).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// CookieConfig controls the attributes of the credential cookies.
type CookieConfig struct {
	Secure bool
	Domain string
}

// Options configures the HTTP layer.
type Options struct {
	Version     string
	Cookies     CookieConfig
	CORSOrigins []string
	RatePerSec  int
	RateBurst   int
	Logger      *zap.Logger

	// TrustedProxies may set X-Forwarded-For / X-Real-IP. Empty trusts none.
	TrustedProxies []netip.Prefix
}

// API is the HTTP layer of the identity service.
type API struct {
	mux         *http.ServeMux
	readyProbe  ReadyProbe
	version     string
	svc         *auth.Service
	audit       *audit.Logger
	cookies     CookieConfig
	corsOrigins []string
	limiter     *RateLimiter
	resolver    *audit.IPResolver
	logger      *zap.Logger
}

func New(rp ReadyProbe, svc *auth.Service, auditLog *audit.Logger, opts Options) *API {
	a := &API{
		mux:         http.NewServeMux(),
		readyProbe:  rp,
		version:     opts.Version,
		svc:         svc,
		audit:       auditLog,
		cookies:     opts.Cookies,
		corsOrigins: opts.CORSOrigins,
		resolver:    audit.NewIPResolver(opts.TrustedProxies),
		logger:      opts.Logger,
	}
	perSec, burst := opts.RatePerSec, opts.RateBurst
	if perSec <= 0 {
		perSec = defaultRatePerSec
	}
	if burst <= 0 {
		burst = defaultRateBurst
	}
	a.limiter = NewRateLimiter(burst, perSec)
	if a.logger == nil {
		a.logger = obs.Logger()
	}
	if a.audit == nil {
		a.audit = audit.NewLogger(nil, audit.WithLogger(a.logger))
	}
	a.routes()
	return a
}

func (a *API) routes() {
	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("GET /metrics", obs.Handler())

	tokens := a.svc.Tokens()

	// credential lifecycle; login and register share one bucket per address
	a.mux.Handle("POST /auth/login", a.limiter.Wrap(http.HandlerFunc(a.handleLogin)))
	a.mux.Handle("POST /auth/register", a.limiter.Wrap(http.HandlerFunc(a.handleRegister)))
	a.mux.HandleFunc("POST /auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("POST /auth/logout", a.handleLogout)
	a.mux.Handle("GET /auth/me", Authenticate(tokens)(http.HandlerFunc(a.handleMe)))

	// privileged user administration
	admin := RequireAdmin(tokens)
	a.mux.Handle("GET /admin/users/{id}", admin(http.HandlerFunc(a.handleGetUser)))
	a.mux.Handle("PATCH /admin/users/{id}", admin(http.HandlerFunc(a.handleUpdateUser)))
	a.mux.Handle("DELETE /admin/users/{id}", admin(http.HandlerFunc(a.handleDeleteUser)))
	a.mux.Handle("POST /admin/users/bulk-delete", admin(http.HandlerFunc(a.handleBulkDeleteUsers)))

	// корень: 404
	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
}

// Handler возвращает http.Handler для сервера (без доп. аргументов).
func (a *API) Handler() http.Handler {
	var h http.Handler = obs.Instrument(a.mux)
	h = MaxBodyBytes(h, defaultMaxBodyBytes)
	h = CORS(h, a.corsOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = a.resolver.Middleware(h)
	return RequestID(h)
}

// Close releases background resources held by the API.
func (a *API) Close() {
	a.limiter.Close()
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "tov-auth",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		a.logger.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "tov-auth",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
