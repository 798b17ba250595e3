package audit

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/c-f-an/tov-nextjs-sub002/internal/ids"
	"github.com/c-f-an/tov-nextjs-sub002/internal/obs"
)

const defaultWriteTimeout = 3 * time.Second

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Entry is one append-only audit record.
type Entry struct {
	ID           string
	ActorID      string
	Action       Action
	ResourceType string
	ResourceID   string
	Metadata     map[string]any
	IP           string
	UserAgent    string
	CreatedAt    time.Time
}

// Store persists entries. Implementations only ever insert.
type Store interface {
	Append(ctx context.Context, e Entry) error
}

// Logger records privileged actions. Recording is best-effort: failures are
// logged and counted but never returned to the caller.
type Logger struct {
	store    Store
	log      *zap.Logger
	timeout  time.Duration
	now      func() time.Time
	failures *prometheus.CounterVec
}

// Option configures Logger.
type Option func(*Logger)

// WithLogger sets the operational logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Logger) {
		if l != nil {
			a.log = l
		}
	}
}

// WithTimeout bounds a single write.
func WithTimeout(d time.Duration) Option {
	return func(a *Logger) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(a *Logger) {
		if fn != nil {
			a.now = fn
		}
	}
}

// NewLogger builds an audit logger writing to store.
func NewLogger(store Store, opts ...Option) *Logger {
	a := &Logger{
		store:    store,
		log:      zap.NewNop(),
		timeout:  defaultWriteTimeout,
		now:      time.Now,
		failures: obs.AuditWriteFailures,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Log appends e. The write is detached from ctx cancellation so a client
// disconnect after a committed mutation still leaves a record.
func (a *Logger) Log(ctx context.Context, e Entry) {
	if !e.Action.Valid() {
		a.fail(ctx, e, errors.New("unknown audit action"))
		return
	}
	if strings.TrimSpace(e.ActorID) == "" {
		a.fail(ctx, e, errors.New("actor id is required"))
		return
	}
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = a.now().UTC()
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	if a.store == nil {
		a.fail(ctx, e, errors.New("audit store unavailable"))
		return
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()
	if err := a.store.Append(wctx, e); err != nil {
		a.fail(ctx, e, err)
		return
	}
	a.log.Info("audit",
		zap.String("event", string(e.Action)),
		zap.String("request_id", RequestIDFromContext(ctx)),
		zap.String("actor_id", e.ActorID),
		zap.String("resource_type", e.ResourceType),
		zap.String("resource_id", e.ResourceID),
	)
}

func (a *Logger) fail(ctx context.Context, e Entry, err error) {
	if a.failures != nil {
		a.failures.WithLabelValues(string(e.Action)).Inc()
	}
	a.log.Error("audit write failed",
		zap.String("event", string(e.Action)),
		zap.String("request_id", RequestIDFromContext(ctx)),
		zap.String("actor_id", e.ActorID),
		zap.String("resource_type", e.ResourceType),
		zap.String("resource_id", e.ResourceID),
		zap.Error(err),
	)
}

// FromRequest returns the caller's ip and user agent.
func FromRequest(r *http.Request) (ip, userAgent string) {
	return ClientIP(r), r.UserAgent()
}

// MemoryStore keeps entries in memory. It backs tests and local runs without a database.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

// FailWith makes subsequent appends return err; nil restores normal behavior.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Entries returns a copy of the recorded entries.
func (m *MemoryStore) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}
