package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/c-f-an/tov-nextjs-sub002/internal/auth"
)

const (
	defaultRefreshInterval = 10 * time.Minute
	defaultRefreshTimeout  = 5 * time.Second
	refreshKey             = "refresh"
)

// Phase is the lifecycle position of a Session.
type Phase string

const (
	PhaseAnonymous      Phase = "anonymous"
	PhaseAuthenticating Phase = "authenticating"
	PhaseAuthenticated  Phase = "authenticated"
	PhaseRefreshing     Phase = "refreshing"
)

// State is a snapshot of the session.
type State struct {
	Identity    *auth.Identity
	AccessToken string
	Phase       Phase
}

// Authenticated reports whether the state holds a usable access token.
func (s State) Authenticated() bool {
	return s.AccessToken != "" && (s.Phase == PhaseAuthenticated || s.Phase == PhaseRefreshing)
}

// clone returns a copy that shares no Identity with s.
func (s State) clone() State {
	if s.Identity != nil {
		id := *s.Identity
		s.Identity = &id
	}
	return s
}

// Session holds the caller's identity and access token and renews the token
// through the refresh cookie kept in its cookie jar. Timer-driven and
// demand-driven refreshes share one in-flight call.
type Session struct {
	base           *url.URL
	http           *http.Client
	interval       time.Duration
	refreshTimeout time.Duration
	now            func() time.Time
	logger         *zap.Logger

	group singleflight.Group

	mu          sync.Mutex
	state       State
	epoch       uint64
	lastRefresh time.Time
	stopTimer   chan struct{}
}

// SessionOption configures Session.
type SessionOption func(*Session) error

// WithHTTPClient sets the transport. A client without a cookie jar gets one.
func WithHTTPClient(c *http.Client) SessionOption {
	return func(s *Session) error {
		if c != nil {
			s.http = c
		}
		return nil
	}
}

// WithRefreshInterval sets the silent-refresh period.
func WithRefreshInterval(d time.Duration) SessionOption {
	return func(s *Session) error {
		if d > 0 {
			s.interval = d
		}
		return nil
	}
}

// WithRefreshTimeout bounds each refresh call.
func WithRefreshTimeout(d time.Duration) SessionOption {
	return func(s *Session) error {
		if d > 0 {
			s.refreshTimeout = d
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) SessionOption {
	return func(s *Session) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithLogger sets the logger used for background refresh outcomes.
func WithLogger(l *zap.Logger) SessionOption {
	return func(s *Session) error {
		if l != nil {
			s.logger = l
		}
		return nil
	}
}

// NewSession builds an anonymous session against baseURL.
func NewSession(baseURL string, opts ...SessionOption) (*Session, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.New("client: base url must be absolute")
	}
	s := &Session{
		base:           base,
		http:           &http.Client{},
		interval:       defaultRefreshInterval,
		refreshTimeout: defaultRefreshTimeout,
		now:            time.Now,
		logger:         zap.NewNop(),
		state:          State{Phase: PhaseAnonymous},
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		clone := *s.http
		clone.Jar = jar
		s.http = &clone
	}
	return s, nil
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Mount attempts one silent refresh to rebuild the session from the refresh
// cookie and starts the periodic refresh timer.
func (s *Session) Mount(ctx context.Context) State {
	if _, err := s.Refresh(ctx); err != nil {
		s.logger.Debug("silent login failed", zap.Error(err))
	}
	s.startTimer()
	return s.State()
}

// Login exchanges credentials for a session.
func (s *Session) Login(ctx context.Context, email, password string) (auth.Identity, error) {
	return s.authenticate(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Register creates an account and signs it in.
func (s *Session) Register(ctx context.Context, email, password, name string) (auth.Identity, error) {
	return s.authenticate(ctx, "/auth/register", map[string]string{
		"email":    email,
		"password": password,
		"name":     name,
	})
}

func (s *Session) authenticate(ctx context.Context, path string, body any) (auth.Identity, error) {
	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	s.state = State{Phase: PhaseAuthenticating}
	s.mu.Unlock()

	res, err := s.post(ctx, path, body)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		if err == nil {
			err = ErrSessionExpired
		}
		return auth.Identity{}, err
	}
	if err != nil {
		s.state = State{Phase: PhaseAnonymous}
		return auth.Identity{}, err
	}
	s.applyLocked(res)
	s.startTimerLocked()
	return res.User, nil
}

// Logout clears the session, stops the refresh timer and revokes the refresh
// cookie server-side. It is always safe to call.
func (s *Session) Logout(ctx context.Context) {
	s.mu.Lock()
	s.epoch++
	s.state = State{Phase: PhaseAnonymous}
	s.stopTimerLocked()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
	defer cancel()
	if _, err := s.post(ctx, "/auth/logout", nil); err != nil {
		s.logger.Debug("logout request failed", zap.Error(err))
	}
}

// Refresh renews the access token. Concurrent callers share one request; a
// failure clears the session and returns ErrSessionExpired.
func (s *Session) Refresh(ctx context.Context) (State, error) {
	ch := s.group.DoChan(refreshKey, func() (any, error) {
		return s.doRefresh()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return State{Phase: PhaseAnonymous}, res.Err
		}
		return res.Val.(State).clone(), nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

// refreshAfter renews the token unless it already changed since stale was
// used, in which case the current token is returned without a network call.
func (s *Session) refreshAfter(ctx context.Context, stale string) (string, error) {
	s.mu.Lock()
	current := s.state
	s.mu.Unlock()
	if current.Phase == PhaseAuthenticated && current.AccessToken != "" && current.AccessToken != stale {
		return current.AccessToken, nil
	}
	if current.Phase == PhaseAnonymous {
		return "", ErrSessionExpired
	}
	st, err := s.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return st.AccessToken, nil
}

// accessToken returns the token to attach to an authenticated call.
func (s *Session) accessToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Authenticated() {
		return "", ErrNotAuthenticated
	}
	return s.state.AccessToken, nil
}

func (s *Session) doRefresh() (State, error) {
	s.mu.Lock()
	epoch := s.epoch
	if s.state.Phase == PhaseAuthenticated {
		s.state.Phase = PhaseRefreshing
	} else if s.state.Phase == PhaseAnonymous {
		s.state.Phase = PhaseAuthenticating
	}
	s.mu.Unlock()

	// The refresh outlives any single caller; only the bounded timeout applies.
	ctx, cancel := context.WithTimeout(context.Background(), s.refreshTimeout)
	defer cancel()
	res, err := s.post(ctx, "/auth/refresh", nil)

	s.mu.Lock()
	s.lastRefresh = s.now()
	if s.epoch != epoch {
		// Logout or a new login won the race; leave its state alone.
		s.mu.Unlock()
		if err == nil {
			s.revokeOrphan(ctx)
		}
		return State{}, ErrSessionExpired
	}
	defer s.mu.Unlock()
	if err != nil {
		s.state = State{Phase: PhaseAnonymous}
		return State{}, fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	s.applyLocked(res)
	return s.state, nil
}

// revokeOrphan revokes the refresh cookie delivered by a refresh that
// completed after logout.
func (s *Session) revokeOrphan(ctx context.Context) {
	s.mu.Lock()
	anonymous := s.state.Phase == PhaseAnonymous
	s.mu.Unlock()
	if !anonymous {
		return
	}
	if _, err := s.post(ctx, "/auth/logout", nil); err != nil {
		s.logger.Debug("revoke orphaned refresh failed", zap.Error(err))
	}
}

func (s *Session) applyLocked(res *sessionResponse) {
	id := res.User
	s.state = State{
		Identity:    &id,
		AccessToken: res.AccessToken,
		Phase:       PhaseAuthenticated,
	}
}

func (s *Session) startTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startTimerLocked()
}

func (s *Session) startTimerLocked() {
	if s.stopTimer != nil {
		return
	}
	stop := make(chan struct{})
	s.stopTimer = stop
	go s.timerLoop(stop)
}

func (s *Session) stopTimerLocked() {
	if s.stopTimer != nil {
		close(s.stopTimer)
		s.stopTimer = nil
	}
}

func (s *Session) timerLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.dueForRefresh() {
				continue
			}
			if _, err := s.Refresh(context.Background()); err != nil {
				s.logger.Info("background refresh failed", zap.Error(err))
			}
		}
	}
}

// dueForRefresh skips ticks for anonymous sessions and ticks landing within
// half an interval of the last completed refresh.
func (s *Session) dueForRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Phase != PhaseAuthenticated {
		return false
	}
	return s.lastRefresh.IsZero() || s.now().Sub(s.lastRefresh) >= s.interval/2
}

type sessionResponse struct {
	User        auth.Identity `json:"user"`
	AccessToken string        `json:"accessToken"`
	ExpiresAt   time.Time     `json:"expiresAt"`
}

func (s *Session) post(ctx context.Context, path string, body any) (*sessionResponse, error) {
	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.resolve(path), payload)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAPIError(resp)
	}
	if path == "/auth/logout" {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	}
	var out sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	if out.AccessToken == "" {
		return nil, errors.New("client: session response without access token")
	}
	return &out, nil
}

func (s *Session) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return s.base.String() + "/" + strings.TrimLeft(path, "/")
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var body struct {
		Error     string `json:"error"`
		Field     string `json:"field"`
		RequestID string `json:"request_id"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err == nil {
		if body.Error != "" {
			apiErr.Message = body.Error
		}
		apiErr.Field = body.Field
		apiErr.RequestID = body.RequestID
	}
	return apiErr
}
