package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type blockingStore struct{}

func (blockingStore) Append(ctx context.Context, _ Entry) error {
	<-ctx.Done()
	return ctx.Err()
}

func newTestLogger(store Store, opts ...Option) (*Logger, *observer.ObservedLogs, *prometheus.CounterVec) {
	core, logs := observer.New(zapcore.InfoLevel)
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_audit_failures"}, []string{"action"})
	l := NewLogger(store, append([]Option{WithLogger(zap.New(core))}, opts...)...)
	l.failures = failures
	return l, logs, failures
}

func TestLogAppendsEntry(t *testing.T) {
	store := NewMemoryStore()
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l, logs, _ := newTestLogger(store, WithClock(func() time.Time { return fixed }))

	ctx := WithRequestID(context.Background(), "req-123")
	l.Log(ctx, Entry{
		ActorID:      "admin-1",
		Action:       DeleteUser,
		ResourceType: "user",
		ResourceID:   "42",
		IP:           "10.0.0.1",
		UserAgent:    "test",
	})

	entries := store.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ID == "" || !e.CreatedAt.Equal(fixed) {
		t.Fatalf("id/timestamp not populated: %+v", e)
	}
	if e.ActorID != "admin-1" || e.Action != DeleteUser || e.ResourceID != "42" {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.Metadata == nil {
		t.Fatal("metadata should default to an empty map")
	}

	got := logs.FilterMessage("audit").All()
	if len(got) != 1 {
		t.Fatalf("expected one audit log line, got %d", len(got))
	}
	if rid := got[0].ContextMap()["request_id"]; rid != "req-123" {
		t.Fatalf("unexpected request id %v", rid)
	}
}

func TestLogRejectsUnknownAction(t *testing.T) {
	store := NewMemoryStore()
	l, logs, failures := newTestLogger(store)

	l.Log(context.Background(), Entry{ActorID: "admin-1", Action: Action("DROP_DATABASE")})

	if n := len(store.Entries()); n != 0 {
		t.Fatalf("expected no entries, got %d", n)
	}
	if v := testutil.ToFloat64(failures.WithLabelValues("DROP_DATABASE")); v != 1 {
		t.Fatalf("expected failure counter 1, got %v", v)
	}
	if logs.FilterMessage("audit write failed").Len() != 1 {
		t.Fatal("expected error log")
	}
}

func TestLogSwallowsStoreFailure(t *testing.T) {
	store := NewMemoryStore()
	store.FailWith(errors.New("db down"))
	l, logs, failures := newTestLogger(store)

	l.Log(context.Background(), Entry{ActorID: "admin-1", Action: UpdateUser, ResourceType: "user", ResourceID: "7"})

	if v := testutil.ToFloat64(failures.WithLabelValues(string(UpdateUser))); v != 1 {
		t.Fatalf("expected failure counter 1, got %v", v)
	}
	entries := logs.FilterMessage("audit write failed").All()
	if len(entries) != 1 || entries[0].Level != zapcore.ErrorLevel {
		t.Fatalf("expected one error log, got %+v", entries)
	}
}

func TestLogSurvivesCanceledContext(t *testing.T) {
	store := NewMemoryStore()
	l, _, _ := newTestLogger(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Log(ctx, Entry{ActorID: "admin-1", Action: DeleteUser, ResourceType: "user", ResourceID: "1"})

	if n := len(store.Entries()); n != 1 {
		t.Fatalf("expected write despite canceled request context, got %d", n)
	}
}

func TestLogBoundedByTimeout(t *testing.T) {
	l, _, failures := newTestLogger(blockingStore{}, WithTimeout(20*time.Millisecond))

	done := make(chan struct{})
	go func() {
		l.Log(context.Background(), Entry{ActorID: "admin-1", Action: BulkDeleteUsers})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Log blocked past its timeout")
	}
	if v := testutil.ToFloat64(failures.WithLabelValues(string(BulkDeleteUsers))); v != 1 {
		t.Fatalf("expected failure counter 1, got %v", v)
	}
}

func TestActionEnumeration(t *testing.T) {
	for _, a := range []Action{CreatePost, DeleteBanner, UpdateUser, BulkDeleteUsers, SendBulkEmail} {
		if !a.Valid() {
			t.Fatalf("%s should be valid", a)
		}
	}
	if Action("update_user").Valid() {
		t.Fatal("actions are case-sensitive")
	}
}
