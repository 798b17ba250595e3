package audit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newResolver(t *testing.T, trusted ...string) *IPResolver {
	t.Helper()
	prefixes, err := ParseTrustedProxies(trusted)
	if err != nil {
		t.Fatalf("ParseTrustedProxies: %v", err)
	}
	return NewIPResolver(prefixes)
}

func TestResolveIgnoresHeadersFromUntrustedPeer(t *testing.T) {
	res := newResolver(t, "10.0.0.0/8")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.7:5555"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	r.Header.Set("X-Real-IP", "198.51.100.2")
	if ip := res.Resolve(r); ip != "203.0.113.7" {
		t.Fatalf("expected peer address, got %s", ip)
	}
}

func TestResolveWithoutTrustedProxies(t *testing.T) {
	res := newResolver(t)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "127.0.0.1:5555"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	if ip := res.Resolve(r); ip != "127.0.0.1" {
		t.Fatalf("expected peer address, got %s", ip)
	}
}

func TestResolveTrustedProxyChain(t *testing.T) {
	res := newResolver(t, "10.0.0.0/8", "192.0.2.10")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	// The leftmost hop is caller-controlled; the client is the nearest untrusted hop.
	r.Header.Set("X-Forwarded-For", "1.1.1.1, 198.51.100.4, 192.0.2.10")
	if ip := res.Resolve(r); ip != "198.51.100.4" {
		t.Fatalf("expected 198.51.100.4, got %s", ip)
	}
}

func TestResolveFallsBackToRealIP(t *testing.T) {
	res := newResolver(t, "10.0.0.1")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	r.Header.Set("X-Real-IP", "198.51.100.9")
	if ip := res.Resolve(r); ip != "198.51.100.9" {
		t.Fatalf("expected X-Real-IP, got %s", ip)
	}
	r.Header.Set("X-Real-IP", "not-an-ip")
	if ip := res.Resolve(r); ip != "10.0.0.1" {
		t.Fatalf("invalid header must fall back to peer, got %s", ip)
	}
}

func TestParseTrustedProxiesRejectsGarbage(t *testing.T) {
	if _, err := ParseTrustedProxies([]string{"10.0.0.0/33"}); err == nil {
		t.Fatal("expected error for bad prefix")
	}
	if _, err := ParseTrustedProxies([]string{"proxy.local"}); err == nil {
		t.Fatal("expected error for hostname")
	}
}

func TestClientIPUsesResolvedAddress(t *testing.T) {
	res := newResolver(t, "10.0.0.0/8")
	var got, ua string
	h := res.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ua = FromRequest(r)
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.5:5555"
	r.Header.Set("X-Forwarded-For", "198.51.100.4")
	r.Header.Set("User-Agent", "tov-test/1.0")
	h.ServeHTTP(httptest.NewRecorder(), r)
	if got != "198.51.100.4" || ua != "tov-test/1.0" {
		t.Fatalf("unexpected ip/ua %s/%s", got, ua)
	}

	// Without the middleware only the peer address counts.
	bare := httptest.NewRequest(http.MethodGet, "/", nil)
	bare.RemoteAddr = "203.0.113.7:5555"
	bare.Header.Set("X-Forwarded-For", "198.51.100.4")
	if ip := ClientIP(bare); ip != "203.0.113.7" {
		t.Fatalf("expected peer address, got %s", ip)
	}
}
