package obs

import (
	"runtime"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                          "/",
		"/metrics":                  "/metrics",
		"/admin/users/abc":          "/admin/users/:id",
		"/admin/users/42?x=1":       "/admin/users/:id",
		"/admin/users/bulk-delete":  "/admin/users/bulk-delete",
		"/admin/users/abc/sessions": "/admin/users/abc/sessions",
		"/auth/refresh":             "/auth/refresh",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInitBuildInfoReplacesSeries(t *testing.T) {
	InitBuildInfo("1.0.0", "aaa")
	InitBuildInfo("1.0.1", "bbb")

	if n := testutil.CollectAndCount(buildInfo); n != 1 {
		t.Fatalf("expected one build_info series, got %d", n)
	}
	if v := testutil.ToFloat64(buildInfo.WithLabelValues("1.0.1", "bbb", runtime.Version())); v != 1 {
		t.Fatalf("build_info=%v, want 1", v)
	}
}
