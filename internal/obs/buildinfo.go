package obs

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	// buildInfo: gauge со значением 1, метки описывают сборку.
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tov_auth_build_info",
			Help: "Identity service build information.",
		},
		[]string{"version", "commit", "goversion"},
	)
)

// InitBuildInfo registers build_info once and publishes version/commit. An
// empty or "dev" commit falls back to the VCS revision stamped by the linker.
func InitBuildInfo(version, commit string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	if commit == "" || commit == "dev" {
		commit = vcsRevision()
	}
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return "unknown"
}
