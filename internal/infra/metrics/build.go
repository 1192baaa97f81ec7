package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(buildInfo) }

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "build_info",
		Help: "A constant metric with labels for version and commit hash.",
	},
	[]string{"version", "commit"},
)

// SetBuildInfo is called once from main with values injected via -ldflags.
func SetBuildInfo(version, commit string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version, commit).Set(1)
}
