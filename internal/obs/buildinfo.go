package obs

import "github.com/prometheus/client_golang/prometheus"

// RegisterBuildInfo registers build_info{version,commit} = 1 in reg.
func RegisterBuildInfo(reg prometheus.Registerer, version, commit string) error {
	info := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "corpsite API build information.",
		},
		[]string{"version", "commit"},
	)
	if err := reg.Register(info); err != nil {
		return err
	}
	info.WithLabelValues(version, commit).Set(1)
	return nil
}
