package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

// RegisterBuildInfo 注册常量 1 的 build_info 指标，重复调用只保留第一次的标签。
func (m *Metrics) RegisterBuildInfo(serviceName, version string) {
	if m == nil || m.BuildInfo != nil {
		return
	}
	labels := []string{serviceName, version, runtime.Version()}
	for i, v := range labels {
		if v == "" {
			labels[i] = "unknown"
		}
	}
	m.BuildInfo = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Pricer build metadata, value is always 1",
	}, []string{"service", "version", "go_version"})
	m.BuildInfo.WithLabelValues(labels...).Set(1)
}
