package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/optionpricer/metrics"
)

// MetricsOptions SlowThreshold 为 0 时不统计慢请求。
type MetricsOptions struct {
	SlowThreshold time.Duration
	SkipPaths     []string
}

// HTTPMetrics 按路由模板统计请求量、耗时与并发数，未匹配路由记为 "unknown"。
func HTTPMetrics(m *metrics.Metrics, opts MetricsOptions) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		if _, ok := skip[path]; ok || m == nil {
			c.Next()
			return
		}

		inFlight := m.HTTPInFlight.WithLabelValues(c.Request.Method, path)
		inFlight.Inc()
		defer inFlight.Dec()

		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(elapsed.Seconds())
		if opts.SlowThreshold > 0 && elapsed > opts.SlowThreshold {
			m.HTTPSlowRequestsTotal.WithLabelValues(c.Request.Method, path).Inc()
		}
	}
}
