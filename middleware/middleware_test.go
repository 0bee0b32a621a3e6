package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wyfcoding/optionpricer/config"
	"github.com/wyfcoding/optionpricer/idgen"
	"github.com/wyfcoding/optionpricer/logging"
	"github.com/wyfcoding/optionpricer/metrics"
	"github.com/wyfcoding/optionpricer/response"
)

func serve(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	engine := gin.New()
	engine.Use(Recovery(slog.New(slog.NewJSONHandler(&buf, nil))))
	engine.GET("/panic", func(*gin.Context) { panic("boom") })

	w := serve(engine, http.MethodGet, "/panic")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
	if !strings.Contains(buf.String(), "panic recovered") || !strings.Contains(buf.String(), "boom") {
		t.Errorf("log = %s", buf.String())
	}
}

func TestRequestIDInContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	gen, err := idgen.New(config.IDGenConfig{Type: "snowflake", MachineID: 1})
	if err != nil {
		t.Fatal(err)
	}
	engine := gin.New()
	engine.Use(RequestID(gen))
	var seen string
	engine.GET("/", func(c *gin.Context) {
		seen = logging.RequestID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := serve(engine, http.MethodGet, "/")
	if seen == "" || w.Header().Get(HeaderXRequestID) != seen {
		t.Errorf("ctx id %q, header %q", seen, w.Header().Get(HeaderXRequestID))
	}
}

func TestTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(Timeout(20 * time.Millisecond))
	engine.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})
	engine.GET("/slow-error", func(c *gin.Context) {
		<-c.Request.Context().Done()
		response.Error(c, c.Request.Context().Err())
	})

	for _, path := range []string{"/slow", "/slow-error"} {
		if w := serve(engine, http.MethodGet, path); w.Code != http.StatusGatewayTimeout {
			t.Errorf("%s status = %d", path, w.Code)
		}
	}
}

func TestHTTPMetricsSlowAndSkip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.NewMetrics("test")
	engine := gin.New()
	engine.Use(HTTPMetrics(m, MetricsOptions{SlowThreshold: time.Millisecond, SkipPaths: []string{"/health"}}))
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/slow", func(c *gin.Context) {
		time.Sleep(5 * time.Millisecond)
		c.Status(http.StatusOK)
	})

	serve(engine, http.MethodGet, "/health")
	serve(engine, http.MethodGet, "/slow")
	serve(engine, http.MethodGet, "/missing")

	if got := testutil.ToFloat64(m.HTTPSlowRequestsTotal.WithLabelValues(http.MethodGet, "/slow")); got != 1 {
		t.Errorf("slow = %v", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unknown", "404")); got != 1 {
		t.Errorf("unknown = %v", got)
	}
	if got := testutil.CollectAndCount(m.HTTPRequestsTotal); got != 2 {
		t.Errorf("series = %d, health should be skipped", got)
	}
}

func TestRequestLoggerLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := logging.NewWithWriter(logging.Config{Service: "pricer", Level: "info"}, &buf)
	engine := gin.New()
	engine.Use(RequestLogger(logger.Logger))
	engine.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	req := httptest.NewRequest(http.MethodGet, "/bad", nil)
	req = req.WithContext(logging.WithRequestID(context.Background(), "r-1"))
	engine.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, `"level":"WARN"`) || !strings.Contains(out, `"request_id":"r-1"`) {
		t.Errorf("log = %s", out)
	}
}
