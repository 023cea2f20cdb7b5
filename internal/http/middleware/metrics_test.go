package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/chat/history/:sessionId", func(c *gin.Context) { c.String(http.StatusOK, "[]") })
	r.POST("/chat/send-message", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	history := httpReqs.WithLabelValues(http.MethodGet, "/chat/history/:sessionId", "200")
	sent := httpReqs.WithLabelValues(http.MethodPost, "/chat/send-message", "204")
	missed := httpReqs.WithLabelValues(http.MethodGet, unmatchedPath, "404")
	base := []float64{testutil.ToFloat64(history), testutil.ToFloat64(sent), testutil.ToFloat64(missed)}

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/chat/history/sess-1", nil),
		httptest.NewRequest(http.MethodGet, "/chat/history/sess-2", nil),
		httptest.NewRequest(http.MethodPost, "/chat/send-message", nil),
		httptest.NewRequest(http.MethodGet, "/auth/user-profile/9876543210/x", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	for i, tc := range []struct {
		name string
		c    prometheus.Counter
		want float64
	}{
		{"history", history, 2},
		{"send", sent, 1},
		{"unmatched", missed, 1},
	} {
		if got := testutil.ToFloat64(tc.c) - base[i]; got != tc.want {
			t.Errorf("%s: +%v, want +%v", tc.name, got, tc.want)
		}
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("inflight = %v after all requests returned", got)
	}
}

func TestMetrics_NoRawPathLabels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/auth/user-profile/9876543210/extra", nil))

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if !strings.HasPrefix(mf.GetName(), "http_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if strings.Contains(l.GetValue(), "9876543210") {
					t.Fatalf("%s carries a raw path label %q", mf.GetName(), l.GetValue())
				}
			}
		}
	}
}

func TestRouteLabel(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if got := routeLabel(c); got != unmatchedPath {
		t.Fatalf("routeLabel without route = %q", got)
	}
}
