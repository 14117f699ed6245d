package obs

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareCountsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	Init()
	Init()

	r := gin.New()
	r.Use(Middleware())
	r.GET("/api/users/:id", func(c *gin.Context) { c.Status(http.StatusForbidden) })
	r.GET("/metrics", gin.WrapH(Handler()))

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/users/:id", "403"))
	deniedBefore := testutil.ToFloat64(authzDeniedTotal.WithLabelValues("403"))
	for _, id := range []string{"a", "b"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users/"+id, nil))
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/users/:id", "403"))
	if after-before != 2 {
		t.Fatalf("expected 2 requests under one label, got %v", after-before)
	}
	if d := testutil.ToFloat64(authzDeniedTotal.WithLabelValues("403")) - deniedBefore; d != 2 {
		t.Fatalf("expected 2 denials, got %v", d)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != 200 || !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("expected exposition to include http_requests_total")
	}
}

func TestAuthEvent(t *testing.T) {
	before := testutil.ToFloat64(authEventsTotal.WithLabelValues("login", "success"))
	AuthEvent("login", "success")
	if got := testutil.ToFloat64(authEventsTotal.WithLabelValues("login", "success")) - before; got != 1 {
		t.Fatalf("expected increment, got %v", got)
	}
}
