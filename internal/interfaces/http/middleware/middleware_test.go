package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/receiving/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	return body["error"].(map[string]any)
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		assert.Equal(t, GetRequestID(c), logger.GetRequestID(c.Request.Context()))
		c.String(http.StatusOK, GetRequestID(c))
	})

	t.Run("generates request ID", func(t *testing.T) {
		w := serve(router, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, w.Header().Get(HeaderRequestID), 32)
		assert.Equal(t, w.Header().Get(HeaderRequestID), w.Body.String())
	})

	t.Run("uses provided request ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(HeaderRequestID, "scanner-7-0001")
		w := serve(router, req)

		assert.Equal(t, "scanner-7-0001", w.Header().Get(HeaderRequestID))
		assert.Equal(t, "scanner-7-0001", w.Body.String())
	})

	t.Run("replaces oversized request ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(HeaderRequestID, strings.Repeat("x", MaxRequestIDLength+1))
		w := serve(router, req)

		assert.Len(t, w.Body.String(), 32)
	})
}

func TestSessionContext(t *testing.T) {
	tenantID := uuid.New()
	router := gin.New()
	router.Use(RequestID(), SessionContext())
	router.GET("/test", func(c *gin.Context) {
		id, ok := GetTenantID(c)
		require.True(t, ok)
		ctx := c.Request.Context()
		assert.Equal(t, id.String(), logger.GetTenantID(ctx))
		assert.Equal(t, GetDeviceID(c), logger.GetDeviceID(ctx))
		c.String(http.StatusOK, id.String()+"|"+GetDeviceID(c))
	})

	t.Run("stores tenant and device", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(HeaderTenantID, tenantID.String())
		req.Header.Set(HeaderDeviceID, "dock-4")
		w := serve(router, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tenantID.String()+"|dock-4", w.Body.String())
	})

	cases := []struct {
		name    string
		tenant  string
		device  string
		message string
	}{
		{"missing tenant", "", "dock-4", "X-Tenant-ID header is required"},
		{"malformed tenant", "tenant-1", "dock-4", "X-Tenant-ID must be a UUID"},
		{"nil tenant", uuid.Nil.String(), "dock-4", "X-Tenant-ID must be a UUID"},
		{"missing device", tenantID.String(), "", "X-Device-ID header is required"},
		{"oversized device", tenantID.String(), strings.Repeat("d", MaxDeviceIDLength+1), "X-Device-ID is too long"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tc.tenant != "" {
				req.Header.Set(HeaderTenantID, tc.tenant)
			}
			if tc.device != "" {
				req.Header.Set(HeaderDeviceID, tc.device)
			}
			w := serve(router, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			errObj := decodeError(t, w)
			assert.Equal(t, "ERR_SESSION_REQUIRED", errObj["code"])
			assert.Equal(t, tc.message, errObj["message"])
			assert.Equal(t, w.Header().Get(HeaderRequestID), errObj["request_id"])
		})
	}
}

func TestCORS(t *testing.T) {
	newRouter := func(origins ...string) *gin.Engine {
		cfg := DefaultCORSConfig()
		cfg.AllowOrigins = origins
		router := gin.New()
		router.Use(CORS(cfg))
		router.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
		return router
	}

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Origin", "http://handheld.local")
		w := serve(newRouter("http://handheld.local"), req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "http://handheld.local", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("disallowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Origin", "http://evil.example")
		w := serve(newRouter("http://handheld.local"), req)

		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("wildcard", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Origin", "http://any.example")
		w := serve(newRouter("*"), req)

		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("no origins configured answers preflight without headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/test", nil)
		req.Header.Set("Origin", "http://handheld.local")
		w := serve(newRouter(), req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestSecure(t *testing.T) {
	router := gin.New()
	router.Use(Secure())
	router.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := serve(router, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotContains(t, w.Header().Get("Permissions-Policy"), "camera")
}

func TestBodyLimit(t *testing.T) {
	router := gin.New()
	router.Use(BodyLimit(100))
	router.POST("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	t.Run("within limit", func(t *testing.T) {
		w := serve(router, httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader([]byte(`{"barcode":"123"}`))))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("over limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader(bytes.Repeat([]byte("x"), 200)))
		w := serve(router, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, "ERR_BAD_REQUEST", decodeError(t, w)["code"])
	})
}

func TestTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	tenantID := uuid.New()
	router := gin.New()
	router.Use(Tracing(TracingConfig{ServiceName: "test", Enabled: true, TracerProvider: tp}), RequestID(), SpanStatus())
	group := router.Group("/api", SessionContext())
	group.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	group.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	req := httptest.NewRequest(http.MethodGet, "/api/ok", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	req.Header.Set(HeaderTenantID, tenantID.String())
	req.Header.Set(HeaderDeviceID, "dock-4")
	serve(router, req)

	req = httptest.NewRequest(http.MethodGet, "/api/missing", nil)
	req.Header.Set(HeaderTenantID, tenantID.String())
	req.Header.Set(HeaderDeviceID, "dock-4")
	serve(router, req)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	ok := spans[0]
	attrs := attribute.NewSet(ok.Attributes()...)
	v, found := attrs.Value("request_id")
	require.True(t, found)
	assert.Equal(t, "req-1", v.AsString())
	v, found = attrs.Value("tenant_id")
	require.True(t, found)
	assert.Equal(t, tenantID.String(), v.AsString())
	v, found = attrs.Value("device_id")
	require.True(t, found)
	assert.Equal(t, "dock-4", v.AsString())
	assert.NotEqual(t, codes.Error, ok.Status().Code)

	missing := spans[1]
	assert.Equal(t, codes.Error, missing.Status().Code)
	assert.Equal(t, "Not Found", missing.Status().Description)
}

func TestTracing_Disabled(t *testing.T) {
	router := gin.New()
	router.Use(Tracing(TracingConfig{Enabled: false}), SpanStatus())
	router.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := serve(router, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHTTPMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	tenantID := uuid.New()
	router := gin.New()
	router.Use(HTTPMetrics(mp.Meter("http.server"), nil))
	group := router.Group("/api", SessionContext())
	group.DELETE("/queue/:lineId", func(c *gin.Context) { c.Status(http.StatusOK) })

	for range 3 {
		req := httptest.NewRequest(http.MethodDelete, "/api/queue/"+uuid.NewString(), nil)
		req.Header.Set(HeaderTenantID, tenantID.String())
		req.Header.Set(HeaderDeviceID, "dock-4")
		serve(router, req)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	total := findMetric(rm, "http_server_request_total")
	require.NotNil(t, total)
	sum, ok := total.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)

	attrs := sum.DataPoints[0].Attributes
	route, _ := attrs.Value("http_route")
	assert.Equal(t, "/api/queue/:lineId", route.AsString())
	tenant, _ := attrs.Value("tenant_id")
	assert.Equal(t, tenantID.String(), tenant.AsString())

	duration := findMetric(rm, "http_server_request_duration_seconds")
	require.NotNil(t, duration)
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Equal(t, uint64(3), hist.DataPoints[0].Count)

	active := findMetric(rm, "http_server_active_requests")
	require.NotNil(t, active)
	gauge, ok := active.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(0), gauge.DataPoints[0].Value)
}

func TestHTTPMetrics_NilMeter(t *testing.T) {
	router := gin.New()
	router.Use(HTTPMetrics(nil, nil))
	router.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := serve(router, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}
