package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/devrev/shardrouter/internal/metrics"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// Registers against the default Prometheus registry, so mint exactly once
// for the whole test binary.
var testMetrics = metrics.NewMetrics()

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestID_MintsWhenAbsent(t *testing.T) {
	h := RequestID(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestID_PreservesExisting(t *testing.T) {
	h := RequestID(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestRateLimiter_RejectsBeyondBurst(t *testing.T) {
	rl := NewRateLimiter(1, 2, zap.NewNop())
	h := rl.Limit(okHandler())

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
	assert.Equal(t, http.StatusTooManyRequests, codes[3])
}

func TestLogging_LabelsMetricsByRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Use(Logging(zap.NewNop(), testMetrics))
	router.Handle("/v1/sessions/{id}/writes", okHandler()).Methods(http.MethodPost)

	for _, id := range []string{"conn-1", "conn-2"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sessions/"+id+"/writes", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	// Both requests collapse onto the template label; per-connection ids
	// never appear as label values.
	got := testutil.ToFloat64(testMetrics.RequestsTotal.WithLabelValues(
		http.MethodPost, "/v1/sessions/{id}/writes", "200"))
	assert.Equal(t, float64(2), got)
}

func TestLogging_UnmatchedRequestsShareOneLabel(t *testing.T) {
	h := Logging(zap.NewNop(), testMetrics)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/no/such/route", nil))

	got := testutil.ToFloat64(testMetrics.RequestsTotal.WithLabelValues(
		http.MethodGet, "unmatched", "200"))
	assert.Equal(t, float64(1), got)
}

func TestRecovery_Returns500(t *testing.T) {
	h := Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestChain_OrdersOutsideIn(t *testing.T) {
	var order []string
	mk := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(mk("outer"), mk("inner"))(okHandler())
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner"}, order)
}
