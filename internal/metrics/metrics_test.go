package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/api/documents/{id}/summary", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for _, path := range []string{"/api/documents/a/summary", "/api/documents/b/summary"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ok", http.NoBody))

	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/documents/{id}/summary", "404")), float64(2))
	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/ok", "200")), float64(1))
}

func TestObserveLLMRequest(t *testing.T) {
	before := testutil.ToFloat64(llmRequestsTotal.WithLabelValues("ollama", "answer", "error"))
	ObserveLLMRequest("ollama", "answer", time.Now(), errors.New("boom"))
	ObserveLLMRequest("ollama", "answer", time.Now(), nil)

	assert.Equal(t, before+1, testutil.ToFloat64(llmRequestsTotal.WithLabelValues("ollama", "answer", "error")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(llmRequestsTotal.WithLabelValues("ollama", "answer", "ok")), float64(1))
}

func TestObserveContextFilter(t *testing.T) {
	ObserveContextFilter(3)
	assert.Equal(t, 1, testutil.CollectAndCount(contextFilterMatches))
}
