package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_RecordsPatternAndStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/vkg/query", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	handler := Middleware(mux)

	counter := HTTPRequestsTotal.WithLabelValues(http.MethodPost, "POST /api/v1/vkg/query", "400")
	before := testutil.ToFloat64(counter)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/vkg/query", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestMiddleware_UnmatchedPathsShareOneLabel(t *testing.T) {
	handler := Middleware(http.NewServeMux())

	counter := HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")
	before := testutil.ToFloat64(counter)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/a", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/b", nil))

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestObserveCacheLookup(t *testing.T) {
	counter := SchemaCacheLookupsTotal.WithLabelValues(TierLocal, ResultHit)
	before := testutil.ToFloat64(counter)

	ObserveCacheLookup(TierLocal, ResultHit)

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
