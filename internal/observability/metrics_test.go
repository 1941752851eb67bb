package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	require.NotNil(t, m.Mismatch)
	require.NotNil(t, m.Wikidata)
	require.NotNil(t, m.Datastore)
}

func TestMetricsEndpoint(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.Mismatch.RecordRequest("mismatches")
	m.Mismatch.RecordReview("accepted")
	m.Mismatch.RecordReviewBatchSize(3)
	m.Wikidata.RecordAPICall("wbgetentities", 120*time.Millisecond)
	m.Wikidata.RecordCacheHit()
	m.Datastore.RecordOperation("get_mismatch", "success")

	mux := http.NewServeMux()
	m.RegisterHandlers(mux)

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "mismatch_requests_total")
	assert.Contains(t, body, "mismatch_reviews_total")
	assert.Contains(t, body, "wikidata_api_calls_total")
	assert.Contains(t, body, "datastore_operations_total")
}
