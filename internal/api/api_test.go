package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/wmde/mismatch-finder/internal/conf"
	"github.com/wmde/mismatch-finder/internal/datastore"
	"github.com/wmde/mismatch-finder/internal/enrich"
	"github.com/wmde/mismatch-finder/internal/review"
	"github.com/wmde/mismatch-finder/internal/wikidata"
)

// stubSource serves canned metadata so handler tests avoid the network.
type stubSource struct {
	datatypes map[string]string
	labels    map[string]string
	parsed    map[string]map[string]wikidata.ParsedValue
	formatted map[string]map[string]string
}

func (s *stubSource) GetPropertyDatatypes(context.Context, []string) (map[string]string, error) {
	return s.datatypes, nil
}

func (s *stubSource) GetLabels(context.Context, []string, string) (map[string]string, error) {
	return s.labels, nil
}

func (s *stubSource) ParseValues(context.Context, map[string][]string) (map[string]map[string]wikidata.ParsedValue, error) {
	return s.parsed, nil
}

func (s *stubSource) FormatValues(context.Context, map[string]map[string]wikidata.ParsedValue, string) (map[string]map[string]string, error) {
	return s.formatted, nil
}

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Mismatches.MaxQueryIDs = 600
	s.Mismatches.Language = "en"
	return s
}

// newTestAPI builds a controller on an in-memory database. user is the
// authenticated actor; nil means unauthenticated requests.
func newTestAPI(t *testing.T, source wikidata.DataSource, user *datastore.User) (*echo.Echo, *datastore.SQLiteStore) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&datastore.User{}, &datastore.ImportMeta{}, &datastore.Mismatch{}, &datastore.MismatchAudit{}))
	ds := &datastore.SQLiteStore{DataStore: datastore.DataStore{DB: db}}

	if source == nil {
		source = &stubSource{}
	}

	e := echo.New()
	controller := New(e, ds, testSettings(), source,
		enrich.NewPipeline(source), review.NewWorkflow(ds),
		WithCurrentUserFunc(func(echo.Context) *datastore.User { return user }))
	t.Cleanup(controller.Shutdown)

	return e, ds
}

func seedMismatches(t *testing.T, ds *datastore.SQLiteStore) {
	t.Helper()

	importer := datastore.User{ID: 1, Username: "ImporterBot", MwUserID: 100}
	require.NoError(t, ds.DB.Create(&importer).Error)
	require.NoError(t, ds.DB.Create(&datastore.ImportMeta{
		ID:             1,
		UserID:         importer.ID,
		ExternalSource: "some librarian database",
		Expires:        time.Now().Add(24 * time.Hour),
	}).Error)

	mismatches := []datastore.Mismatch{
		{
			ID: 1, ItemID: "Q42", PropertyID: "P569",
			WikidataValue: "+1952-03-11T00:00:00Z", ExternalValue: "1952-03-12",
			ReviewStatus: datastore.StatusPending, ImportID: 1,
		},
		{
			ID: 2, ItemID: "Q42", PropertyID: "P19",
			WikidataValue: "Q84", ExternalValue: "Cambridge",
			ReviewStatus: datastore.StatusAccepted, ImportID: 1,
		},
		{
			ID: 3, ItemID: "Q1", PropertyID: "P580",
			WikidataValue: "+1920-01-01T00:00:00Z", ExternalValue: "older",
			ReviewStatus: datastore.StatusPending, ImportID: 1,
		},
	}
	for i := range mismatches {
		require.NoError(t, ds.DB.Create(&mismatches[i]).Error)
	}
}

func doRequest(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGetMismatches(t *testing.T) {
	e, ds := newTestAPI(t, nil, nil)
	seedMismatches(t, ds)

	rec := doRequest(e, http.MethodGet, "/api/v1/mismatches?ids=Q42|Q1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []datastore.Mismatch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))

	// Pending only by default; both items matched one each.
	require.Len(t, got, 2)
	assert.Equal(t, "Q42", got[0].ItemID)
	assert.Equal(t, "some librarian database", got[0].ImportMeta.ExternalSource)
	assert.Equal(t, "Q1", got[1].ItemID)
}

func TestGetMismatchesIncludeReviewed(t *testing.T) {
	e, ds := newTestAPI(t, nil, nil)
	seedMismatches(t, ds)

	rec := doRequest(e, http.MethodGet, "/api/v1/mismatches?ids=Q42&include_reviewed=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []datastore.Mismatch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)
}

func TestGetMismatchesEmptyResult(t *testing.T) {
	e, ds := newTestAPI(t, nil, nil)
	seedMismatches(t, ds)

	rec := doRequest(e, http.MethodGet, "/api/v1/mismatches?ids=Q404", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestGetMismatchesValidation(t *testing.T) {
	e, _ := newTestAPI(t, nil, nil)

	tests := []struct {
		name   string
		target string
	}{
		{name: "missing ids", target: "/api/v1/mismatches"},
		{name: "empty ids", target: "/api/v1/mismatches?ids="},
		{name: "malformed id", target: "/api/v1/mismatches?ids=Q42|notanid"},
		{name: "lowercase prefix", target: "/api/v1/mismatches?ids=q42"},
		{name: "leading zero", target: "/api/v1/mismatches?ids=Q042"},
		{name: "property id", target: "/api/v1/mismatches?ids=P31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(e, http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.CorrelationID)
		})
	}
}

func TestGetMismatchesTooManyIDs(t *testing.T) {
	e, _ := newTestAPI(t, nil, nil)

	// Duplicates still count against the limit; dedupe happens afterwards.
	ids := make([]string, 601)
	for i := range ids {
		ids[i] = "Q1"
	}

	rec := doRequest(e, http.MethodGet, "/api/v1/mismatches?ids="+strings.Join(ids, "|"), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "too many ids")
}

func TestUpdateMismatch(t *testing.T) {
	reviewer := &datastore.User{ID: 7, Username: "Curator", MwUserID: 700}
	e, ds := newTestAPI(t, nil, reviewer)
	seedMismatches(t, ds)
	require.NoError(t, ds.DB.Create(reviewer).Error)

	rec := doRequest(e, http.MethodPut, "/api/v1/mismatches/1", `{"review_status":"accepted"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got datastore.Mismatch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, datastore.StatusAccepted, got.ReviewStatus)

	// The transition got an audit entry.
	entries, err := ds.GetAuditForMismatch(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, datastore.StatusAccepted, entries[0].NewStatus)
}

func TestUpdateMismatchUnauthenticated(t *testing.T) {
	e, ds := newTestAPI(t, nil, nil)
	seedMismatches(t, ds)

	rec := doRequest(e, http.MethodPut, "/api/v1/mismatches/1", `{"review_status":"accepted"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateMismatchErrors(t *testing.T) {
	reviewer := &datastore.User{ID: 7, Username: "Curator", MwUserID: 700}
	e, ds := newTestAPI(t, nil, reviewer)
	seedMismatches(t, ds)
	require.NoError(t, ds.DB.Create(reviewer).Error)

	tests := []struct {
		name     string
		target   string
		body     string
		wantCode int
	}{
		{name: "invalid id", target: "/api/v1/mismatches/abc", body: `{"review_status":"accepted"}`, wantCode: http.StatusBadRequest},
		{name: "invalid status", target: "/api/v1/mismatches/1", body: `{"review_status":"maybe"}`, wantCode: http.StatusBadRequest},
		{name: "pending as target", target: "/api/v1/mismatches/1", body: `{"review_status":"pending"}`, wantCode: http.StatusBadRequest},
		{name: "unknown mismatch", target: "/api/v1/mismatches/999", body: `{"review_status":"accepted"}`, wantCode: http.StatusNotFound},
		{name: "already reviewed", target: "/api/v1/mismatches/2", body: `{"review_status":"rejected"}`, wantCode: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(e, http.MethodPut, tt.target, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestGetMismatchHistory(t *testing.T) {
	reviewer := &datastore.User{ID: 7, Username: "Curator", MwUserID: 700}
	e, ds := newTestAPI(t, nil, reviewer)
	seedMismatches(t, ds)
	require.NoError(t, ds.DB.Create(reviewer).Error)

	// No reviews yet: empty array, not 404.
	rec := doRequest(e, http.MethodGet, "/api/v1/mismatches/1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	doRequest(e, http.MethodPut, "/api/v1/mismatches/1", `{"review_status":"rejected"}`)

	rec = doRequest(e, http.MethodGet, "/api/v1/mismatches/1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []datastore.MismatchAudit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, datastore.StatusPending, entries[0].OldStatus)
	assert.Equal(t, datastore.StatusRejected, entries[0].NewStatus)
	assert.Equal(t, "Curator", entries[0].Username)
}

func TestGetMismatchHistoryUnknownMismatch(t *testing.T) {
	e, _ := newTestAPI(t, nil, nil)

	rec := doRequest(e, http.MethodGet, "/api/v1/mismatches/999/history", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
