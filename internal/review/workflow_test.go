package review

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/wmde/mismatch-finder/internal/datastore"
	"github.com/wmde/mismatch-finder/internal/errors"
)

func setupWorkflow(t *testing.T) (*Workflow, *datastore.SQLiteStore) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&datastore.User{}, &datastore.ImportMeta{}, &datastore.Mismatch{}, &datastore.MismatchAudit{}))

	ds := &datastore.SQLiteStore{DataStore: datastore.DataStore{DB: db}}

	importer := datastore.User{ID: 1, Username: "ImporterBot", MwUserID: 100}
	require.NoError(t, db.Create(&importer).Error)
	require.NoError(t, db.Create(&datastore.ImportMeta{
		ID:      1,
		UserID:  importer.ID,
		Expires: time.Now().Add(24 * time.Hour),
	}).Error)

	mismatches := []datastore.Mismatch{
		{ID: 1, ItemID: "Q42", PropertyID: "P569", ReviewStatus: datastore.StatusPending, ImportID: 1},
		{ID: 2, ItemID: "Q42", PropertyID: "P19", ReviewStatus: datastore.StatusAccepted, ImportID: 1},
		{ID: 3, ItemID: "Q1", PropertyID: "P580", ReviewStatus: datastore.StatusPending, ImportID: 1},
	}
	for i := range mismatches {
		require.NoError(t, db.Create(&mismatches[i]).Error)
	}

	return NewWorkflow(ds), ds
}

func testReviewer() *datastore.User {
	return &datastore.User{ID: 7, Username: "Curator", MwUserID: 700}
}

func auditEntries(t *testing.T, ds *datastore.SQLiteStore, mismatchID uint) []datastore.MismatchAudit {
	t.Helper()
	entries, err := ds.GetAuditForMismatch(context.Background(), mismatchID)
	require.NoError(t, err)
	return entries
}

func TestReviewAccept(t *testing.T) {
	w, ds := setupWorkflow(t)
	reviewer := testReviewer()
	require.NoError(t, ds.DB.Create(reviewer).Error)

	updated, err := w.Review(context.Background(), 1, datastore.StatusAccepted, reviewer)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusAccepted, updated.ReviewStatus)
	require.NotNil(t, updated.Reviewer)
	assert.Equal(t, "Curator", updated.Reviewer.Username)

	entries := auditEntries(t, ds, 1)
	require.Len(t, entries, 1)
	assert.Equal(t, datastore.StatusPending, entries[0].OldStatus)
	assert.Equal(t, datastore.StatusAccepted, entries[0].NewStatus)
	assert.Equal(t, "Curator", entries[0].Username)
	assert.Equal(t, uint(700), entries[0].MwUserID)
	assert.NotEmpty(t, entries[0].BatchID)
}

func TestReviewInvalidStatus(t *testing.T) {
	w, ds := setupWorkflow(t)

	for _, status := range []datastore.ReviewStatus{"pending", "garbage", ""} {
		_, err := w.Review(context.Background(), 1, status, testReviewer())
		require.Error(t, err, "status %q", status)
		assert.True(t, errors.IsValidation(err))
	}

	// Nothing was persisted and no audit entries were written.
	var current datastore.Mismatch
	require.NoError(t, ds.DB.First(&current, 1).Error)
	assert.Equal(t, datastore.StatusPending, current.ReviewStatus)
	assert.Empty(t, auditEntries(t, ds, 1))
}

func TestReviewWithoutReviewer(t *testing.T) {
	w, _ := setupWorkflow(t)

	_, err := w.Review(context.Background(), 1, datastore.StatusAccepted, nil)
	require.Error(t, err)
	assert.Equal(t, errors.CategoryAuth, errors.CategoryOf(err))
}

func TestReviewNotFound(t *testing.T) {
	w, _ := setupWorkflow(t)

	_, err := w.Review(context.Background(), 999, datastore.StatusRejected, testReviewer())
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestReviewConflict(t *testing.T) {
	w, ds := setupWorkflow(t)

	_, err := w.Review(context.Background(), 2, datastore.StatusRejected, testReviewer())
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	assert.Empty(t, auditEntries(t, ds, 2))
}

func TestReviewBatch(t *testing.T) {
	w, ds := setupWorkflow(t)
	reviewer := testReviewer()
	require.NoError(t, ds.DB.Create(reviewer).Error)

	decisions := []Decision{
		{MismatchID: 1, Status: datastore.StatusAccepted},
		{MismatchID: 999, Status: datastore.StatusAccepted},
		{MismatchID: 3, Status: datastore.StatusRejected},
	}

	results := w.ReviewBatch(context.Background(), decisions, reviewer)
	require.Len(t, results, 3)

	// Outcomes come back in input order and are independent: the missing
	// mismatch in the middle does not abort the decision after it.
	assert.Equal(t, uint(1), results[0].MismatchID)
	require.NoError(t, results[0].Err)
	assert.Equal(t, datastore.StatusAccepted, results[0].Mismatch.ReviewStatus)

	assert.Equal(t, uint(999), results[1].MismatchID)
	require.Error(t, results[1].Err)
	assert.True(t, errors.IsNotFound(results[1].Err))

	assert.Equal(t, uint(3), results[2].MismatchID)
	require.NoError(t, results[2].Err)
	assert.Equal(t, datastore.StatusRejected, results[2].Mismatch.ReviewStatus)

	// Both applied decisions share the batch id.
	first := auditEntries(t, ds, 1)
	third := auditEntries(t, ds, 3)
	require.Len(t, first, 1)
	require.Len(t, third, 1)
	assert.Equal(t, first[0].BatchID, third[0].BatchID)
}

func TestReviewBatchEmpty(t *testing.T) {
	w, _ := setupWorkflow(t)

	results := w.ReviewBatch(context.Background(), nil, testReviewer())
	assert.Empty(t, results)
}
