package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/wmde/mismatch-finder/internal/conf"
	"github.com/wmde/mismatch-finder/internal/datastore"
	"github.com/wmde/mismatch-finder/internal/errors"
	"github.com/wmde/mismatch-finder/internal/review"
)

// GetResults returns the enriched, display-ready payload for the requested
// item ids: mismatches grouped by item, entity labels, and localized time
// value renderings.
func (c *Controller) GetResults(ctx echo.Context) error {
	defer c.recordRequest("results")

	itemIDs, err := c.parseItemIDs(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid results query", statusForError(err))
	}

	lang := c.requestLanguage(ctx)

	mismatches, err := c.DS.GetMismatchesForItems(ctx.Request().Context(), itemIDs, false, false)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get mismatches", statusForError(err))
	}

	result, err := c.Pipeline.Enrich(ctx.Request().Context(), itemIDs, mismatches, lang)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to enrich mismatches", statusForError(err))
	}

	if c.metrics != nil {
		c.metrics.Mismatch.RecordResultSize(len(mismatches))
	}

	payload := buildResultsPayload(itemIDs, result, c.currentUser(ctx))
	return ctx.JSON(http.StatusOK, payload)
}

// requestLanguage picks the response language: explicit lang parameter
// first, then the Accept-Language header, then the configured default.
func (c *Controller) requestLanguage(ctx echo.Context) string {
	fallback := c.Settings.Mismatches.Language

	if lang := ctx.QueryParam("lang"); lang != "" {
		if normalized, err := conf.NormalizeLanguage(lang); err == nil {
			return normalized
		}
		c.Debug("Ignoring invalid lang parameter", "lang", lang)
	}

	return conf.ResolveLanguage(ctx.Request().Header.Get("Accept-Language"), fallback)
}

// UpdateResults applies a batch of review decisions. The request body is
// an object mapping mismatch id to decision; decisions are applied in
// body order and each outcome is reported independently.
func (c *Controller) UpdateResults(ctx echo.Context) error {
	user := c.currentUser(ctx)
	if user == nil {
		return c.HandleError(ctx, nil, "Authentication required", http.StatusUnauthorized)
	}

	decisions, err := decodeOrderedDecisions(ctx.Request().Body)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid bulk review body", statusForError(err))
	}
	if len(decisions) == 0 {
		err := errors.Newf("bulk review body contains no decisions").
			Category(errors.CategoryValidation).
			Component("api").
			Build()
		return c.HandleError(ctx, err, "Invalid bulk review body", statusForError(err))
	}

	results := c.Reviews.ReviewBatch(ctx.Request().Context(), decisions, user)

	response := make([]batchItemResult, 0, len(results))
	for i := range results {
		response = append(response, newBatchItemResult(&results[i]))
	}

	c.apiLogger.Info("Bulk review applied",
		"decision_count", len(decisions),
		"username", user.Username)

	return ctx.JSON(http.StatusOK, response)
}

// batchItemResult is the per-decision outcome of a bulk review.
type batchItemResult struct {
	ID       uint                `json:"id"`
	Status   string              `json:"status"` // success or error
	Mismatch *datastore.Mismatch `json:"mismatch,omitempty"`
	Error    string              `json:"error,omitempty"`
	Code     int                 `json:"code,omitempty"`
}

func newBatchItemResult(r *review.BatchResult) batchItemResult {
	if r.Err != nil {
		return batchItemResult{
			ID:     r.MismatchID,
			Status: "error",
			Error:  r.Err.Error(),
			Code:   statusForError(r.Err),
		}
	}
	m := r.Mismatch
	return batchItemResult{
		ID:       r.MismatchID,
		Status:   "success",
		Mismatch: &m,
	}
}

// decodeOrderedDecisions decodes the bulk review body while preserving the
// key order of the JSON object, which encoding/json maps would lose.
func decodeOrderedDecisions(r io.Reader) ([]review.Decision, error) {
	invalid := func(err error) error {
		return errors.New(fmt.Errorf("decoding bulk review body: %w", err)).
			Category(errors.CategoryValidation).
			Component("api").
			Build()
	}

	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, invalid(err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, invalid(fmt.Errorf("expected a JSON object, got %v", tok))
	}

	var decisions []review.Decision
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, invalid(err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, invalid(fmt.Errorf("expected an object key, got %v", keyTok))
		}

		id, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			return nil, invalid(fmt.Errorf("invalid mismatch id %q", key))
		}

		var body updateMismatchRequest
		if err := dec.Decode(&body); err != nil {
			return nil, invalid(err)
		}

		decisions = append(decisions, review.Decision{
			MismatchID: uint(id),
			Status:     datastore.ReviewStatus(body.ReviewStatus),
		})
	}

	if _, err := dec.Token(); err != nil {
		return nil, invalid(err)
	}

	return decisions, nil
}
