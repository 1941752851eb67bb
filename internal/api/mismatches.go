package api

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/wmde/mismatch-finder/internal/datastore"
	"github.com/wmde/mismatch-finder/internal/errors"
)

// itemIDPattern matches Wikidata item ids ("Q42").
var itemIDPattern = regexp.MustCompile(`^Q[1-9]\d*$`)

// parseItemIDs reads and validates the ids query parameter, a pipe
// separated list of item ids.
func (c *Controller) parseItemIDs(ctx echo.Context) ([]string, error) {
	raw := strings.TrimSpace(ctx.QueryParam("ids"))
	if raw == "" {
		return nil, errors.Newf("ids parameter is required").
			Category(errors.CategoryValidation).
			Component("api").
			Build()
	}

	ids := strings.Split(raw, "|")
	if len(ids) > c.Settings.Mismatches.MaxQueryIDs {
		return nil, errors.Newf("too many ids: %d exceeds the maximum of %d", len(ids), c.Settings.Mismatches.MaxQueryIDs).
			Category(errors.CategoryValidation).
			Component("api").
			Context("id_count", len(ids)).
			Build()
	}

	seen := make(map[string]struct{}, len(ids))
	distinct := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if !itemIDPattern.MatchString(id) {
			return nil, errors.Newf("invalid item id %q", id).
				Category(errors.CategoryValidation).
				Component("api").
				Build()
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		distinct = append(distinct, id)
	}

	return distinct, nil
}

// parseMismatchID reads the id path parameter.
func parseMismatchID(ctx echo.Context) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		return 0, errors.Newf("invalid mismatch id %q", ctx.Param("id")).
			Category(errors.CategoryValidation).
			Component("api").
			Build()
	}
	return uint(id), nil
}

// GetMismatches returns a flat listing of the mismatches for the requested
// item ids. Limited to pending and non-expired mismatches unless the
// include_reviewed / include_expired parameters are set.
func (c *Controller) GetMismatches(ctx echo.Context) error {
	// The request metric counts every read attempt, win or lose.
	defer c.recordRequest("mismatches")

	itemIDs, err := c.parseItemIDs(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid mismatch query", statusForError(err))
	}

	includeReviewed := queryBool(ctx, "include_reviewed")
	includeExpired := queryBool(ctx, "include_expired")

	mismatches, err := c.DS.GetMismatchesForItems(ctx.Request().Context(), itemIDs, includeReviewed, includeExpired)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get mismatches", statusForError(err))
	}

	if c.metrics != nil {
		c.metrics.Mismatch.RecordResultSize(len(mismatches))
	}

	if mismatches == nil {
		mismatches = []datastore.Mismatch{}
	}
	return ctx.JSON(http.StatusOK, mismatches)
}

// UpdateMismatch applies a single review decision to a mismatch.
type updateMismatchRequest struct {
	ReviewStatus string `json:"review_status"`
}

func (c *Controller) UpdateMismatch(ctx echo.Context) error {
	id, err := parseMismatchID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid mismatch id", statusForError(err))
	}

	var req updateMismatchRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	user := c.currentUser(ctx)
	if user == nil {
		return c.HandleError(ctx, nil, "Authentication required", http.StatusUnauthorized)
	}

	mismatch, err := c.Reviews.Review(ctx.Request().Context(), id, datastore.ReviewStatus(req.ReviewStatus), user)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to review mismatch", statusForError(err))
	}

	c.apiLogger.Info("Mismatch reviewed via API",
		"mismatch_id", id,
		"review_status", req.ReviewStatus,
		"username", user.Username)

	return ctx.JSON(http.StatusOK, mismatch)
}

// GetMismatchHistory returns the audit trail of a mismatch, oldest first.
func (c *Controller) GetMismatchHistory(ctx echo.Context) error {
	id, err := parseMismatchID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid mismatch id", statusForError(err))
	}

	// 404 for unknown mismatches rather than an empty history
	if _, err := c.DS.GetMismatch(ctx.Request().Context(), id); err != nil {
		return c.HandleError(ctx, err, "Failed to get mismatch", statusForError(err))
	}

	entries, err := c.DS.GetAuditForMismatch(ctx.Request().Context(), id)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get mismatch history", statusForError(err))
	}

	if entries == nil {
		entries = []datastore.MismatchAudit{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

// queryBool interprets a query parameter as a boolean flag.
func queryBool(ctx echo.Context, name string) bool {
	switch strings.ToLower(ctx.QueryParam(name)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
