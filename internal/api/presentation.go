package api

import (
	"github.com/wmde/mismatch-finder/internal/datastore"
	"github.com/wmde/mismatch-finder/internal/enrich"
)

// userIdentity is the public identity of the acting user echoed back in
// the results payload.
type userIdentity struct {
	Name string `json:"name"`
	ID   uint   `json:"id"`
}

// resultsPayload is the display-ready response for GET /results.
// Results is omitted entirely when no mismatches matched the query,
// so clients can distinguish "nothing found" from an empty group.
type resultsPayload struct {
	User            *userIdentity                   `json:"user"`
	ItemIDs         []string                        `json:"item_ids"`
	Labels          map[string]string               `json:"labels"`
	FormattedValues map[string]map[string]string    `json:"formatted_values"`
	Results         map[string][]datastore.Mismatch `json:"results,omitempty"`
}

func buildResultsPayload(itemIDs []string, result enrich.Result, user *datastore.User) resultsPayload {
	payload := resultsPayload{
		ItemIDs:         itemIDs,
		Labels:          result.Labels,
		FormattedValues: result.FormattedValues,
	}

	if payload.Labels == nil {
		payload.Labels = map[string]string{}
	}
	if payload.FormattedValues == nil {
		payload.FormattedValues = map[string]map[string]string{}
	}

	if len(result.Grouped) > 0 {
		payload.Results = result.Grouped
	}

	if user != nil {
		payload.User = &userIdentity{Name: user.Username, ID: user.ID}
	}

	return payload
}
