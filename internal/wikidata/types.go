// Package wikidata provides a client for the subset of the Wikidata Action
// API the mismatch pipeline needs: property datatypes, entity labels, and
// parsing/formatting of time values.
package wikidata

import (
	"context"
	"time"
)

// DataSource is the capability the enrichment pipeline consumes. The
// production implementation is Client; tests substitute deterministic stubs.
type DataSource interface {
	// GetPropertyDatatypes resolves the datatype of each property id.
	GetPropertyDatatypes(ctx context.Context, propertyIDs []string) (map[string]string, error)
	// GetLabels resolves human-readable labels for entity and property ids
	// in the given language, with language fallback.
	GetLabels(ctx context.Context, entityIDs []string, lang string) (map[string]string, error)
	// ParseValues parses raw time value strings, grouped by property id.
	// The result maps property id to raw value to parsed value.
	ParseValues(ctx context.Context, valuesByProperty map[string][]string) (map[string]map[string]ParsedValue, error)
	// FormatValues renders parsed values as localized plain text. The inner
	// map keys are caller-chosen and preserved in the result.
	FormatValues(ctx context.Context, valuesByProperty map[string]map[string]ParsedValue, lang string) (map[string]map[string]string, error)
}

// Datatypes with special handling in the enrichment pipeline.
const (
	DatatypeTime = "time"
	DatatypeItem = "wikibase-item"
)

// EntityURIPrefix is the concept URI namespace for Wikidata entities,
// used when a calendar model entity id needs to be expanded to a full URI.
const EntityURIPrefix = "http://www.wikidata.org/entity/"

// TimeValue is the value payload of a parsed Wikibase time value.
type TimeValue struct {
	Time          string `json:"time"`
	Timezone      int    `json:"timezone"`
	Before        int    `json:"before"`
	After         int    `json:"after"`
	Precision     int    `json:"precision"`
	Calendarmodel string `json:"calendarmodel"`
}

// ParsedValue is a Wikibase data value as returned by wbparsevalue and
// accepted by wbformatvalue.
type ParsedValue struct {
	Type  string    `json:"type"`
	Value TimeValue `json:"value"`
}

// Config contains the Wikidata client configuration.
type Config struct {
	BaseURL        string        // Action API endpoint
	UserAgent      string        // User-Agent header
	Timeout        time.Duration // per-request timeout
	CacheTTL       time.Duration // datatype/label cache TTL
	RequestsPerSec float64       // rate limit towards the API
	ChunkSize      int           // max ids per wbgetentities call
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://www.wikidata.org/w/api.php",
		UserAgent:      "MismatchFinder/1.0",
		Timeout:        10 * time.Second,
		CacheTTL:       5 * time.Minute,
		RequestsPerSec: 10,
		ChunkSize:      50,
	}
}

// --- Action API response shapes ---

// apiError is the error envelope the Action API returns with HTTP 200.
type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

type entityResponse struct {
	Entities map[string]entity `json:"entities"`
	Error    *apiError         `json:"error"`
}

type entity struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Datatype string           `json:"datatype"`
	Labels   map[string]label `json:"labels"`
	Missing  *string          `json:"missing"`
}

type label struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

type parseResponse struct {
	Results []ParsedValue `json:"results"`
	Error   *apiError     `json:"error"`
}

type formatResponse struct {
	Result string    `json:"result"`
	Error  *apiError `json:"error"`
}
