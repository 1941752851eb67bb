package wikidata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/wmde/mismatch-finder/internal/errors"
	"github.com/wmde/mismatch-finder/internal/logging"
	"github.com/wmde/mismatch-finder/internal/observability/metrics"
	"golang.org/x/time/rate"
)

// Package-level logger specific to the wikidata service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "wikidata.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "wikidata", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize wikidata file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "wikidata")
		closeLogger = func() error { return nil }
	}
}

// Client talks to the Wikidata Action API. It implements DataSource.
type Client struct {
	config     Config
	httpClient *http.Client
	cache      *cache.Cache
	limiter    *rate.Limiter
	metrics    *metrics.WikidataMetrics
}

// NewClient creates a new Wikidata Action API client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.Newf("wikidata base URL is required").
			Category(errors.CategoryConfiguration).
			Component("wikidata").
			Build()
	}

	defaults := DefaultConfig()
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	if config.RequestsPerSec == 0 {
		config.RequestsPerSec = defaults.RequestsPerSec
	}
	if config.ChunkSize == 0 {
		config.ChunkSize = defaults.ChunkSize
	}

	client := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		cache:   cache.New(config.CacheTTL, config.CacheTTL*2),
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSec), 1),
	}

	logger.Info("Wikidata client initialized",
		"base_url", config.BaseURL,
		"cache_ttl", config.CacheTTL,
		"requests_per_sec", config.RequestsPerSec,
		"chunk_size", config.ChunkSize)

	return client, nil
}

// SetMetrics attaches client metrics. Safe to leave unset.
func (c *Client) SetMetrics(m *metrics.WikidataMetrics) {
	c.metrics = m
}

// Close cleans up client resources.
func (c *Client) Close() {
	c.cache.Flush()
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing wikidata logger: %v", err)
		}
	}
}

// GetPropertyDatatypes resolves the datatype of each given property id.
// Results are cached; only uncached ids hit the API, in chunks.
func (c *Client) GetPropertyDatatypes(ctx context.Context, propertyIDs []string) (map[string]string, error) {
	datatypes := make(map[string]string, len(propertyIDs))
	if len(propertyIDs) == 0 {
		return datatypes, nil
	}

	var missing []string
	for _, id := range propertyIDs {
		if cached, found := c.cache.Get("datatype:" + id); found {
			c.recordCacheHit()
			datatypes[id] = cached.(string)
			continue
		}
		c.recordCacheMiss()
		missing = append(missing, id)
	}

	for _, chunk := range chunkIDs(missing, c.config.ChunkSize) {
		params := url.Values{}
		params.Set("ids", strings.Join(chunk, "|"))
		params.Set("props", "datatype")

		var resp entityResponse
		if err := c.doActionRequest(ctx, "wbgetentities", params, &resp); err != nil {
			return nil, err
		}

		for id, ent := range resp.Entities {
			if ent.Missing != nil || ent.Datatype == "" {
				logger.Warn("Property has no datatype", "property_id", id)
				continue
			}
			datatypes[id] = ent.Datatype
			c.cache.Set("datatype:"+id, ent.Datatype, cache.DefaultExpiration)
		}
	}

	return datatypes, nil
}

// GetLabels resolves labels for the given entity ids in the given language,
// with language fallback. Entities without a label are omitted.
func (c *Client) GetLabels(ctx context.Context, entityIDs []string, lang string) (map[string]string, error) {
	labels := make(map[string]string, len(entityIDs))
	if len(entityIDs) == 0 {
		return labels, nil
	}

	var missing []string
	for _, id := range entityIDs {
		if cached, found := c.cache.Get("label:" + lang + ":" + id); found {
			c.recordCacheHit()
			labels[id] = cached.(string)
			continue
		}
		c.recordCacheMiss()
		missing = append(missing, id)
	}

	for _, chunk := range chunkIDs(missing, c.config.ChunkSize) {
		params := url.Values{}
		params.Set("ids", strings.Join(chunk, "|"))
		params.Set("props", "labels")
		params.Set("languages", lang)
		params.Set("languagefallback", "1")

		var resp entityResponse
		if err := c.doActionRequest(ctx, "wbgetentities", params, &resp); err != nil {
			return nil, err
		}

		for id, ent := range resp.Entities {
			if ent.Missing != nil {
				logger.Warn("Entity not found while resolving labels", "entity_id", id)
				continue
			}
			for _, l := range ent.Labels {
				labels[id] = l.Value
				c.cache.Set("label:"+lang+":"+id, l.Value, cache.DefaultExpiration)
				break
			}
		}
	}

	return labels, nil
}

// ParseValues parses raw time value strings grouped by property id. The
// result maps property id to raw value to parsed value. Values that fail
// to parse are omitted from the result.
func (c *Client) ParseValues(ctx context.Context, valuesByProperty map[string][]string) (map[string]map[string]ParsedValue, error) {
	parsed := make(map[string]map[string]ParsedValue, len(valuesByProperty))

	for propertyID, values := range valuesByProperty {
		distinct := dedupe(values)
		if len(distinct) == 0 {
			continue
		}

		params := url.Values{}
		params.Set("property", propertyID)
		params.Set("values", strings.Join(distinct, "|"))
		params.Set("validate", "true")

		var resp parseResponse
		if err := c.doActionRequest(ctx, "wbparsevalue", params, &resp); err != nil {
			return nil, err
		}

		if len(resp.Results) != len(distinct) {
			return nil, errors.Newf("wbparsevalue returned %d results for %d values", len(resp.Results), len(distinct)).
				Category(errors.CategoryParsing).
				Component("wikidata").
				Context("property_id", propertyID).
				Build()
		}

		byRaw := make(map[string]ParsedValue, len(distinct))
		for i, raw := range distinct {
			byRaw[raw] = resp.Results[i]
		}
		parsed[propertyID] = byRaw
	}

	return parsed, nil
}

// FormatValues renders parsed values as localized plain text. The inner map
// keys are preserved in the result.
func (c *Client) FormatValues(ctx context.Context, valuesByProperty map[string]map[string]ParsedValue, lang string) (map[string]map[string]string, error) {
	formatted := make(map[string]map[string]string, len(valuesByProperty))

	options, err := json.Marshal(map[string]string{"lang": lang})
	if err != nil {
		return nil, fmt.Errorf("marshaling format options: %w", err)
	}

	for propertyID, values := range valuesByProperty {
		byKey := make(map[string]string, len(values))
		for key, value := range values {
			datavalue, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("marshaling data value: %w", err)
			}

			params := url.Values{}
			params.Set("generate", "text/plain")
			params.Set("datavalue", string(datavalue))
			params.Set("property", propertyID)
			params.Set("options", string(options))

			var resp formatResponse
			if err := c.doActionRequest(ctx, "wbformatvalue", params, &resp); err != nil {
				return nil, err
			}
			byKey[key] = resp.Result
		}
		if len(byKey) > 0 {
			formatted[propertyID] = byKey
		}
	}

	return formatted, nil
}

// responseWithError is implemented by all Action API response envelopes.
type responseWithError interface {
	apiErr() *apiError
}

func (r *entityResponse) apiErr() *apiError { return r.Error }
func (r *parseResponse) apiErr() *apiError  { return r.Error }
func (r *formatResponse) apiErr() *apiError { return r.Error }

// doActionRequest performs a single Action API request with rate limiting
// and retries on transient failures.
func (c *Client) doActionRequest(ctx context.Context, action string, params url.Values, result responseWithError) error {
	const maxRetries = 3
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := c.doRequest(ctx, action, params, result)
		if err == nil {
			return nil
		}
		lastErr = err

		var enhancedErr *errors.EnhancedError
		if errors.As(err, &enhancedErr) {
			switch enhancedErr.Category {
			case errors.CategoryNetwork, errors.CategoryTimeout:
				// transient, retry below
			default:
				return err
			}
		}

		if ctx.Err() != nil {
			return lastErr
		}

		delay := time.Duration(attempt+1) * 500 * time.Millisecond
		if attempt < maxRetries-1 {
			logger.Warn("Wikidata API request failed, retrying",
				"action", action,
				"attempt", attempt+1,
				"delay_ms", delay.Milliseconds(),
				"error", err.Error())

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return lastErr
}

func (c *Client) doRequest(ctx context.Context, action string, params url.Values, result responseWithError) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.New(err).
			Category(errors.CategoryCancellation).
			Component("wikidata").
			Context("action", action).
			Build()
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	query := url.Values{}
	query.Set("action", action)
	query.Set("format", "json")
	query.Set("formatversion", "2")
	for key, vals := range params {
		for _, v := range vals {
			query.Add(key, v)
		}
	}
	requestURL := c.config.BaseURL + "?" + query.Encode()

	start := time.Now()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, requestURL, http.NoBody)
	if err != nil {
		return errors.New(fmt.Errorf("creating request: %w", err)).
			Category(errors.CategoryNetwork).
			Component("wikidata").
			Context("action", action).
			Build()
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordAPIError(action, errors.CategoryNetwork)
		logger.Error("Wikidata API request failed", "action", action, "error", err)
		return errors.New(fmt.Errorf("request failed: %w", err)).
			Category(errors.CategoryNetwork).
			Component("wikidata").
			Context("action", action).
			Build()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordAPIError(action, errors.CategoryNetwork)
		return errors.New(fmt.Errorf("reading response body: %w", err)).
			Category(errors.CategoryNetwork).
			Component("wikidata").
			Context("action", action).
			Context("status_code", resp.StatusCode).
			Build()
	}

	if resp.StatusCode >= 400 {
		category := categoryForStatus(resp.StatusCode)
		c.recordAPIError(action, category)
		logger.Error("Wikidata API error response",
			"action", action,
			"status_code", resp.StatusCode)
		return errors.Newf("wikidata API error (status %d)", resp.StatusCode).
			Category(category).
			Component("wikidata").
			Context("action", action).
			Context("status_code", resp.StatusCode).
			Build()
	}

	if err := json.Unmarshal(bodyBytes, result); err != nil {
		c.recordAPIError(action, errors.CategoryParsing)
		return errors.New(fmt.Errorf("parsing response: %w", err)).
			Category(errors.CategoryParsing).
			Component("wikidata").
			Context("action", action).
			Context("response_size", len(bodyBytes)).
			Build()
	}

	// The Action API reports errors with HTTP 200 and an error envelope.
	if apiErr := result.apiErr(); apiErr != nil {
		c.recordAPIError(action, errors.CategoryValidation)
		logger.Warn("Wikidata API reported an error",
			"action", action,
			"code", apiErr.Code,
			"info", apiErr.Info)
		return errors.Newf("wikidata API error: %s (%s)", apiErr.Info, apiErr.Code).
			Category(errors.CategoryValidation).
			Component("wikidata").
			Context("action", action).
			Context("error_code", apiErr.Code).
			Build()
	}

	duration := time.Since(start)
	if c.metrics != nil {
		c.metrics.RecordAPICall(action, duration)
	}
	logger.Debug("Wikidata API request successful",
		"action", action,
		"duration_ms", duration.Milliseconds(),
		"response_size", len(bodyBytes))

	return nil
}

func (c *Client) recordCacheHit() {
	if c.metrics != nil {
		c.metrics.RecordCacheHit()
	}
}

func (c *Client) recordCacheMiss() {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss()
	}
}

func (c *Client) recordAPIError(action string, category errors.ErrorCategory) {
	if c.metrics != nil {
		c.metrics.RecordAPIError(action, string(category))
	}
}

// categoryForStatus maps an HTTP status code to an error category.
func categoryForStatus(statusCode int) errors.ErrorCategory {
	switch statusCode {
	case http.StatusTooManyRequests:
		return errors.CategoryLimit
	case http.StatusNotFound:
		return errors.CategoryNotFound
	case http.StatusBadRequest:
		return errors.CategoryValidation
	default:
		return errors.CategoryNetwork
	}
}

// chunkIDs splits ids into chunks of at most size entries.
func chunkIDs(ids []string, size int) [][]string {
	var chunks [][]string
	for len(ids) > 0 {
		n := min(size, len(ids))
		chunks = append(chunks, ids[:n])
		ids = ids[n:]
	}
	return chunks
}

// dedupe returns the distinct values in order of first appearance.
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var distinct []string
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		distinct = append(distinct, v)
	}
	return distinct
}
