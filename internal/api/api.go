// internal/api/api.go
package api

import (
	"crypto/rand"
	"io"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/wmde/mismatch-finder/internal/conf"
	"github.com/wmde/mismatch-finder/internal/datastore"
	"github.com/wmde/mismatch-finder/internal/enrich"
	"github.com/wmde/mismatch-finder/internal/errors"
	"github.com/wmde/mismatch-finder/internal/logging"
	"github.com/wmde/mismatch-finder/internal/observability"
	"github.com/wmde/mismatch-finder/internal/review"
	"github.com/wmde/mismatch-finder/internal/wikidata"
)

// Controller manages the API routes and handlers
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	DS       datastore.Interface
	Settings *conf.Settings
	Wikidata wikidata.DataSource
	Pipeline *enrich.Pipeline
	Reviews  *review.Workflow

	metrics        *observability.Metrics
	apiLogger      *slog.Logger // structured logger for API operations
	apiLoggerClose func() error
	logger         *log.Logger

	// Auth related fields, injected from the server via functional options.
	// The controller trusts the middleware to authenticate and expects
	// currentUser to extract the acting user from the request context.
	authMiddleware echo.MiddlewareFunc
	currentUser    CurrentUserFunc
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithAuthMiddleware sets the authentication middleware applied to write
// endpoints.
func WithAuthMiddleware(mw echo.MiddlewareFunc) Option {
	return func(c *Controller) {
		c.authMiddleware = mw
	}
}

// WithCurrentUserFunc sets the function that extracts the acting user from
// the request context.
func WithCurrentUserFunc(fn CurrentUserFunc) Option {
	return func(c *Controller) {
		c.currentUser = fn
	}
}

// WithMetrics sets the shared metrics instance.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// New creates a new API controller and registers its routes.
func New(e *echo.Echo, ds datastore.Interface, settings *conf.Settings,
	source wikidata.DataSource, pipeline *enrich.Pipeline, reviews *review.Workflow,
	options ...Option) *Controller {

	c := &Controller{
		Echo:        e,
		DS:          ds,
		Settings:    settings,
		Wikidata:    source,
		Pipeline:    pipeline,
		Reviews:     reviews,
		logger:      log.Default(),
		currentUser: defaultCurrentUser,
	}

	for _, opt := range options {
		opt(c)
	}

	apiLogger, closeFn, err := logging.NewFileLogger(filepath.Join("logs", "api.log"), "api", slog.LevelInfo)
	if err != nil {
		log.Printf("Failed to initialize API file logger: %v. API logging disabled.", err)
		apiLogger = slog.New(slog.NewJSONHandler(io.Discard, nil)).With("service", "api")
		closeFn = func() error { return nil }
	}
	c.apiLogger = apiLogger
	c.apiLoggerClose = closeFn

	c.initRoutes()
	return c
}

// initRoutes registers all API routes.
func (c *Controller) initRoutes() {
	c.Group = c.Echo.Group("/api/v1")
	c.Group.Use(middleware.Recover())

	// Read path, public
	c.Group.GET("/mismatches", c.GetMismatches)
	c.Group.GET("/mismatches/:id/history", c.GetMismatchHistory)
	c.Group.GET("/results", c.GetResults)

	// Write path, requires an authenticated actor
	writes := c.Group.Group("")
	if c.authMiddleware != nil {
		writes.Use(c.authMiddleware)
	}
	writes.PUT("/mismatches/:id", c.UpdateMismatch)
	writes.PUT("/results", c.UpdateResults)
}

// Shutdown performs cleanup of resources used by the API controller.
func (c *Controller) Shutdown() {
	if c.apiLoggerClose != nil {
		if err := c.apiLoggerClose(); err != nil {
			c.logger.Printf("Error closing API log file: %v", err)
		}
	}
}

// Error response structure
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // Unique identifier for tracking this error
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	correlationID := generateCorrelationID()

	var errorStr string
	if err != nil {
		errorStr = err.Error()
	} else {
		errorStr = message
	}

	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: correlationID,
	}
}

// generateCorrelationID creates a unique identifier for error tracking
// using cryptographic randomness.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError constructs and returns an appropriate error response
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	errorResp := NewErrorResponse(err, message, code)

	ip := ctx.RealIP()
	c.logger.Printf("API Error [%s] from %s: %s: %v", errorResp.CorrelationID, ip, message, err)

	if c.apiLogger != nil {
		var errorStr string
		if err != nil {
			errorStr = err.Error()
		} else {
			errorStr = message
		}

		c.apiLogger.Error("API Error",
			"correlation_id", errorResp.CorrelationID,
			"message", message,
			"error", errorStr,
			"code", code,
			"path", ctx.Request().URL.Path,
			"method", ctx.Request().Method,
			"ip", ip,
		)
	}

	return ctx.JSON(code, errorResp)
}

// statusForError maps an error's category to an HTTP status code.
func statusForError(err error) int {
	switch errors.CategoryOf(err) {
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryValidation, errors.CategoryParsing:
		return http.StatusBadRequest
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryLimit:
		return http.StatusTooManyRequests
	case errors.CategoryNetwork, errors.CategoryTimeout:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// recordRequest emits the per-request read metric, win or lose.
func (c *Controller) recordRequest(endpoint string) {
	if c.metrics != nil {
		c.metrics.Mismatch.RecordRequest(endpoint)
	}
}

// Debug logs a debug message to the API logger.
func (c *Controller) Debug(msg string, args ...any) {
	if c.apiLogger != nil {
		c.apiLogger.Debug(msg, args...)
	}
}
