// Package server wires the datastore, the Wikidata client, the enrichment
// pipeline and the HTTP API together and runs them until shutdown.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/wmde/mismatch-finder/internal/api"
	"github.com/wmde/mismatch-finder/internal/conf"
	"github.com/wmde/mismatch-finder/internal/datastore"
	"github.com/wmde/mismatch-finder/internal/enrich"
	"github.com/wmde/mismatch-finder/internal/logging"
	"github.com/wmde/mismatch-finder/internal/observability"
	obsmetrics "github.com/wmde/mismatch-finder/internal/observability/metrics"
	"github.com/wmde/mismatch-finder/internal/review"
	"github.com/wmde/mismatch-finder/internal/wikidata"
)

// Run starts the Mismatch Finder service and blocks until SIGINT or
// SIGTERM is received, then shuts everything down gracefully.
func Run(settings *conf.Settings) error {
	logger := logging.ForService("server")

	dataStore := datastore.New(settings)
	if err := dataStore.Open(); err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer closeDataStore(dataStore)

	client, err := wikidata.NewClient(wikidata.Config{
		BaseURL:        settings.Wikidata.BaseURL,
		UserAgent:      settings.Wikidata.UserAgent,
		Timeout:        settings.Wikidata.Timeout,
		CacheTTL:       settings.Wikidata.CacheTTL,
		RequestsPerSec: settings.Wikidata.RequestsPerSec,
		ChunkSize:      settings.Wikidata.ChunkSize,
	})
	if err != nil {
		return fmt.Errorf("creating wikidata client: %w", err)
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		logger.Warn("Failed to initialize metrics, continuing without telemetry", "error", err)
	} else {
		if ds, ok := dataStore.(interface {
			SetMetrics(*obsmetrics.DatastoreMetrics)
		}); ok {
			ds.SetMetrics(metrics.Datastore)
		}
		client.SetMetrics(metrics.Wikidata)
	}

	pipeline := enrich.NewPipeline(client)
	reviews := review.NewWorkflow(dataStore)
	if metrics != nil {
		pipeline.SetMetrics(metrics.Mismatch)
		reviews.SetMetrics(metrics.Mismatch)
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = settings.Server.ReadTimeout
	e.Server.WriteTimeout = settings.Server.WriteTimeout
	e.Use(middleware.Gzip())

	apiOptions := []api.Option{}
	if metrics != nil {
		apiOptions = append(apiOptions, api.WithMetrics(metrics))
	}
	controller := api.New(e, dataStore, settings, client, pipeline, reviews, apiOptions...)
	defer controller.Shutdown()

	quitChan := make(chan struct{})
	var wg sync.WaitGroup

	startTelemetryEndpoint(&wg, settings, metrics, quitChan)
	monitorSignals(quitChan)

	address := fmt.Sprintf("%s:%s", settings.Server.Host, settings.Server.Port)
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("API server starting", "address", address)
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		close(quitChan)
		wg.Wait()
		return fmt.Errorf("API server error: %w", err)
	case <-quitChan:
	}

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}

	wg.Wait()
	return nil
}

// startTelemetryEndpoint starts the Prometheus endpoint when telemetry is
// enabled. A metrics initialization failure earlier disables it too.
func startTelemetryEndpoint(wg *sync.WaitGroup, settings *conf.Settings, metrics *observability.Metrics, quitChan chan struct{}) {
	if metrics == nil || !settings.Telemetry.Enabled {
		return
	}

	logger := logging.ForService("telemetry")
	endpoint, err := observability.NewEndpoint(settings, metrics, logger)
	if err != nil {
		logger.Error("Failed to initialize telemetry endpoint", "error", err)
		return
	}
	endpoint.Start(wg, quitChan)
}

// monitorSignals closes quitChan on SIGINT or SIGTERM.
func monitorSignals(quitChan chan struct{}) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Print("\033[2K\rReceived shutdown signal, stopping...")
		close(quitChan)
	}()
}

func closeDataStore(ds datastore.Interface) {
	if err := ds.Close(); err != nil {
		logging.ForService("server").Error("Failed to close datastore", "error", err)
	}
}
