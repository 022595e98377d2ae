// Package api is the HTTP adapter over the lifecycle engine: one JSON
// endpoint per operation, read endpoints, bulk import, an event stream and
// Prometheus metrics.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/reactoryard/internal/importer"
	"github.com/zulandar/reactoryard/internal/metrics"
	"github.com/zulandar/reactoryard/internal/pkt"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Engine   *pkt.Engine
	Importer *importer.Importer
	Metrics  *metrics.Metrics
	Port     int
	Out      io.Writer
	// Location is used for import timestamps without a zone. Default UTC.
	Location *time.Location
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Engine == nil {
		return fmt.Errorf("api: engine is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           NewRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "API listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine without starting a listener.
func NewRouter(opts StartOpts) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	registerRoutes(router, opts)
	return router
}
