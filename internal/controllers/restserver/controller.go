package restserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/chrissnell/traitlag/internal/analysis"
	"github.com/chrissnell/traitlag/pkg/config"
	"github.com/chrissnell/traitlag/pkg/responseformat"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Controller serves analysis results over HTTP
type Controller struct {
	ctx      context.Context
	wg       *sync.WaitGroup
	Server   http.Server
	logger   *zap.SugaredLogger
	handlers *Handlers
	errc     chan error
}

// NewController creates a new REST server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, sc config.ServerData, analyzer *analysis.Analyzer, results *analysis.Results, logger *zap.SugaredLogger) (*Controller, error) {
	if analyzer == nil || results == nil || results.Report == nil {
		return nil, fmt.Errorf("REST server needs completed analysis results")
	}

	ctrl := &Controller{
		ctx:    ctx,
		wg:     wg,
		logger: logger,
		errc:   make(chan error, 1),
		handlers: &Handlers{
			analyzer:  analyzer,
			results:   results,
			formatter: responseformat.NewFormatter(),
			logger:    logger,
		},
	}

	// If a ListenAddr was not provided, listen on all interfaces
	if sc.ListenAddr == "" {
		logger.Info("server.listen-addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		sc.ListenAddr = "0.0.0.0"
	}
	if sc.Port == 0 {
		sc.Port = config.DefaultPort
	}

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", sc.ListenAddr, sc.Port)
	ctrl.Server.Handler = handlers.CustomLoggingHandler(io.Discard, ctrl.Router(), ctrl.logRequest)
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// StartController binds the listen address and serves in the background
// until the controller's context ends. A bind failure is returned directly;
// a later serve failure is delivered on Err.
func (c *Controller) StartController() error {
	ln, err := net.Listen("tcp", c.Server.Addr)
	if err != nil {
		return fmt.Errorf("REST server could not listen on %s: %w", c.Server.Addr, err)
	}
	c.logger.Infow("starting REST server", "addr", ln.Addr().String())
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		if err := c.Server.Serve(ln); err != http.ErrServerClosed {
			c.logger.Errorf("REST server error: %v", err)
			c.errc <- err
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("shutting down the REST server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Server.Shutdown(shutdownCtx); err != nil {
			c.logger.Errorw("REST server shutdown failed", "error", err)
		}
	}()

	return nil
}

// Err delivers the error that stopped the server, if it stopped on its own.
func (c *Controller) Err() <-chan error {
	return c.errc
}

// Router configures the HTTP router with all endpoints
func (c *Controller) Router() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/report", c.handlers.GetReport).Methods(http.MethodGet)
	api.HandleFunc("/scenarios", c.handlers.ListScenarios).Methods(http.MethodGet)
	api.HandleFunc("/scenarios/{name}", c.handlers.GetScenario).Methods(http.MethodGet)
	api.HandleFunc("/scenarios/{name}/mean-series", c.handlers.GetMeanSeries).Methods(http.MethodGet)
	api.HandleFunc("/scenarios/{name}/snapshots/{step}", c.handlers.GetSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/scenarios/{name}/density", c.handlers.GetDensity).Methods(http.MethodGet)
	api.HandleFunc("/comparison", c.handlers.GetComparison).Methods(http.MethodGet)

	return router
}

// logRequest writes one access log line per request to the zap logger.
func (c *Controller) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	path := p.URL.Path
	if p.URL.RawQuery != "" {
		path += "?" + p.URL.RawQuery
	}
	c.logger.Infow("http request",
		"method", p.Request.Method,
		"path", path,
		"status", p.StatusCode,
		"size", p.Size,
		"remote_addr", p.Request.RemoteAddr,
		"duration", time.Since(p.TimeStamp),
	)
}
