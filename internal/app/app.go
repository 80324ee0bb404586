package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chrissnell/traitlag/internal/analysis"
	"github.com/chrissnell/traitlag/internal/controllers/restserver"
	"github.com/chrissnell/traitlag/pkg/config"
	"github.com/chrissnell/traitlag/pkg/responseformat"
	"go.uber.org/zap"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// Analyze loads the configuration and analyses every scenario.
func (a *App) Analyze(ctx context.Context) (*analysis.Analyzer, *analysis.Results, error) {
	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("error loading configuration: %w", err)
	}

	analyzer, err := analysis.New(cfg, a.logger)
	if err != nil {
		return nil, nil, err
	}
	res, err := analyzer.Run(ctx)
	if err != nil {
		return nil, nil, err
	}
	return analyzer, res, nil
}

// WriteReport runs the analysis and encodes the report. With path empty the
// report goes to stdout.
func (a *App) WriteReport(ctx context.Context, stdout io.Writer, path string, format responseformat.Format) (err error) {
	_, res, err := a.Analyze(ctx)
	if err != nil {
		return err
	}

	w := stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("error creating report file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}

	if err := responseformat.Encode(w, format, res.Report); err != nil {
		return fmt.Errorf("error encoding report: %w", err)
	}
	if path != "" {
		a.logger.Infow("report written", "path", path, "format", format, "run_id", res.Report.RunID)
	}
	return nil
}

// Serve runs the analysis once and serves the results until a signal
// arrives or ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	analyzer, res, err := a.Analyze(ctx)
	if err != nil {
		return err
	}

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return err
	}

	rs, err := restserver.NewController(ctx, &wg, cfg.Server, analyzer, res, a.logger)
	if err != nil {
		return err
	}
	if err := rs.StartController(); err != nil {
		return err
	}

	a.logger.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	// Wait for shutdown signal
	var serveErr error
	select {
	case <-sigs:
		a.logger.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down...")
	case serveErr = <-rs.Err():
		a.logger.Errorw("REST server stopped", "error", serveErr)
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	a.logger.Info("waiting for the server to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")

	return serveErr
}
