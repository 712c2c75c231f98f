package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/carebrief/carebrief-backend/internal/config"
	"github.com/carebrief/carebrief-backend/internal/httpapi"
	"github.com/carebrief/carebrief-backend/internal/orchestrator"
	"github.com/carebrief/carebrief-backend/internal/patientctx"
	"github.com/carebrief/carebrief-backend/internal/platform/logger"
	"github.com/carebrief/carebrief-backend/internal/prompts"
	"github.com/carebrief/carebrief-backend/internal/provider/registry"
	"github.com/carebrief/carebrief-backend/internal/store"
)

// App wires the whole service together: config, logger, the record store,
// the provider chain, the orchestrator, and the HTTP surface.
type App struct {
	cfg    *config.Config
	log    *logger.Logger
	server *httpapi.Server
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	st, err := store.Load(cfg.DataDir, log)
	if err != nil {
		return nil, fmt.Errorf("load patient records: %w", err)
	}
	log.Info("patient store loaded", "data_dir", cfg.DataDir, "patients", len(st.ListPatientIDs()))

	assembler := patientctx.NewAssembler(st, log)

	prompts.RegisterAll()

	chain, err := registry.BuildChain(cfg.Providers, log)
	if err != nil {
		return nil, fmt.Errorf("build provider chain: %w", err)
	}

	orch := orchestrator.New(assembler, chain, cfg.Summary.TruncationBudgetChars, log)

	server := httpapi.NewServer(cfg.HTTP, httpapi.RouterConfig{
		PatientHandler: httpapi.NewPatientHandler(st, assembler),
		SummaryHandler: httpapi.NewSummaryHandler(orch, cfg.Summary.IncludeCitationsDefault),
		Logger:         log,
	})

	return &App{cfg: cfg, log: log, server: server}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	defer a.log.Sync()

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", "addr", a.cfg.HTTP.Addr, "env", a.cfg.Env)
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	if err := a.server.Shutdown(shCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func (a *App) shutdownTimeout() time.Duration {
	if d := a.cfg.HTTP.ShutdownTimeout.Duration; d > 0 {
		return d
	}
	return 15 * time.Second
}
