package app

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"tokentable/internal/logger"
	"tokentable/internal/service"
	"tokentable/internal/simulator"
)

type HTTPServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// App runs the HTTP server, loads the catalogue and drives the simulator once it is loaded
type App struct {
	log     logger.Logger
	httpSrv HTTPServer
	table   *service.TableService
	sim     *simulator.Simulator // nil when disabled

	mu      sync.Mutex
	cancel  context.CancelFunc
	handle  *simulator.Handle
	done    chan struct{}
	httpErr chan error
}

func NewApp(log logger.Logger, httpSrv HTTPServer, table *service.TableService, sim *simulator.Simulator) *App {
	if log == nil {
		log = logger.Nop()
	}
	return &App{
		log:     log,
		httpSrv: httpSrv,
		table:   table,
		sim:     sim,
		httpErr: make(chan error, 1),
	}
}

// Start returns immediately; failures of the HTTP server are reported on Errors
func (a *App) Start(ctx context.Context) error {
	a.log.Debug("App started begin...")

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return errors.New("app already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	if a.httpSrv != nil {
		go func() {
			if err := a.httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Errorf("Start HTTP server is error=%v", err)
				a.httpErr <- err
			}
		}()
	}

	go a.loadAndSimulate(runCtx)

	a.log.Info("App started")
	return nil
}

func (a *App) loadAndSimulate(ctx context.Context) {
	defer close(a.done)

	if err := a.table.LoadInitial(ctx); err != nil {
		// error is already in the table state; readiness reports it
		return
	}
	if a.sim == nil || ctx.Err() != nil {
		return
	}

	a.mu.Lock()
	a.handle = a.sim.Start(ctx)
	a.mu.Unlock()
}

// Errors delivers a fatal HTTP server error, if any
func (a *App) Errors() <-chan error {
	return a.httpErr
}

// Shutdown stops the simulator before the server so no update lands after the last response
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Debug("App stopped begin...")

	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	a.mu.Lock()
	h := a.handle
	a.mu.Unlock()
	h.Stop()

	if a.httpSrv != nil {
		if err := a.httpSrv.Shutdown(ctx); err != nil {
			return err
		}
	}

	a.log.Info("App stopped")
	return nil
}
