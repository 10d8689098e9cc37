package app

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"tokentable/internal/api/http"
	"tokentable/internal/config"
	"tokentable/internal/logger"
	"tokentable/internal/metrics"
	"tokentable/internal/mockdata"
	"tokentable/internal/pubsub"
	"tokentable/internal/pubsub/nats"
	"tokentable/internal/service"
	"tokentable/internal/simulator"
	"tokentable/internal/table"

	"github.com/grafana/pyroscope-go"
)

type Container struct {
	app *App
	log logger.Logger

	// infra
	nc *nats.Client

	// services
	store   *table.Store
	table   *service.TableService
	sim     *simulator.Simulator
	metrics *metrics.Metrics

	// servers
	httpSrv *http.Server

	// metrics
	profiler *pyroscope.Profiler
}

func (c *Container) Start(ctx context.Context) error {
	return c.app.Start(ctx)
}

func (c *Container) Stop(ctx context.Context) error {
	if err := c.app.Shutdown(ctx); err != nil {
		return fmt.Errorf("app shutdown is failed, error=%w", err)
	}
	return nil
}

func (c *Container) Errors() <-chan error {
	return c.app.Errors()
}

func (c *Container) Table() *service.TableService {
	return c.table
}

// Build constructs the application graph; the returned cleanup releases infra in reverse order
func Build(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	lg := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}).WithField("instance", cfg.App.InstanceID)
	lg.Info("Successfully initialize logger")

	return BuildWithLogger(ctx, cfg, lg)
}

func BuildWithLogger(_ context.Context, cfg *config.Config, lg logger.Logger) (*Container, func(), error) {
	c := &Container{log: lg}

	profiler, err := metrics.InitPProf(metrics.PProfFromConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("pyroscope initialize failed: %w", err)
	}
	if profiler != nil {
		lg.Infof("Successfully initialize Pyroscope to %s as %s", cfg.Metrics.Pyroscope.ServerAddr, cfg.App.Name)
	}
	c.profiler = profiler

	cleanupF := func() {
		if c.nc != nil {
			if err := c.nc.Close(); err != nil {
				lg.Errorf("Failed to close by cleanupF nats client: %v", err)
			}
		}
		if c.table != nil {
			c.table.Close()
		}
		if c.profiler != nil {
			if err := c.profiler.Stop(); err != nil {
				lg.Errorf("Failed to stop profiler: %v", err)
			}
		}
		lg.Info("Successfully cleaned up dependency")
	}

	// NATS Broadcaster
	var broadcaster pubsub.Broadcaster = pubsub.Nop{}
	if cfg.PubSub.NATS.Enabled {
		natsCl, err := nats.Connect(&cfg.PubSub.NATS, lg)
		if err != nil {
			cleanupF()
			return nil, nil, fmt.Errorf("failed to initialize nats client: %w", err)
		}
		c.nc = natsCl
		broadcaster = natsCl
		lg.Infof("Successfully initialize nats broadcaster, prefix=%s", cfg.PubSub.NATS.BroadcastPrefix)
	}

	c.metrics = metrics.New()
	c.store = table.NewStore(lg)

	gen := mockdata.NewGenerator(seededRand(cfg.Simulator.Seed))
	c.table, err = service.NewTableService(lg, c.store, gen,
		service.WithLoadDelay(cfg.App.LoadDelay),
		service.WithBroadcaster(broadcaster),
		service.WithMetrics(c.metrics),
	)
	if err != nil {
		cleanupF()
		return nil, nil, fmt.Errorf("failed to initialize table service: %w", err)
	}

	if cfg.Simulator.Enabled {
		seed := cfg.Simulator.Seed
		if seed != 0 {
			seed++ // generator and simulator must not share a stream
		}
		c.sim, err = simulator.New(lg, simulator.Config{
			MinInterval: cfg.Simulator.MinInterval,
			MaxInterval: cfg.Simulator.MaxInterval,
			MaxBatch:    cfg.Simulator.MaxBatch,
			MaxDeltaPct: cfg.Simulator.MaxDeltaPct,
		}, c.table, simulator.WithRand(seededRand(seed)), simulator.WithTickHook(c.metrics.ObserveTick))
		if err != nil {
			cleanupF()
			return nil, nil, fmt.Errorf("failed to initialize simulator: %w", err)
		}
		lg.Info("Successfully initialize simulator")
	}

	// HTTP Server
	c.httpSrv, err = http.NewServer(&http.ServerDeps{
		Logger:  lg,
		Cfg:     cfg,
		Table:   c.table,
		Metrics: c.metrics,
	})
	if err != nil {
		cleanupF()
		return nil, nil, fmt.Errorf("failed to initialize http server: %w", err)
	}
	lg.Info("Successfully initialize HTTP server")

	c.app = NewApp(lg, c.httpSrv, c.table, c.sim)

	lg.Info("Successfully initialize Wiring")
	return c, cleanupF, nil
}

// seededRand returns a reproducible source for a non-zero seed
func seededRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
