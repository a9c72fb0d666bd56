package main

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/nidhogg/droid/internal/config"
	"github.com/nidhogg/droid/internal/gateway"
	"github.com/nidhogg/droid/internal/memory"
	"github.com/nidhogg/droid/internal/metrics"
	"github.com/nidhogg/droid/internal/model"
	"github.com/nidhogg/droid/internal/modules"
	"github.com/nidhogg/droid/internal/orchestrator"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	models   *model.Manager
	mem      memory.Store
	gw       *gateway.Gateway
	modules  *modules.Set
	registry *orchestrator.Registry
	sched    *orchestrator.Scheduler
	bus      *orchestrator.MessageBus
	metrics  *metrics.Collector
	logger   *zap.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	models, err := model.FromConfig(cfg.Models, cfg.DefaultModel, logger)
	if err != nil {
		return nil, err
	}
	a.models = models

	mem, err := memory.Open(ctx, cfg.Memory, logger)
	if err != nil {
		return nil, err
	}
	a.mem = mem

	set, gw, err := modules.Build(cfg, models, mem, logger)
	if err != nil {
		mem.Close()
		return nil, err
	}
	a.modules, a.gw = set, gw

	a.metrics = metrics.NewCollector("droid", logger)
	opts := []orchestrator.Option{
		orchestrator.WithDefaultPriority(cfg.Scheduler.DefaultPriority),
		orchestrator.WithPollInterval(cfg.Scheduler.PollInterval.Std()),
		orchestrator.WithObserver(a.metrics),
	}
	if cfg.Events.RedisURL != "" {
		bus, err := orchestrator.NewMessageBus(cfg.Events.RedisURL, cfg.Events.Stream, logger)
		if err != nil {
			logger.Warn("Redis unavailable, running without task events", zap.Error(err))
		} else {
			a.bus = bus
			opts = append(opts, orchestrator.WithNotifier(bus))
		}
	}

	a.registry = orchestrator.NewRegistry(logger)
	modules.RegisterBuiltins(a.registry,
		modules.WithCrewObserver(a.metrics),
		modules.WithHandlerLogger(logger))

	env := orchestrator.Env{Modules: set, Models: models, Memory: mem}
	a.sched = orchestrator.NewScheduler(a.registry, env, logger, opts...)
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	if a.sched.IsRunning() {
		errs = append(errs, a.sched.Stop(a.cfg.Scheduler.StopTimeout.Std()))
	}
	if a.bus != nil {
		errs = append(errs, a.bus.Close())
	}
	errs = append(errs, a.gw.Close(), a.mem.Close())
	return errors.Join(errs...)
}
