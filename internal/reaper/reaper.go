// Package reaper reconciles the supervisor's view of the world with the
// engine: it detects containers that died behind our back, removes orphans
// left over from deleted instances, and ages out old log files.
package reaper

import (
	"context"
	"log/slog"
	"time"
)

type Reaper struct {
	supervisor Supervisor
	engine     Engine
	configs    ConfigStore
	stats      StatsCache
	logs       LogStore

	reconcileEvery time.Duration
	orphanEvery    time.Duration
	retentionEvery time.Duration
	logMaxAge      time.Duration

	logger *slog.Logger
}

type Options struct {
	ReconcileEvery time.Duration
	OrphanEvery    time.Duration
	RetentionEvery time.Duration
	LogMaxAge      time.Duration
}

func New(sup Supervisor, engine Engine, configs ConfigStore, stats StatsCache, logs LogStore, opts Options, logger *slog.Logger) *Reaper {
	return &Reaper{
		supervisor:     sup,
		engine:         engine,
		configs:        configs,
		stats:          stats,
		logs:           logs,
		reconcileEvery: opts.ReconcileEvery,
		orphanEvery:    opts.OrphanEvery,
		retentionEvery: opts.RetentionEvery,
		logMaxAge:      opts.LogMaxAge,
		logger:         logger,
	}
}

// Run blocks until ctx is cancelled. An orphan sweep runs once at startup
// so containers from a previous daemon life are dealt with immediately.
func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info("reaper started",
		"reconcile_every", r.reconcileEvery, "orphan_every", r.orphanEvery)

	r.SweepOrphans(ctx)

	reconcile := time.NewTicker(r.reconcileEvery)
	orphans := time.NewTicker(r.orphanEvery)
	retention := time.NewTicker(r.retentionEvery)
	defer reconcile.Stop()
	defer orphans.Stop()
	defer retention.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-reconcile.C:
			r.Reconcile(ctx)
		case <-orphans.C:
			r.SweepOrphans(ctx)
		case <-retention.C:
			r.logs.DeleteOlderThan(r.logMaxAge)
		}
	}
}

// Reconcile checks every supervised container against the engine and evicts
// the ones that are gone. Inspect errors are swallowed; a transient engine
// hiccup must not mark servers dead.
func (r *Reaper) Reconcile(ctx context.Context) {
	for instanceID, containerID := range r.supervisor.Snapshot() {
		running, err := r.engine.IsRunning(ctx, containerID)
		if err != nil {
			r.logger.Warn("reconcile inspect", "instance_id", instanceID, "error", err)
			continue
		}
		if running {
			continue
		}

		r.logger.Warn("supervised container is gone", "instance_id", instanceID, "container_id", containerID)
		r.stats.Forget(instanceID)
		r.supervisor.MarkExited(instanceID)
	}
}

// SweepOrphans removes engine containers that carry our label but whose
// instance config no longer exists.
func (r *Reaper) SweepOrphans(ctx context.Context) {
	managed, err := r.engine.ListManaged(ctx)
	if err != nil {
		r.logger.Warn("orphan sweep list", "error", err)
		return
	}

	for _, ctr := range managed {
		if r.configs.Exists(ctr.InstanceID) {
			continue
		}

		r.logger.Info("removing orphan container",
			"instance_id", ctr.InstanceID, "container_id", ctr.ContainerID)

		if ctr.Running {
			if err := r.engine.StopContainer(ctx, ctr.ContainerID, 10); err != nil {
				r.logger.Warn("orphan stop", "container_id", ctr.ContainerID, "error", err)
			}
		}
		if err := r.engine.RemoveContainer(ctx, ctr.ContainerID); err != nil {
			r.logger.Warn("orphan remove", "container_id", ctr.ContainerID, "error", err)
		}
	}
}
