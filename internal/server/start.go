package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pyrohost/pyrod/internal/docker"
	"github.com/pyrohost/pyrod/internal/logpipe"
	"github.com/pyrohost/pyrod/internal/template"
)

// Start creates and starts the runtime container for an instance. The
// instance reaches online when the egg's startup sentinel appears in the
// log stream, or after a coarse timer when the egg declares none.
func (s *Supervisor) Start(ctx context.Context, id string) error {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	if st := s.State(id); !canStart(st) {
		return fmt.Errorf("%w: cannot start while %s", ErrConflict, st)
	}

	cfg, err := s.loadConfig(id)
	if err != nil {
		return err
	}

	// A stale container under our name blocks the create; remove it first.
	if staleID, err := s.engine.FindByName(ctx, docker.ContainerName(id)); err == nil && staleID != "" {
		s.logger.Warn("removing stale container", "instance_id", id, "container_id", staleID)
		if err := s.engine.RemoveContainer(ctx, staleID); err != nil {
			return fmt.Errorf("%w: remove stale container: %v", ErrEngine, err)
		}
	}

	root := s.store.Root(id)
	ref, err := s.images.Ensure(ctx, s.images.Choose(cfg), cfg, root)
	if err != nil {
		s.setState(id, StateError)
		return fmt.Errorf("%w: %v", ErrEngine, err)
	}

	var extraTCP []int
	if isMinecraftWorkload(cfg) {
		extraTCP = append(extraTCP, rconPort(cfg))
	}

	containerID, err := s.engine.CreateServer(ctx, docker.ServerCreateOpts{
		InstanceID: id,
		Image:      ref,
		HostDir:    root,
		Startup:    template.Expand(cfg.Egg.Startup, cfg),
		Env:        buildEnv(cfg),
		Port:       cfg.Port,
		ExtraTCP:   extraTCP,
		MemoryGiB:  cfg.Plan.RAM,
		CPUs:       cfg.Plan.CPU,
	})
	if err != nil {
		s.setState(id, StateError)
		return fmt.Errorf("%w: %v", ErrEngine, err)
	}

	if err := s.engine.StartContainer(ctx, containerID); err != nil {
		s.engine.RemoveContainer(ctx, containerID)
		s.setState(id, StateError)
		return fmt.Errorf("%w: %v", ErrEngine, err)
	}

	attachCtx, cancel := context.WithCancel(context.Background())
	s.register(id, containerID, cancel)
	s.setState(id, StateStarting)

	s.superviseLogs(attachCtx, id, containerID, cfg.Egg.Config.Startup.Done)
	s.watchExit(id, containerID)

	if cfg.Egg.Config.Startup.Done == "" {
		s.promoteAfter(id, time.Duration(s.cfg.StartupWait)*time.Second)
	}

	return nil
}

// superviseLogs attaches the log pipeline to the container and watches for
// the readiness sentinel.
func (s *Supervisor) superviseLogs(ctx context.Context, id, containerID, sentinel string) {
	stream, err := s.engine.StreamLogs(ctx, containerID, true)
	if err != nil {
		s.logger.Warn("log attach", "instance_id", id, "error", err)
		return
	}

	var onLine func(logpipe.Record)
	if sentinel != "" {
		onLine = func(rec logpipe.Record) {
			if strings.Contains(rec.Message, sentinel) {
				s.promote(id)
			}
		}
	}

	go s.pipe.Attach(ctx, id, stream, logpipe.AttachOpts{OnLine: onLine})
}

// watchExit observes the container's exit so a crash during starting is an
// error while a crash while online drops the instance offline. The reaper
// remains the backstop when the wait itself fails.
func (s *Supervisor) watchExit(id, containerID string) {
	go func() {
		if _, err := s.engine.WaitExit(context.Background(), containerID); err != nil {
			return
		}

		// A stop/kill in progress owns the transition.
		if current, ok := s.ContainerFor(id); !ok || current != containerID {
			return
		}

		switch s.State(id) {
		case StateStarting:
			s.deregister(id)
			s.setState(id, StateError)
			s.pipe.Emit(id, logpipe.Record{
				Timestamp: nowUTC(),
				Level:     "error",
				Message:   "server exited before startup finished",
			})
		case StateOnline:
			s.MarkExited(id)
		}
	}()
}

// promote flips starting → online exactly once.
func (s *Supervisor) promote(id string) {
	if s.setStateIf(id, StateStarting, StateOnline) {
		s.notify(id, string(StateOnline))
	}
}

func (s *Supervisor) promoteAfter(id string, wait time.Duration) {
	go func() {
		time.Sleep(wait)
		s.promote(id)
	}()
}

// Restart stops the instance when running, waits briefly, and starts it
// again.
func (s *Supervisor) Restart(ctx context.Context, id string) error {
	if s.State(id).Running() {
		if err := s.Stop(ctx, id); err != nil {
			return err
		}
	}
	time.Sleep(restartDelay)
	return s.Start(ctx, id)
}

const restartDelay = 2 * time.Second
