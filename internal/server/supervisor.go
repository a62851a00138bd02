// Package server owns the lifecycle state machine of every instance and the
// binding to its container. All lifecycle requests for one instance are
// serialized through a per-instance lock; the published server-status
// sequence is therefore causal.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pyrohost/pyrod/internal/bus"
	"github.com/pyrohost/pyrod/internal/config"
	"github.com/pyrohost/pyrod/internal/instance"
	"github.com/pyrohost/pyrod/internal/logpipe"
	"github.com/pyrohost/pyrod/internal/sandbox"
)

var (
	ErrConflict      = errors.New("operation conflicts with current state")
	ErrInstallFailed = errors.New("install failed")
	ErrEngine        = errors.New("container engine error")
)

type Supervisor struct {
	cfg      *config.Config
	engine   Engine
	images   ImageResolver
	store    *instance.Store
	paths    *sandbox.Resolver
	pipe     *logpipe.Pipeline
	events   *bus.Bus
	notifier Notifier
	console  Console
	logger   *slog.Logger

	mu         sync.RWMutex
	states     map[string]State
	containers map[string]string // instance id -> container id
	cancels    map[string]context.CancelFunc

	locks   map[string]*sync.Mutex
	locksMu sync.Mutex
}

func NewSupervisor(
	cfg *config.Config,
	engine Engine,
	images ImageResolver,
	store *instance.Store,
	paths *sandbox.Resolver,
	pipe *logpipe.Pipeline,
	events *bus.Bus,
	notifier Notifier,
	logger *slog.Logger,
) *Supervisor {
	return &Supervisor{
		cfg:        cfg,
		engine:     engine,
		images:     images,
		store:      store,
		paths:      paths,
		pipe:       pipe,
		events:     events,
		notifier:   notifier,
		logger:     logger,
		states:     make(map[string]State),
		containers: make(map[string]string),
		cancels:    make(map[string]context.CancelFunc),
		locks:      make(map[string]*sync.Mutex),
	}
}

// SetConsole wires the command injector. Done after construction because
// the injector resolves containers through this supervisor.
func (s *Supervisor) SetConsole(c Console) {
	s.console = c
}

// lock returns the per-instance mutex that serializes lifecycle requests.
func (s *Supervisor) lock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	return mu
}

// State reports the instance's lifecycle position. Configured but never
// touched instances are offline; unknown ids are absent.
func (s *Supervisor) State(id string) State {
	s.mu.RLock()
	st, ok := s.states[id]
	s.mu.RUnlock()
	if ok {
		return st
	}
	if s.store.Exists(id) {
		return StateOffline
	}
	return StateAbsent
}

// setState publishes the transition on the instance's room before
// returning, keeping the status stream causal with the operation.
func (s *Supervisor) setState(id string, st State) {
	s.mu.Lock()
	s.states[id] = st
	s.mu.Unlock()

	s.events.Publish(id, bus.Event{Type: bus.EventStatus, Data: bus.StatusPayload{State: string(st)}})
	s.logger.Info("state transition", "instance_id", id, "state", st)
}

// setStateIf transitions only when the instance is still in from, and
// reports whether it did. Guards the async online promotion paths.
func (s *Supervisor) setStateIf(id string, from, to State) bool {
	s.mu.Lock()
	if s.states[id] != from {
		s.mu.Unlock()
		return false
	}
	s.states[id] = to
	s.mu.Unlock()

	s.events.Publish(id, bus.Event{Type: bus.EventStatus, Data: bus.StatusPayload{State: string(to)}})
	s.logger.Info("state transition", "instance_id", id, "state", to)
	return true
}

// notify pushes a status to the panel without blocking the caller.
func (s *Supervisor) notify(id, status string) {
	if s.notifier == nil {
		return
	}
	go s.notifier.NotifyStatus(context.Background(), id, status)
}

// register binds a container to an instance. At most one container per
// instance is ever registered.
func (s *Supervisor) register(id, containerID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.cancels[id]; ok {
		old()
	}
	s.containers[id] = containerID
	s.cancels[id] = cancel
}

// deregister unbinds the instance's container and cancels its log
// attachment.
func (s *Supervisor) deregister(id string) {
	s.mu.Lock()
	cancel := s.cancels[id]
	delete(s.containers, id)
	delete(s.cancels, id)
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// ContainerFor resolves an instance to its live container id.
func (s *Supervisor) ContainerFor(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	containerID, ok := s.containers[id]
	return containerID, ok
}

// Snapshot copies the instance→container registry; the stats sampler and
// the reaper iterate over it without holding the supervisor's lock.
func (s *Supervisor) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.containers))
	for id, c := range s.containers {
		out[id] = c
	}
	return out
}

// ContainerCount reports how many containers are supervised right now.
func (s *Supervisor) ContainerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.containers)
}

// MarkExited is called by the reaper when a supervised container is gone
// from the engine without a stop request. The instance drops to offline and
// subscribers get a warning.
func (s *Supervisor) MarkExited(id string) {
	s.deregister(id)

	s.pipe.Emit(id, logpipe.Record{
		Timestamp: nowUTC(),
		Level:     "warning",
		Message:   "server exited unexpectedly",
	})
	s.setState(id, StateOffline)
	s.notify(id, string(StateOffline))
}

// Delete tears an instance down: best-effort kill, config and directory
// removal.
func (s *Supervisor) Delete(ctx context.Context, id string) error {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	if containerID, ok := s.ContainerFor(id); ok {
		if err := s.engine.KillContainer(ctx, containerID, "SIGKILL"); err != nil {
			s.logger.Warn("kill on delete", "instance_id", id, "error", err)
		}
		if err := s.engine.RemoveContainer(ctx, containerID); err != nil {
			s.logger.Warn("remove on delete", "instance_id", id, "error", err)
		}
		s.deregister(id)
	}

	if err := s.store.Delete(id); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.states, id)
	s.mu.Unlock()
	s.locksMu.Lock()
	delete(s.locks, id)
	s.locksMu.Unlock()
	return nil
}

// Shutdown stops every supervised container with the engine's 10 second
// grace and removes it. Called on SIGTERM.
func (s *Supervisor) Shutdown(ctx context.Context) {
	for id, containerID := range s.Snapshot() {
		s.logger.Info("shutdown: stopping server", "instance_id", id)
		if err := s.engine.StopContainer(ctx, containerID, stopTimeoutSeconds); err != nil {
			s.logger.Warn("shutdown stop", "instance_id", id, "error", err)
		}
		if err := s.engine.RemoveContainer(ctx, containerID); err != nil {
			s.logger.Warn("shutdown remove", "instance_id", id, "error", err)
		}
		s.deregister(id)
	}
}

// loadConfig fetches the instance config. The store falls back to the saved
// egg snapshot when the registry lacks the egg; a config with neither is
// refused (egg.ErrNotFound from the store, instance.ErrInvalid here).
func (s *Supervisor) loadConfig(id string) (*instance.Config, error) {
	cfg, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if cfg.Egg == nil {
		return nil, fmt.Errorf("%w: egg %q is gone", instance.ErrInvalid, cfg.EggID)
	}
	return cfg, nil
}
