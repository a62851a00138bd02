package server

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	// stopTimeoutSeconds is the engine-side grace before SIGKILL.
	stopTimeoutSeconds = 10
	// consoleStopWait is how long the graceful console command gets before
	// the engine stop is requested.
	consoleStopWait = 10 * time.Second
)

// Stop shuts an instance down gracefully: the egg's stop command first
// (console string or ^-signal), then an engine stop with a 10 second
// timeout, then removal.
func (s *Supervisor) Stop(ctx context.Context, id string) error {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	if st := s.State(id); !canStop(st) {
		return fmt.Errorf("%w: cannot stop while %s", ErrConflict, st)
	}

	containerID, ok := s.ContainerFor(id)
	if !ok {
		// State says running but the container is gone; reconcile in place.
		s.setState(id, StateOffline)
		return nil
	}

	s.setState(id, StateStopping)

	cfg, err := s.loadConfig(id)
	stopCmd := ""
	if err == nil {
		stopCmd = cfg.Egg.Config.Stop
	}

	if stopCmd != "" {
		s.sendStopCommand(ctx, id, containerID, stopCmd)
		s.awaitExit(ctx, containerID, consoleStopWait)
	}

	if err := s.engine.StopContainer(ctx, containerID, stopTimeoutSeconds); err != nil {
		s.logger.Warn("engine stop", "instance_id", id, "error", err)
	}
	if err := s.engine.RemoveContainer(ctx, containerID); err != nil {
		s.logger.Warn("container remove", "instance_id", id, "error", err)
	}

	s.deregister(id)
	s.setState(id, StateOffline)
	s.notify(id, string(StateOffline))
	return nil
}

// sendStopCommand delivers the egg's stop command. Commands beginning with
// "^" are control sequences translated to signals instead of console text.
func (s *Supervisor) sendStopCommand(ctx context.Context, id, containerID, stopCmd string) {
	if strings.HasPrefix(stopCmd, "^") {
		signal := "SIGTERM"
		switch strings.ToUpper(stopCmd) {
		case "^C":
			signal = "SIGINT"
		case "^Z":
			signal = "SIGTSTP"
		}
		if err := s.engine.KillContainer(ctx, containerID, signal); err != nil {
			s.logger.Warn("stop signal", "instance_id", id, "signal", signal, "error", err)
		}
		return
	}

	if s.console == nil {
		return
	}
	if err := s.console.Send(ctx, id, stopCmd); err != nil {
		s.logger.Warn("stop command", "instance_id", id, "command", stopCmd, "error", err)
	}
}

// awaitExit waits up to limit for the container to leave the running
// state. Best effort; the engine stop that follows enforces termination.
func (s *Supervisor) awaitExit(ctx context.Context, containerID string, limit time.Duration) {
	deadline := time.Now().Add(limit)
	for time.Now().Before(deadline) {
		running, err := s.engine.IsRunning(ctx, containerID)
		if err != nil || !running {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// Kill terminates the container immediately, skipping the graceful path.
func (s *Supervisor) Kill(ctx context.Context, id string) error {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	containerID, ok := s.ContainerFor(id)
	if !ok {
		return fmt.Errorf("%w: cannot kill while %s", ErrConflict, s.State(id))
	}

	if err := s.engine.KillContainer(ctx, containerID, "SIGKILL"); err != nil {
		s.logger.Warn("engine kill", "instance_id", id, "error", err)
	}
	if err := s.engine.RemoveContainer(ctx, containerID); err != nil {
		s.logger.Warn("container remove", "instance_id", id, "error", err)
	}

	s.deregister(id)
	s.setState(id, StateOffline)
	s.notify(id, string(StateOffline))
	return nil
}
