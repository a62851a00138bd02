package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pyrohost/pyrod/internal/docker"
	"github.com/pyrohost/pyrod/internal/instance"
	"github.com/pyrohost/pyrod/internal/logpipe"
)

// installScriptName is where the egg's install script lands inside the
// instance directory (and therefore inside the install mount).
const installScriptName = ".pyrod-install.sh"

// Install runs the egg's one-shot installation flow. The instance ends in
// offline on success and install_failed otherwise.
func (s *Supervisor) Install(ctx context.Context, id string) error {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	if st := s.State(id); !canInstall(st) {
		return fmt.Errorf("%w: cannot install while %s", ErrConflict, st)
	}

	cfg, err := s.loadConfig(id)
	if err != nil {
		return err
	}

	s.setState(id, StateInstalling)

	if err := s.runInstall(ctx, cfg); err != nil {
		s.setState(id, StateInstallFailed)
		s.notify(id, string(StateInstallFailed))
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}

	s.setState(id, StateOffline)
	s.notify(id, "installed")
	return nil
}

func (s *Supervisor) runInstall(ctx context.Context, cfg *instance.Config) error {
	root := s.store.Root(cfg.ID)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("instance dir: %w", err)
	}

	if err := s.materializeConfigFiles(cfg); err != nil {
		return err
	}

	if !cfg.Egg.HasInstallScript() {
		return nil
	}

	script := cfg.Egg.Scripts.Installation
	scriptPath := filepath.Join(root, installScriptName)
	if err := os.WriteFile(scriptPath, []byte(script.Script), 0o755); err != nil {
		return fmt.Errorf("write install script: %w", err)
	}
	defer os.Remove(scriptPath)

	exists, err := s.engine.ImageExists(ctx, script.Container)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngine, err)
	}
	if !exists {
		s.logger.Info("pulling install image", "instance_id", cfg.ID, "ref", script.Container)
		if err := s.engine.PullImage(ctx, script.Container); err != nil {
			return fmt.Errorf("%w: %v", ErrEngine, err)
		}
	}

	containerID, err := s.engine.CreateInstaller(ctx, docker.InstallerCreateOpts{
		InstanceID: cfg.ID,
		Image:      script.Container,
		HostDir:    root,
		Entrypoint: script.Entrypoint,
		ScriptPath: filepath.Join(docker.InstallMount, installScriptName),
		Env:        buildEnv(cfg),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngine, err)
	}

	// Subscribe to the exit before starting: the install container is
	// AutoRemove and a fast script could otherwise vanish unobserved.
	exitCh := make(chan installResult, 1)
	go func() {
		code, err := s.engine.WaitExit(ctx, containerID)
		exitCh <- installResult{code: code, err: err}
	}()

	if err := s.engine.StartContainer(ctx, containerID); err != nil {
		s.engine.RemoveContainer(ctx, containerID)
		return fmt.Errorf("%w: %v", ErrEngine, err)
	}

	if stream, err := s.engine.StreamLogs(ctx, containerID, true); err == nil {
		done := make(chan struct{})
		go func() {
			defer close(done)
			s.pipe.Attach(ctx, cfg.ID, stream, logpipe.AttachOpts{ForceLevel: "info"})
		}()
		defer func() { <-done }()
	} else {
		s.logger.Warn("install log attach", "instance_id", cfg.ID, "error", err)
	}

	res := <-exitCh
	if res.err != nil {
		return fmt.Errorf("%w: %v", ErrEngine, res.err)
	}
	if res.code != 0 {
		return fmt.Errorf("install script exited %d", res.code)
	}
	return nil
}

type installResult struct {
	code int64
	err  error
}

// Reinstall stops the server if needed, clears the instance directory, and
// runs the install again.
func (s *Supervisor) Reinstall(ctx context.Context, id string) error {
	if s.State(id).Running() {
		if err := s.Stop(ctx, id); err != nil {
			s.logger.Warn("stop before reinstall", "instance_id", id, "error", err)
		}
	}

	if err := s.store.ClearRoot(id); err != nil {
		return err
	}
	return s.Install(ctx, id)
}
