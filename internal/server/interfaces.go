package server

import (
	"context"

	"github.com/pyrohost/pyrod/internal/docker"
	"github.com/pyrohost/pyrod/internal/instance"
)

// Engine abstracts the docker client for the supervisor.
type Engine interface {
	ImageExists(ctx context.Context, ref string) (bool, error)
	PullImage(ctx context.Context, ref string) error
	CreateServer(ctx context.Context, opts docker.ServerCreateOpts) (string, error)
	CreateInstaller(ctx context.Context, opts docker.InstallerCreateOpts) (string, error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string, timeoutSeconds int) error
	KillContainer(ctx context.Context, containerID, signal string) error
	RemoveContainer(ctx context.Context, containerID string) error
	WaitExit(ctx context.Context, containerID string) (int64, error)
	StreamLogs(ctx context.Context, containerID string, follow bool) (*docker.LogStream, error)
	FindByName(ctx context.Context, name string) (string, error)
	IsRunning(ctx context.Context, containerID string) (bool, error)
}

// ImageResolver picks and prepares the runtime image for an instance.
type ImageResolver interface {
	Choose(cfg *instance.Config) string
	Ensure(ctx context.Context, ref string, cfg *instance.Config, instanceRoot string) (string, error)
}

// Console delivers a stop command to a running server's stdin.
type Console interface {
	Send(ctx context.Context, instanceID, command string) error
}

// Notifier pushes status transitions to the control plane.
type Notifier interface {
	NotifyStatus(ctx context.Context, instanceID, status string)
}
