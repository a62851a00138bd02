package reaper

import (
	"context"
	"time"

	"github.com/pyrohost/pyrod/internal/docker"
)

// Supervisor is the slice of the lifecycle supervisor the reaper needs.
type Supervisor interface {
	Snapshot() map[string]string
	MarkExited(instanceID string)
}

// Engine abstracts the docker client operations used during reconciliation.
type Engine interface {
	IsRunning(ctx context.Context, containerID string) (bool, error)
	ListManaged(ctx context.Context) ([]docker.ManagedContainer, error)
	StopContainer(ctx context.Context, containerID string, timeoutSeconds int) error
	RemoveContainer(ctx context.Context, containerID string) error
}

// ConfigStore answers whether an instance config still exists.
type ConfigStore interface {
	Exists(id string) bool
}

// StatsCache drops cached samples for evicted instances.
type StatsCache interface {
	Forget(instanceID string)
}

// LogStore ages out old log files.
type LogStore interface {
	DeleteOlderThan(maxAge time.Duration) int
}
