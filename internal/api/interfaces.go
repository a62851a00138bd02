package api

import (
	"context"

	"github.com/pyrohost/pyrod/internal/logpipe"
	"github.com/pyrohost/pyrod/internal/server"
	"github.com/pyrohost/pyrod/internal/stats"
)

// Lifecycle is the slice of the supervisor the handlers drive.
type Lifecycle interface {
	Install(ctx context.Context, id string) error
	Reinstall(ctx context.Context, id string) error
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Restart(ctx context.Context, id string) error
	Kill(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	State(id string) server.State
	ContainerCount() int
}

// Commander injects console commands into running servers.
type Commander interface {
	Send(ctx context.Context, instanceID, command string) error
}

// StatsSource serves the latest cached sample.
type StatsSource interface {
	Last(instanceID string) (stats.Sample, bool)
}

// LogSource serves recent log records.
type LogSource interface {
	Tail(instanceID string, n int) ([]logpipe.Record, error)
}
