// Package console delivers operator commands to a running game server's
// stdin.
package console

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pyrohost/pyrod/internal/logpipe"
)

var ErrNotRunning = errors.New("server is not running")

// Engine is the slice of the docker client the injector needs.
type Engine interface {
	Exec(ctx context.Context, containerID string, cmd []string) (string, error)
}

// Registry resolves an instance to its live container.
type Registry interface {
	ContainerFor(instanceID string) (string, bool)
}

type Injector struct {
	engine   Engine
	registry Registry
	pipe     *logpipe.Pipeline
}

func New(engine Engine, registry Registry, pipe *logpipe.Pipeline) *Injector {
	return &Injector{engine: engine, registry: registry, pipe: pipe}
}

// Send writes command plus newline to pid 1's stdin inside the instance's
// container, and echoes it into the log stream so subscribers see what was
// sent. The game server must still be pid 1 for this to land.
func (i *Injector) Send(ctx context.Context, instanceID, command string) error {
	containerID, ok := i.registry.ContainerFor(instanceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, instanceID)
	}

	i.pipe.Emit(instanceID, logpipe.Record{
		Timestamp: time.Now().UTC(),
		Level:     "info",
		Message:   "> " + command,
	})

	// The command rides as a positional argument so shell metacharacters in
	// it are never interpreted.
	_, err := i.engine.Exec(ctx, containerID, []string{
		"sh", "-c", `printf '%s\n' "$1" > /proc/1/fd/0`, "sh", command,
	})
	if err != nil {
		return fmt.Errorf("inject command: %w", err)
	}
	return nil
}
