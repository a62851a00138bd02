// Package stats samples resource usage for every supervised container and
// publishes normalized samples on the event bus.
package stats

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"

	"github.com/pyrohost/pyrod/internal/bus"
)

// Engine is the slice of the docker client the sampler needs.
type Engine interface {
	StatsOneShot(ctx context.Context, containerID string) (container.StatsResponse, error)
}

// Registry yields the instance→container snapshot to sample.
type Registry interface {
	Snapshot() map[string]string
}

// Memory is in MiB.
type Memory struct {
	Used    float64 `json:"used"`
	Total   float64 `json:"total"`
	Percent float64 `json:"percent"`
}

// Network counters are cumulative bytes on the first interface.
type Network struct {
	RX uint64 `json:"rx"`
	TX uint64 `json:"tx"`
}

// Sample is one normalized usage reading.
type Sample struct {
	CPU     int     `json:"cpu"`
	Memory  Memory  `json:"memory"`
	Network Network `json:"network"`
}

// Compute normalizes an engine stats response.
func Compute(s container.StatsResponse) Sample {
	var out Sample

	cpuDelta := float64(s.CPUStats.CPUUsage.TotalUsage) - float64(s.PreCPUStats.CPUUsage.TotalUsage)
	sysDelta := float64(s.CPUStats.SystemUsage) - float64(s.PreCPUStats.SystemUsage)
	if s.PreCPUStats.CPUUsage.TotalUsage > 0 && cpuDelta > 0 && sysDelta > 0 {
		cpus := float64(s.CPUStats.OnlineCPUs)
		if cpus == 0 {
			cpus = float64(len(s.CPUStats.CPUUsage.PercpuUsage))
		}
		pct := cpuDelta / sysDelta * cpus * 100
		out.CPU = int(math.Round(clamp(pct, 0, 100)))
	}

	const mib = 1 << 20
	out.Memory.Used = float64(s.MemoryStats.Usage) / mib
	out.Memory.Total = float64(s.MemoryStats.Limit) / mib
	if s.MemoryStats.Limit > 0 {
		out.Memory.Percent = clamp(float64(s.MemoryStats.Usage)/float64(s.MemoryStats.Limit)*100, 0, 100)
	}

	if net, ok := s.Networks["eth0"]; ok {
		out.Network = Network{RX: net.RxBytes, TX: net.TxBytes}
	} else {
		for _, net := range s.Networks {
			out.Network = Network{RX: net.RxBytes, TX: net.TxBytes}
			break
		}
	}

	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// Sampler ticks over the supervised registry and caches the latest sample
// per instance.
type Sampler struct {
	engine   Engine
	registry Registry
	events   *bus.Bus
	interval time.Duration
	logger   *slog.Logger

	mu   sync.RWMutex
	last map[string]Sample
}

func New(engine Engine, registry Registry, events *bus.Bus, interval time.Duration, logger *slog.Logger) *Sampler {
	return &Sampler{
		engine:   engine,
		registry: registry,
		events:   events,
		interval: interval,
		logger:   logger,
		last:     make(map[string]Sample),
	}
}

// Run blocks until ctx is cancelled. Sampling errors are swallowed; a
// container being removed mid-tick is routine.
func (s *Sampler) Run(ctx context.Context) {
	s.logger.Info("stats sampler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stats sampler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sampler) tick(ctx context.Context) {
	for instanceID, containerID := range s.registry.Snapshot() {
		raw, err := s.engine.StatsOneShot(ctx, containerID)
		if err != nil {
			continue
		}
		sample := Compute(raw)

		s.mu.Lock()
		s.last[instanceID] = sample
		s.mu.Unlock()

		s.events.Publish(instanceID, bus.Event{Type: bus.EventStats, Data: sample})
	}
}

// Last returns the most recent sample for an instance.
func (s *Sampler) Last(instanceID string) (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sample, ok := s.last[instanceID]
	return sample, ok
}

// Forget drops the cached sample for an instance that went away.
func (s *Sampler) Forget(instanceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.last, instanceID)
}
