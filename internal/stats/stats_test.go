package stats

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pyrohost/pyrod/internal/bus"
)

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) StatsOneShot(ctx context.Context, containerID string) (container.StatsResponse, error) {
	args := m.Called(ctx, containerID)
	return args.Get(0).(container.StatsResponse), args.Error(1)
}

type staticRegistry map[string]string

func (r staticRegistry) Snapshot() map[string]string { return r }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func rawStats() container.StatsResponse {
	var s container.StatsResponse
	s.PreCPUStats.CPUUsage.TotalUsage = 1_000_000
	s.PreCPUStats.SystemUsage = 10_000_000
	s.CPUStats.CPUUsage.TotalUsage = 2_000_000
	s.CPUStats.SystemUsage = 18_000_000
	s.CPUStats.OnlineCPUs = 4
	s.MemoryStats.Usage = 512 * 1 << 20
	s.MemoryStats.Limit = 1024 * 1 << 20
	s.Networks = map[string]container.NetworkStats{
		"eth0": {RxBytes: 1111, TxBytes: 2222},
	}
	return s
}

func TestComputeCPU(t *testing.T) {
	sample := Compute(rawStats())
	// (1e6 / 8e6) * 4 cpus * 100 = 50%
	assert.Equal(t, 50, sample.CPU)
}

func TestComputeCPUZeroPrecpu(t *testing.T) {
	s := rawStats()
	s.PreCPUStats.CPUUsage.TotalUsage = 0
	assert.Equal(t, 0, Compute(s).CPU)
}

func TestComputeCPUClamped(t *testing.T) {
	s := rawStats()
	s.CPUStats.CPUUsage.TotalUsage = 100_000_000 // delta far above system delta
	assert.Equal(t, 100, Compute(s).CPU)
}

func TestComputeMemory(t *testing.T) {
	sample := Compute(rawStats())
	assert.Equal(t, 512.0, sample.Memory.Used)
	assert.Equal(t, 1024.0, sample.Memory.Total)
	assert.Equal(t, 50.0, sample.Memory.Percent)
}

func TestComputeNetworkPrefersEth0(t *testing.T) {
	s := rawStats()
	s.Networks["eth1"] = container.NetworkStats{RxBytes: 9, TxBytes: 9}
	sample := Compute(s)
	assert.Equal(t, uint64(1111), sample.Network.RX)
	assert.Equal(t, uint64(2222), sample.Network.TX)
}

func TestComputeNetworkFallback(t *testing.T) {
	s := rawStats()
	delete(s.Networks, "eth0")
	s.Networks["veth9"] = container.NetworkStats{RxBytes: 7, TxBytes: 8}
	sample := Compute(s)
	assert.Equal(t, uint64(7), sample.Network.RX)
}

func TestTickCachesAndPublishes(t *testing.T) {
	engine := &MockEngine{}
	engine.On("StatsOneShot", mock.Anything, "ctr-1").Return(rawStats(), nil)

	b := bus.New()
	sub := b.Subscribe("s1")

	s := New(engine, staticRegistry{"s1": "ctr-1"}, b, time.Hour, testLogger())
	s.tick(context.Background())

	sample, ok := s.Last("s1")
	require.True(t, ok)
	assert.Equal(t, 50, sample.CPU)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, bus.EventStats, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no stats event published")
	}
}

func TestTickSwallowsErrors(t *testing.T) {
	engine := &MockEngine{}
	engine.On("StatsOneShot", mock.Anything, "gone").Return(container.StatsResponse{}, errors.New("no such container"))
	engine.On("StatsOneShot", mock.Anything, "ok").Return(rawStats(), nil)

	s := New(engine, staticRegistry{"a": "gone", "b": "ok"}, bus.New(), time.Hour, testLogger())
	s.tick(context.Background())

	_, ok := s.Last("a")
	assert.False(t, ok)
	_, ok = s.Last("b")
	assert.True(t, ok)
}

func TestForget(t *testing.T) {
	engine := &MockEngine{}
	engine.On("StatsOneShot", mock.Anything, "ctr-1").Return(rawStats(), nil)

	s := New(engine, staticRegistry{"s1": "ctr-1"}, bus.New(), time.Hour, testLogger())
	s.tick(context.Background())

	s.Forget("s1")
	_, ok := s.Last("s1")
	assert.False(t, ok)
}
