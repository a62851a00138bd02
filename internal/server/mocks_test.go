package server

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/pyrohost/pyrod/internal/docker"
	"github.com/pyrohost/pyrod/internal/instance"
)

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) ImageExists(ctx context.Context, ref string) (bool, error) {
	args := m.Called(ctx, ref)
	return args.Bool(0), args.Error(1)
}

func (m *MockEngine) PullImage(ctx context.Context, ref string) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

func (m *MockEngine) CreateServer(ctx context.Context, opts docker.ServerCreateOpts) (string, error) {
	args := m.Called(ctx, opts)
	return args.String(0), args.Error(1)
}

func (m *MockEngine) CreateInstaller(ctx context.Context, opts docker.InstallerCreateOpts) (string, error) {
	args := m.Called(ctx, opts)
	return args.String(0), args.Error(1)
}

func (m *MockEngine) StartContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

func (m *MockEngine) StopContainer(ctx context.Context, containerID string, timeoutSeconds int) error {
	args := m.Called(ctx, containerID, timeoutSeconds)
	return args.Error(0)
}

func (m *MockEngine) KillContainer(ctx context.Context, containerID, signal string) error {
	args := m.Called(ctx, containerID, signal)
	return args.Error(0)
}

func (m *MockEngine) RemoveContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

func (m *MockEngine) WaitExit(ctx context.Context, containerID string) (int64, error) {
	args := m.Called(ctx, containerID)
	if blockCh, ok := args.Get(0).(chan int64); ok {
		select {
		case code := <-blockCh:
			return code, nil
		case <-ctx.Done():
			return -1, ctx.Err()
		}
	}
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEngine) StreamLogs(ctx context.Context, containerID string, follow bool) (*docker.LogStream, error) {
	args := m.Called(ctx, containerID, follow)
	if stream := args.Get(0); stream != nil {
		return stream.(*docker.LogStream), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEngine) FindByName(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

func (m *MockEngine) IsRunning(ctx context.Context, containerID string) (bool, error) {
	args := m.Called(ctx, containerID)
	return args.Bool(0), args.Error(1)
}

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Choose(cfg *instance.Config) string {
	args := m.Called(cfg)
	return args.String(0)
}

func (m *MockResolver) Ensure(ctx context.Context, ref string, cfg *instance.Config, instanceRoot string) (string, error) {
	args := m.Called(ctx, ref, cfg, instanceRoot)
	return args.String(0), args.Error(1)
}

type MockConsole struct {
	mock.Mock
}

func (m *MockConsole) Send(ctx context.Context, instanceID, command string) error {
	args := m.Called(ctx, instanceID, command)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyStatus(ctx context.Context, instanceID, status string) {
	m.Called(ctx, instanceID, status)
}
