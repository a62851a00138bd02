package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/pyrohost/pyrod/internal/logpipe"
	"github.com/pyrohost/pyrod/internal/server"
	"github.com/pyrohost/pyrod/internal/stats"
)

type MockLifecycle struct {
	mock.Mock
}

func (m *MockLifecycle) Install(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLifecycle) Reinstall(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLifecycle) Start(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLifecycle) Stop(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLifecycle) Restart(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLifecycle) Kill(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLifecycle) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLifecycle) State(id string) server.State {
	return m.Called(id).Get(0).(server.State)
}

func (m *MockLifecycle) ContainerCount() int {
	return m.Called().Int(0)
}

type MockCommander struct {
	mock.Mock
}

func (m *MockCommander) Send(ctx context.Context, instanceID, command string) error {
	return m.Called(ctx, instanceID, command).Error(0)
}

type MockStats struct {
	mock.Mock
}

func (m *MockStats) Last(instanceID string) (stats.Sample, bool) {
	args := m.Called(instanceID)
	return args.Get(0).(stats.Sample), args.Bool(1)
}

type MockLogs struct {
	mock.Mock
}

func (m *MockLogs) Tail(instanceID string, n int) ([]logpipe.Record, error) {
	args := m.Called(instanceID, n)
	if v := args.Get(0); v != nil {
		return v.([]logpipe.Record), args.Error(1)
	}
	return nil, args.Error(1)
}
