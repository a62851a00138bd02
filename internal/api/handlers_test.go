package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pyrohost/pyrod/internal/bus"
	"github.com/pyrohost/pyrod/internal/egg"
	"github.com/pyrohost/pyrod/internal/files"
	"github.com/pyrohost/pyrod/internal/instance"
	"github.com/pyrohost/pyrod/internal/sandbox"
	"github.com/pyrohost/pyrod/internal/server"
	"github.com/pyrohost/pyrod/internal/stats"
)

type apiFixture struct {
	srv       *httptest.Server
	lifecycle *MockLifecycle
	commander *MockCommander
	statsSrc  *MockStats
	logs      *MockLogs
	store     *instance.Store
	eggs      *egg.Registry
	events    *bus.Bus
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	base := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	reg, err := egg.NewRegistry(filepath.Join(base, "eggs"), logger)
	require.NoError(t, err)
	serversDir := filepath.Join(base, "servers")
	store, err := instance.NewStore(filepath.Join(base, "configs"), serversDir, reg, logger)
	require.NoError(t, err)

	lifecycle := &MockLifecycle{}
	commander := &MockCommander{}
	statsSrc := &MockStats{}
	logs := &MockLogs{}
	events := bus.New()
	fileService := files.New(sandbox.New(serversDir))

	s := NewServer(reg, store, lifecycle, commander, statsSrc, logs, fileService, events, nil, logger)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &apiFixture{
		srv:       srv,
		lifecycle: lifecycle,
		commander: commander,
		statsSrc:  statsSrc,
		logs:      logs,
		store:     store,
		eggs:      reg,
		events:    events,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func terrariaBody() map[string]any {
	return map[string]any{
		"eggId": "terraria",
		"port":  7777,
		"plan":  map[string]int{"ram": 1, "cpu": 1, "disk": 5},
		"variables": map[string]string{
			"WORLD_NAME":  "PyroWorld",
			"MAX_PLAYERS": "8",
		},
	}
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	f.lifecycle.On("ContainerCount").Return(2)

	resp := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
	counts := body["counts"].(map[string]any)
	assert.Equal(t, float64(2), counts["containers"])
	assert.GreaterOrEqual(t, counts["eggs"], float64(3))
}

func TestEggCRUD(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/v1/eggs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]egg.Egg](t, resp)
	assert.GreaterOrEqual(t, len(list), 3)

	custom := egg.Egg{
		Name:         "Valheim",
		DockerImages: map[string]string{"Default": "steamcmd/steamcmd:ubuntu"},
		Startup:      "./valheim_server.x86_64",
	}
	resp = f.do(t, http.MethodPut, "/v1/eggs/valheim", custom)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/v1/eggs/valheim", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[egg.Egg](t, resp)
	assert.Equal(t, "Valheim", got.Name)
	assert.Equal(t, "valheim", got.ID)

	resp = f.do(t, http.MethodDelete, "/v1/eggs/valheim", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/v1/eggs/valheim", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPutEggInvalid(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPut, "/v1/eggs/broken", map[string]any{"name": "No Images"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[APIError](t, resp)
	assert.Equal(t, ErrCodeBadRequest, body.Code)
}

func TestConfigureAndGetServer(t *testing.T) {
	f := newAPIFixture(t)
	f.lifecycle.On("State", "s1").Return(server.StateOffline)

	resp := f.do(t, http.MethodPut, "/v1/servers/s1", terrariaBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/v1/servers/s1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[map[string]any](t, resp)
	assert.Equal(t, "offline", view["state"])
	assert.Equal(t, float64(7777), view["port"])
	// The egg snapshot is rehydrated into the response.
	assert.NotNil(t, view["egg"])
}

func TestConfigureRejectsBadPort(t *testing.T) {
	f := newAPIFixture(t)

	body := terrariaBody()
	body["port"] = 1023
	resp := f.do(t, http.MethodPut, "/v1/servers/s1", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetServerNotFound(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/v1/servers/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLifecycleRoutes(t *testing.T) {
	f := newAPIFixture(t)

	for _, op := range []string{"install", "reinstall", "start", "stop", "restart", "kill"} {
		method := strings.ToUpper(op[:1]) + op[1:]
		f.lifecycle.On(method, mock.Anything, "s1").Return(nil).Once()
		f.lifecycle.On("State", "s1").Return(server.StateOffline)

		resp := f.do(t, http.MethodPost, "/v1/servers/s1/"+op, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, op)
	}
	f.lifecycle.AssertExpectations(t)
}

func TestLifecycleConflictMapsTo409(t *testing.T) {
	f := newAPIFixture(t)
	f.lifecycle.On("Start", mock.Anything, "s1").
		Return(fmt.Errorf("%w: cannot start while online", server.ErrConflict))

	resp := f.do(t, http.MethodPost, "/v1/servers/s1/start", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decode[APIError](t, resp)
	assert.Equal(t, ErrCodeConflict, body.Code)
}

func TestSendCommand(t *testing.T) {
	f := newAPIFixture(t)
	f.commander.On("Send", mock.Anything, "s1", "say hi").Return(nil)

	resp := f.do(t, http.MethodPost, "/v1/servers/s1/command", commandRequest{Command: "say hi"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/v1/servers/s1/command", commandRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetStats(t *testing.T) {
	f := newAPIFixture(t)
	f.statsSrc.On("Last", "s1").Return(stats.Sample{CPU: 42}, true)
	f.statsSrc.On("Last", "ghost").Return(stats.Sample{}, false)

	resp := f.do(t, http.MethodGet, "/v1/servers/s1/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sample := decode[stats.Sample](t, resp)
	assert.Equal(t, 42, sample.CPU)

	resp = f.do(t, http.MethodGet, "/v1/servers/ghost/stats", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetLogsDefaultsTo100(t *testing.T) {
	f := newAPIFixture(t)
	f.logs.On("Tail", "s1", 100).Return(nil, nil)

	resp := f.do(t, http.MethodGet, "/v1/servers/s1/logs", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	f.logs.AssertCalled(t, "Tail", "s1", 100)

	resp = f.do(t, http.MethodGet, "/v1/servers/s1/logs?lines=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFileRoutes(t *testing.T) {
	f := newAPIFixture(t)
	f.lifecycle.On("State", "s1").Return(server.StateOffline)

	resp := f.do(t, http.MethodPut, "/v1/servers/s1", terrariaBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/v1/servers/s1/files/write",
		writeFileRequest{Path: "motd.txt", Text: "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/v1/servers/s1/files/content?path=motd.txt", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "hello", body["text"])

	resp = f.do(t, http.MethodGet, "/v1/servers/s1/files", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decode[[]files.Entry](t, resp)
	require.Len(t, entries, 1)
	assert.Equal(t, "motd.txt", entries[0].Name)

	resp = f.do(t, http.MethodPost, "/v1/servers/s1/files/copy",
		twoPathRequest{From: "motd.txt", To: "motd2.txt"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/v1/servers/s1/files/rename",
		twoPathRequest{From: "motd2.txt", To: "motd3.txt"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/v1/servers/s1/files/delete", pathRequest{Path: "motd3.txt"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFilePathEscapeRejected(t *testing.T) {
	f := newAPIFixture(t)
	f.lifecycle.On("State", "s1").Return(server.StateOffline)

	resp := f.do(t, http.MethodPut, "/v1/servers/s1", terrariaBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/v1/servers/s1/files/content?path=../../etc/passwd", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[APIError](t, resp)
	assert.Equal(t, ErrCodeBadRequest, body.Code)
}

func TestWriteFileBase64RoundTrip(t *testing.T) {
	f := newAPIFixture(t)
	f.lifecycle.On("State", "s1").Return(server.StateOffline)

	resp := f.do(t, http.MethodPut, "/v1/servers/s1", terrariaBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// 0xFF 0xFE is not valid UTF-8, so the read comes back base64.
	resp = f.do(t, http.MethodPost, "/v1/servers/s1/files/write",
		writeFileRequest{Path: "blob.bin", ContentBase64: "//4="})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/v1/servers/s1/files/content?path=blob.bin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "//4=", body["content_base64"])
}

func TestRequestIDMiddleware(t *testing.T) {
	f := newAPIFixture(t)
	f.lifecycle.On("ContainerCount").Return(0)

	resp := f.do(t, http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestErrorMappingInternal(t *testing.T) {
	f := newAPIFixture(t)
	f.lifecycle.On("Start", mock.Anything, "s1").Return(errors.New("boom"))

	resp := f.do(t, http.MethodPost, "/v1/servers/s1/start", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
