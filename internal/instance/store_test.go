package instance

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyrohost/pyrod/internal/egg"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T) (*Store, *egg.Registry) {
	t.Helper()
	base := t.TempDir()
	reg, err := egg.NewRegistry(filepath.Join(base, "eggs"), testLogger())
	require.NoError(t, err)
	st, err := NewStore(filepath.Join(base, "configs"), filepath.Join(base, "servers"), reg, testLogger())
	require.NoError(t, err)
	return st, reg
}

func terrariaConfig() *Config {
	return &Config{
		EggID: "terraria",
		Name:  "my server",
		Game:  "terraria",
		Port:  7777,
		Plan:  Plan{RAM: 1, CPU: 1, Disk: 5},
		Variables: map[string]string{
			"WORLD_NAME":  "PyroWorld",
			"MAX_PLAYERS": "8",
		},
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	st, _ := newTestStore(t)

	saved, err := st.Save("s1", terrariaConfig())
	require.NoError(t, err)
	assert.Equal(t, "s1", saved.ID)
	require.NotNil(t, saved.Egg)

	got, err := st.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, saved.Port, got.Port)
	assert.Equal(t, saved.Variables, got.Variables)
	// Egg is rehydrated from the registry on load.
	require.NotNil(t, got.Egg)
	assert.Equal(t, "terraria", got.Egg.ID)

	// Instance directory was created.
	info, err := os.Stat(st.Root("s1"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSaveRejectsUnknownEgg(t *testing.T) {
	st, _ := newTestStore(t)

	cfg := terrariaConfig()
	cfg.EggID = "doom"
	_, err := st.Save("s1", cfg)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSavePortBounds(t *testing.T) {
	st, _ := newTestStore(t)

	for port, ok := range map[int]bool{1023: false, 1024: true, 65535: true, 65536: false} {
		cfg := terrariaConfig()
		cfg.Port = port
		_, err := st.Save("s1", cfg)
		if ok {
			assert.NoError(t, err, "port %d", port)
		} else {
			assert.ErrorIs(t, err, ErrInvalid, "port %d", port)
		}
	}
}

func TestSaveRejectsIncompletePlan(t *testing.T) {
	st, _ := newTestStore(t)

	cfg := terrariaConfig()
	cfg.Plan.Disk = 0
	_, err := st.Save("s1", cfg)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSaveRunsVariableRules(t *testing.T) {
	st, _ := newTestStore(t)

	cfg := terrariaConfig()
	cfg.Variables["MAX_PLAYERS"] = "not-a-number"
	_, err := st.Save("s1", cfg)
	assert.ErrorIs(t, err, ErrInvalid)

	cfg.Variables["MAX_PLAYERS"] = "300" // above between:1,255
	_, err = st.Save("s1", cfg)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestGetNotFound(t *testing.T) {
	st, _ := newTestStore(t)

	_, err := st.Get("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAndExists(t *testing.T) {
	st, _ := newTestStore(t)

	_, err := st.Save("b", terrariaConfig())
	require.NoError(t, err)
	_, err = st.Save("a", terrariaConfig())
	require.NoError(t, err)

	list, err := st.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	assert.True(t, st.Exists("a"))
	assert.False(t, st.Exists("ghost"))
}

func TestDeleteRemovesConfigAndDir(t *testing.T) {
	st, _ := newTestStore(t)

	_, err := st.Save("s1", terrariaConfig())
	require.NoError(t, err)
	require.NoError(t, st.Delete("s1"))

	_, err = st.Get("s1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = os.Stat(st.Root("s1"))
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, st.Delete("s1"), ErrNotFound)
}

func TestClearRoot(t *testing.T) {
	st, _ := newTestStore(t)

	_, err := st.Save("s1", terrariaConfig())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(st.Root("s1"), "junk.txt"), []byte("x"), 0o644))

	require.NoError(t, st.ClearRoot("s1"))

	entries, err := os.ReadDir(st.Root("s1"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestVarValueFallsBackToDefault(t *testing.T) {
	st, reg := newTestStore(t)

	saved, err := st.Save("s1", terrariaConfig())
	require.NoError(t, err)

	terraria, err := reg.Get("terraria")
	require.NoError(t, err)

	motd, ok := terraria.Variable("SERVER_MOTD")
	require.True(t, ok)
	assert.Equal(t, motd.DefaultValue, saved.VarValue(motd))

	world, ok := terraria.Variable("WORLD_NAME")
	require.True(t, ok)
	assert.Equal(t, "PyroWorld", saved.VarValue(world))
}
