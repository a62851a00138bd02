package instance

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pyrohost/pyrod/internal/egg"
)

// Store persists instance configs as JSON documents under configsDir and
// owns the per-instance directories under serversDir.
type Store struct {
	configsDir string
	serversDir string
	eggs       *egg.Registry
	logger     *slog.Logger

	mu sync.RWMutex
}

func NewStore(configsDir, serversDir string, eggs *egg.Registry, logger *slog.Logger) (*Store, error) {
	for _, dir := range []string{configsDir, serversDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	return &Store{
		configsDir: configsDir,
		serversDir: serversDir,
		eggs:       eggs,
		logger:     logger,
	}, nil
}

// Root returns the on-host directory for an instance.
func (s *Store) Root(id string) string {
	return filepath.Join(s.serversDir, id)
}

// Save validates cfg, creates its instance directory, and rewrites the
// config document atomically. Used for both create and update.
func (s *Store) Save(id string, cfg *Config) (*Config, error) {
	cfg.ID = id

	resolved, err := s.eggs.Get(cfg.EggID)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown egg %q", ErrInvalid, cfg.EggID)
	}
	cfg.Egg = resolved

	if err := validate(cfg); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.Root(id), 0o755); err != nil {
		return nil, fmt.Errorf("create instance dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	final := filepath.Join(s.configsDir, id+".json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("rename config: %w", err)
	}

	return cfg, nil
}

// Get loads an instance config and rehydrates its egg snapshot from the
// registry.
func (s *Store) Get(id string) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(id)
}

func (s *Store) load(id string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(s.configsDir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", id, err)
	}

	if fresh, err := s.eggs.Get(cfg.EggID); err == nil {
		cfg.Egg = fresh
	} else if cfg.Egg == nil {
		return nil, fmt.Errorf("%w: egg %q for instance %s", egg.ErrNotFound, cfg.EggID, id)
	}

	return &cfg, nil
}

// List returns every persisted instance config sorted by id. Configs whose
// egg can no longer be resolved are skipped with a warning.
func (s *Store) List() ([]*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.configsDir)
	if err != nil {
		return nil, fmt.Errorf("read configs dir: %w", err)
	}

	var out []*Config
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		cfg, err := s.load(id)
		if err != nil {
			s.logger.Warn("skipping unloadable instance config", "instance_id", id, "error", err)
			continue
		}
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Exists reports whether a config document exists for id, without loading
// it. Used by the reaper's orphan sweep.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(filepath.Join(s.configsDir, id+".json"))
	return err == nil
}

// Delete removes the config document and the instance directory.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.configsDir, id+".json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove config: %w", err)
	}
	if err := os.RemoveAll(s.Root(id)); err != nil {
		return fmt.Errorf("remove instance dir: %w", err)
	}
	return nil
}

// ClearRoot empties and recreates an instance directory. Used by reinstall.
func (s *Store) ClearRoot(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	root := s.Root(id)
	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("clear instance dir: %w", err)
	}
	return os.MkdirAll(root, 0o755)
}
