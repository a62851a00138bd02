package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Intervals groups the background ticker periods. Tests shrink these.
type Intervals struct {
	StatsSeconds        int `yaml:"stats_seconds"`
	ReconcileSeconds    int `yaml:"reconcile_seconds"`
	OrphanSweepMinutes  int `yaml:"orphan_sweep_minutes"`
	LogRetentionMinutes int `yaml:"log_retention_minutes"`
}

// Images holds the canonical image overrides per runtime family.
type Images struct {
	Java      string `yaml:"java"`
	Minecraft string `yaml:"minecraft"`
}

type Config struct {
	Port        int       `yaml:"port"`
	PanelURL    string    `yaml:"panel_url"`
	DataDir     string    `yaml:"data_dir"`
	LogMaxAge   int       `yaml:"log_max_age_days"`
	StartupWait int       `yaml:"startup_wait_seconds"`
	Intervals   Intervals `yaml:"intervals"`
	Images      Images    `yaml:"images"`
}

func Load(yamlPath string) (*Config, error) {
	cfg := &Config{
		Port:        8080,
		DataDir:     ".",
		LogMaxAge:   30,
		StartupWait: 15,
		Intervals: Intervals{
			StatsSeconds:        5,
			ReconcileSeconds:    60,
			OrphanSweepMinutes:  360,
			LogRetentionMinutes: 1440,
		},
		Images: Images{
			Java:      "eclipse-temurin:17-jre",
			Minecraft: "pyro-minecraft-runtime:latest",
		},
	}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("PANEL_URL"); v != "" {
		cfg.PanelURL = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LOG_MAX_AGE_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LogMaxAge = n
		}
	}
	if v := os.Getenv("DOCKER_IMAGES_JAVA"); v != "" {
		cfg.Images.Java = v
	}
	if v := os.Getenv("DOCKER_IMAGES_MINECRAFT"); v != "" {
		cfg.Images.Minecraft = v
	}
}

// EggsDir is where egg descriptors are persisted.
func (c *Config) EggsDir() string { return filepath.Join(c.DataDir, "eggs") }

// ConfigsDir is where instance configurations are persisted.
func (c *Config) ConfigsDir() string { return filepath.Join(c.DataDir, "configs") }

// ServersDir holds one directory per instance, bind-mounted into containers.
func (c *Config) ServersDir() string { return filepath.Join(c.DataDir, "servers") }

// LogsDir holds per-instance daily log files.
func (c *Config) LogsDir() string { return filepath.Join(c.DataDir, "logs") }

// ServerRoot returns the on-host root directory for one instance.
func (c *Config) ServerRoot(id string) string { return filepath.Join(c.ServersDir(), id) }

// EnsureDirs creates the persistent directory layout.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.EggsDir(), c.ConfigsDir(), c.ServersDir(), c.LogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
