// Package egg holds the declarative server templates ("eggs") and the
// registry that persists them. An egg describes how one class of game
// server is installed, configured, and run.
package egg

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	ErrNotFound = errors.New("egg not found")
	ErrInvalid  = errors.New("invalid egg")
)

// ConfigFile describes one file the daemon materialises into the instance
// root before install/start. Parser selects how Find is applied.
type ConfigFile struct {
	Parser string         `json:"parser"` // "properties", "file", or "yaml"
	Find   map[string]any `json:"find"`
}

// StartupConfig carries the readiness sentinel.
type StartupConfig struct {
	Done string `json:"done,omitempty"`
}

// EggConfig groups the per-file parsers, the startup sentinel, and the stop
// command.
type EggConfig struct {
	Files   map[string]ConfigFile `json:"files,omitempty"`
	Startup StartupConfig         `json:"startup"`
	Stop    string                `json:"stop,omitempty"`
}

// InstallScript is the one-shot installation recipe. Container may differ
// from the runtime image.
type InstallScript struct {
	Script     string `json:"script"`
	Container  string `json:"container"`
	Entrypoint string `json:"entrypoint"`
}

type Scripts struct {
	Installation InstallScript `json:"installation"`
}

// Variable is one declared egg variable. EnvVariable doubles as the
// environment key and the placeholder name.
type Variable struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	EnvVariable  string `json:"env_variable"`
	DefaultValue string `json:"default_value"`
	UserViewable bool   `json:"user_viewable"`
	UserEditable bool   `json:"user_editable"`
	Rules        string `json:"rules"`
}

type Egg struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	Author       string            `json:"author,omitempty"`
	DockerImages map[string]string `json:"docker_images"`
	Startup      string            `json:"startup"`
	Config       EggConfig         `json:"config"`
	Scripts      Scripts           `json:"scripts"`
	Variables    []Variable        `json:"variables"`
}

// Validate checks the minimum shape required to persist an egg.
func (e *Egg) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalid)
	}
	if e.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalid)
	}
	if len(e.DockerImages) == 0 {
		return fmt.Errorf("%w: at least one docker image required", ErrInvalid)
	}
	return nil
}

// Variable returns the declared variable for an env key, if any.
func (e *Egg) Variable(envKey string) (Variable, bool) {
	for _, v := range e.Variables {
		if v.EnvVariable == envKey {
			return v, true
		}
	}
	return Variable{}, false
}

// HasInstallScript reports whether the egg carries an installation script.
func (e *Egg) HasInstallScript() bool {
	return e.Scripts.Installation.Script != ""
}
