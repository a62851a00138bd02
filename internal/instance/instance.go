// Package instance persists per-server configurations and binds each one to
// the egg it was created from.
package instance

import (
	"errors"
	"fmt"

	"github.com/pyrohost/pyrod/internal/egg"
)

var (
	ErrNotFound = errors.New("instance not found")
	ErrInvalid  = errors.New("invalid instance config")
)

// Plan is the resource allocation for one instance. RAM and Disk are in GiB,
// CPU in whole cores.
type Plan struct {
	RAM  int `json:"ram"`
	CPU  int `json:"cpu"`
	Disk int `json:"disk"`
}

// Config is the persisted description of one managed server.
type Config struct {
	ID        string            `json:"id"`
	EggID     string            `json:"eggId"`
	Name      string            `json:"name,omitempty"`
	Game      string            `json:"game,omitempty"`
	Location  string            `json:"location,omitempty"`
	Port      int               `json:"port"`
	Plan      Plan              `json:"plan"`
	Variables map[string]string `json:"variables,omitempty"`

	// Egg is a snapshot of the descriptor at save time; rehydrated from the
	// registry on load so it never goes stale.
	Egg *egg.Egg `json:"egg,omitempty"`
}

// VarValue returns the effective value for an egg variable: the instance
// override when set, the egg default otherwise.
func (c *Config) VarValue(v egg.Variable) string {
	if val, ok := c.Variables[v.EnvVariable]; ok {
		return val
	}
	return v.DefaultValue
}

// validate checks the config against its egg. The egg must already be
// resolved onto cfg.Egg.
func validate(cfg *Config) error {
	if cfg.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalid)
	}
	if cfg.EggID == "" {
		return fmt.Errorf("%w: missing eggId", ErrInvalid)
	}
	if cfg.Port < 1024 || cfg.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range [1024,65535]", ErrInvalid, cfg.Port)
	}
	if cfg.Plan.RAM <= 0 || cfg.Plan.CPU <= 0 || cfg.Plan.Disk <= 0 {
		return fmt.Errorf("%w: plan requires ram, cpu, and disk", ErrInvalid)
	}
	for _, v := range cfg.Egg.Variables {
		if err := egg.ValidateValue(v, cfg.VarValue(v)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	return nil
}
