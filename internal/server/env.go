package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/pyrohost/pyrod/internal/instance"
	"github.com/pyrohost/pyrod/internal/template"
)

func nowUTC() time.Time { return time.Now().UTC() }

// buildEnv assembles the container environment: every egg variable with its
// instance override, the system values, and the raw startup template for
// reference.
func buildEnv(cfg *instance.Config) []string {
	env := make([]string, 0, len(cfg.Egg.Variables)+5)
	for _, v := range cfg.Egg.Variables {
		env = append(env, v.EnvVariable+"="+template.Expand(cfg.VarValue(v), cfg))
	}
	env = append(env,
		"SERVER_PORT="+strconv.Itoa(cfg.Port),
		"SERVER_MEMORY="+strconv.Itoa(cfg.Plan.RAM*1024),
		"P_SERVER_UUID="+cfg.ID,
		"P_SERVER_LOCATION="+cfg.Location,
		"STARTUP="+cfg.Egg.Startup,
	)
	return env
}

// rconPort is the extra tcp port Minecraft workloads expose.
func rconPort(cfg *instance.Config) int {
	return cfg.Port + 1000
}

func isMinecraftWorkload(cfg *instance.Config) bool {
	return cfg.EggID == "minecraft" || strings.EqualFold(cfg.Game, "minecraft")
}
