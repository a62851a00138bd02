// Package template substitutes {{PLACEHOLDER}} forms in egg startup
// commands and config file payloads. Substitution is literal and single
// pass: substituted text is never re-expanded.
package template

import (
	"strconv"
	"strings"

	"github.com/pyrohost/pyrod/internal/instance"
)

// Expand replaces every known placeholder in tpl against cfg. Replacement
// order: egg variables (both vocabularies), system values, then any leftover
// {{KEY}} present in cfg.Variables.
func Expand(tpl string, cfg *instance.Config) string {
	if !strings.Contains(tpl, "{{") {
		return tpl
	}

	var pairs []string

	if cfg.Egg != nil {
		for _, v := range cfg.Egg.Variables {
			value := cfg.VarValue(v)
			pairs = append(pairs,
				"{{server.build.env."+v.EnvVariable+"}}", value,
				"{{"+v.EnvVariable+"}}", value,
			)
		}
	}

	port := strconv.Itoa(cfg.Port)
	memoryMiB := strconv.Itoa(cfg.Plan.RAM * 1024)
	pairs = append(pairs,
		"{{server.build.default.port}}", port,
		"{{SERVER_PORT}}", port,
		"{{SERVER_MEMORY}}", memoryMiB,
	)

	for key, value := range cfg.Variables {
		pairs = append(pairs, "{{"+key+"}}", value)
	}

	// Replacer substitutes left to right in one pass over the input, so the
	// output of one replacement is never rescanned.
	return strings.NewReplacer(pairs...).Replace(tpl)
}

// ExpandAny expands string values and passes everything else through
// unchanged. Config file payloads mix strings with booleans and numbers.
func ExpandAny(v any, cfg *instance.Config) any {
	if s, ok := v.(string); ok {
		return Expand(s, cfg)
	}
	return v
}
