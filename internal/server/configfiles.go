package server

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pyrohost/pyrod/internal/egg"
	"github.com/pyrohost/pyrod/internal/instance"
	"github.com/pyrohost/pyrod/internal/template"
)

// materializeConfigFiles writes every egg-declared config file into the
// instance root with placeholders expanded. Existing files are merged key
// by key for the properties and yaml parsers and replaced wholesale for the
// file parser.
func (s *Supervisor) materializeConfigFiles(cfg *instance.Config) error {
	for rel, file := range cfg.Egg.Config.Files {
		abs, err := s.paths.Resolve(cfg.ID, rel)
		if err != nil {
			return fmt.Errorf("config file %s: %w", rel, err)
		}

		var data []byte
		switch file.Parser {
		case "properties":
			data, err = renderProperties(abs, file, cfg)
		case "yaml":
			data, err = renderYAML(abs, file, cfg)
		case "file":
			data, err = renderWholeFile(file, cfg)
		default:
			return fmt.Errorf("config file %s: unknown parser %q", rel, file.Parser)
		}
		if err != nil {
			return fmt.Errorf("config file %s: %w", rel, err)
		}

		if err := os.WriteFile(abs, data, 0o644); err != nil {
			return fmt.Errorf("config file %s: %w", rel, err)
		}
	}
	return nil
}

// renderProperties merges Find into a key=value file, preserving unknown
// existing keys.
func renderProperties(abs string, file egg.ConfigFile, cfg *instance.Config) ([]byte, error) {
	values := map[string]string{}

	if existing, err := os.ReadFile(abs); err == nil {
		for _, line := range strings.Split(string(existing), "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			if k, v, ok := strings.Cut(trimmed, "="); ok {
				values[k] = v
			}
		}
	}

	for k, v := range file.Find {
		values[k] = fmt.Sprint(template.ExpandAny(v, cfg))
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(values[k])
		b.WriteString("\n")
	}
	return []byte(b.String()), nil
}

// renderYAML merges Find's top-level keys into an existing YAML document.
func renderYAML(abs string, file egg.ConfigFile, cfg *instance.Config) ([]byte, error) {
	doc := map[string]any{}

	if existing, err := os.ReadFile(abs); err == nil {
		if err := yaml.Unmarshal(existing, &doc); err != nil {
			// A corrupt file is replaced rather than failing the install.
			doc = map[string]any{}
		}
	}

	for k, v := range file.Find {
		doc[k] = template.ExpandAny(v, cfg)
	}

	return yaml.Marshal(doc)
}

// renderWholeFile emits the literal content payload.
func renderWholeFile(file egg.ConfigFile, cfg *instance.Config) ([]byte, error) {
	raw, ok := file.Find["content"]
	if !ok {
		return nil, fmt.Errorf(`parser "file" requires a content entry`)
	}
	return []byte(fmt.Sprint(template.ExpandAny(raw, cfg))), nil
}
