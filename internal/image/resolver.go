// Package image picks the container image for an instance and makes sure it
// exists locally before the supervisor creates anything.
package image

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pyrohost/pyrod/internal/config"
	"github.com/pyrohost/pyrod/internal/instance"
)

// Engine is the slice of the docker client the resolver needs.
type Engine interface {
	ImageExists(ctx context.Context, ref string) (bool, error)
	PullImage(ctx context.Context, ref string) error
	BuildImage(ctx context.Context, contextDir, tag string) error
}

// Runtime uid/gid game images run their server process as. Ownership of the
// instance directory must match so a fallback image can write saves.
const (
	runtimeUID = 1000
	runtimeGID = 1000
)

// localMinecraftTag is the tag for a locally built Minecraft runtime.
const localMinecraftTag = "pyro-minecraft-runtime:local"

// Preferred docker_images labels, most preferred first.
var preferredLabels = []string{"Java 17", "Java 21"}

type Resolver struct {
	engine Engine
	images config.Images
	logger *slog.Logger

	// buildDir holds an optional Dockerfile for a locally built Minecraft
	// runtime. Empty disables building.
	buildDir string
}

func NewResolver(engine Engine, images config.Images, buildDir string, logger *slog.Logger) *Resolver {
	return &Resolver{engine: engine, images: images, buildDir: buildDir, logger: logger}
}

// Choose returns the image reference for an instance. Minecraft workloads
// are pinned to the canonical Java runtime regardless of the egg's listing;
// everything else picks a preferred label from the egg, falling back to the
// first entry.
func (r *Resolver) Choose(cfg *instance.Config) string {
	if isMinecraft(cfg) {
		return r.images.Minecraft
	}

	for _, label := range preferredLabels {
		if ref, ok := cfg.Egg.DockerImages[label]; ok {
			return ref
		}
	}

	labels := make([]string, 0, len(cfg.Egg.DockerImages))
	for label := range cfg.Egg.DockerImages {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	if len(labels) > 0 {
		return cfg.Egg.DockerImages[labels[0]]
	}
	return ""
}

// Ensure makes ref available locally, pulling when absent. For the local
// Minecraft runtime it builds from the Dockerfile next to the daemon; a
// failed build falls back to the canonical Java image and repairs instance
// directory ownership so that image can still write there.
func (r *Resolver) Ensure(ctx context.Context, ref string, cfg *instance.Config, instanceRoot string) (string, error) {
	if isMinecraft(cfg) && r.buildDir != "" {
		if built, err := r.ensureMinecraftBuild(ctx); err == nil {
			return built, nil
		} else {
			r.logger.Warn("minecraft runtime build failed, falling back to canonical image",
				"instance_id", cfg.ID, "error", err)
			if err := repairOwnership(instanceRoot); err != nil {
				r.logger.Warn("ownership repair failed", "instance_id", cfg.ID, "error", err)
			}
			ref = r.images.Java
		}
	}

	exists, err := r.engine.ImageExists(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("probe image %s: %w", ref, err)
	}
	if !exists {
		r.logger.Info("pulling image", "ref", ref)
		if err := r.engine.PullImage(ctx, ref); err != nil {
			return "", err
		}
	}
	return ref, nil
}

func (r *Resolver) ensureMinecraftBuild(ctx context.Context) (string, error) {
	if _, err := os.Stat(filepath.Join(r.buildDir, "Dockerfile")); err != nil {
		return "", fmt.Errorf("no dockerfile: %w", err)
	}
	if err := r.engine.BuildImage(ctx, r.buildDir, localMinecraftTag); err != nil {
		return "", err
	}
	return localMinecraftTag, nil
}

func isMinecraft(cfg *instance.Config) bool {
	return strings.EqualFold(cfg.Game, "minecraft") || cfg.EggID == "minecraft"
}

// repairOwnership chowns the instance tree to the runtime uid/gid.
func repairOwnership(root string) error {
	return filepath.WalkDir(root, func(path string, _ os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return os.Chown(path, runtimeUID, runtimeGID)
	})
}
