// Package docker wraps the engine API behind the handful of operations the
// daemon needs. Everything above this package speaks in instance ids;
// container ids stay in here and in the supervisor's registry.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/docker/go-units"
)

const (
	// LabelInstanceID marks every container the daemon manages; the reaper
	// reconciles against it.
	LabelInstanceID = "pyro.server.id"

	// NamePrefix derives the container name from the instance id.
	NamePrefix = "pyro-server-"

	// ContainerHome is where the instance directory is mounted in runtime
	// containers.
	ContainerHome = "/home/container"

	// InstallMount is where the instance directory is mounted in install
	// containers.
	InstallMount = "/mnt/server"

	installMemoryCap = 2 * units.GiB
)

// Capabilities granted to runtime containers after dropping everything.
var runtimeCaps = []string{"CHOWN", "DAC_OVERRIDE", "FOWNER", "SETGID", "SETUID"}

type Client struct {
	docker *client.Client
}

func New() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Client{docker: cli}, nil
}

func (c *Client) Close() error {
	return c.docker.Close()
}

// Ping verifies the engine is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.docker.Ping(ctx)
	return err
}

// ContainerName returns the engine-side name for an instance.
func ContainerName(instanceID string) string {
	return NamePrefix + instanceID
}

// ImageExists probes the local image store.
func (c *Client) ImageExists(ctx context.Context, ref string) (bool, error) {
	list, err := c.docker.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", ref)),
	})
	if err != nil {
		return false, fmt.Errorf("image list: %w", err)
	}
	return len(list) > 0, nil
}

// PullImage pulls ref and drains the progress stream.
func (c *Client) PullImage(ctx context.Context, ref string) error {
	rc, err := c.docker.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("image pull %s: %w", ref, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("image pull %s: %w", ref, err)
	}
	return nil
}

// BuildImage builds contextDir/Dockerfile into tag.
func (c *Client) BuildImage(ctx context.Context, contextDir, tag string) error {
	buildCtx, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("build context: %w", err)
	}
	defer buildCtx.Close()

	resp, err := c.docker.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{tag},
		Remove:     true,
		Dockerfile: "Dockerfile",
	})
	if err != nil {
		return fmt.Errorf("image build %s: %w", tag, err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("image build %s: %w", tag, err)
	}
	return nil
}

// ImageCount returns the number of images in the local store. Health
// endpoint only.
func (c *Client) ImageCount(ctx context.Context) (int, error) {
	list, err := c.docker.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

// ServerCreateOpts describes a runtime server container.
type ServerCreateOpts struct {
	InstanceID string
	Image      string
	HostDir    string // instance root on the host
	Startup    string // expanded startup command
	Env        []string
	Port       int
	ExtraTCP   []int // additional tcp ports (RCON etc.)
	MemoryGiB  int
	CPUs       int
}

// CreateServer creates (but does not start) the runtime container for an
// instance.
func (c *Client) CreateServer(ctx context.Context, opts ServerCreateOpts) (string, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	bind := func(port int, proto string) {
		p := nat.Port(fmt.Sprintf("%d/%s", port, proto))
		exposed[p] = struct{}{}
		bindings[p] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: fmt.Sprintf("%d", port)}}
	}
	bind(opts.Port, "tcp")
	bind(opts.Port, "udp")
	for _, p := range opts.ExtraTCP {
		bind(p, "tcp")
	}

	containerCfg := &container.Config{
		Image:        opts.Image,
		Labels:       map[string]string{LabelInstanceID: opts.InstanceID},
		Env:          opts.Env,
		WorkingDir:   ContainerHome,
		Entrypoint:   []string{"/bin/sh", "-c"},
		Cmd:          []string{"cd " + ContainerHome + " && exec " + opts.Startup},
		Tty:          true,
		OpenStdin:    true,
		ExposedPorts: exposed,
	}

	hostCfg := &container.HostConfig{
		PortBindings: bindings,
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyUnlessStopped,
		},
		Resources: container.Resources{
			Memory:   int64(opts.MemoryGiB) * units.GiB,
			NanoCPUs: int64(opts.CPUs) * 1e9,
		},
		CapDrop:     []string{"ALL"},
		CapAdd:      runtimeCaps,
		SecurityOpt: []string{"no-new-privileges"},
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: opts.HostDir,
				Target: ContainerHome,
			},
		},
	}

	resp, err := c.docker.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, ContainerName(opts.InstanceID))
	if err != nil {
		return "", fmt.Errorf("container create: %w", err)
	}
	return resp.ID, nil
}

// InstallerCreateOpts describes a one-shot install container.
type InstallerCreateOpts struct {
	InstanceID string
	Image      string
	HostDir    string
	Entrypoint string // e.g. "bash"
	ScriptPath string // script path inside InstallMount
	Env        []string
}

// CreateInstaller creates the one-shot install container with the instance
// directory mounted read-write. AutoRemove cleans the container up after the
// caller has collected the exit status.
func (c *Client) CreateInstaller(ctx context.Context, opts InstallerCreateOpts) (string, error) {
	entry := opts.Entrypoint
	if entry == "" {
		entry = "sh"
	}

	containerCfg := &container.Config{
		Image:      opts.Image,
		Labels:     map[string]string{LabelInstanceID: opts.InstanceID},
		Env:        opts.Env,
		WorkingDir: InstallMount,
		Entrypoint: []string{entry},
		Cmd:        []string{opts.ScriptPath},
	}

	hostCfg := &container.HostConfig{
		AutoRemove: true,
		Resources: container.Resources{
			Memory: installMemoryCap,
		},
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: opts.HostDir,
				Target: InstallMount,
			},
		},
	}

	resp, err := c.docker.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, NamePrefix+"install-"+opts.InstanceID)
	if err != nil {
		return "", fmt.Errorf("install container create: %w", err)
	}
	return resp.ID, nil
}

func (c *Client) StartContainer(ctx context.Context, containerID string) error {
	if err := c.docker.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("container start: %w", err)
	}
	return nil
}

// StopContainer asks the engine to stop the container, waiting up to
// timeoutSeconds before the engine escalates to SIGKILL.
func (c *Client) StopContainer(ctx context.Context, containerID string, timeoutSeconds int) error {
	if err := c.docker.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeoutSeconds}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("container stop: %w", err)
	}
	return nil
}

// KillContainer delivers a signal ("SIGKILL", "SIGINT", ...) to pid 1.
func (c *Client) KillContainer(ctx context.Context, containerID, signal string) error {
	if err := c.docker.ContainerKill(ctx, containerID, signal); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("container kill: %w", err)
	}
	return nil
}

func (c *Client) RemoveContainer(ctx context.Context, containerID string) error {
	err := c.docker.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("container remove: %w", err)
	}
	return nil
}

// WaitExit blocks until the container exits and returns its exit code.
// Safe with AutoRemove when called before StartContainer.
func (c *Client) WaitExit(ctx context.Context, containerID string) (int64, error) {
	waitCh, errCh := c.docker.ContainerWait(ctx, containerID, container.WaitConditionNextExit)
	select {
	case res := <-waitCh:
		if res.Error != nil {
			return -1, fmt.Errorf("container wait: %s", res.Error.Message)
		}
		return res.StatusCode, nil
	case err := <-errCh:
		return -1, fmt.Errorf("container wait: %w", err)
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// LogStream is one attached container log stream. TTY streams are raw;
// non-TTY streams are multiplexed and must go through Demux.
type LogStream struct {
	Reader io.ReadCloser
	TTY    bool
}

func (s *LogStream) Close() error { return s.Reader.Close() }

// StreamLogs follows a container's stdout+stderr with engine timestamps.
func (c *Client) StreamLogs(ctx context.Context, containerID string, follow bool) (*LogStream, error) {
	inspect, err := c.docker.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("container inspect: %w", err)
	}

	rc, err := c.docker.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Timestamps: true,
	})
	if err != nil {
		return nil, fmt.Errorf("container logs: %w", err)
	}
	return &LogStream{Reader: rc, TTY: inspect.Config != nil && inspect.Config.Tty}, nil
}

// Demux copies a multiplexed (non-TTY) stream into w, dropping the 8-byte
// frame headers the engine inserts.
func Demux(w io.Writer, r io.Reader) error {
	_, err := stdcopy.StdCopy(w, w, r)
	return err
}

// IsRunning reports whether the container currently runs. A missing
// container is simply not running.
func (c *Client) IsRunning(ctx context.Context, containerID string) (bool, error) {
	info, err := c.docker.ContainerInspect(ctx, containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return info.State != nil && info.State.Running, nil
}

// StatsOneShot samples the container's current resource usage without
// streaming.
func (c *Client) StatsOneShot(ctx context.Context, containerID string) (container.StatsResponse, error) {
	var stats container.StatsResponse
	resp, err := c.docker.ContainerStatsOneShot(ctx, containerID)
	if err != nil {
		return stats, fmt.Errorf("container stats: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return stats, fmt.Errorf("decode stats: %w", err)
	}
	return stats, nil
}

// Exec runs cmd inside the container and waits for it to finish, returning
// its combined output.
func (c *Client) Exec(ctx context.Context, containerID string, cmd []string) (string, error) {
	execResp, err := c.docker.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("exec create: %w", err)
	}

	attach, err := c.docker.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", fmt.Errorf("exec attach: %w", err)
	}
	defer attach.Close()

	var buf strings.Builder
	if _, err := stdcopy.StdCopy(&buf, &buf, attach.Reader); err != nil {
		return "", fmt.Errorf("exec read: %w", err)
	}

	inspect, err := c.docker.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return buf.String(), fmt.Errorf("exec inspect: %w", err)
	}
	if inspect.ExitCode != 0 {
		return buf.String(), fmt.Errorf("exec exited %d: %s", inspect.ExitCode, strings.TrimSpace(buf.String()))
	}
	return buf.String(), nil
}

// ManagedContainer is one engine container carrying the daemon's label.
type ManagedContainer struct {
	ContainerID string
	InstanceID  string
	Running     bool
}

// ListManaged returns every container labeled with an instance id,
// including stopped ones.
func (c *Client) ListManaged(ctx context.Context) ([]ManagedContainer, error) {
	f := filters.NewArgs(filters.Arg("label", LabelInstanceID))
	containers, err := c.docker.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return nil, fmt.Errorf("container list: %w", err)
	}

	var out []ManagedContainer
	for _, ctr := range containers {
		id := ctr.Labels[LabelInstanceID]
		if id == "" {
			continue
		}
		out = append(out, ManagedContainer{
			ContainerID: ctr.ID,
			InstanceID:  id,
			Running:     ctr.State == "running",
		})
	}
	return out, nil
}

// FindByName returns the container id for an exact engine-side name, or ""
// when absent.
func (c *Client) FindByName(ctx context.Context, name string) (string, error) {
	f := filters.NewArgs(filters.Arg("name", "^/"+name+"$"))
	containers, err := c.docker.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return "", fmt.Errorf("container list: %w", err)
	}
	for _, ctr := range containers {
		for _, n := range ctr.Names {
			if strings.TrimPrefix(n, "/") == name {
				return ctr.ID, nil
			}
		}
	}
	return "", nil
}
