// Package docker implements the sandbox port on the local Docker runtime.
//
// Every outcome of a run collapses into one of two categories: a normalized
// ExecResult (including non-zero exits and timeouts) or an adapter error for
// an unreachable runtime or a failed spawn. The worker branches on exactly
// that distinction.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/syla-platform/execution-service/internal/domain"
)

const truncationMarker = "...<truncated>"

// Client wraps the docker API client behind the domain Sandbox port.
type Client struct {
	api *client.Client
}

// New connects to the local docker daemon using the standard environment
// configuration (DOCKER_HOST etc).
func New() (*Client, error) {
	api, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("%w: create client: %v", domain.ErrSandbox, err)
	}
	return &Client{api: api}, nil
}

// Close releases the underlying API client.
func (c *Client) Close() error {
	if c.api != nil {
		return c.api.Close()
	}
	return nil
}

// Ping verifies the daemon is reachable, for startup and readiness checks.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.Ping(ctx)
	return err
}

// Run launches one container for the spec, waits for it, and returns the
// normalized result. hostCodeDir, when non-empty, is bind-mounted read-only
// at the working directory. The container is force-removed on every path.
func (c *Client) Run(ctx context.Context, name string, spec domain.ContainerSpec, hostCodeDir string) (domain.ExecResult, error) {
	start := time.Now()

	id, err := c.create(ctx, name, spec, hostCodeDir)
	if client.IsErrNotFound(err) {
		// Image not present locally; pull once and retry the create.
		if perr := c.pull(ctx, spec.Image); perr != nil {
			return domain.ExecResult{}, fmt.Errorf("%w: pull %s: %v", domain.ErrSandbox, spec.Image, perr)
		}
		id, err = c.create(ctx, name, spec, hostCodeDir)
	}
	if err != nil {
		return domain.ExecResult{}, fmt.Errorf("%w: create %s: %v", domain.ErrSandbox, name, err)
	}
	defer c.remove(id)

	if err := c.api.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return domain.ExecResult{}, fmt.Errorf("%w: start %s: %v", domain.ErrSandbox, name, err)
	}

	timeout := spec.TimeoutSeconds
	if timeout <= 0 {
		timeout = domain.DefaultTimeoutSeconds
	}
	timer := time.NewTimer(time.Duration(timeout) * time.Second)
	defer timer.Stop()

	statusCh, errCh := c.api.ContainerWait(ctx, id, container.WaitConditionNotRunning)

	var exitCode int
	select {
	case werr := <-errCh:
		if werr != nil {
			return domain.ExecResult{}, fmt.Errorf("%w: wait %s: %v", domain.ErrSandbox, name, werr)
		}
	case st := <-statusCh:
		exitCode = int(st.StatusCode)
	case <-timer.C:
		// Best-effort kill; the deferred remove tears the container down.
		if kerr := c.api.ContainerKill(context.WithoutCancel(ctx), id, "KILL"); kerr != nil {
			slog.Warn("kill after timeout failed", slog.String("container", name), slog.Any("error", kerr))
		}
		return domain.ExecResult{
			ExitCode:   -1,
			Stderr:     "Execution timed out",
			DurationMS: time.Since(start).Milliseconds(),
			TimedOut:   true,
		}, nil
	case <-ctx.Done():
		_ = c.api.ContainerKill(context.WithoutCancel(ctx), id, "KILL")
		return domain.ExecResult{}, fmt.Errorf("%w: wait %s: %v", domain.ErrSandbox, name, ctx.Err())
	}

	stdout, stderr, err := c.collectLogs(ctx, id)
	if err != nil {
		slog.Warn("log collection failed", slog.String("container", name), slog.Any("error", err))
	}

	return domain.ExecResult{
		ExitCode:   exitCode,
		Stdout:     truncateStream(stdout),
		Stderr:     truncateStream(stderr),
		DurationMS: time.Since(start).Milliseconds(),
	}, nil
}

func (c *Client) create(ctx context.Context, name string, spec domain.ContainerSpec, hostCodeDir string) (string, error) {
	cfg := &container.Config{
		Image:           spec.Image,
		Cmd:             strslice.StrSlice(spec.Argv),
		Env:             envSlice(spec.Env),
		WorkingDir:      spec.WorkingDir,
		NetworkDisabled: !spec.NetworkEnabled,
		Labels:          map[string]string{"syla.managed": "true"},
	}
	host := &container.HostConfig{
		Resources: container.Resources{
			Memory:   spec.MemoryLimitBytes,
			NanoCPUs: int64(spec.CPULimitCores * 1e9),
		},
	}
	if !spec.NetworkEnabled {
		host.NetworkMode = "none"
	}
	if hostCodeDir != "" {
		host.Mounts = []mount.Mount{{
			Type:     mount.TypeBind,
			Source:   hostCodeDir,
			Target:   spec.WorkingDir,
			ReadOnly: true,
		}}
	}
	resp, err := c.api.ContainerCreate(ctx, cfg, host, nil, nil, name)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) pull(ctx context.Context, ref string) error {
	rc, err := c.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	// The pull stream must be drained for the pull to complete.
	_, err = io.Copy(io.Discard, rc)
	return err
}

// collectLogs demultiplexes the container's log stream into separate stdout
// and stderr captures.
func (c *Client) collectLogs(ctx context.Context, id string) (string, string, error) {
	rc, err := c.api.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", err
	}
	defer func() { _ = rc.Close() }()
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		return stdout.String(), stderr.String(), err
	}
	return stdout.String(), stderr.String(), nil
}

func (c *Client) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		slog.Warn("container remove failed", slog.String("container_id", id), slog.Any("error", err))
	}
}

// envSlice renders an environment map as sorted K=V pairs.
func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// truncateStream caps a captured stream at the configured maximum, appending
// a marker when data was dropped.
func truncateStream(s string) string {
	if len(s) <= domain.MaxStreamBytes {
		return s
	}
	return s[:domain.MaxStreamBytes] + truncationMarker
}
