// Package docker runs pipeline step commands in throwaway containers on
// the host Docker daemon.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"

	"pipeliner/internal/apperrors"
	"pipeliner/internal/pipeline"
)

// Executor implements executor.Executor using Docker. Each command gets
// a fresh container with the run workspace bind-mounted at the
// workspace target path; the container is removed after the command
// exits.
type Executor struct {
	client          *client.Client
	workspaceTarget string
	defaultTimeout  time.Duration
}

// NewExecutor connects to the Docker daemon using the standard
// environment variables.
func NewExecutor(cfg Config) (*Executor, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	workspaceTarget := cfg.WorkspaceTarget
	if workspaceTarget == "" {
		workspaceTarget = "/workspace"
	}
	defaultTimeout := cfg.DefaultTimeout
	if defaultTimeout <= 0 {
		defaultTimeout = 15 * time.Minute
	}

	return &Executor{
		client:          dockerClient,
		workspaceTarget: workspaceTarget,
		defaultTimeout:  defaultTimeout,
	}, nil
}

// RunCommand pulls the image if needed, runs the script in a fresh
// container and returns its exit code and combined output.
func (e *Executor) RunCommand(ctx context.Context, cmd pipeline.Command) (*pipeline.CommandResult, error) {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Pull with a detached context so the command timeout doesn't abort
	// a slow first pull halfway through.
	if err := e.pullImageIfNeeded(context.WithoutCancel(ctx), cmd.Image); err != nil {
		return nil, apperrors.Internal("docker.pullImage", err)
	}

	containerID, err := e.createContainer(runCtx, cmd)
	if err != nil {
		return nil, apperrors.Internal("docker.createContainer", err)
	}
	defer e.removeContainer(context.WithoutCancel(ctx), containerID)

	if err := e.client.ContainerStart(runCtx, containerID, container.StartOptions{}); err != nil {
		return nil, apperrors.Internal("docker.startContainer", err)
	}

	exitCode, waitErr := e.waitForExit(runCtx, containerID)
	output := e.collectLogs(context.WithoutCancel(ctx), containerID)

	if waitErr != nil {
		if runCtx.Err() != nil {
			slog.Warn("Command timed out in container", "image", cmd.Image, "timeout", timeout)
			return &pipeline.CommandResult{ExitCode: -1, Output: output}, nil
		}
		return nil, apperrors.Internal("docker.waitContainer", waitErr)
	}

	return &pipeline.CommandResult{ExitCode: exitCode, Output: output}, nil
}

// Ready checks if the Docker daemon is reachable and responsive.
func (e *Executor) Ready(ctx context.Context) error {
	_, err := e.client.Ping(ctx)
	return err
}

// Close releases the Docker client.
func (e *Executor) Close() error {
	return e.client.Close()
}

func (e *Executor) createContainer(ctx context.Context, cmd pipeline.Command) (string, error) {
	containerConfig := &container.Config{
		Image:      cmd.Image,
		Cmd:        []string{"/bin/sh", "-c", cmd.Script},
		Env:        cmd.Env,
		WorkingDir: e.workspaceTarget,
		Labels: map[string]string{
			"managed-by": "pipeline-service",
		},
	}

	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: cmd.Dir,
				Target: e.workspaceTarget,
			},
		},
	}

	resp, err := e.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (e *Executor) waitForExit(ctx context.Context, containerID string) (int, error) {
	statusCh, errCh := e.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case err := <-errCh:
		return -1, err
	case status := <-statusCh:
		if status.Error != nil {
			return int(status.StatusCode), fmt.Errorf("%s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	}
}

// collectLogs reads the container's combined output after it has exited.
// Docker multiplexes stdout and stderr with an 8 byte frame header.
func (e *Executor) collectLogs(ctx context.Context, containerID string) string {
	logs, err := e.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		slog.Warn("Failed to read container logs", "error", err)
		return ""
	}
	defer logs.Close()

	var b strings.Builder
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(logs, header); err != nil {
			break
		}
		size := int(header[4])<<24 | int(header[5])<<16 | int(header[6])<<8 | int(header[7])
		if size == 0 {
			continue
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(logs, payload); err != nil {
			break
		}
		b.Write(payload)
	}
	return b.String()
}

func (e *Executor) pullImageIfNeeded(ctx context.Context, imageName string) error {
	_, err := e.client.ImageInspect(ctx, imageName)
	if err == nil {
		return nil
	}

	slog.Info("Pulling image", "image", imageName)
	reader, err := e.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

func (e *Executor) removeContainer(ctx context.Context, containerID string) {
	stopTimeout := 10
	_ = e.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &stopTimeout})
	_ = e.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}
