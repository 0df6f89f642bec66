package docker

import (
	"context"
	"fmt"
	"io"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/thatjpcsguy/cappit/internal/errors"
	"github.com/thatjpcsguy/cappit/internal/logging"
)

// API is the subset of the Docker Engine client cappit uses
type API interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ImageInspect(ctx context.Context, imageID string, opts ...client.ImageInspectOption) (image.InspectResponse, error)
	Close() error
}

// ContainerView is a challenge container as seen by the runtime
type ContainerView struct {
	ID        string
	Name      string // full container name, e.g. cappit_pwn1
	Challenge string // Name without the prefix
	Status    string // running, exited, created, paused, ...
	HostPort  int    // 0 when no port is published
}

// Running reports whether the container is running
func (v ContainerView) Running() bool {
	return v.Status == "running"
}

// Client talks to the Docker daemon about challenge containers
type Client struct {
	api           API
	prefix        string
	containerPort int
}

// NewClient connects to the daemon from the environment (DOCKER_HOST etc.)
func NewClient(prefix string, containerPort int) (*Client, error) {
	api, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, errors.RuntimeUnreachable("client setup", err)
	}

	return NewClientWithAPI(api, prefix, containerPort), nil
}

// NewClientWithAPI wraps an existing API implementation
func NewClientWithAPI(api API, prefix string, containerPort int) *Client {
	return &Client{api: api, prefix: prefix, containerPort: containerPort}
}

// Close releases the daemon connection
func (c *Client) Close() error {
	return c.api.Close()
}

// ContainerName returns the container name for a challenge
func (c *Client) ContainerName(challenge string) string {
	return c.prefix + challenge
}

// ListContainers lists challenge containers. all includes stopped ones; a
// non-empty status restricts the result to that runtime state.
func (c *Client) ListContainers(ctx context.Context, all bool, status string) ([]ContainerView, error) {
	filterArgs := filters.NewArgs()
	filterArgs.Add("name", c.prefix)
	if status != "" {
		filterArgs.Add("status", status)
	}

	containers, err := c.api.ContainerList(ctx, container.ListOptions{
		All:     all,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, errors.RuntimeUnreachable("list", err)
	}

	views := make([]ContainerView, 0, len(containers))
	for _, ctr := range containers {
		name := containerName(ctr)
		// the daemon's name filter is a substring match
		if !strings.HasPrefix(name, c.prefix) {
			continue
		}

		views = append(views, ContainerView{
			ID:        ctr.ID,
			Name:      name,
			Challenge: strings.TrimPrefix(name, c.prefix),
			Status:    string(ctr.State),
			HostPort:  c.hostPort(ctr),
		})
	}

	logging.Log.WithField("count", len(views)).Debug("listed challenge containers")
	return views, nil
}

// Start starts an existing challenge container
func (c *Client) Start(ctx context.Context, challenge string) error {
	name := c.ContainerName(challenge)
	logging.Challenge(challenge).Debug("starting container")

	if err := c.api.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return errors.RuntimeUnreachable("start", err)
	}
	return nil
}

// Stop stops a running container
func (c *Client) Stop(ctx context.Context, id string) error {
	logging.Log.WithField("container", id).Debug("stopping container")

	if err := c.api.ContainerStop(ctx, id, container.StopOptions{}); err != nil {
		return errors.RuntimeUnreachable("stop", err)
	}
	return nil
}

// Remove removes a container. A container that no longer exists counts as removed.
func (c *Client) Remove(ctx context.Context, id string, force bool) error {
	logging.Log.WithField("container", id).Debug("removing container")

	err := c.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: force})
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil
		}
		return errors.RuntimeUnreachable("remove", err)
	}
	return nil
}

// ImageExists reports whether an image is present locally
func (c *Client) ImageExists(ctx context.Context, name string) (bool, error) {
	_, err := c.api.ImageInspect(ctx, name)
	if err == nil {
		return true, nil
	}
	if cerrdefs.IsNotFound(err) {
		return false, nil
	}
	return false, errors.RuntimeUnreachable("image inspect", err)
}

// Logs copies a container's output to w
func (c *Client) Logs(ctx context.Context, id string, w io.Writer, follow bool, tail string) error {
	reader, err := c.api.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Tail:       tail,
	})
	if err != nil {
		return errors.RuntimeUnreachable("logs", err)
	}
	defer func() { _ = reader.Close() }()

	if _, err := stdcopy.StdCopy(w, w, reader); err != nil {
		return fmt.Errorf("failed to read logs: %w", err)
	}
	return nil
}

// hostPort returns the public port bound to the challenge port, falling back
// to the first published port.
func (c *Client) hostPort(ctr container.Summary) int {
	fallback := 0
	for _, p := range ctr.Ports {
		if p.PublicPort == 0 {
			continue
		}
		if int(p.PrivatePort) == c.containerPort {
			return int(p.PublicPort)
		}
		if fallback == 0 {
			fallback = int(p.PublicPort)
		}
	}
	return fallback
}

func containerName(ctr container.Summary) string {
	if len(ctr.Names) == 0 {
		return ""
	}
	return strings.TrimPrefix(ctr.Names[0], "/")
}
