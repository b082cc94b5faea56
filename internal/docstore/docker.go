package docstore

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

const (
	DefaultImage         = "mongo:7"
	DefaultContainerName = "skillsift-mongo"
	DefaultPort          = "27017"
	ContainerPort        = "27017/tcp"
	DataDir              = "/data/db"
	Label                = "skillsift-mongo"
)

// ContainerStatus represents the state of the local MongoDB container.
type ContainerStatus string

const (
	StatusRunning  ContainerStatus = "running"
	StatusStopped  ContainerStatus = "stopped"
	StatusNotFound ContainerStatus = "not_found"
	StatusStarting ContainerStatus = "starting"
)

// containerState is one observation of the managed container.
type containerState struct {
	status ContainerStatus
	id     string
}

// DockerManager drives the lifecycle of the local development MongoDB.
type DockerManager struct {
	cli      *client.Client
	name     string
	image    string
	dataPath string // host path mounted at /data/db
	port     string
	labels   map[string]string
}

// DockerConfig holds configuration for the Docker manager.
type DockerConfig struct {
	ContainerName string
	Image         string
	DataPath      string
	HostPort      string
	Labels        map[string]string
}

// NewDockerManager creates a Docker manager for the local MongoDB.
func NewDockerManager(cfg DockerConfig) (*DockerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	m := &DockerManager{
		cli:      cli,
		name:     cfg.ContainerName,
		image:    cfg.Image,
		dataPath: cfg.DataPath,
		port:     cfg.HostPort,
		labels:   map[string]string{Label: "true"},
	}
	if m.name == "" {
		m.name = DefaultContainerName
	}
	if m.image == "" {
		m.image = DefaultImage
	}
	if m.port == "" {
		m.port = DefaultPort
	}
	for k, v := range cfg.Labels {
		m.labels[k] = v
	}
	return m, nil
}

// Close closes the Docker client.
func (m *DockerManager) Close() error {
	return m.cli.Close()
}

// URI returns the connection string for the local container.
func (m *DockerManager) URI() string {
	return fmt.Sprintf("mongodb://localhost:%s", m.port)
}

// Status returns the current container status.
func (m *DockerManager) Status(ctx context.Context) (ContainerStatus, error) {
	state, err := m.inspect(ctx)
	if err != nil {
		return "", err
	}
	return state.status, nil
}

// Start brings the container up: a running container is left alone, a
// stopped one is restarted, and a missing one is created. Blocks until
// mongod accepts connections.
func (m *DockerManager) Start(ctx context.Context) error {
	if _, err := m.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker is not running: %w", err)
	}

	state, err := m.inspect(ctx)
	if err != nil {
		return err
	}

	switch state.status {
	case StatusRunning:
		return nil
	case StatusStopped:
		if err := m.cli.ContainerStart(ctx, state.id, container.StartOptions{}); err != nil {
			return fmt.Errorf("failed to start existing container: %w", err)
		}
	case StatusNotFound:
		if err := m.create(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("container in unexpected state: %s", state.status)
	}

	return m.awaitReady(ctx, 30*time.Second)
}

// Stop stops the container, preserving its data.
func (m *DockerManager) Stop(ctx context.Context) error {
	state, err := m.inspect(ctx)
	if err != nil || state.status == StatusNotFound {
		return err
	}

	graceSecs := 10
	if err := m.cli.ContainerStop(ctx, state.id, container.StopOptions{Timeout: &graceSecs}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// Remove stops and removes the container. The data mount on the host is
// left in place.
func (m *DockerManager) Remove(ctx context.Context) error {
	state, err := m.inspect(ctx)
	if err != nil || state.status == StatusNotFound {
		return err
	}

	if state.status == StatusRunning {
		if err := m.Stop(ctx); err != nil {
			return err
		}
	}

	err = m.cli.ContainerRemove(ctx, state.id, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// inspect locates the managed container by name and maps the engine's
// state string onto ContainerStatus.
func (m *DockerManager) inspect(ctx context.Context) (containerState, error) {
	byName := filters.NewArgs(filters.Arg("name", m.name))
	found, err := m.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: byName})
	if err != nil {
		return containerState{}, fmt.Errorf("failed to list containers: %w", err)
	}
	if len(found) == 0 {
		return containerState{status: StatusNotFound}, nil
	}

	state := containerState{id: found[0].ID}
	switch found[0].State {
	case "running":
		state.status = StatusRunning
	case "exited", "dead":
		state.status = StatusStopped
	case "created", "restarting":
		state.status = StatusStarting
	default:
		state.status = ContainerStatus(found[0].State)
	}
	return state, nil
}

// create pulls the image if needed and creates and starts a fresh
// container with the port published on loopback only.
func (m *DockerManager) create(ctx context.Context) error {
	if err := m.pullIfMissing(ctx); err != nil {
		return err
	}

	spec := &container.Config{
		Image:        m.image,
		Labels:       m.labels,
		ExposedPorts: nat.PortSet{ContainerPort: struct{}{}},
	}
	host := &container.HostConfig{
		PortBindings: nat.PortMap{
			ContainerPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: m.port}},
		},
	}
	if m.dataPath != "" {
		host.Mounts = []mount.Mount{{Type: mount.TypeBind, Source: m.dataPath, Target: DataDir}}
	}

	created, err := m.cli.ContainerCreate(ctx, spec, host, nil, nil, m.name)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	if err := m.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		_ = m.cli.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

// awaitReady dials the mongod port once a second until it accepts a
// connection or the timeout lapses.
func (m *DockerManager) awaitReady(ctx context.Context, timeout time.Duration) error {
	addr := net.JoinHostPort("localhost", m.port)
	dialer := &net.Dialer{Timeout: 2 * time.Second}

	return retry.Do(
		func() error {
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				return err
			}
			return conn.Close()
		},
		retry.Context(ctx),
		retry.Attempts(uint(timeout.Seconds())),
		retry.Delay(time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

func (m *DockerManager) pullIfMissing(ctx context.Context) error {
	if _, err := m.cli.ImageInspect(ctx, m.image); err == nil {
		return nil
	}

	reader, err := m.cli.ImagePull(ctx, m.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	// drain so the pull completes
	_, err = io.Copy(io.Discard, reader)
	return err
}
