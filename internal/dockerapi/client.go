package dockerapi

import (
	"context"
	"fmt"
	"io"
	"strings"

	dockercontainer "github.com/docker/docker/api/types/container"
	dockerimage "github.com/docker/docker/api/types/image"
	dockernetwork "github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"ing.wik/watchz/internal/logging"
)

// Engine is the operation surface the update engine needs from a
// container-engine-managed host. Connection handling, chunked
// response decoding, and API-version negotiation are all handled by the
// underlying client.Client transport rather than re-implemented here; see
// DESIGN.md for why that wrapping is idiomatic for this module rather than a
// hand-rolled socket client.
type Engine interface {
	Ping(ctx context.Context) error
	Version(ctx context.Context) (Version, error)
	List(ctx context.Context, includeStopped bool) ([]Container, error)
	InspectContainer(ctx context.Context, id string) (ContainerDetails, error)
	InspectImage(ctx context.Context, image string) (ImageInfo, error)
	PullImage(ctx context.Context, image string) error
	Stop(ctx context.Context, id string, timeoutSeconds int) error
	Remove(ctx context.Context, id string, removeVolumes bool) error
	RemoveImage(ctx context.Context, image string) error
	Create(ctx context.Context, name string, cfg ContainerConfig, host HostConfig, networks map[string]NetworkEndpoint) (string, error)
	Start(ctx context.Context, id string) error
	NetworkConnect(ctx context.Context, networkID, containerID string, aliases []string) error
	NetworkDisconnect(ctx context.Context, networkID, containerID string, force bool) error
	Close() error
}

// Client is the Engine implementation backed by the official engine SDK.
type Client struct {
	cli *client.Client
	log *logging.Logger
}

// New builds a client for the container engine at hostURI (empty for the
// environment default / local stream socket). It performs no I/O: the API
// version is negotiated on first use unless apiVersion pins it.
func New(hostURI, apiVersion string, log *logging.Logger) (*Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if hostURI != "" {
		opts = append(opts, client.WithHost(hostURI))
	}
	if apiVersion != "" {
		opts = append(opts, client.WithVersion(apiVersion))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("dockerapi: connect to engine: %w", err)
	}
	return &Client{cli: cli, log: log}, nil
}

// Close releases the client's idle connections.
func (c *Client) Close() error {
	return c.cli.Close()
}

// Ping verifies the engine socket is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.cli.Ping(ctx)
	if err != nil {
		return fmt.Errorf("dockerapi: ping: %w", err)
	}
	return nil
}

// Version returns the engine's reported version and negotiated API version.
func (c *Client) Version(ctx context.Context) (Version, error) {
	v, err := c.cli.ServerVersion(ctx)
	if err != nil {
		return Version{}, fmt.Errorf("dockerapi: version: %w", err)
	}
	return Version{
		Version:    v.Version,
		APIVersion: v.APIVersion,
		Os:         v.Os,
		Arch:       v.Arch,
	}, nil
}

// List returns all containers, optionally excluding stopped ones.
func (c *Client) List(ctx context.Context, includeStopped bool) ([]Container, error) {
	summaries, err := c.cli.ContainerList(ctx, dockercontainer.ListOptions{All: includeStopped})
	if err != nil {
		return nil, fmt.Errorf("dockerapi: list containers: %w", err)
	}

	out := make([]Container, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, convertSummary(s))
	}
	return out, nil
}

func convertSummary(s dockercontainer.Summary) Container {
	name := ""
	if len(s.Names) > 0 {
		name = strings.TrimPrefix(s.Names[0], "/")
	}
	return Container{
		ID:      s.ID,
		Name:    name,
		Image:   s.Image,
		ImageID: s.ImageID,
		State:   s.State,
		Status:  s.Status,
		Labels:  s.Labels,
		Created: s.Created,
	}
}

// InspectContainer returns the full recreate-relevant view of a container.
func (c *Client) InspectContainer(ctx context.Context, id string) (ContainerDetails, error) {
	inspect, err := c.cli.ContainerInspect(ctx, id)
	if err != nil {
		return ContainerDetails{}, fmt.Errorf("dockerapi: inspect container %s: %w", id, err)
	}

	details := ContainerDetails{
		ID:    inspect.ID,
		Name:  strings.TrimPrefix(inspect.Name, "/"),
		Image: inspect.Image,
	}
	if inspect.State != nil {
		details.State = inspect.State.Status
	}
	if inspect.Config != nil {
		details.Config = ContainerConfig{
			Hostname:         inspect.Config.Hostname,
			User:             inspect.Config.User,
			WorkingDir:       inspect.Config.WorkingDir,
			Image:            inspect.Config.Image,
			Env:              inspect.Config.Env,
			Cmd:              []string(inspect.Config.Cmd),
			Entrypoint:       []string(inspect.Config.Entrypoint),
			Labels:           inspect.Config.Labels,
			ExposedPorts:     convertExposedPorts(inspect.Config.ExposedPorts),
			AnonymousVolumes: inspect.Config.Volumes,
		}
	}
	if inspect.HostConfig != nil {
		details.HostConfigData = HostConfig{
			Binds: inspect.HostConfig.Binds,
			RestartPolicy: RestartPolicy{
				Name:              string(inspect.HostConfig.RestartPolicy.Name),
				MaximumRetryCount: inspect.HostConfig.RestartPolicy.MaximumRetryCount,
			},
			NetworkMode:     string(inspect.HostConfig.NetworkMode),
			Privileged:      inspect.HostConfig.Privileged,
			Links:           inspect.HostConfig.Links,
			AutoRemove:      inspect.HostConfig.AutoRemove,
			PublishAllPorts: inspect.HostConfig.PublishAllPorts,
			CapAdd:          []string(inspect.HostConfig.CapAdd),
			CapDrop:         []string(inspect.HostConfig.CapDrop),
			PortBindings:    convertPortBindings(inspect.HostConfig.PortBindings),
		}
	}
	if inspect.NetworkSettings != nil {
		details.Networks = make(map[string]NetworkEndpoint, len(inspect.NetworkSettings.Networks))
		for name, ep := range inspect.NetworkSettings.Networks {
			if ep == nil {
				continue
			}
			details.Networks[name] = NetworkEndpoint{
				NetworkID: ep.NetworkID,
				IPAddress: ep.IPAddress,
				Gateway:   ep.Gateway,
				IPPrefix:  ep.IPPrefixLen,
				Aliases:   ep.Aliases,
			}
		}
	}

	return details, nil
}

func convertExposedPorts(ports nat.PortSet) map[string]struct{} {
	if len(ports) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(ports))
	for p := range ports {
		out[string(p)] = struct{}{}
	}
	return out
}

func convertPortBindings(bindings nat.PortMap) map[string][]PortBinding {
	if len(bindings) == 0 {
		return nil
	}
	out := make(map[string][]PortBinding, len(bindings))
	for port, b := range bindings {
		list := make([]PortBinding, 0, len(b))
		for _, pb := range b {
			list = append(list, PortBinding{HostIP: pb.HostIP, HostPort: pb.HostPort})
		}
		out[string(port)] = list
	}
	return out
}

// InspectImage returns image metadata, including the registry-published
// repo digests needed for update comparison.
func (c *Client) InspectImage(ctx context.Context, image string) (ImageInfo, error) {
	inspect, err := c.cli.ImageInspect(ctx, image)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("dockerapi: inspect image %s: %w", image, err)
	}
	return ImageInfo{
		ID:          inspect.ID,
		RepoTags:    inspect.RepoTags,
		RepoDigests: inspect.RepoDigests,
		Created:     inspect.Created,
		Size:        inspect.Size,
	}, nil
}

// PullImage blocks until the engine finishes pulling image; any streamed
// progress is drained and discarded, matching spec.md's "streamed progress
// is discarded" requirement for this operation.
func (c *Client) PullImage(ctx context.Context, image string) error {
	reader, err := c.cli.ImagePull(ctx, image, dockerimage.PullOptions{})
	if err != nil {
		return fmt.Errorf("dockerapi: pull %s: %w", image, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("dockerapi: drain pull response for %s: %w", image, err)
	}
	return nil
}

// Stop stops a running container, giving it timeoutSeconds to exit cleanly.
func (c *Client) Stop(ctx context.Context, id string, timeoutSeconds int) error {
	timeout := timeoutSeconds
	if err := c.cli.ContainerStop(ctx, id, dockercontainer.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("dockerapi: stop %s: %w", id, err)
	}
	return nil
}

// Remove removes a stopped container.
func (c *Client) Remove(ctx context.Context, id string, removeVolumes bool) error {
	if err := c.cli.ContainerRemove(ctx, id, dockercontainer.RemoveOptions{RemoveVolumes: removeVolumes}); err != nil {
		return fmt.Errorf("dockerapi: remove %s: %w", id, err)
	}
	return nil
}

// RemoveImage removes a local image reference. It is used for the update
// engine's optional post-update cleanup of the image the old container used;
// an image still referenced by another container returns an engine error,
// which callers are expected to treat as non-fatal.
func (c *Client) RemoveImage(ctx context.Context, image string) error {
	if _, err := c.cli.ImageRemove(ctx, image, dockerimage.RemoveOptions{}); err != nil {
		return fmt.Errorf("dockerapi: remove image %s: %w", image, err)
	}
	return nil
}

// Create creates (but does not start) a new container named name,
// reproducing cfg/host/networks from an inspected ContainerDetails.
func (c *Client) Create(ctx context.Context, name string, cfg ContainerConfig, host HostConfig, networks map[string]NetworkEndpoint) (string, error) {
	containerCfg := &dockercontainer.Config{
		Hostname:   cfg.Hostname,
		User:       cfg.User,
		WorkingDir: cfg.WorkingDir,
		Image:      cfg.Image,
		Env:        cfg.Env,
		Cmd:        cfg.Cmd,
		Entrypoint: cfg.Entrypoint,
		Labels:     cfg.Labels,
		Volumes:    cfg.AnonymousVolumes,
	}
	if len(cfg.ExposedPorts) > 0 {
		ports := make(nat.PortSet, len(cfg.ExposedPorts))
		for p := range cfg.ExposedPorts {
			ports[nat.Port(p)] = struct{}{}
		}
		containerCfg.ExposedPorts = ports
	}
	// A container whose network mode names another container inherits its
	// network namespace; the engine rejects an explicit hostname in that case.
	if strings.HasPrefix(host.NetworkMode, "container:") {
		containerCfg.Hostname = ""
	}

	hostCfg := &dockercontainer.HostConfig{
		Binds:           host.Binds,
		RestartPolicy:   dockercontainer.RestartPolicy{Name: dockercontainer.RestartPolicyMode(host.RestartPolicy.Name), MaximumRetryCount: host.RestartPolicy.MaximumRetryCount},
		NetworkMode:     dockercontainer.NetworkMode(host.NetworkMode),
		Privileged:      host.Privileged,
		Links:           host.Links,
		AutoRemove:      host.AutoRemove,
		PublishAllPorts: host.PublishAllPorts,
		CapAdd:          host.CapAdd,
		CapDrop:         host.CapDrop,
	}
	if len(host.PortBindings) > 0 {
		bindings := make(nat.PortMap, len(host.PortBindings))
		for port, bs := range host.PortBindings {
			list := make([]nat.PortBinding, 0, len(bs))
			for _, b := range bs {
				list = append(list, nat.PortBinding{HostIP: b.HostIP, HostPort: b.HostPort})
			}
			bindings[nat.Port(port)] = list
		}
		hostCfg.PortBindings = bindings
	}

	// The create call accepts at most one network; reattachment of the
	// remainder happens afterward via NetworkConnect.
	netCfg := &dockernetwork.NetworkingConfig{}
	resp, err := c.cli.ContainerCreate(ctx, containerCfg, hostCfg, netCfg, nil, name)
	if err != nil {
		return "", fmt.Errorf("dockerapi: create %s: %w", name, err)
	}
	return resp.ID, nil
}

// Start starts a created container.
func (c *Client) Start(ctx context.Context, id string) error {
	if err := c.cli.ContainerStart(ctx, id, dockercontainer.StartOptions{}); err != nil {
		return fmt.Errorf("dockerapi: start %s: %w", id, err)
	}
	return nil
}

// NetworkConnect attaches containerID to networkID with aliases exactly as supplied; no filtering happens here.
func (c *Client) NetworkConnect(ctx context.Context, networkID, containerID string, aliases []string) error {
	ep := &dockernetwork.EndpointSettings{Aliases: aliases}
	if err := c.cli.NetworkConnect(ctx, networkID, containerID, ep); err != nil {
		return fmt.Errorf("dockerapi: connect %s to network %s: %w", containerID, networkID, err)
	}
	return nil
}

// NetworkDisconnect detaches containerID from networkID.
func (c *Client) NetworkDisconnect(ctx context.Context, networkID, containerID string, force bool) error {
	if err := c.cli.NetworkDisconnect(ctx, networkID, containerID, force); err != nil {
		return fmt.Errorf("dockerapi: disconnect %s from network %s: %w", containerID, networkID, err)
	}
	return nil
}
