// Package dockerapi is the engine client: it talks to the local
// container-engine socket and exposes the operation surface the update
// engine needs, translating the engine's own types into this module's
// domain model.
package dockerapi

// Container is the listing view of a running or stopped workload.
type Container struct {
	ID      string
	Name    string
	Image   string
	ImageID string
	State   string
	Status  string
	Labels  map[string]string
	Created int64
}

// PortBinding is one host-side binding for a container port.
type PortBinding struct {
	HostIP   string
	HostPort string
}

// NetworkEndpoint describes a container's attachment to one network.
type NetworkEndpoint struct {
	NetworkID  string
	IPAddress  string
	Gateway    string
	IPPrefix   int
	Aliases    []string
}

// ContainerConfig is the subset of a container's create-time configuration
// that must survive a recreate.
type ContainerConfig struct {
	Hostname         string
	User             string
	WorkingDir       string
	Image            string
	Env              []string
	Cmd              []string
	Entrypoint       []string
	Labels           map[string]string
	ExposedPorts     map[string]struct{}
	AnonymousVolumes map[string]struct{}
}

// HostConfig is the subset of host-level configuration that must survive a recreate.
type HostConfig struct {
	Binds           []string
	PortBindings    map[string][]PortBinding
	RestartPolicy   RestartPolicy
	NetworkMode     string
	Privileged      bool
	Links           []string
	AutoRemove      bool
	PublishAllPorts bool
	CapAdd          []string
	CapDrop         []string
}

// RestartPolicy mirrors the engine's restart policy shape.
type RestartPolicy struct {
	Name              string
	MaximumRetryCount int
}

// ContainerDetails is the full inspect view, sufficient to recreate a
// container equivalently with a new image.
type ContainerDetails struct {
	ID             string
	Name           string
	Image          string
	Config         ContainerConfig
	HostConfigData HostConfig
	State          string
	Networks       map[string]NetworkEndpoint
}

// ImageInfo is the result of inspecting an image.
type ImageInfo struct {
	ID         string
	RepoTags   []string
	RepoDigests []string
	Created    string
	Size       int64
}

// Version is the engine's reported version and negotiated API version.
type Version struct {
	Version    string
	APIVersion string
	Os         string
	Arch       string
}
