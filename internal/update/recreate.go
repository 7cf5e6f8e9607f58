package update

import (
	"strings"

	"ing.wik/watchz/internal/dockerapi"
)

// recreateConfig builds the engine-facing config/host-config pair for a
// recreated container from its inspected ContainerDetails, substituting
// newImage for the running image. Hostname/Domainname are cleared when the
// container's network mode names another container, since that network
// namespace supplies its own hostname and the engine rejects both being set.
func recreateConfig(details dockerapi.ContainerDetails, newImage string) (dockerapi.ContainerConfig, dockerapi.HostConfig) {
	cfg := details.Config
	cfg.Image = newImage

	if strings.HasPrefix(details.HostConfigData.NetworkMode, "container:") {
		cfg.Hostname = ""
	}

	return cfg, details.HostConfigData
}
