package sandbox

import (
	"go.uber.org/zap"

	"github.com/isdmx/playbuild/config"
)

// DockerFlavor drives the docker CLI.
var DockerFlavor = Flavor{Binary: "docker"}

// NewDockerRunner creates a ContainerRunner backed by docker
func NewDockerRunner(logger *zap.Logger, cfg *config.Config, opts ...Option) *ContainerRunner {
	return NewContainerRunner(logger, cfg, DockerFlavor, opts...)
}
