package sandbox

import (
	"go.uber.org/zap"

	"github.com/isdmx/playbuild/config"
)

// PodmanFlavor drives the podman CLI. Images are never pulled at build time
// and the bind directory is relabeled for SELinux hosts.
var PodmanFlavor = Flavor{
	Binary:       "podman",
	ExtraRunArgs: []string{"--pull", "never", "--quiet"},
	VolumeSuffix: ":z",
}

// NewPodmanRunner creates a ContainerRunner backed by podman
func NewPodmanRunner(logger *zap.Logger, cfg *config.Config, opts ...Option) *ContainerRunner {
	return NewContainerRunner(logger, cfg, PodmanFlavor, opts...)
}
