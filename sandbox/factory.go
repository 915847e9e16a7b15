package sandbox

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/playbuild/config"
	"github.com/isdmx/playbuild/metrics"
)

// NewRunner creates the runner selected by sandbox.backend
func NewRunner(logger *zap.Logger, cfg *config.Config, rec metrics.Recorder) (Runner, error) {
	switch cfg.Sandbox.Backend {
	case "docker":
		return NewDockerRunner(logger, cfg, WithRecorder(rec)), nil
	case "podman":
		return NewPodmanRunner(logger, cfg, WithRecorder(rec)), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Sandbox.Backend)
	}
}
