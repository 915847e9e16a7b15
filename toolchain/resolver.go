package toolchain

import (
	"fmt"
	"strings"

	"github.com/isdmx/playbuild/config"
)

// Resolver maps a version/channel pair to the sandbox image that builds it
// and supplies the request defaults.
type Resolver struct {
	imageTemplate  string
	defaultVersion Version
	defaultChannel Channel
}

// NewResolver creates a Resolver from the sandbox and toolchain configuration.
func NewResolver(cfg *config.Config) (*Resolver, error) {
	version, err := ParseVersion(cfg.Toolchain.DefaultVersion)
	if err != nil {
		return nil, fmt.Errorf("toolchain.default_version: %w", err)
	}
	channel, err := ParseChannel(cfg.Toolchain.DefaultChannel)
	if err != nil {
		return nil, fmt.Errorf("toolchain.default_channel: %w", err)
	}
	return &Resolver{
		imageTemplate:  cfg.Sandbox.ImageTemplate,
		defaultVersion: version,
		defaultChannel: channel,
	}, nil
}

// ImageFor returns the image reference for the given version and channel.
func (r *Resolver) ImageFor(version Version, channel Channel) string {
	return strings.NewReplacer(
		"{version}", string(version),
		"{channel}", string(channel),
	).Replace(r.imageTemplate)
}

// Defaults returns the version and channel used when a request names neither.
func (r *Resolver) Defaults() (Version, Channel) {
	return r.defaultVersion, r.defaultChannel
}

// Resolve parses optional version and channel strings, substituting the
// configured defaults for empty values.
func (r *Resolver) Resolve(version, channel string) (Version, Channel, error) {
	v, c := r.defaultVersion, r.defaultChannel
	var err error
	if version != "" {
		if v, err = ParseVersion(version); err != nil {
			return "", "", err
		}
	}
	if channel != "" {
		if c, err = ParseChannel(channel); err != nil {
			return "", "", err
		}
	}
	return v, c, nil
}
