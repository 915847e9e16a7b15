package toolchain

import (
	"fmt"
	"strings"
)

// Version is the Bevy release a program is compiled against.
type Version string

// Channel is the Rust release track used inside the sandbox image.
type Channel string

// Supported versions. Add new versions at the end of versionCodes.
const (
	VersionMain  Version = "main"
	VersionV0_10 Version = "0.10"
	VersionV0_11 Version = "0.11"
	VersionV0_12 Version = "0.12"
	VersionV0_13 Version = "0.13"
	VersionV0_14 Version = "0.14"
	VersionV0_15 Version = "0.15"
)

// Supported channels.
const (
	ChannelStable  Channel = "stable"
	ChannelNightly Channel = "nightly"
)

// versionCodes is the numeric encoding folded into cache keys. A code, once
// assigned, never changes; new versions take the next unused number.
var versionCodes = map[Version]uint16{
	VersionMain:  0,
	VersionV0_10: 1,
	VersionV0_11: 2,
	VersionV0_12: 3,
	VersionV0_13: 4,
	VersionV0_14: 5,
	VersionV0_15: 6,
}

var channelCodes = map[Channel]uint8{
	ChannelStable:  0,
	ChannelNightly: 1,
}

// Versions returns every supported version ordered by code.
func Versions() []Version {
	out := make([]Version, len(versionCodes))
	for v, code := range versionCodes {
		out[code] = v
	}
	return out
}

// Channels returns every supported channel ordered by code.
func Channels() []Channel {
	out := make([]Channel, len(channelCodes))
	for c, code := range channelCodes {
		out[code] = c
	}
	return out
}

// ParseVersion parses a version name such as "0.14" or "main".
func ParseVersion(s string) (Version, error) {
	v := Version(strings.TrimSpace(s))
	if _, ok := versionCodes[v]; !ok {
		return "", fmt.Errorf("unsupported version: %q", s)
	}
	return v, nil
}

// ParseChannel parses "stable" or "nightly".
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := channelCodes[c]; !ok {
		return "", fmt.Errorf("unsupported channel: %q", s)
	}
	return c, nil
}

// Code returns the stable numeric encoding of v. It panics on an
// unsupported version, which can only be constructed by bypassing ParseVersion.
func (v Version) Code() uint16 {
	code, ok := versionCodes[v]
	if !ok {
		panic(fmt.Sprintf("toolchain: no code for version %q", string(v)))
	}
	return code
}

func (v Version) String() string { return string(v) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Code returns the stable numeric encoding of c.
func (c Channel) Code() uint8 {
	code, ok := channelCodes[c]
	if !ok {
		panic(fmt.Sprintf("toolchain: no code for channel %q", string(c)))
	}
	return code
}

func (c Channel) String() string { return string(c) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Channel) UnmarshalText(text []byte) error {
	parsed, err := ParseChannel(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
