// Package toolchain resolves the sandbox image and source adaptation for a
// Bevy version and Rust channel.
//
// Versions and channels carry a fixed numeric code that the build cache
// folds into its keys. Codes are append-only: adding a version never changes
// the key of a previously cached build.
package toolchain
