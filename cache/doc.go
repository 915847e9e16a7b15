// Package cache stores finished builds keyed by a hash of the normalized
// source plus the toolchain version and channel.
//
// Source is first reduced by Minify so that comment and whitespace edits map
// to the same key. Entries are single files holding the compressed artifact
// followed by a 16-byte trailer with the wasm and js lengths, both big-endian.
package cache
