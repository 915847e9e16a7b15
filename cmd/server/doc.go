// Package main is the entry point for the playbuild compile server.
//
// The server accepts single-file Bevy programs over HTTP, builds them to
// WebAssembly inside throwaway docker or podman containers and returns the
// gzip-compressed wasm, JavaScript glue and compiler output. Finished builds
// are cached on disk by a hash of the minified source, version and channel.
// The same pipeline is optionally exposed as an MCP tool over stdio or HTTP.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
