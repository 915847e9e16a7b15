// Package sandbox builds untrusted source in disposable containers.
//
// Each Run allocates a unique id and a private bind directory, writes the
// source into it, starts a container from the requested image with the
// directory mounted at the configured path, and waits for the build command
// to exit. The exit code decides the outcome: 0 is success and the outputs
// are read back, 101 is a user build failure, 137 means the host ran out of
// memory, and anything else is an infrastructure fault. The container and
// bind directory are removed on every path out of Run.
//
// Exec shares the same instance lifecycle for commands whose exit codes mean
// something else, such as clippy, where 101 only reports denied lints. It
// maps nothing but the out-of-memory kill and can read the source file back
// after the command rewrote it.
//
// Docker and Podman are supported through the same ContainerRunner; they
// differ only in CLI flags.
package sandbox
