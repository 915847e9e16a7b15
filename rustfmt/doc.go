// Package rustfmt formats Rust source with the host's rustfmt binary.
//
// The source is fed on stdin and the formatted program read from stdout.
// rustfmt only parses its input and never expands macros or reads other
// files, so it runs on the host without a container, bounded by
// format.timeout_sec.
package rustfmt
