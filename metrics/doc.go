// Package metrics defines the compile service's observability hooks and a
// Prometheus implementation served from a private registry.
package metrics
