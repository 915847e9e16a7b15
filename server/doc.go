// Package server exposes the compile service over HTTP.
//
// Every request passes through request identity, CORS, access logging and
// panic recovery. The compile, clippy and format routes are additionally
// gated by the admission controller, which is told how each request ended
// so it can start the matching rate-limit window. Errors are returned as
// JSON objects tagged with a "kind" field.
package server
