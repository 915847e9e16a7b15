// Package admission decides whether a client may start a build.
//
// Each client may have one request in flight. When a request completes the
// client is locked out for a window whose length depends on how the request
// ended, and an overloaded sandbox pauses admissions for everyone for a short
// cool-down.
package admission
