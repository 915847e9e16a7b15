// Package compile runs one build request end to end: validation, cache
// lookup, sandbox build, artifact post-processing and cache insert.
//
// It is transport agnostic. The HTTP server and the MCP tool both admit the
// caller, hand a Request to Service.Compile and map the returned error with
// KindOf.
package compile
