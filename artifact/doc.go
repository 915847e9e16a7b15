// Package artifact turns raw build outputs into the response body.
//
// The wasm-bindgen glue script is rewritten so it can run as the body of an
// async function rather than as an ES module, then the wasm module, glue and
// compiler stderr are concatenated and gzip-compressed. Clients slice the
// decompressed body using the wasm and js lengths sent alongside it.
package artifact
