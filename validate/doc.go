// Package validate screens user source before any build work starts.
//
// The filter rejects empty or non-UTF-8 bodies and any source containing a
// construct from a fixed denylist of compile-time file inclusion and asset
// embedding macros, which would otherwise let a program read the sandbox
// filesystem at build time.
package validate
