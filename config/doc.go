// Package config provides application configuration management.
//
// The config package loads the compile service configuration from a YAML
// file (config.yaml in the working directory or ./config) and from
// PLAYBUILD_* environment variables, applies defaults for every key, and
// validates the result. It covers the HTTP listener, the optional MCP
// transport, sandbox resource limits, the build cache, admission windows,
// the source denylist, and logging.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Listening on %s\n", cfg.Server.ListenAddress)
package config
