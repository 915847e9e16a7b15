// Package mcpserver exposes the compile pipeline over the Model Context
// Protocol.
//
// It registers a single compile_bevy tool with the mark3labs/mcp-go server.
// Tool calls go through the same admission controller as HTTP requests,
// under the fixed client identity "mcp", so MCP callers share one in-flight
// slot and one rate-limit window.
//
// The server supports stdio and streamable HTTP transports as selected by
// mcp.transport in the application configuration.
//
// Usage:
//
//	srv, err := mcpserver.New(cfg, logger, service, controller)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = srv.ServeStdio() // or srv.ServeHTTP()
package mcpserver
