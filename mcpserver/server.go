package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/playbuild/admission"
	"github.com/isdmx/playbuild/artifact"
	"github.com/isdmx/playbuild/compile"
	"github.com/isdmx/playbuild/config"
	"github.com/isdmx/playbuild/logger"
	"github.com/isdmx/playbuild/sandbox"
	"github.com/isdmx/playbuild/toolchain"
	"github.com/isdmx/playbuild/validate"
)

// ToolName is the name of the single tool this server registers.
const ToolName = "compile_bevy"

// ClientID is the admission identity shared by every MCP caller.
const ClientID = "mcp"

// MCPServer exposes the compile pipeline as an MCP tool.
type MCPServer struct {
	config     *config.Config
	logger     *zap.Logger
	service    *compile.Service
	admission  *admission.Controller
	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

// ToolResult is the JSON text returned for a successful build.
type ToolResult struct {
	CacheStatus string `json:"cache_status"`
	Version     string `json:"version"`
	Channel     string `json:"channel"`
	WasmBase64  string `json:"wasm_base64"`
	JS          string `json:"js"`
	Stderr      string `json:"stderr"`
}

// ToolError is the JSON text returned with IsError set.
type ToolError struct {
	Kind      compile.Kind `json:"kind"`
	TimeLeft  int          `json:"time_left,omitempty"`
	Word      string       `json:"word,omitempty"`
	Stdout    string       `json:"stdout,omitempty"`
	Stderr    string       `json:"stderr,omitempty"`
	Reference string       `json:"reference,omitempty"`
}

// New creates a new MCPServer
func New(cfg *config.Config, log *zap.Logger, service *compile.Service, ctrl *admission.Controller) (*MCPServer, error) {
	s := &MCPServer{
		config:    cfg,
		logger:    log,
		service:   service,
		admission: ctrl,
	}

	log.Info("MCP surface configured",
		zap.String("mcp.transport", cfg.MCP.Transport),
		zap.Int("mcp.http_port", cfg.MCP.HTTPPort),
		zap.String("sandbox.backend", cfg.Sandbox.Backend),
		zap.Int("sandbox.timeout_sec", cfg.Sandbox.TimeoutSec))

	s.mcpServer = server.NewMCPServer("playbuild", "Compiles Bevy programs to WebAssembly")
	s.registerCompileTool()
	if cfg.MCP.Transport == config.MCPTransportHTTP {
		s.httpServer = server.NewStreamableHTTPServer(s.mcpServer)
	}

	return s, nil
}

func (s *MCPServer) registerCompileTool() {
	versions := make([]string, 0, len(toolchain.Versions()))
	for _, v := range toolchain.Versions() {
		versions = append(versions, v.String())
	}
	channels := make([]string, 0, len(toolchain.Channels()))
	for _, c := range toolchain.Channels() {
		channels = append(channels, c.String())
	}

	tool := mcp.Tool{
		Name:        ToolName,
		Description: "Compile a single-file Bevy program to wasm and its JavaScript glue",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Rust source of main.rs",
				},
				"version": map[string]any{
					"type":        "string",
					"description": "Bevy version, defaults to the server default",
					"enum":        versions,
				},
				"channel": map[string]any{
					"type":        "string",
					"description": "Rust channel, defaults to the server default",
					"enum":        channels,
				},
			},
			Required: []string{"code"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleCompile)
}

func (s *MCPServer) handleCompile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}

	id := uuid.NewString()
	log := s.logger.With(logger.RequestID(id), logger.PeerIP(ClientID))

	if err := s.admission.Admit(ClientID); err != nil {
		log.Info("Tool call refused", zap.Error(err))
		return s.errorResult(id, err), nil
	}
	class := admission.ClassFailure
	defer func() {
		s.admission.Complete(ClientID, class)
	}()

	result, err := s.service.Compile(ctx, compile.Request{
		ID:         id,
		PeerIP:     ClientID,
		Code:       code,
		Version:    request.GetString("version", ""),
		Channel:    request.GetString("channel", ""),
		ReceivedAt: time.Now(),
	})
	if err != nil {
		if errors.Is(err, sandbox.ErrOverloaded) {
			s.admission.TriggerCooldown()
		}
		kind := compile.KindOf(err)
		class = kind.Class()
		if kind == compile.KindInternal {
			log.Error("Tool compile failed", zap.Error(err))
		}
		return s.errorResult(id, err), nil
	}

	text, err := s.successText(result)
	if err != nil {
		log.Error("Failed to unpack build", zap.Error(err))
		return s.errorResult(id, err), nil
	}
	class = admission.ClassSuccess

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
	}, nil
}

func (s *MCPServer) successText(result compile.Result) (string, error) {
	body, err := artifact.Decompress(result.Body)
	if err != nil {
		return "", err
	}
	wasm, js, stderr, err := artifact.Segments(body, int(result.WasmLength), int(result.JSLength))
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(ToolResult{
		CacheStatus: result.CacheStatus,
		Version:     result.Version.String(),
		Channel:     result.Channel.String(),
		WasmBase64:  base64.StdEncoding.EncodeToString(wasm),
		JS:          string(js),
		Stderr:      string(stderr),
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// errorResult describes err the way the HTTP surface would; internal
// details are replaced by the reference id.
func (s *MCPServer) errorResult(id string, err error) *mcp.CallToolResult {
	kind := compile.KindOf(err)
	resp := ToolError{Kind: kind}

	var (
		limited    *admission.RateLimitedError
		cooling    *admission.CoolingDownError
		disallowed *validate.DisallowedConstructError
		failed     *sandbox.BuildFailedError
	)
	switch {
	case errors.As(err, &limited):
		resp.TimeLeft = admission.Seconds(limited.RetryAfter)
	case errors.As(err, &cooling):
		resp.TimeLeft = admission.Seconds(cooling.RetryAfter)
	case errors.Is(err, sandbox.ErrOverloaded):
		resp.TimeLeft = admission.Seconds(s.config.RateLimit.OverloadCooldown)
	case errors.As(err, &disallowed):
		resp.Word = disallowed.Construct
	case errors.As(err, &failed):
		resp.Stdout = failed.Stdout
		resp.Stderr = failed.Stderr
	}
	if kind == compile.KindInternal {
		resp.Reference = id
	}

	data, _ := json.Marshal(resp) //nolint:errchkjson // plain struct
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(data),
			},
		},
		IsError: true,
	}
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("Starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the streamable HTTP transport and blocks until it stops.
func (s *MCPServer) ServeHTTP() error {
	port := s.config.MCP.HTTPPort
	s.logger.Info("Starting MCP server on HTTP", zap.Int("port", port))

	if s.httpServer == nil {
		return fmt.Errorf("mcp transport is %q, not %q", s.config.MCP.Transport, config.MCPTransportHTTP)
	}
	return s.httpServer.Start(fmt.Sprintf(":%d", port))
}

// Shutdown stops the HTTP transport if it was started.
func (s *MCPServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// GetMCPServer returns the underlying MCP server
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
