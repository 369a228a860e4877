// Package mcp serves the companion's memory to other assistants as Model
// Context Protocol tools over stdin/stdout.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cadre-oss/hearth/internal/telemetry"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "hearth-memory"
)

// Server is a minimal MCP server that speaks JSON-RPC 2.0 over stdio.
// It implements initialize, ping, tools/list and tools/call.
type Server struct {
	handler *ToolHandler
	version string
	logger  *telemetry.Logger
	in      io.Reader
	out     io.Writer
}

// NewServer creates a server answering tool calls from mem.
func NewServer(mem Memory, version string, logger *telemetry.Logger) *Server {
	if logger == nil {
		logger = telemetry.Nop()
	}
	return &Server{
		handler: NewToolHandler(mem),
		version: version,
		logger:  logger,
		in:      os.Stdin,
		out:     os.Stdout,
	}
}

// WithIO replaces stdin and stdout.
func (s *Server) WithIO(in io.Reader, out io.Writer) *Server {
	s.in, s.out = in, out
	return s
}

type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Run serves requests until the input closes or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req jsonrpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeError(nil, -32700, "parse error")
			continue
		}

		// Notifications carry no id and get no response.
		if req.ID == nil {
			s.logger.Debug("mcp notification", "method", req.Method)
			continue
		}

		result, code, err := s.dispatch(ctx, req)
		if err != nil {
			s.writeError(req.ID, code, err.Error())
			continue
		}
		s.writeResult(req.ID, result)
	}

	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req jsonrpcRequest) (any, int, error) {
	switch req.Method {
	case "initialize":
		return map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": serverName, "version": s.version},
		}, 0, nil
	case "ping":
		return map[string]any{}, 0, nil
	case "tools/list":
		return map[string]any{"tools": AllTools()}, 0, nil
	case "tools/call":
		res, err := s.handleToolsCall(ctx, req.Params)
		if err != nil {
			return nil, -32602, err
		}
		return res, 0, nil
	default:
		return nil, -32601, fmt.Errorf("method not found: %s", req.Method)
	}
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (any, error) {
	var call struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, fmt.Errorf("parse tool call params: %w", err)
	}

	result, err := s.handler.Call(ctx, call.Name, call.Arguments)
	if err != nil {
		s.logger.Warn("mcp tool failed", "tool", call.Name, "error", err)
		return map[string]any{
			"content": []map[string]any{{"type": "text", "text": "Error: " + err.Error()}},
			"isError": true,
		}, nil
	}

	text, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": string(text)}},
	}, nil
}

func (s *Server) writeResult(id json.RawMessage, result any) {
	s.writeJSON(jsonrpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeError(id json.RawMessage, code int, message string) {
	s.writeJSON(jsonrpcResponse{JSONRPC: "2.0", ID: id, Error: &jsonrpcError{Code: code, Message: message}})
}

func (s *Server) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("mcp marshal failed", "error", err)
		return
	}
	data = append(data, '\n')
	_, _ = s.out.Write(data)
}
