// Package mcp serves tierwise tools to MCP clients over stdio using
// line-delimited JSON-RPC 2.0.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/pario-ai/tierwise/pkg/models"
)

// Engine is the part of the turn engine the tools read from.
type Engine interface {
	Classify(utterance string) (models.SemanticJudgment, bool)
	Route(ctx context.Context, sig models.ConversationSignal, utterance string) models.RoutingDecision
	UsageStats(f models.UsageFilter) models.UsageStats
	CacheStats() models.CacheStats
}

// UsageStore is a durable usage source, such as the SQLite ledger sink.
type UsageStore interface {
	Query(ctx context.Context, f models.UsageFilter) ([]models.UsageRecord, error)
	Summary(ctx context.Context, f models.UsageFilter) ([]models.ModelSummary, error)
}

// Server answers MCP requests.
type Server struct {
	engine  Engine
	usage   UsageStore
	version string
	logger  *zap.Logger
}

// New creates a Server. usage may be nil, in which case usage stats come
// from the engine's in-memory ledger.
func New(e Engine, usage UsageStore, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:  e,
		usage:   usage,
		version: version,
		logger:  logger.With(zap.String("component", "mcp")),
	}
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, Response{
				JSONRPC: "2.0",
				Error:   &RPCError{Code: CodeParseError, Message: "parse error"},
			})
			continue
		}

		if req.IsNotification() {
			s.logger.Debug("notification", zap.String("method", req.Method))
			continue
		}
		s.writeResponse(w, *s.dispatch(ctx, &req))
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return s.result(req, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: "tierwise", Version: s.version},
			Capabilities:    ServerCapabilities{Tools: &ToolsCapability{}},
		})
	case "ping":
		return s.result(req, struct{}{})
	case "tools/list":
		return s.result(req, ToolsListResult{Tools: allTools})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return s.fail(req, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.fail(req, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return s.result(req, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}
	s.logger.Debug("tool call", zap.String("tool", params.Name))
	return s.result(req, handler(ctx, s, params.Arguments))
}

func (s *Server) result(req *Request, v any) *Response {
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: v}
}

func (s *Server) fail(req *Request, code int, msg string) *Response {
	return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: code, Message: msg}}
}

func (s *Server) writeResponse(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write response", zap.Error(err))
	}
}
