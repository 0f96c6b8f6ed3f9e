package mcp

import "encoding/json"

// ProtocolVersion is the MCP revision announced on initialize. Clients that
// ask for another revision still get this one; tierwise only uses tools.
const ProtocolVersion = "2024-11-05"

// Request is a line-delimited JSON-RPC 2.0 request from the MCP client.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id and so must not
// be answered.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response answers a Request. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a protocol-level failure: bad JSON, unknown method, params
// that do not decode. Tool failures are ToolCallResults with IsError set.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// InitializeResult is the response to initialize.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
	Capabilities    ServerCapabilities `json:"capabilities"`
}

// ServerInfo identifies the server in InitializeResult.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCapabilities lists what tierwise offers. Only tools are served;
// the list is fixed, so no change notifications are sent.
type ServerCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// ToolsCapability is the tools entry of ServerCapabilities.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// ToolDefinition describes one tierwise tool in tools/list.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema is the JSON Schema subset used by tool arguments: a flat
// object of string and integer properties.
type InputSchema struct {
	Type       string                    `json:"type"`
	Required   []string                  `json:"required,omitempty"`
	Properties map[string]SchemaProperty `json:"properties"`
}

// SchemaProperty describes one tool argument.
type SchemaProperty struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

func objectSchema(props map[string]SchemaProperty, required ...string) InputSchema {
	if props == nil {
		props = map[string]SchemaProperty{}
	}
	return InputSchema{Type: "object", Required: required, Properties: props}
}

func stringProp(desc string) SchemaProperty {
	return SchemaProperty{Type: "string", Description: desc}
}

func intProp(desc string) SchemaProperty {
	return SchemaProperty{Type: "integer", Description: desc}
}

// ToolsListResult is the response to tools/list.
type ToolsListResult struct {
	Tools []ToolDefinition `json:"tools"`
}

// ToolCallParams is the params object of tools/call.
type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolCallResult is the response to tools/call. A tool that ran but could
// not answer (missing utterance, unknown tier, unreadable ledger) reports
// IsError with a readable message so the calling model can correct itself.
type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// ContentBlock is a text block in a ToolCallResult.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(text string) ToolCallResult {
	r := textResult(text)
	r.IsError = true
	return r
}

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)
