package mcptransport

import (
	"context"
	"time"
)

// toolDescriptor is the wire-shape of one MCP tool as returned by
// tools/list, before §4.7's naming/namespacing is applied.
type toolDescriptor struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description,omitempty"`
	InputSchema  map[string]interface{} `json:"inputSchema,omitempty"`
	OutputSchema map[string]interface{} `json:"outputSchema,omitempty"`
}

// resourceDescriptor is the wire-shape of one MCP resource as returned by
// resources/list.
type resourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// contentItem is one element of a tool call result's content array.
type contentItem struct {
	Type string      `json:"type"`
	Text string      `json:"text,omitempty"`
	JSON interface{} `json:"json,omitempty"`
}

// callResult is the decoded shape of a tools/call response, carrying enough
// to drive the result-adaptation rules in §4.7 "Tool invocation".
type callResult struct {
	StructuredContent map[string]interface{} `json:"structuredContent,omitempty"`
	Content           []contentItem          `json:"content,omitempty"`
	IsError           bool                    `json:"isError,omitempty"`
}

// session abstracts over the two concrete MCP transports (stdio subprocess,
// streamable HTTP), each speaking JSON-RPC per the MCP specification (§4.7,
// §6 "Stdio/HTTP MCP servers").
type session interface {
	ListTools(ctx context.Context, timeout time.Duration) ([]toolDescriptor, error)
	ListResources(ctx context.Context, timeout time.Duration) ([]resourceDescriptor, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}, timeout time.Duration) (*callResult, error)
	ReadResource(ctx context.Context, uri string, timeout time.Duration) (*callResult, error)
	Close(ctx context.Context) error
}
