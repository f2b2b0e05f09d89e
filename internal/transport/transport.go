// Package transport defines the polymorphic contract every communication
// protocol (file, http, mcp, direct-call) implements, and the minimal facade
// surface a transport is allowed to call back into (§4.4).
package transport

import (
	"context"

	"github.com/viant/utcp/types"
)

// Client is the subset of the client facade a transport may depend on. It
// deliberately excludes repository/registry access so transports cannot
// reach across manuals.
type Client interface {
	// RootDir is the base directory relative file_path entries resolve
	// against.
	RootDir() string
	// ResolveVariables substitutes every ${KEY} placeholder found in tree,
	// namespaced to manualName per §3 "Variable scope and keys".
	ResolveVariables(ctx context.Context, manualName string, tree interface{}) (interface{}, error)
}

// StreamChunk is one element of a CallToolStreaming sequence. A non-nil Err
// terminates the sequence.
type StreamChunk struct {
	Data interface{}
	Err  error
}

// Transport is the polymorphic interface every protocol implements (§4.4).
type Transport interface {
	// RegisterManual performs any I/O needed to enumerate a manual's tools.
	// Errors are captured in the result's Errors field, never returned,
	// except for a malformed template.
	RegisterManual(ctx context.Context, client Client, tmpl types.CallTemplate) (*types.RegisterManualResult, error)

	// DeregisterManual releases long-lived resources tied to the manual. It
	// must be idempotent.
	DeregisterManual(ctx context.Context, client Client, tmpl types.CallTemplate) error

	// CallTool invokes a single tool. It returns an error on I/O or remote
	// failure.
	CallTool(ctx context.Context, client Client, toolName string, args map[string]interface{}, tmpl types.CallTemplate) (interface{}, error)

	// CallToolStreaming yields chunks lazily until exhaustion or cancellation.
	CallToolStreaming(ctx context.Context, client Client, toolName string, args map[string]interface{}, tmpl types.CallTemplate) (<-chan StreamChunk, error)

	// Close releases every resource owned by this protocol instance across
	// all clients.
	Close() error
}

// SingleChunkStream adapts a single CallTool result into the
// CallToolStreaming contract; the default behavior for transports that have
// no native streaming mode (§4.4).
func SingleChunkStream(ctx context.Context, call func(context.Context) (interface{}, error)) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 1)
	go func() {
		defer close(ch)
		data, err := call(ctx)
		ch <- StreamChunk{Data: data, Err: err}
	}()
	return ch, nil
}
