// Package direct implements the direct-call transport (§4.8): an in-process
// registry of callables exposed as tools.
package direct

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/viant/utcp/internal/transport"
	"github.com/viant/utcp/types"
)

// Callable is an in-process function bound to a direct-call tool. Arguments
// arrive as a map and are delivered positionally in the alphabetical order of
// the input schema's property names (§4.8, §9 "spread-args calling
// convention"); the schema's declaration order is not kept, since Schema is
// a map.
type Callable struct {
	Definition types.Tool
	Fn         func(ctx context.Context, orderedArgs []interface{}) (interface{}, error)
}

// Transport is the direct-call communication protocol. RegisterCallable may
// be invoked before the transport is activated by EnsureCoreInitialized;
// such calls are buffered and drained on first activation (§4.8).
type Transport struct {
	mu        sync.RWMutex
	active    bool
	callables map[string]Callable
	pending   []Callable
}

// New creates an inactive direct-call transport.
func New() *Transport {
	return &Transport{callables: map[string]Callable{}}
}

// RegisterCallable adds or replaces a callable. Before Activate has run the
// registration is buffered in a pending queue.
func (t *Transport) RegisterCallable(c Callable) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		t.pending = append(t.pending, c)
		return
	}
	t.callables[c.Definition.Name] = c
}

// Activate drains the pending queue into the live callable map; idempotent.
func (t *Transport) Activate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active {
		return
	}
	t.active = true
	for _, c := range t.pending {
		t.callables[c.Definition.Name] = c
	}
	t.pending = nil
}

// RegisterManual exposes every callable currently registered on the
// transport as a tool, whatever the template's callable_name; a callable
// without its own tool_call_template is bound to this template. The result
// does not set PreserveNames, so the client qualifies each tool name with
// the manual name.
func (t *Transport) RegisterManual(_ context.Context, _ transport.Client, tmpl types.CallTemplate) (*types.RegisterManualResult, error) {
	directTmpl, ok := tmpl.(types.DirectCallTemplate)
	if !ok {
		return nil, &types.ConfigurationError{Reason: fmt.Sprintf("direct-call transport received %T", tmpl)}
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	manual := types.EmptyManual(directTmpl.Name)
	for name, c := range t.callables {
		if c.Definition.ToolCallTemplate == nil {
			c.Definition.ToolCallTemplate = directTmpl
		}
		_ = name
		manual.Tools = append(manual.Tools, c.Definition)
	}
	sort.Slice(manual.Tools, func(i, j int) bool { return manual.Tools[i].Name < manual.Tools[j].Name })
	manual.ManualVersion = "1.0.0"

	return &types.RegisterManualResult{
		ManualCallTemplate: tmpl,
		Manual:             manual,
		Success:            true,
	}, nil
}

// DeregisterManual is a no-op; callables remain registered process-wide
// (they are not owned by any single manual).
func (t *Transport) DeregisterManual(_ context.Context, _ transport.Client, _ types.CallTemplate) error {
	return nil
}

// CallTool dispatches to the registered callable, spreading args into
// positional parameters in the alphabetical order of the input schema's
// property names.
func (t *Transport) CallTool(ctx context.Context, _ transport.Client, toolName string, args map[string]interface{}, tmpl types.CallTemplate) (interface{}, error) {
	directTmpl, ok := tmpl.(types.DirectCallTemplate)
	if !ok {
		return nil, &types.ConfigurationError{Reason: fmt.Sprintf("direct-call transport received %T", tmpl)}
	}

	t.mu.RLock()
	c, ok := t.callables[toolName]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown callable %q for direct-call template %q", toolName, directTmpl.CallableName)
	}

	ordered := orderArgs(c.Definition.Inputs, args)
	return c.Fn(ctx, ordered)
}

// orderArgs spreads the args map into a slice following the alphabetical
// order of the property names in the tool's input JSON Schema.
func orderArgs(inputs types.Schema, args map[string]interface{}) []interface{} {
	order := propertyOrder(inputs)
	ordered := make([]interface{}, 0, len(order))
	used := map[string]bool{}
	for _, name := range order {
		ordered = append(ordered, args[name])
		used[name] = true
	}
	// Properties not declared in the schema are appended in sorted order so
	// no argument is silently dropped.
	var extra []string
	for name := range args {
		if !used[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		ordered = append(ordered, args[name])
	}
	return ordered
}

func propertyOrder(inputs types.Schema) []string {
	if inputs == nil {
		return nil
	}
	props, ok := inputs["properties"].(map[string]interface{})
	if !ok {
		return nil
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CallToolStreaming yields the single result of CallTool (§4.4 default).
func (t *Transport) CallToolStreaming(ctx context.Context, client transport.Client, toolName string, args map[string]interface{}, tmpl types.CallTemplate) (<-chan transport.StreamChunk, error) {
	return transport.SingleChunkStream(ctx, func(ctx context.Context) (interface{}, error) {
		return t.CallTool(ctx, client, toolName, args, tmpl)
	})
}

// Close releases no resources; callables are process-wide and not owned by
// this transport instance across restarts.
func (t *Transport) Close() error { return nil }

var _ transport.Transport = (*Transport)(nil)
