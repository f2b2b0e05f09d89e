// Package pluginregistry is the process-wide plugin registry (§4.1): three
// maps, keyed by a lowercase type identifier, binding call-template type
// tags to deserializers, variable-loader type tags to loader factories, and
// transport type tags to singleton CommunicationProtocol instances.
package pluginregistry

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/viant/utcp/internal/transport"
	"github.com/viant/utcp/internal/variables"
	"github.com/viant/utcp/types"
)

// CallTemplateDeserializer turns raw JSON/YAML-decoded bytes into a concrete
// types.CallTemplate variant.
type CallTemplateDeserializer func(raw json.RawMessage) (types.CallTemplate, error)

// Registry is a process-wide, mutation-at-init structure (§9 "process-wide
// mutable registries"). Entries are added once at plugin init and replaced
// only with an explicit override=true.
type Registry struct {
	mu sync.RWMutex

	templateDeserializers map[string]CallTemplateDeserializer
	loaderFactories       map[string]variables.LoaderFactory
	transports            map[string]transport.Transport

	once sync.Once
}

var global = &Registry{
	templateDeserializers: map[string]CallTemplateDeserializer{},
	loaderFactories:       map[string]variables.LoaderFactory{},
	transports:            map[string]transport.Transport{},
}

// Global returns the process-wide registry instance.
func Global() *Registry { return global }

func normalize(id string) string { return strings.ToLower(strings.TrimSpace(id)) }

// RegisterCallTemplate binds a type tag to a deserializer. Without
// override=true, registering over an existing entry is an error.
func (r *Registry) RegisterCallTemplate(typeTag string, fn CallTemplateDeserializer, override bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := normalize(typeTag)
	if _, exists := r.templateDeserializers[key]; exists && !override {
		return fmt.Errorf("pluginregistry: call_template_type %q already registered", typeTag)
	}
	r.templateDeserializers[key] = fn
	return nil
}

// Deserialize dispatches raw bytes to the deserializer registered for
// typeTag.
func (r *Registry) Deserialize(typeTag string, raw json.RawMessage) (types.CallTemplate, error) {
	r.mu.RLock()
	fn, ok := r.templateDeserializers[normalize(typeTag)]
	r.mu.RUnlock()
	if !ok {
		return nil, &types.ConfigurationError{Reason: fmt.Sprintf("unknown call_template_type %q", typeTag)}
	}
	tmpl, err := fn(raw)
	if err != nil {
		return nil, &types.ConfigurationError{Reason: fmt.Sprintf("deserializing %q template", typeTag), Cause: err}
	}
	return tmpl, nil
}

// RegisterLoaderFactory binds a variable-loader type tag to a factory.
func (r *Registry) RegisterLoaderFactory(typeTag string, fn variables.LoaderFactory, override bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := normalize(typeTag)
	if _, exists := r.loaderFactories[key]; exists && !override {
		return fmt.Errorf("pluginregistry: variable loader type %q already registered", typeTag)
	}
	r.loaderFactories[key] = fn
	return nil
}

// BuildLoader materializes a Loader from its declarative config.
func (r *Registry) BuildLoader(typeTag string, raw map[string]interface{}) (variables.Loader, error) {
	r.mu.RLock()
	fn, ok := r.loaderFactories[normalize(typeTag)]
	r.mu.RUnlock()
	if !ok {
		return nil, &types.ConfigurationError{Reason: fmt.Sprintf("unknown variable loader type %q", typeTag)}
	}
	return fn(raw)
}

// RegisterTransport binds a transport type tag to a singleton
// CommunicationProtocol instance, shared across every client in the process.
func (r *Registry) RegisterTransport(typeTag string, t transport.Transport, override bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := normalize(typeTag)
	if _, exists := r.transports[key]; exists && !override {
		return fmt.Errorf("pluginregistry: transport %q already registered", typeTag)
	}
	r.transports[key] = t
	return nil
}

// Transport returns the registered protocol instance for typeTag.
func (r *Registry) Transport(typeTag string) (transport.Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[normalize(typeTag)]
	return t, ok
}

// Transports returns a snapshot of every registered (typeTag, instance) pair,
// used by Client.Close to shut every materialized transport down.
func (r *Registry) Transports() map[string]transport.Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]transport.Transport, len(r.transports))
	for k, v := range r.transports {
		out[k] = v
	}
	return out
}

// EnsureCoreInitialized runs init, which registers the baseline transports
// (file/text, direct-call, http, mcp) and their template deserializers,
// before any user-visible client operation runs. Safe to call repeatedly;
// actual initialization happens once per Registry.
func (r *Registry) EnsureCoreInitialized(init func(*Registry)) {
	r.once.Do(func() { init(r) })
}
