package types

import "encoding/json"

// CallTemplateType is the `call_template_type` discriminator tag.
type CallTemplateType string

const (
	CallTemplateFile       CallTemplateType = "file"
	CallTemplateText       CallTemplateType = "text"
	CallTemplateHTTP       CallTemplateType = "http"
	CallTemplateMCP        CallTemplateType = "mcp"
	CallTemplateDirectCall CallTemplateType = "direct-call"
)

// CallTemplate is the declarative description of how to reach one manual
// (and through it, its tools). Concrete variants below implement it; the
// plugin registry (internal/pluginregistry) owns the type-tag → deserializer
// mapping that produces the right concrete type from raw JSON/YAML.
type CallTemplate interface {
	TemplateName() string
	TemplateType() CallTemplateType
	TemplateAuth() *Auth
	AllowedProtocols() []string
}

// Common carries the fields every CallTemplate variant shares.
type Common struct {
	Name                          string           `json:"name" yaml:"name"`
	CallTemplateType              CallTemplateType `json:"call_template_type" yaml:"call_template_type"`
	Auth                          *Auth            `json:"auth,omitempty" yaml:"auth,omitempty"`
	AllowedCommunicationProtocols []string         `json:"allowed_communication_protocols,omitempty" yaml:"allowed_communication_protocols,omitempty"`
}

func (c Common) TemplateName() string             { return c.Name }
func (c Common) TemplateType() CallTemplateType    { return c.CallTemplateType }
func (c Common) TemplateAuth() *Auth               { return c.Auth }
func (c Common) AllowedProtocols() []string        { return c.AllowedCommunicationProtocols }

// FileCallTemplate reaches a manual described by a local JSON/YAML file,
// either a native manual or an OpenAPI document (detected at registration).
type FileCallTemplate struct {
	Common   `yaml:",inline"`
	FilePath string `json:"file_path" yaml:"file_path"`
	// AuthTools, when set, is applied as the auth of every tool derived from
	// an OpenAPI document found at FilePath.
	AuthTools *Auth `json:"auth_tools,omitempty" yaml:"auth_tools,omitempty"`
}

// HTTPCallTemplate invokes one endpoint directly; it is also the shape the
// OpenAPI converter (§4.6) synthesizes per operation.
type HTTPCallTemplate struct {
	Common      `yaml:",inline"`
	URL         string            `json:"url" yaml:"url"`
	HTTPMethod  string            `json:"http_method" yaml:"http_method"`
	ContentType string            `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	BodyField   string            `json:"body_field,omitempty" yaml:"body_field,omitempty"`
	HeaderFields []string         `json:"header_fields,omitempty" yaml:"header_fields,omitempty"`
	PathFields  []string          `json:"path_fields,omitempty" yaml:"path_fields,omitempty"`
}

// MCPCallTemplate multiplexes one or more named MCP servers behind a single
// manual (§4.7).
type MCPCallTemplate struct {
	Common                     `yaml:",inline"`
	Config                   MCPConfig `json:"config" yaml:"config"`
	RegisterResourcesAsTools bool      `json:"register_resources_as_tools,omitempty" yaml:"register_resources_as_tools,omitempty"`
}

// DirectCallTemplate dispatches to an in-process callable registered through
// the direct-call transport (§4.8).
type DirectCallTemplate struct {
	Common       `yaml:",inline"`
	CallableName string `json:"callable_name" yaml:"callable_name"`
}

var (
	_ CallTemplate = FileCallTemplate{}
	_ CallTemplate = HTTPCallTemplate{}
	_ CallTemplate = MCPCallTemplate{}
	_ CallTemplate = DirectCallTemplate{}
)

// RawCallTemplate is the shape used only to sniff `call_template_type` before
// dispatching to the right concrete unmarshal target.
type RawCallTemplate struct {
	CallTemplateType CallTemplateType `json:"call_template_type" yaml:"call_template_type"`
	Raw              json.RawMessage  `json:"-" yaml:"-"`
}
