package types

// AuthType is the `type` discriminator tag on Auth.
type AuthType string

const (
	AuthAPIKey AuthType = "api_key"
	AuthBasic  AuthType = "basic"
	AuthOAuth2 AuthType = "oauth2"
)

// APIKeyLocation is where an api_key Auth places its credential.
type APIKeyLocation string

const (
	APIKeyLocationHeader APIKeyLocation = "header"
	APIKeyLocationQuery  APIKeyLocation = "query"
	APIKeyLocationCookie APIKeyLocation = "cookie"
)

// Auth is the polymorphic credential attached to a CallTemplate or, for
// OpenAPI-derived tools, to a per-tool HTTPCallTemplate. All secret-bearing
// string fields may contain ${NAME} placeholders resolved by the variable
// resolver (internal/variables) before dispatch.
type Auth struct {
	Type AuthType `json:"type" yaml:"type"`

	// api_key
	VarName  string         `json:"var_name,omitempty" yaml:"var_name,omitempty"`
	APIKey   string         `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Location APIKeyLocation `json:"location,omitempty" yaml:"location,omitempty"`

	// basic
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`

	// oauth2
	TokenURL     string `json:"token_url,omitempty" yaml:"token_url,omitempty"`
	ClientID     string `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`
	Scope        string `json:"scope,omitempty" yaml:"scope,omitempty"`
}
