// Package variables implements the §4.2 variable resolver: a pure tree
// walker that substitutes ${KEY} placeholders from a namespaced, ordered set
// of sources.
package variables

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/viant/utcp/types"
)

// placeholderPattern matches ${KEY} with KEY made of word characters, dots,
// and dashes (the shapes seen in provider configs and MCP server env maps).
var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_.\-]+)\}`)

// Loader is a pluggable source of variable values, tried after the client's
// inline configuration and before the process environment (§3).
type Loader interface {
	// Load returns the value for key, or ok=false if this loader has no
	// opinion on it.
	Load(ctx context.Context, key string) (value string, ok bool, err error)
}

// LoaderFactory builds a Loader from its deserialized declarative config.
// Registered in the plugin registry keyed by loader type tag.
type LoaderFactory func(raw map[string]interface{}) (Loader, error)

// Resolver substitutes ${KEY} placeholders across a template tree. It is
// pure with respect to its input: it never mutates tree, always returning a
// new tree, so a manual's raw template can be re-rendered if loader state
// changes (§4.2).
type Resolver struct {
	configVars map[string]string
	loaders    []Loader
}

// New creates a Resolver over the client's inline variables and an ordered
// loader chain (first hit wins). The process environment is always
// consulted last.
func New(configVars map[string]string, loaders []Loader) *Resolver {
	if configVars == nil {
		configVars = map[string]string{}
	}
	return &Resolver{configVars: configVars, loaders: loaders}
}

// NamespaceName rewrites a manual name into the safe namespace prefix used
// for variable lookups: `-`, `.`, and whitespace become `__`.
func NamespaceName(manualName string) string {
	var b strings.Builder
	for _, r := range manualName {
		switch {
		case r == '-' || r == '.' || r == ' ' || r == '\t' || r == '\n':
			b.WriteString("__")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// lookup resolves a single key for manualName, trying the namespaced form
// first then the bare key, across configVars, the loader chain, and finally
// the process environment.
func (r *Resolver) lookup(ctx context.Context, manualName, key string) (string, error) {
	namespaced := NamespaceName(manualName) + "_" + key
	candidates := []string{namespaced, key}

	for _, k := range candidates {
		if v, ok := r.configVars[k]; ok {
			return v, nil
		}
	}
	for _, loader := range r.loaders {
		for _, k := range candidates {
			if v, ok, err := loader.Load(ctx, k); err != nil {
				return "", fmt.Errorf("variable loader: %w", err)
			} else if ok {
				return v, nil
			}
		}
	}
	for _, k := range candidates {
		if v, ok := os.LookupEnv(k); ok {
			return v, nil
		}
	}
	return "", &types.VariableNotFoundError{VariableName: key}
}

// Resolve walks tree (the result of decoding JSON/YAML into
// interface{}/map[string]interface{}/[]interface{}/string/...) and returns a
// new tree with every ${KEY} substituted. Partial substitution is not
// allowed: any string containing an unresolved placeholder surfaces a
// VariableNotFoundError.
func (r *Resolver) Resolve(ctx context.Context, manualName string, tree interface{}) (interface{}, error) {
	switch v := tree.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, val := range v {
			resolved, err := r.Resolve(ctx, manualName, val)
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			resolved, err := r.Resolve(ctx, manualName, val)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case string:
		return r.resolveString(ctx, manualName, v)
	default:
		return tree, nil
	}
}

func (r *Resolver) resolveString(ctx context.Context, manualName, s string) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}
	var resolveErr error
	result := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		if resolveErr != nil {
			return match
		}
		key := placeholderPattern.FindStringSubmatch(match)[1]
		value, err := r.lookup(ctx, manualName, key)
		if err != nil {
			resolveErr = err
			return match
		}
		return value
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return result, nil
}
