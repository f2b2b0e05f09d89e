// Package config loads the provider configuration document (variables,
// variable-loader declarations, and manual call templates) a Client is
// constructed from (§4.9).
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

// LoaderDeclaration is one entry of load_variables_from: a variable-loader
// type tag plus its type-specific parameters, dispatched through the plugin
// registry's loader factories.
type LoaderDeclaration struct {
	Type   string
	Params map[string]interface{}
}

// Config is the decoded shape of a providers document: the variables a
// client starts with, the loader chain backing ${KEY} resolution beyond
// those, and the manuals to register on construction.
type Config struct {
	RootDir string

	Variables           map[string]string
	LoadVariablesFrom    []LoaderDeclaration
	ManualCallTemplates  []json.RawMessage
}

// Load reads and decodes a JSON or YAML providers document at path (resolved
// against rootDir if relative), resolving any relative "path" or
// "env_file_path" field inside load_variables_from entries against rootDir
// too, so loader declarations never need to know the document's own
// location.
func Load(ctx context.Context, fs afs.Service, rootDir, path string) (*Config, error) {
	if fs == nil {
		fs = afs.New()
	}
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(rootDir, resolved)
	}

	data, err := fs.DownloadWithURL(ctx, resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	doc, err := decode(resolved, data)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", resolved, err)
	}

	cfg := &Config{RootDir: rootDir}

	if vars, ok := doc["variables"].(map[string]interface{}); ok {
		cfg.Variables = map[string]string{}
		for k, v := range vars {
			cfg.Variables[k] = fmt.Sprintf("%v", v)
		}
	}

	if rawLoaders, ok := doc["load_variables_from"].([]interface{}); ok {
		for _, item := range rawLoaders {
			entry, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			typeTag, _ := entry["type"].(string)
			resolveRelativePathFields(entry, rootDir)
			cfg.LoadVariablesFrom = append(cfg.LoadVariablesFrom, LoaderDeclaration{Type: typeTag, Params: entry})
		}
	}

	if rawTemplates, ok := doc["manual_call_templates"].([]interface{}); ok {
		for _, item := range rawTemplates {
			encoded, err := json.Marshal(item)
			if err != nil {
				return nil, fmt.Errorf("re-encoding manual_call_templates entry: %w", err)
			}
			cfg.ManualCallTemplates = append(cfg.ManualCallTemplates, encoded)
		}
	}

	return cfg, nil
}

// resolveRelativePathFields rewrites any "path" or "env_file_path" field on a
// loader declaration from relative to absolute, anchored at rootDir.
func resolveRelativePathFields(entry map[string]interface{}, rootDir string) {
	for _, field := range []string{"path", "env_file_path"} {
		raw, ok := entry[field].(string)
		if !ok || raw == "" || filepath.IsAbs(raw) {
			continue
		}
		entry[field] = filepath.Join(rootDir, raw)
	}
}

func decode(path string, data []byte) (map[string]interface{}, error) {
	ext := strings.ToLower(filepath.Ext(path))
	var doc map[string]interface{}
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		return normalizeYAMLMaps(doc).(map[string]interface{}), nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// normalizeYAMLMaps converts yaml.v3's map[string]interface{} (already
// string-keyed, unlike yaml.v2) recursively so downstream type assertions
// against map[string]interface{}/[]interface{} behave identically regardless
// of whether the document was JSON or YAML.
func normalizeYAMLMaps(node interface{}) interface{} {
	switch v := node.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = normalizeYAMLMaps(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = normalizeYAMLMaps(val)
		}
		return out
	default:
		return v
	}
}
