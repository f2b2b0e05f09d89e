package variables

import (
	"context"
	"fmt"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/scy"
)

// MapLoader serves a pre-parsed map, the shape a dotenv file or any other
// external parser (out of scope per spec.md §1) would hand the client.
type MapLoader struct {
	values map[string]string
}

// NewMapLoader wraps an already-parsed key/value map as a Loader.
func NewMapLoader(values map[string]string) *MapLoader {
	if values == nil {
		values = map[string]string{}
	}
	return &MapLoader{values: values}
}

func (l *MapLoader) Load(_ context.Context, key string) (string, bool, error) {
	v, ok := l.values[key]
	return v, ok, nil
}

// SecretLoader resolves ${KEY} placeholders against scy-encrypted secret
// resources, one scy resource URL per key, so operators can keep API keys
// and OAuth2 client secrets off disk in plaintext (grounded on
// agently/internal/auth/tokens/refresh_scy.go's scy.Service usage).
type SecretLoader struct {
	svc *scy.Service
	// URLFor maps a variable key to the scy resource URL holding its secret
	// value (e.g. "secret://keyring/OPENAI_API_KEY" or a "file://" vault).
	URLFor func(key string) (string, bool)
}

// NewSecretLoader creates a SecretLoader using a fresh scy.Service.
func NewSecretLoader(urlFor func(key string) (string, bool)) *SecretLoader {
	return &SecretLoader{svc: scy.New(), URLFor: urlFor}
}

func (l *SecretLoader) Load(ctx context.Context, key string) (string, bool, error) {
	url, ok := l.URLFor(key)
	if !ok {
		return "", false, nil
	}
	resource := scy.NewResource(nil, url, "")
	secret, err := l.svc.Load(ctx, resource)
	if err != nil {
		return "", false, fmt.Errorf("secret loader: load %q: %w", key, err)
	}
	return secret.String(), true, nil
}

// NewEnvFileLoaderFactory builds the "env_file" variable-loader type: a
// dotenv-style KEY=VALUE file, read once at loader-construction time via
// afs.Service. The file is named by the "path" field, or by "env_file_path"
// when "path" is empty; either is expected already resolved against root_dir
// by the caller (config.Load).
func NewEnvFileLoaderFactory(fs afs.Service) LoaderFactory {
	if fs == nil {
		fs = afs.New()
	}
	return func(raw map[string]interface{}) (Loader, error) {
		path, _ := raw["path"].(string)
		if path == "" {
			path, _ = raw["env_file_path"].(string)
		}
		if path == "" {
			return nil, fmt.Errorf("env_file loader requires a %q or %q field", "path", "env_file_path")
		}
		data, err := fs.DownloadWithURL(context.Background(), path)
		if err != nil {
			return nil, fmt.Errorf("reading env file %s: %w", path, err)
		}
		return NewMapLoader(parseEnvFile(string(data))), nil
	}
}

func parseEnvFile(content string) map[string]string {
	values := map[string]string{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		value = strings.Trim(value, `"'`)
		values[key] = value
	}
	return values
}
