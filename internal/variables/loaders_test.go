package variables

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapLoaderReturnsKnownKey(t *testing.T) {
	l := NewMapLoader(map[string]string{"FOO": "bar"})
	v, ok, err := l.Load(context.Background(), "FOO")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bar", v)
}

func TestMapLoaderMissingKeyReturnsNotOK(t *testing.T) {
	l := NewMapLoader(nil)
	_, ok, err := l.Load(context.Background(), "FOO")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseEnvFileSkipsCommentsAndBlankLines(t *testing.T) {
	content := "# a comment\n\nFOO=bar\nQUOTED=\"hello world\"\nSINGLE='quoted'\nmalformed line\n"
	values := parseEnvFile(content)
	assert.Equal(t, "bar", values["FOO"])
	assert.Equal(t, "hello world", values["QUOTED"])
	assert.Equal(t, "quoted", values["SINGLE"])
	assert.NotContains(t, values, "malformed line")
}

func TestEnvFileLoaderFactoryReadsFileAndBuildsMapLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vars.env")
	require.NoError(t, os.WriteFile(path, []byte("TOKEN=abc123\n"), 0o644))

	factory := NewEnvFileLoaderFactory(nil)
	loader, err := factory(map[string]interface{}{"path": path})
	require.NoError(t, err)

	v, ok, err := loader.Load(context.Background(), "TOKEN")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc123", v)
}

func TestEnvFileLoaderFactoryRequiresPath(t *testing.T) {
	factory := NewEnvFileLoaderFactory(nil)
	_, err := factory(map[string]interface{}{})
	require.Error(t, err)
}

func TestEnvFileLoaderFactoryMissingFileReturnsError(t *testing.T) {
	factory := NewEnvFileLoaderFactory(nil)
	_, err := factory(map[string]interface{}{"path": "/does/not/exist.env"})
	require.Error(t, err)
}
