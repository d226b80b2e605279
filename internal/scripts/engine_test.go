package scripts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingFileHasNoAliases(t *testing.T) {
	e, err := NewEngine(filepath.Join(t.TempDir(), "aliases.toml"))
	require.NoError(t, err)
	assert.Empty(t, e.Names())
	assert.Equal(t, "/w bob hi", e.Expand("/w bob hi"))
}

func TestLoadAndExpand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.toml")
	require.NoError(t, os.WriteFile(path, []byte("[alias]\n\"/w\" = \"/msg\"\n\"/hi\" = \"hello everyone\"\n"), 0o644))

	e, err := NewEngine(path)
	require.NoError(t, err)
	assert.Equal(t, "/msg bob psst", e.Expand("/w bob psst"))
	assert.Equal(t, "hello everyone", e.Expand("/hi"))
	assert.Equal(t, "", e.Expand(""))
	assert.Equal(t, []string{"/hi = hello everyone", "/w = /msg"}, e.Names())
}

func TestAddAndRemovePersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "aliases.toml")
	e, err := NewEngine(path)
	require.NoError(t, err)

	require.NoError(t, e.AddAlias("/p", "/peers"))
	assert.Error(t, e.AddAlias("two words", "x"))

	reloaded, err := NewEngine(path)
	require.NoError(t, err)
	assert.Equal(t, "/peers", reloaded.Expand("/p"))

	require.NoError(t, reloaded.RemoveAlias("/p"))
	require.NoError(t, e.Load())
	assert.Empty(t, e.Names())
}

func TestDefaultScriptsPath(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	path, err := DefaultScriptsPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmp, "p2p-presence", "aliases.toml"), path)
}

func TestBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.toml")
	require.NoError(t, os.WriteFile(path, []byte("[alias\n"), 0o644))
	_, err := NewEngine(path)
	assert.Error(t, err)
}
