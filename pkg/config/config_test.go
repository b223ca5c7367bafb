package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	c, err := LoadConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)

	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(buf), "# max-fuel: 10000")
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
max-fuel: 50
page-size: 64
check-array-bounds: true
default-format: hex
aliases:
  print: ["p", "x"]
`), 0600))
	c, err := LoadConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 50, c.MaxFuel)
	assert.Equal(t, 64, c.PageSize)
	assert.True(t, c.CheckArrayBounds)
	assert.Equal(t, "hex", c.DefaultFormat)
	assert.Equal(t, []string{"p", "x"}, c.Aliases["print"])
	assert.Equal(t, DefaultPageCacheSize, c.PageCacheSize)
	assert.Equal(t, DefaultMaxAggregateBytes, c.MaxAggregateBytes)
}

func TestLoadConfigFromBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("max-fuel: [\n"), 0600))
	c, err := LoadConfigFrom(path)
	require.Error(t, err)
	assert.Equal(t, Default(), c)
}
