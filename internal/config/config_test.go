package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()
	c, err := Parse([]byte("debounce: 250ms\nfullCommentHover: true\nrhsFunctions: [force-learn]\nlogLevel: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, c.Debounce)
	assert.True(t, c.FullCommentHover)
	assert.False(t, c.Watch)
	assert.Equal(t, []string{"force-learn"}, c.RHSFunctions)
	assert.Equal(t, slog.LevelDebug, c.Level())
}

func TestParse_EmptyIsDefault(t *testing.T) {
	t.Parallel()
	c, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()
	for name, src := range map[string]string{
		"unknown key":       "debounc: 1s\n",
		"negative debounce": "debounce: -1s\n",
		"bad level":         "logLevel: loud\n",
		"empty rhs name":    "rhsFunctions: ['']\n",
		"not yaml":          "debounce: [\n",
	} {
		_, err := Parse([]byte(src))
		assert.Error(t, err, name)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	c, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("watch: true\n"), 0o644))
	c, err = LoadDir(dir)
	require.NoError(t, err)
	assert.True(t, c.Watch)

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("watch: maybe\n"), 0o644))
	_, err = LoadDir(dir)
	assert.ErrorContains(t, err, FileName)
}

func TestSettings(t *testing.T) {
	t.Parallel()
	s, err := ParseSettings(json.RawMessage(`{"soar":{"debounceTime":200,"activeEntryPoint":"secondary"}}`))
	require.NoError(t, err)
	c := Default().Apply(s)
	assert.Equal(t, 200*time.Millisecond, c.Debounce)
	assert.Equal(t, "secondary", c.ActiveEntryPoint)
	assert.False(t, c.FullCommentHover)

	s, err = ParseSettings(json.RawMessage(`{"fullCommentHover":true}`))
	require.NoError(t, err)
	c = c.Apply(s)
	assert.True(t, c.FullCommentHover)
	assert.Equal(t, 200*time.Millisecond, c.Debounce, "absent fields are kept")

	s, err = ParseSettings(nil)
	require.NoError(t, err)
	assert.Equal(t, Settings{}, s)

	_, err = ParseSettings(json.RawMessage(`{"debounceTime":-5}`))
	assert.Error(t, err)
	_, err = ParseSettings(json.RawMessage(`{"debounceTime":"soon"}`))
	assert.Error(t, err)
}
