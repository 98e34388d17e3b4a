package configloader

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
}

func TestLoader(t *testing.T) {
	embedded := fstest.MapFS{
		"config/a.yaml": {Data: []byte("name: embedded\ncount: 1\n")},
		"config/b.yaml": {Data: []byte("name: only-embedded\n")},
	}

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "a.yaml"), []byte("name: override\ncount: 2\n"), 0o600))

	t.Run("override wins", func(t *testing.T) {
		var s sample
		require.NoError(t, NewLoader(dir, embedded).Load("config/a.yaml", &s))
		assert.Equal(t, sample{Name: "override", Count: 2}, s)
	})

	t.Run("falls back to embedded", func(t *testing.T) {
		var s sample
		require.NoError(t, NewLoader(dir, embedded).Load("config/b.yaml", &s))
		assert.Equal(t, "only-embedded", s.Name)
	})

	t.Run("embedded only", func(t *testing.T) {
		var s sample
		require.NoError(t, NewLoader("", embedded).Load("config/a.yaml", &s))
		assert.Equal(t, "embedded", s.Name)
	})

	t.Run("missing everywhere", func(t *testing.T) {
		var s sample
		assert.Error(t, NewLoader(dir, embedded).Load("config/c.yaml", &s))
		assert.Error(t, NewLoader("", nil).Load("config/a.yaml", &s))
	})

	t.Run("invalid yaml", func(t *testing.T) {
		bad := fstest.MapFS{"x.yaml": {Data: []byte("name: [unclosed")}}
		var s sample
		assert.Error(t, NewLoader("", bad).Load("x.yaml", &s))
	})

	t.Run("cached", func(t *testing.T) {
		l := NewLoader("", embedded)
		first, err := l.LoadCached("config/a.yaml", func() any { return &sample{} })
		require.NoError(t, err)
		second, err := l.LoadCached("config/a.yaml", func() any { return &sample{} })
		require.NoError(t, err)
		assert.Same(t, first, second)

		l.ClearCache()
		third, err := l.LoadCached("config/a.yaml", func() any { return &sample{} })
		require.NoError(t, err)
		assert.NotSame(t, first, third)
	})
}
