package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 4, cfg.PoolSize)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.False(t, cfg.KeepAlive)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero pool", func(c *Config) { c.PoolSize = 0 }},
		{"negative pool", func(c *Config) { c.PoolSize = -1 }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"negative timeout", func(c *Config) { c.ReadTimeout = -time.Second }},
		{"negative limit", func(c *Config) { c.MaxConnections = -1 }},
		{"negative gc percent", func(c *Config) { c.GCPercent = -1 }},
		{"negative memory limit", func(c *Config) { c.MemoryLimit = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("POOLSERVER_POOL_SIZE", "8")
	t.Setenv("POOLSERVER_HOST", "127.0.0.1")
	t.Setenv("POOLSERVER_PORT", "9090")
	t.Setenv("POOLSERVER_READ_TIMEOUT", "1500ms")
	t.Setenv("POOLSERVER_KEEP_ALIVE", "true")
	t.Setenv("POOLSERVER_MEMORY_LIMIT", "1073741824")
	t.Setenv("OTHER_POOL_SIZE", "99")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.PoolSize)
	assert.Equal(t, "127.0.0.1:9090", cfg.Addr())
	assert.Equal(t, 1500*time.Millisecond, cfg.ReadTimeout)
	assert.True(t, cfg.KeepAlive)
	assert.Equal(t, int64(1<<30), cfg.MemoryLimit)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout, "untouched values keep their default")
}

func TestLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"port": 7070,
		"pool": {"size": 2},
		"write": {"timeout": "2s"},
		"idle.timeout": 3,
		"max": {"body": {"bytes": 1024}}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	// Environment wins over the file
	t.Setenv("POOLSERVER_PORT", "7171")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.PoolSize)
	assert.Equal(t, 7171, cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 3*time.Second, cfg.IdleTimeout)
	assert.Equal(t, int64(1024), cfg.MaxBodyBytes)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})

	t.Run("bad json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("bad integer", func(t *testing.T) {
		t.Setenv("POOLSERVER_POOL_SIZE", "many")
		_, err := Load("")
		assert.ErrorContains(t, err, "pool.size")
	})

	t.Run("invalid pool size", func(t *testing.T) {
		t.Setenv("POOLSERVER_POOL_SIZE", "0")
		_, err := Load("")
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestManager_Unmarshal(t *testing.T) {
	m := NewManager()
	m.Set("name", "server")
	m.Set("workers", "12")
	m.Set("timeout", 1.5)

	value, ok := m.Get("name")
	require.True(t, ok)
	assert.Equal(t, "server", value)
	_, ok = m.Get("missing")
	assert.False(t, ok)

	var target struct {
		Name    string        `config:"name"`
		Workers int           `config:"workers"`
		Timeout time.Duration `config:"timeout"`
		Unset   string        `config:"unset"`
	}
	require.NoError(t, m.Unmarshal("", &target))
	assert.Equal(t, "server", target.Name)
	assert.Equal(t, 12, target.Workers)
	assert.Equal(t, 1500*time.Millisecond, target.Timeout)
	assert.Empty(t, target.Unset)

	var notStruct int
	assert.Error(t, m.Unmarshal("", notStruct))
	assert.Error(t, m.Unmarshal("", &notStruct))
}
