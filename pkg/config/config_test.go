package config

import (
	"encoding/binary"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ssargent/kmall/pkg/codec"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "auto", config.Codec.ByteOrder)
	assert.Equal(t, codec.ScratchBlockSize, config.Reader.ScratchBlockSize)
	assert.Equal(t, 60*time.Second, config.Reader.PingWindow)
	assert.NotEmpty(t, config.Reader.CacheDir)
	assert.Equal(t, 64*1024, config.Writer.BufferSize)
	assert.True(t, config.Writer.Extensions)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Bind)
	assert.Equal(t, "info", config.Logging.Level)
	assert.NoError(t, config.Validate())
}

func TestConfig_ByteOrder(t *testing.T) {
	tests := []struct {
		value   string
		want    codec.ByteOrder
		wantErr bool
	}{
		{"auto", nil, false},
		{"AUTO", nil, false},
		{"little", binary.LittleEndian, false},
		{"big", binary.BigEndian, false},
		{"middle", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			c := DefaultConfig()
			c.Codec.ByteOrder = tt.value
			got, err := c.ByteOrder()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"byte order", func(c *Config) { c.Codec.ByteOrder = "middle" }},
		{"scratch block", func(c *Config) { c.Reader.ScratchBlockSize = -1 }},
		{"chunk size", func(c *Config) { c.Reader.ChunkSize = -1 }},
		{"ping window", func(c *Config) { c.Reader.PingWindow = -time.Second }},
		{"cache dir", func(c *Config) { c.Reader.IndexCache = true; c.Reader.CacheDir = "" }},
		{"buffer size", func(c *Config) { c.Writer.BufferSize = -1 }},
		{"fsync", func(c *Config) { c.Writer.FsyncInterval = -time.Second }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"port", func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(c)
			assert.Error(t, c.Validate())
		})
	}

	c := DefaultConfig()
	c.Codec.ByteOrder = "middle"
	c.Server.Port = -1
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "codec.byte_order")
	assert.Contains(t, err.Error(), "server.port")
}

func TestGenerateSecureKey(t *testing.T) {
	t.Run("generate 32 byte key", func(t *testing.T) {
		key, err := GenerateSecureKey(32)
		require.NoError(t, err)
		assert.Len(t, key, 64) // 32 bytes = 64 hex characters

		_, err = hex.DecodeString(key)
		assert.NoError(t, err)
	})

	t.Run("generate different keys", func(t *testing.T) {
		key1, err := GenerateSecureKey(16)
		require.NoError(t, err)
		key2, err := GenerateSecureKey(16)
		require.NoError(t, err)

		assert.NotEqual(t, key1, key2)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("partial file keeps defaults", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		data := []byte("codec:\n  byte_order: big\nwriter:\n  fsync_interval: 250ms\n  watercolumn: true\nlogging:\n  level: debug\n")
		require.NoError(t, os.WriteFile(configPath, data, 0600))

		config, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, "big", config.Codec.ByteOrder)
		assert.Equal(t, 250*time.Millisecond, config.Writer.FsyncInterval)
		assert.True(t, config.Writer.WaterColumn)
		assert.True(t, config.Writer.Extensions, "unset keys keep defaults")
		assert.Equal(t, "debug", config.Logging.Level)
		assert.Equal(t, 8080, config.Server.Port)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("codec: [unclosed"), 0600))
		_, err := LoadConfig(configPath)
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("codec:\n  byte_order: sideways\n"), 0600))
		_, err := LoadConfig(configPath)
		assert.ErrorContains(t, err, "invalid config file")
	})
}

func TestSaveConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")
	config := DefaultConfig()
	config.Server.APIKey = "k"
	config.Reader.IndexCache = true

	require.NoError(t, SaveConfig(config, configPath))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(data, &raw))
	assert.Contains(t, raw, "reader")

	loaded, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config, loaded)
}

func TestBootstrapConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	config, err := BootstrapConfig(configPath, "/srv/kmall")
	require.NoError(t, err)

	assert.Len(t, config.Server.APIKey, 64)
	assert.Equal(t, "/srv/kmall", config.Server.DataDir)
	assert.True(t, ConfigExists(configPath))
	assert.False(t, ConfigExists(configPath+".missing"))
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()
	assert.Equal(t, "config.yaml", filepath.Base(path))
}
