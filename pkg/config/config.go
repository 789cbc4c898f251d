/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ssargent/kmall/pkg/codec"
	"github.com/ssargent/kmall/pkg/logging"
)

// Config represents the kmall configuration
type Config struct {
	Codec   Codec          `yaml:"codec"`
	Reader  Reader         `yaml:"reader"`
	Writer  Writer         `yaml:"writer"`
	Logging logging.Config `yaml:"logging"`
	Server  Server         `yaml:"server"`
}

// Codec selects the datagram byte order
type Codec struct {
	ByteOrder string `yaml:"byte_order"` // little, big or auto
}

// Reader configures file and stream readers
type Reader struct {
	IndexCache       bool          `yaml:"index_cache"`
	CacheDir         string        `yaml:"cache_dir"`
	ScratchBlockSize int           `yaml:"scratch_block_size"`
	ChunkSize        int           `yaml:"chunk_size"`
	PingWindow       time.Duration `yaml:"ping_window"`
	Workers          int           `yaml:"workers"` // files indexed concurrently
}

// Writer configures datagram writers
type Writer struct {
	BufferSize    int           `yaml:"buffer_size"`
	FsyncInterval time.Duration `yaml:"fsync_interval"`
	Extensions    bool          `yaml:"extensions"`
	WaterColumn   bool          `yaml:"watercolumn"`
}

// Server contains the inspection API configuration
type Server struct {
	Port    int    `yaml:"port"`
	Bind    string `yaml:"bind"`
	DataDir string `yaml:"data_dir"`
	APIKey  string `yaml:"api_key"` // empty disables authentication
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Codec: Codec{ByteOrder: "auto"},
		Reader: Reader{
			IndexCache:       false,
			CacheDir:         defaultCacheDir(),
			ScratchBlockSize: codec.ScratchBlockSize,
			ChunkSize:        1 << 20,
			PingWindow:       60 * time.Second,
			Workers:          4,
		},
		Writer: Writer{
			BufferSize:    64 * 1024,
			FsyncInterval: 0,
			Extensions:    true,
		},
		Logging: logging.DefaultConfig(),
		Server: Server{
			Port:    8080,
			Bind:    "127.0.0.1",
			DataDir: "./data",
		},
	}
}

// ByteOrder returns the configured byte order, or nil for auto detection.
func (c *Config) ByteOrder() (codec.ByteOrder, error) {
	if strings.EqualFold(c.Codec.ByteOrder, "auto") {
		return nil, nil
	}
	return codec.ParseByteOrder(c.Codec.ByteOrder)
}

// Validate checks the configuration for values no component accepts.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.ByteOrder(); err != nil {
		errs = append(errs, fmt.Errorf("codec.byte_order: %w", err))
	}
	if c.Reader.ScratchBlockSize < 0 {
		errs = append(errs, errors.New("reader.scratch_block_size must not be negative"))
	}
	if c.Reader.ChunkSize < 0 {
		errs = append(errs, errors.New("reader.chunk_size must not be negative"))
	}
	if c.Reader.PingWindow < 0 {
		errs = append(errs, errors.New("reader.ping_window must not be negative"))
	}
	if c.Reader.IndexCache && c.Reader.CacheDir == "" {
		errs = append(errs, errors.New("reader.cache_dir is required when reader.index_cache is set"))
	}
	if c.Writer.BufferSize < 0 {
		errs = append(errs, errors.New("writer.buffer_size must not be negative"))
	}
	if c.Writer.FsyncInterval < 0 {
		errs = append(errs, errors.New("writer.fsync_interval must not be negative"))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	return errors.Join(errs...)
}

// LoadConfig loads configuration from the specified path. Keys missing
// from the file keep their default values.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	// Validate path to prevent directory traversal
	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	// Ensure config directory exists
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write with secure permissions (0600)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig writes a default configuration with a generated API key
func BootstrapConfig(configPath string, dataDir string) (*Config, error) {
	config := DefaultConfig()
	if dataDir != "" {
		config.Server.DataDir = dataDir
	}

	apiKey, err := GenerateSecureKey(32) // 256 bits
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}
	config.Server.APIKey = apiKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./kmall.yaml"
	}

	// For Linux/macOS, use ~/.config/kmall/config.yaml
	return filepath.Join(homeDir, ".config", "kmall", "config.yaml")
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "./.kmall-cache"
	}
	return filepath.Join(dir, "kmall", "index")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
