package api

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Port     int
	Bind     string
	APIKey   string              // empty disables authentication
	Gatherer prometheus.Gatherer // served on /metrics, default registry when nil
}

// FileInfo describes a KMALL file in the data directory.
type FileInfo struct {
	Name     string    `json:"name"` // slash-separated, relative to the data directory
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Default and maximum record counts for the records endpoint.
const (
	DefaultRecordLimit = 100
	MaxRecordLimit     = 10000
)

// Errors
var (
	ErrInvalidName  = errors.New("invalid file name")
	ErrFileNotFound = errors.New("file not found")
)
