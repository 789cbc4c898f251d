// Package api provides interfaces for dependency injection
package api

import (
	"context"

	"github.com/ssargent/kmall/pkg/logging"
	"github.com/ssargent/kmall/pkg/metrics"
	"github.com/ssargent/kmall/pkg/store"
)

// Files defines the file operations behind the inspection API
type Files interface {
	// List returns the KMALL files in the data directory
	List() ([]FileInfo, error)

	// Explain indexes a file and summarises its contents
	Explain(ctx context.Context, name string, opts store.ExplainOptions) (*store.ExplainResult, error)

	// Records reads up to limit logical records of a file in canonical order
	Records(ctx context.Context, name string, limit int) ([]store.Summary, error)
}

// ServerStarter defines the interface for starting the API server
type ServerStarter interface {
	// StartServer serves the API until ctx is cancelled
	StartServer(ctx context.Context, files Files, config ServerConfig, m *metrics.Metrics, log *logging.Logger) error
}

// ServerFactory creates server instances
type ServerFactory interface {
	// CreateServerStarter creates a server starter
	CreateServerStarter() ServerStarter
}
