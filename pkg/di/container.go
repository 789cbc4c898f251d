// Package di provides dependency injection container
package di

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ssargent/kmall/pkg/api" //nolint:depguard
	"github.com/ssargent/kmall/pkg/metrics"
)

// Container holds all the dependencies for the application
type Container struct {
	serverFactory api.ServerFactory
	registry      *prometheus.Registry
	metrics       *metrics.Metrics
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Container{
		serverFactory: api.NewServerFactory(),
		registry:      reg,
		metrics:       metrics.New(reg),
	}
}

// GetServerFactory returns the server factory
func (c *Container) GetServerFactory() api.ServerFactory {
	return c.serverFactory
}

// SetServerFactory allows overriding the server factory (for testing)
func (c *Container) SetServerFactory(factory api.ServerFactory) {
	c.serverFactory = factory
}

// GetRegistry returns the registry every collector of the process is
// registered with
func (c *Container) GetRegistry() *prometheus.Registry {
	return c.registry
}

// GetMetrics returns the shared metrics
func (c *Container) GetMetrics() *metrics.Metrics {
	return c.metrics
}
