// Package bootstrap wires the process-level dependencies shared by cmd binaries.
package bootstrap

import (
	"context"
	"fmt"

	"kindred/internal/cache"
	"kindred/internal/config"
	"kindred/internal/database"
	"kindred/internal/observability"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ServiceName identifies this process in traces and metrics.
const ServiceName = "kindred-api"

// Options control runtime initialization behavior.
type Options struct {
	// Tracing starts the OpenTelemetry provider configured by TRACING_*.
	Tracing bool
	// Version is reported as the service version on spans.
	Version string
}

// Runtime holds the shared connections of a running binary.
type Runtime struct {
	DB    *gorm.DB
	Redis *redis.Client

	shutdownTracing func(context.Context) error
}

// InitRuntime connects to the database and Redis and, if asked, starts tracing.
// Redis is optional: an unreachable instance leaves Redis nil.
func InitRuntime(cfg *config.Config, opts Options) (*Runtime, error) {
	rt := &Runtime{shutdownTracing: func(context.Context) error { return nil }}

	if opts.Tracing {
		shutdown, err := observability.InitTracing(observability.TracingConfig{
			ServiceName:    ServiceName,
			ServiceVersion: opts.Version,
			Environment:    cfg.Env,
			Enabled:        cfg.TracingEnabled,
			Exporter:       cfg.TracingExporter,
			OTLPEndpoint:   cfg.OTLPEndpoint,
			SamplerRatio:   cfg.TracingSamplerRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("tracing init failed: %w", err)
		}
		rt.shutdownTracing = shutdown
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt.DB = db

	cache.InitRedis(cfg.RedisURL)
	rt.Redis = cache.GetClient()

	return rt, nil
}

// Close flushes traces. Database and Redis are owned by the server once handed over.
func (r *Runtime) Close(ctx context.Context) error {
	return r.shutdownTracing(ctx)
}
