// Package telemetry wires the agent's OpenTelemetry tracer/meter
// providers, delegating the exporter setup to observability/otel.
package telemetry

import (
	"context"

	"treasuryagent/observability/otel"
)

const serviceName = "treasuryagent"

// Config is the subset of otel.Config the agent's startup flags populate.
type Config struct {
	Environment string
	Endpoint    string
	Insecure    bool
	Headers     string
	Metrics     bool
	Traces      bool
}

// Init configures the global tracer/meter providers for the process and
// returns a shutdown function to call during graceful teardown.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	return otel.Init(ctx, otel.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Endpoint,
		Insecure:    cfg.Insecure,
		Headers:     otel.ParseHeaders(cfg.Headers),
		Metrics:     cfg.Metrics,
		Traces:      cfg.Traces,
	})
}
