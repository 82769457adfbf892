package telemetry

import (
	"context"
	"fmt"

	"github.com/drivewatch/drivewatch/internal/config"
)

// Frame is one telemetry reading: component name → sensor name → value.
type Frame map[string]map[string]float64

// Source produces telemetry frames.
type Source interface {
	Read(ctx context.Context) (Frame, error)
}

// New returns the Source selected by cfg.Source.
func New(cfg config.TelemetryConfig) (Source, error) {
	switch cfg.Source {
	case config.SourceSimulated, "":
		return NewSimulated(cfg.FailureProbability, cfg.Seed), nil
	case config.SourcePrometheus:
		return NewPrometheus(cfg.Endpoint, cfg.Auth, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("telemetry: unsupported source %q", cfg.Source)
	}
}
