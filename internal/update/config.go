package update

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxPasses bounds a single Flush.
const DefaultMaxPasses = 16

// Config configures a Scheduler. Zero fields take their DefaultConfig value,
// except Registerer: a nil Registerer leaves the metrics unregistered.
type Config struct {
	// MaxPasses is the number of passes Flush runs before giving up with
	// ErrNotQuiescent.
	MaxPasses      int
	Logger         *slog.Logger
	Registerer     prometheus.Registerer
	TracerProvider trace.TracerProvider
}

// DefaultConfig returns the configuration used by New(Config{}).
func DefaultConfig() Config {
	return Config{
		MaxPasses:      DefaultMaxPasses,
		Logger:         slog.Default(),
		TracerProvider: otel.GetTracerProvider(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPasses <= 0 {
		c.MaxPasses = d.MaxPasses
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	if c.TracerProvider == nil {
		c.TracerProvider = d.TracerProvider
	}
	return c
}
