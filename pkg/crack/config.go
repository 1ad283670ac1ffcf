package crack

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/passcrack/pkg/executor"
	"github.com/Sumatoshi-tech/passcrack/pkg/observability"
	"github.com/Sumatoshi-tech/passcrack/pkg/progress"
)

// Config holds the pipeline tuning knobs. Zero numeric values select defaults.
type Config struct {
	// HaltOnFirstHit stops the run at the first match.
	HaltOnFirstHit bool
	// Workers is the number of parallel checks; 0 means runtime.NumCPU().
	Workers int
	// QueueFactor is the number of queue slots per worker; 0 means [executor.DefaultQueueFactor].
	QueueFactor int
	// ReportInterval is the minimum time between progress lines; 0 means [progress.DefaultInterval].
	ReportInterval time.Duration
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		HaltOnFirstHit: true,
		Workers:        runtime.NumCPU(),
		QueueFactor:    executor.DefaultQueueFactor,
		ReportInterval: progress.DefaultInterval,
	}
}

func (c Config) workers() int {
	if c.Workers <= 0 {
		return runtime.NumCPU()
	}

	return c.Workers
}

func (c Config) queueSize() int {
	factor := c.QueueFactor
	if factor <= 0 {
		factor = executor.DefaultQueueFactor
	}

	return factor * c.workers()
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithOutput sets the writer for status and progress lines. Defaults to [io.Discard].
func WithOutput(w io.Writer) Option {
	return func(p *Pipeline) {
		p.out = w
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithTracer sets the tracer for the run span.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = tracer
	}
}

// WithMetrics records check and executor metrics.
func WithMetrics(metrics *observability.CrackMetrics) Option {
	return func(p *Pipeline) {
		p.metrics = metrics
	}
}

// WithClock overrides the time source of progress reporting.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithHitStyle formats the "Passphrase found" line, e.g. to colorize it.
// The function receives a Printf format and its arguments.
func WithHitStyle(style func(format string, args ...any) string) Option {
	return func(p *Pipeline) {
		p.hitStyle = style
	}
}

func plainStyle(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
