// Package progress derives throughput and ETA from a running candidate count
// and prints them at a fixed wall-clock cadence.
package progress

import (
	"fmt"
	"io"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/passcrack/pkg/safeconv"
)

// DefaultInterval is the minimum time between two progress lines.
const DefaultInterval = time.Second

const (
	millisPerSecond = 1000
	roundHalf       = 0.5
)

// maxETAMillis keeps ETA conversions inside the range of time.Duration.
const maxETAMillis = math.MaxInt64 / int64(time.Millisecond)

// Sample is the state a progress line is computed from.
type Sample struct {
	Probed  uint64
	Elapsed time.Duration
}

// Throughput returns candidates per millisecond, or 0 when nothing can be derived yet.
func (s Sample) Throughput() float64 {
	millis := s.Elapsed.Milliseconds()
	if millis <= 0 || s.Probed == 0 {
		return 0
	}

	return float64(s.Probed) / float64(millis)
}

// ETA estimates the time left to probe total candidates. ok is false when
// total is unknown or the throughput is zero.
func (s Sample) ETA(total *big.Int) (eta time.Duration, ok bool) {
	rate := s.Throughput()
	if total == nil || rate <= 0 {
		return 0, false
	}

	remaining := new(big.Int).Sub(total, new(big.Int).SetUint64(s.Probed))
	if remaining.Sign() <= 0 {
		return 0, true
	}

	quotient := new(big.Float).Quo(new(big.Float).SetInt(remaining), big.NewFloat(rate))
	millis, _ := quotient.Add(quotient, big.NewFloat(roundHalf)).Int64()
	if millis < 0 || millis > maxETAMillis {
		millis = maxETAMillis
	}

	return time.Duration(millis) * time.Millisecond, true
}

// Reporter writes a progress line at most once per interval.
// It is not safe for concurrent use; the orchestrator goroutine owns it.
type Reporter struct {
	out      io.Writer
	interval time.Duration
	now      func() time.Time
	total    *big.Int

	start time.Time
	next  time.Time
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		r.now = now
	}
}

// WithInterval overrides [DefaultInterval].
func WithInterval(interval time.Duration) Option {
	return func(r *Reporter) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// NewReporter creates a reporter writing to out. The clock starts immediately.
func NewReporter(out io.Writer, opts ...Option) *Reporter {
	rep := &Reporter{
		out:      out,
		interval: DefaultInterval,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(rep)
	}

	rep.Restart()

	return rep
}

// Restart resets the elapsed-time origin to now.
func (r *Reporter) Restart() {
	r.start = r.now()
	r.next = r.start.Add(r.interval)
}

// SetTotal records the estimated number of candidates; nil means unknown.
func (r *Reporter) SetTotal(total *big.Int) {
	r.total = total
}

// Elapsed returns the time since the reporter started.
func (r *Reporter) Elapsed() time.Duration {
	return r.now().Sub(r.start)
}

// Observe records that probed candidates have been checked, the latest being
// candidate. When the interval has passed it writes one line and reports true.
// Lines are suppressed while the throughput is zero.
func (r *Reporter) Observe(candidate string, probed uint64) bool {
	now := r.now()
	if now.Before(r.next) {
		return false
	}

	r.next = now.Add(r.interval)

	sample := Sample{Probed: probed, Elapsed: now.Sub(r.start)}
	if sample.Throughput() <= 0 {
		return false
	}

	fmt.Fprintln(r.out, r.Format(candidate, sample))

	return true
}

// Format renders a progress line for sample.
func (r *Reporter) Format(candidate string, sample Sample) string {
	var line strings.Builder

	line.WriteString("Try #")
	line.WriteString(humanize.Comma(safeconv.Uint64ToInt64(sample.Probed)))

	if r.total != nil {
		line.WriteString(" of ")
		line.WriteString(humanize.BigComma(r.total))
	}

	rate := safeconv.Float64ToInt64(sample.Throughput() * millisPerSecond)
	fmt.Fprintf(&line, " @%s keys/s %s, time spent: %s", humanize.Comma(rate), candidate, FormatDuration(sample.Elapsed))

	if eta, ok := sample.ETA(r.total); ok {
		line.WriteString(", time left: ")
		line.WriteString(FormatDuration(eta))
	}

	return line.String()
}
