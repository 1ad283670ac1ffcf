package crack_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"github.com/Sumatoshi-tech/passcrack/pkg/candidates"
	"github.com/Sumatoshi-tech/passcrack/pkg/checker"
	"github.com/Sumatoshi-tech/passcrack/pkg/crack"
	"github.com/Sumatoshi-tech/passcrack/pkg/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errBoom = errors.New("boom")

// checkFunc adapts a function with an error result to checker.Checker.
type checkFunc func(candidate string) (bool, error)

func (f checkFunc) Check(candidate string) (bool, error) {
	return f(candidate)
}

// recorder remembers every candidate it checked, in call order.
type recorder struct {
	mu    sync.Mutex
	seen  []string
	match func(string) bool
}

func (r *recorder) Check(candidate string) (bool, error) {
	r.mu.Lock()
	r.seen = append(r.seen, candidate)
	r.mu.Unlock()

	return r.match(candidate), nil
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.seen...)
}

func matchOnly(secret string) checker.Func {
	return func(candidate string) bool { return candidate == secret }
}

func runPipeline(t *testing.T, chk checker.Checker, input string, cfg crack.Config, opts ...crack.Option) (crack.Summary, string, error) {
	t.Helper()

	var out bytes.Buffer

	opts = append([]crack.Option{crack.WithOutput(&out)}, opts...)
	p := crack.New(chk, candidates.NewSource(strings.NewReader(input)), cfg, opts...)

	summary, err := p.Run(context.Background())
	p.Wait()

	return summary, out.String(), err
}

func TestPipeline_HaltsOnFirstHit(t *testing.T) {
	t.Parallel()

	cfg := crack.DefaultConfig()
	cfg.Workers = 2

	summary, out, err := runPipeline(t, matchOnly("secret123"), "foo\nsecret123\nbar\n", cfg)
	require.NoError(t, err)

	assert.Equal(t, crack.StateHaltedOnHit, summary.State)
	assert.True(t, summary.Found())
	assert.Equal(t, []string{"secret123"}, summary.Hits)
	assert.Contains(t, out, `Passphrase found: "secret123"`)
	assert.NotContains(t, out, `Passphrase found: "bar"`)
	assert.NotContains(t, out, "Passphrase not found")
}

func TestPipeline_NotFoundProbesEveryCandidate(t *testing.T) {
	t.Parallel()

	cfg := crack.DefaultConfig()
	cfg.Workers = 3

	summary, out, err := runPipeline(t, matchOnly("nope"), "a\nb\nc\nd\ne\n", cfg)
	require.NoError(t, err)

	assert.Equal(t, crack.StateExhausted, summary.State)
	assert.False(t, summary.Found())
	assert.Equal(t, uint64(6), summary.Probed)
	assert.Equal(t, 1, strings.Count(out, "Passphrase not found"))
	assert.Nil(t, summary.EstimatedTotal)
}

func TestPipeline_EmptyInputTriesEmptyPassphrase(t *testing.T) {
	t.Parallel()

	rec := &recorder{match: func(string) bool { return false }}

	summary, out, err := runPipeline(t, rec, "", crack.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, crack.StateExhausted, summary.State)
	assert.Equal(t, uint64(1), summary.Probed)
	assert.Equal(t, []string{""}, rec.calls())
	assert.Contains(t, out, "Passphrase not found")
}

func TestPipeline_EmptyPassphraseFirst(t *testing.T) {
	t.Parallel()

	rec := &recorder{match: func(string) bool { return false }}

	cfg := crack.DefaultConfig()
	cfg.Workers = 1

	summary, _, err := runPipeline(t, rec, "x\ny\nz\n", cfg)
	require.NoError(t, err)

	assert.Equal(t, uint64(4), summary.Probed)
	assert.Equal(t, []string{"", "x", "y", "z"}, rec.calls())
}

func TestPipeline_EmptyPassphraseCanMatch(t *testing.T) {
	t.Parallel()

	summary, out, err := runPipeline(t, matchOnly(""), "a\nb\n", crack.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, crack.StateHaltedOnHit, summary.State)
	assert.Equal(t, []string{""}, summary.Hits)
	assert.Contains(t, out, `Passphrase found: ""`)
}

func TestPipeline_EstimatedTotalFromHint(t *testing.T) {
	t.Parallel()

	input := "Crunch will now generate the following amount of data: 9 bytes\n" +
		"0 MB\n" +
		"Crunch will now generate the following number of lines: 3\n" +
		"aa\nbb\ncc\n"

	rec := &recorder{match: func(string) bool { return false }}

	summary, _, err := runPipeline(t, rec, input, crack.DefaultConfig())
	require.NoError(t, err)

	require.NotNil(t, summary.EstimatedTotal)
	assert.Equal(t, "3", summary.EstimatedTotal.String())
	assert.Equal(t, uint64(4), summary.Probed)
	assert.Equal(t, uint64(6), summary.Lines)
	assert.ElementsMatch(t, []string{"", "aa", "bb", "cc"}, rec.calls())
}

func TestPipeline_MalformedHintHasNoEstimate(t *testing.T) {
	t.Parallel()

	input := "Crunch will now generate the following amount of data: 9 bytes\n" +
		"Crunch will now generate the following number of lines: nine\n" +
		"aa\n"

	summary, _, err := runPipeline(t, matchOnly("aa"), input, crack.DefaultConfig())
	require.NoError(t, err)

	assert.Nil(t, summary.EstimatedTotal)
	assert.Equal(t, []string{"aa"}, summary.Hits)
}

func TestPipeline_ContinuesAfterHitWhenNotHalting(t *testing.T) {
	t.Parallel()

	cfg := crack.DefaultConfig()
	cfg.HaltOnFirstHit = false
	cfg.Workers = 2

	isHit := func(candidate string) bool { return strings.HasPrefix(candidate, "hit") }

	summary, out, err := runPipeline(t, checker.Func(isHit), "x\nhit1\ny\nhit2\n", cfg)
	require.NoError(t, err)

	assert.Equal(t, crack.StateExhausted, summary.State)
	assert.ElementsMatch(t, []string{"hit1", "hit2"}, summary.Hits)
	assert.Equal(t, uint64(5), summary.Probed)
	assert.Contains(t, out, `Passphrase found: "hit1"`)
	assert.Contains(t, out, `Passphrase found: "hit2"`)
	assert.NotContains(t, out, "Passphrase not found")
}

func TestPipeline_CheckerFailuresAreMisses(t *testing.T) {
	t.Parallel()

	chk := checkFunc(func(candidate string) (bool, error) {
		switch candidate {
		case "bad":
			return true, errBoom
		case "panic":
			panic("corrupt key")
		default:
			return false, nil
		}
	})

	summary, out, err := runPipeline(t, chk, "bad\npanic\nok\n", crack.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, crack.StateExhausted, summary.State)
	assert.Equal(t, uint64(4), summary.Probed)
	assert.Equal(t, uint64(2), summary.Failed)
	assert.Empty(t, summary.Hits)
	assert.Contains(t, out, "Passphrase not found")
}

func TestPipeline_SourceReadFailureIsFatal(t *testing.T) {
	t.Parallel()

	input := io.MultiReader(strings.NewReader("a\nb\n"), iotest.ErrReader(errBoom))

	var out bytes.Buffer

	p := crack.New(matchOnly("nope"), candidates.NewSource(input), crack.DefaultConfig(), crack.WithOutput(&out))

	summary, err := p.Run(context.Background())
	p.Wait()

	require.ErrorIs(t, err, candidates.ErrSourceRead)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, crack.StateRunning, summary.State)
	assert.NotContains(t, out.String(), "Passphrase not found")
}

func TestPipeline_FirstLineReadFailureIsFatal(t *testing.T) {
	t.Parallel()

	p := crack.New(matchOnly("nope"), candidates.NewSource(iotest.ErrReader(errBoom)), crack.DefaultConfig())

	_, err := p.Run(context.Background())
	p.Wait()

	require.ErrorIs(t, err, candidates.ErrSourceRead)
}

func TestPipeline_CancelDuringFirstRead(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	errStop := errors.New("stop")

	ctx, cancel := context.WithCancelCause(context.Background())
	time.AfterFunc(20*time.Millisecond, func() { cancel(errStop) })

	p := crack.New(matchOnly("nope"), candidates.NewSource(pr), crack.DefaultConfig())

	_, err := p.Run(ctx)
	p.Wait()

	require.ErrorIs(t, err, errStop)
}

func TestPipeline_CancelWhileProducing(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	written := make(chan struct{})

	go func() {
		defer close(written)

		_, _ = pw.Write([]byte("a\nb\n"))
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chk := checker.Func(func(candidate string) bool {
		if candidate == "b" {
			cancel()
		}

		return false
	})

	p := crack.New(chk, candidates.NewSource(pr), crack.DefaultConfig())

	summary, err := p.Run(ctx)
	p.Wait()
	<-written

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, crack.StateRunning, summary.State)
}

func TestPipeline_RunTwice(t *testing.T) {
	t.Parallel()

	p := crack.New(matchOnly("a"), candidates.NewSource(strings.NewReader("a\n")), crack.DefaultConfig())

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.ErrorIs(t, err, crack.ErrAlreadyStarted)

	p.Wait()
}

func TestPipeline_WaitWithoutRun(t *testing.T) {
	t.Parallel()

	p := crack.New(matchOnly("a"), candidates.NewSource(strings.NewReader("")), crack.DefaultConfig())

	assert.NotPanics(t, p.Wait)
}

func TestPipeline_ReportsProgress(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		now = time.Unix(0, 0)
	)

	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()

		now = now.Add(700 * time.Millisecond)

		return now
	}

	cfg := crack.DefaultConfig()
	cfg.Workers = 1

	summary, out, err := runPipeline(t, matchOnly("nope"), "a\nb\nc\nd\ne\nf\n", cfg, crack.WithClock(clock))
	require.NoError(t, err)

	assert.Equal(t, uint64(7), summary.Probed)
	assert.Contains(t, out, "Try #")
	assert.Contains(t, out, "keys/s")
	assert.Contains(t, out, "time spent:")
	assert.Positive(t, summary.Elapsed)
}

func TestPipeline_HitStyle(t *testing.T) {
	t.Parallel()

	style := func(format string, args ...any) string {
		return "**" + strings.ReplaceAll(format, "%s", args[0].(string)) + "**"
	}

	_, out, err := runPipeline(t, matchOnly("x"), "x\n", crack.DefaultConfig(), crack.WithHitStyle(style))
	require.NoError(t, err)

	assert.Contains(t, out, `**Passphrase found: "x"**`)
}

func TestPipeline_RecordsMetricsAndSpan(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := observability.NewCrackMetrics(mp.Meter("test"))
	require.NoError(t, err)

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	summary, _, err := runPipeline(t, matchOnly("nope"), "a\nb\nc\n", crack.DefaultConfig(),
		crack.WithMetrics(metrics),
		crack.WithTracer(tp.Tracer("test")),
	)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), summary.Probed)

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	var checked int64

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "passcrack.candidates.total" {
				continue
			}

			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)

			for _, dp := range sum.DataPoints {
				checked += dp.Value
			}
		}
	}

	assert.Equal(t, int64(4), checked)

	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "crack.run", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.String("pipeline.state", "exhausted"))
	assert.Contains(t, ended[0].Attributes(), attribute.Int64("pipeline.probed", 4))
}

// eofGate closes opened once the wrapped reader reports end of stream.
type eofGate struct {
	r      io.Reader
	once   sync.Once
	opened chan struct{}
}

func (g *eofGate) Read(p []byte) (int, error) {
	n, err := g.r.Read(p)
	if errors.Is(err, io.EOF) {
		g.once.Do(func() { close(g.opened) })
	}

	return n, err
}

// notifyWriter buffers output and closes seen when a line containing text is written.
type notifyWriter struct {
	bytes.Buffer

	text string
	once sync.Once
	seen chan struct{}
}

func (w *notifyWriter) Write(p []byte) (int, error) {
	if strings.Contains(string(p), w.text) {
		w.once.Do(func() { close(w.seen) })
	}

	return w.Buffer.Write(p)
}

func TestPipeline_SlowHitFinishingAfterEndOfQueue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		halt  bool
		state crack.State
	}{
		{name: "halt", halt: true, state: crack.StateHaltedOnHit},
		{name: "continue", halt: false, state: crack.StateExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gate := &eofGate{r: strings.NewReader("miss\nhit\n"), opened: make(chan struct{})}
			out := &notifyWriter{text: "Passphrase not found", seen: make(chan struct{})}

			// The hit is held until the stream ended, then until the marker
			// had time to overtake it.
			chk := checker.Func(func(candidate string) bool {
				if candidate != "hit" {
					return false
				}

				<-gate.opened

				select {
				case <-out.seen:
				case <-time.After(100 * time.Millisecond):
				}

				return true
			})

			cfg := crack.DefaultConfig()
			cfg.HaltOnFirstHit = tt.halt
			cfg.Workers = 2

			p := crack.New(chk, candidates.NewSource(gate), cfg, crack.WithOutput(out))

			summary, err := p.Run(context.Background())
			p.Wait()
			require.NoError(t, err)

			assert.Equal(t, tt.state, summary.State)
			assert.Equal(t, []string{"hit"}, summary.Hits)
			assert.Equal(t, uint64(3), summary.Probed)
			assert.Contains(t, out.String(), `Passphrase found: "hit"`)
			assert.NotContains(t, out.String(), "Passphrase not found")
		})
	}
}

// stalledReader advances a fake clock on its first read, like a generator
// that is slow to print its summary block.
type stalledReader struct {
	r     io.Reader
	once  sync.Once
	stall func()
}

func (s *stalledReader) Read(p []byte) (int, error) {
	s.once.Do(s.stall)

	return s.r.Read(p)
}

func TestPipeline_ElapsedExcludesFirstLineWait(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		now = time.Unix(0, 0)
	)

	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()

		return now
	}

	input := &stalledReader{
		r: strings.NewReader("a\nb\n"),
		stall: func() {
			mu.Lock()
			now = now.Add(time.Hour)
			mu.Unlock()
		},
	}

	p := crack.New(matchOnly("nope"), candidates.NewSource(input), crack.DefaultConfig(), crack.WithClock(clock))

	summary, err := p.Run(context.Background())
	p.Wait()
	require.NoError(t, err)

	assert.Equal(t, crack.StateExhausted, summary.State)
	assert.Less(t, summary.Elapsed, time.Hour)
}
