// Package crack drives a cracking run: it feeds candidates from a source
// through a worker pool, consumes verdicts in completion order, and stops on
// the first hit or when the source is exhausted.
package crack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/passcrack/pkg/candidates"
	"github.com/Sumatoshi-tech/passcrack/pkg/checker"
	"github.com/Sumatoshi-tech/passcrack/pkg/executor"
	"github.com/Sumatoshi-tech/passcrack/pkg/observability"
	"github.com/Sumatoshi-tech/passcrack/pkg/progress"
	"github.com/Sumatoshi-tech/passcrack/pkg/safeconv"
)

// ErrAlreadyStarted is returned when Run is called more than once.
var ErrAlreadyStarted = errors.New("pipeline already started")

// errHalted is the cancellation cause once the orchestrator decided to stop.
var errHalted = errors.New("pipeline halted")

const (
	spanRun = "crack.run"

	// completionSlack covers the priming and first-line submissions made
	// before any result is taken.
	completionSlack = 2

	msgFound    = "Passphrase found: \"%s\""
	msgNotFound = "Passphrase not found"
)

// Pipeline is a single cracking run. Create it with [New], start it with
// [Pipeline.Run] and release its goroutines with [Pipeline.Wait].
type Pipeline struct {
	checker checker.Checker
	source  *candidates.Source
	cfg     Config

	out      io.Writer
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *observability.CrackMetrics
	now      func() time.Time
	hitStyle func(format string, args ...any) string

	started atomic.Bool
	exec    *executor.Executor
	group   *errgroup.Group
}

// New prepares a run checking every candidate of source. Nothing starts until Run.
func New(chk checker.Checker, source *candidates.Source, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		checker:  checker.Guard(chk),
		source:   source,
		cfg:      cfg,
		out:      io.Discard,
		logger:   slog.New(slog.DiscardHandler),
		tracer:   nooptrace.NewTracerProvider().Tracer(""),
		now:      time.Now,
		hitStyle: plainStyle,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// run holds the state owned by the orchestrator goroutine during Run.
type run struct {
	results  *executor.CompletionService[Result]
	reporter *progress.Reporter
	ctx      context.Context
	cancel   context.CancelCauseFunc
	summary  Summary
}

// Run checks candidates until a terminal state is reached and returns the
// summary. A hit with HaltOnFirstHit, or the end of the stream, ends the run
// with a nil error. A source read failure or cancellation of ctx ends it with
// that error. Run does not wait for in-flight checks; call Wait for that.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	if !p.started.CompareAndSwap(false, true) {
		return Summary{}, ErrAlreadyStarted
	}

	workers := p.cfg.workers()
	p.exec = executor.New(workers, p.cfg.queueSize())

	ctx, span := p.tracer.Start(ctx, spanRun, trace.WithAttributes(
		attribute.Int("executor.workers", p.exec.Workers()),
		attribute.Int("executor.queue_capacity", p.exec.QueueCapacity()),
		attribute.Bool("pipeline.halt_on_first_hit", p.cfg.HaltOnFirstHit),
	))
	defer span.End()

	runCtx, cancel := context.WithCancelCause(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	p.group = group

	// A blocking first-line read is abandoned when the run is cancelled.
	context.AfterFunc(runCtx, p.source.Interrupt)

	r := &run{
		results: executor.NewCompletionService[Result](p.exec, p.exec.QueueCapacity()+workers+completionSlack),
		reporter: progress.NewReporter(p.out,
			progress.WithClock(p.now),
			progress.WithInterval(p.cfg.ReportInterval),
		),
		ctx:    groupCtx,
		cancel: cancel,
	}

	summary, err := p.drive(ctx, r)

	span.SetAttributes(
		attribute.Int64("pipeline.probed", safeconv.Uint64ToInt64(summary.Probed)),
		attribute.Int("pipeline.hits", len(summary.Hits)),
		attribute.String("pipeline.state", summary.State.String()),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return summary, err
}

func (p *Pipeline) drive(ctx context.Context, r *run) (Summary, error) {
	var submitted uint64

	submit := func(candidate string) error {
		err := r.results.Submit(p.checkTask(r.ctx, candidate))
		if err == nil {
			submitted++
		}

		return err
	}

	// The empty passphrase is always tried first.
	err := submit("")
	if err != nil {
		return p.finish(ctx, r, fmt.Errorf("submit priming candidate: %w", err))
	}

	total, err := p.prime(submit)
	if err != nil {
		if ctx.Err() != nil {
			err = context.Cause(ctx)
		}

		return p.finish(ctx, r, err)
	}

	r.summary.EstimatedTotal = total
	r.reporter.SetTotal(total)
	// Time spent waiting for the generator's summary block is not throughput.
	r.reporter.Restart()

	p.logger.InfoContext(ctx, "pipeline started",
		"executor.workers", p.exec.Workers(),
		"executor.queue_capacity", p.exec.QueueCapacity(),
		"progress.estimated_total", totalString(total),
	)

	p.group.Go(func() error {
		err := p.source.Produce(r.ctx, submit)
		if err != nil {
			return err
		}

		marker := EndOfQueue{Submitted: submitted}

		err = r.results.Submit(func() Result { return marker })
		if err != nil && r.ctx.Err() == nil {
			return fmt.Errorf("submit end of queue: %w", err)
		}

		return nil
	})

	return p.consume(ctx, r)
}

// prime handles the first line on the calling goroutine: a generator summary
// block yields the estimated total, anything else is the first candidate.
func (p *Pipeline) prime(submit func(string) error) (*big.Int, error) {
	first, ok, err := p.source.Next()
	if err != nil || !ok {
		return nil, err
	}

	total, hint, err := p.source.DetectTotal(first)
	if err != nil {
		return nil, err
	}

	if hint {
		return total, nil
	}

	err = submit(first)
	if err != nil {
		return nil, fmt.Errorf("submit candidate: %w", err)
	}

	return nil, nil
}

func (p *Pipeline) consume(ctx context.Context, r *run) (Summary, error) {
	var (
		received  uint64
		expected  uint64
		exhausted bool
	)

	for {
		result, err := r.results.Take(r.ctx)
		if err == nil && r.ctx.Err() != nil {
			err = context.Cause(r.ctx)
		}

		if err != nil {
			if ctx.Err() != nil {
				err = context.Cause(ctx)
			}

			return p.finish(ctx, r, err)
		}

		switch res := result.(type) {
		case EndOfQueue:
			exhausted = true
			expected = res.Submitted
		case Outcome:
			received++
			r.summary.Probed++

			if res.Err != nil {
				r.summary.Failed++
				p.logger.DebugContext(ctx, "check failed",
					observability.AttrCandidate, res.Candidate,
					"error", res.Err,
				)
			}

			if res.Match {
				r.summary.Hits = append(r.summary.Hits, res.Candidate)
				fmt.Fprintln(p.out, p.hitStyle(msgFound, res.Candidate))

				if p.cfg.HaltOnFirstHit {
					r.summary.State = StateHaltedOnHit

					return p.finish(ctx, r, nil)
				}
			}

			r.reporter.Observe(res.Candidate, r.summary.Probed)
		}

		if exhausted && received >= expected {
			if len(r.summary.Hits) == 0 {
				fmt.Fprintln(p.out, msgNotFound)
			}

			r.summary.State = StateExhausted

			return p.finish(ctx, r, nil)
		}
	}
}

// finish halts the executor and the producer and completes the summary.
func (p *Pipeline) finish(ctx context.Context, r *run, err error) (Summary, error) {
	cause := errHalted
	if err != nil {
		cause = err
	}

	r.cancel(cause)
	p.exec.ShutdownNow()
	p.source.Interrupt()

	r.summary.Elapsed = r.reporter.Elapsed()
	r.summary.Lines = p.source.Lines()
	r.summary.Executor = p.exec.Stats()

	p.metrics.RecordRun(ctx, observability.RunStats{
		CallerRuns: r.summary.Executor.CallerRuns,
		Abandoned:  r.summary.Executor.Abandoned,
	})

	if err != nil {
		p.logger.ErrorContext(ctx, "pipeline failed", "error", err, "pipeline.probed", r.summary.Probed)

		return r.summary, err
	}

	p.logger.InfoContext(ctx, "pipeline finished",
		"pipeline.state", r.summary.State.String(),
		"pipeline.probed", r.summary.Probed,
		"pipeline.hits", len(r.summary.Hits),
		"executor.caller_runs", r.summary.Executor.CallerRuns,
		"executor.abandoned", r.summary.Executor.Abandoned,
	)

	return r.summary, nil
}

func (p *Pipeline) checkTask(ctx context.Context, candidate string) func() Result {
	return func() Result {
		done := p.metrics.TrackInflight(ctx)
		defer done()

		start := time.Now()
		match, err := p.checker.Check(candidate)

		label := observability.ResultMiss

		switch {
		case err != nil:
			label = observability.ResultError
			match = false
		case match:
			label = observability.ResultHit
		}

		p.metrics.RecordCheck(ctx, label, time.Since(start))

		return Outcome{Candidate: candidate, Match: match, Err: err}
	}
}

// Wait blocks until the producer and every worker have exited. Call it after
// Run returned; it returns immediately if Run was never called.
func (p *Pipeline) Wait() {
	if p.group != nil {
		_ = p.group.Wait()
	}

	if p.exec != nil {
		p.exec.Wait()
	}
}

func totalString(total *big.Int) string {
	if total == nil {
		return "unknown"
	}

	return total.String()
}
