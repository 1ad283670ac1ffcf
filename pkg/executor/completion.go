package executor

import "context"

// CompletionService submits value-producing tasks to an [Executor] and
// returns their values in completion order, not submission order.
type CompletionService[T any] struct {
	exec *Executor
	done chan T
}

// NewCompletionService creates a completion service whose result buffer holds
// up to capacity finished values. A full buffer stalls workers until Take
// drains it, so memory stays bounded.
func NewCompletionService[T any](exec *Executor, capacity int) *CompletionService[T] {
	return &CompletionService[T]{
		exec: exec,
		done: make(chan T, max(capacity, 1)),
	}
}

// Submit schedules task. Its value becomes available to Take when it finishes.
// Values produced after the executor is shut down may be dropped.
func (cs *CompletionService[T]) Submit(task func() T) error {
	return cs.exec.Execute(func() {
		value := task()

		select {
		case cs.done <- value:
		case <-cs.exec.Done():
		}
	})
}

// Take blocks until some submitted task finishes and returns its value.
// It returns the context cause if ctx ends first.
func (cs *CompletionService[T]) Take(ctx context.Context) (T, error) {
	select {
	case value := <-cs.done:
		return value, nil
	case <-ctx.Done():
		var zero T

		return zero, context.Cause(ctx)
	}
}
