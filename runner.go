package stagepipe

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the terminal status of a run.
type RunStatus string

const (
	StatusCompleted    RunStatus = "Completed"
	StatusFailed       RunStatus = "Failed"
	StatusNothingToRun RunStatus = "NothingToRun"
)

// RunState is the lifecycle state of a run.
type RunState int

const (
	StateIdle RunState = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RunResult contains the result of a pipeline execution. The final payload is
// not retained.
type RunResult struct {
	ID     uuid.UUID
	Status RunStatus
	// Reason is set when Status is StatusFailed.
	Reason FailureReason
	// Err is the cause of a failure, or ErrNothingToRun.
	Err error
	// Executed counts the elements that completed.
	Executed      int
	ExecutionTime time.Duration
}

// Success reports whether the run completed.
func (r RunResult) Success() bool {
	return r.Status == StatusCompleted
}

// State maps the status onto the terminal lifecycle state. A run with
// nothing to execute never left Idle.
func (r RunResult) State() RunState {
	switch r.Status {
	case StatusCompleted:
		return StateCompleted
	case StatusFailed:
		return StateFailed
	default:
		return StateIdle
	}
}

// String returns Completed, NothingToRun or Failed:<reason>.
func (r RunResult) String() string {
	if r.Status == StatusFailed {
		return fmt.Sprintf("%s:%s", r.Status, r.Reason)
	}
	return string(r.Status)
}

// Runner executes pipelines and manages the execution chain. It supports
// middleware around every element and hands asynchronous runs to an Executor.
type Runner struct {
	registry   *Registry
	logger     Logger
	middleware []ElementMiddleware
	executor   Executor
	notifier   *Notifier
	batchLimit int
}

// RunnerOption is a function that configures a Runner
type RunnerOption func(*Runner)

// WithMiddleware adds element middleware to the runner
func WithMiddleware(middleware ...ElementMiddleware) RunnerOption {
	return func(r *Runner) {
		r.middleware = append(r.middleware, middleware...)
	}
}

// WithLogger sets the logger for the runner
func WithLogger(logger Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithRegistry sets the registry used to rebuild serialized pipelines
func WithRegistry(reg *Registry) RunnerOption {
	return func(r *Runner) {
		r.registry = reg
	}
}

// WithExecutor routes asynchronous runs through e instead of a local goroutine
func WithExecutor(e Executor) RunnerOption {
	return func(r *Runner) {
		r.executor = e
	}
}

// WithNotifier publishes run results on n
func WithNotifier(n *Notifier) RunnerOption {
	return func(r *Runner) {
		r.notifier = n
	}
}

// WithBatchLimit bounds the number of concurrent runs in RunBatch. Zero or
// less means unbounded.
func WithBatchLimit(limit int) RunnerOption {
	return func(r *Runner) {
		r.batchLimit = limit
	}
}

// NewRunner creates a new pipeline runner with the given options
func NewRunner(opts ...RunnerOption) *Runner {
	runner := &Runner{
		registry: DefaultRegistry,
		logger:   NewDefaultLogger(),
		notifier: NewNotifier(),
	}

	for _, opt := range opts {
		opt(runner)
	}

	return runner
}

// Use adds middleware to the runner's middleware chain
func (r *Runner) Use(middleware ...ElementMiddleware) {
	r.middleware = append(r.middleware, middleware...)
}

// Subscribe registers an observer for run results.
func (r *Runner) Subscribe(o Observer) (cancel func()) {
	return r.notifier.Subscribe(o)
}

// Run executes a snapshot on the calling goroutine. The payload starts as nil
// and every element receives the previous element's output together with the
// element that follows it. The first error halts the run.
func (r *Runner) Run(ctx context.Context, s Snapshot) RunResult {
	if ctx == nil {
		ctx = context.Background()
	}
	result := r.fold(ctx, s)
	r.finish(&result)
	return result
}

// RunPipeline snapshots p and runs the snapshot.
func (r *Runner) RunPipeline(ctx context.Context, p *Pipeline) RunResult {
	return r.Run(ctx, p.Snapshot())
}

// RunSerialized rebuilds sp into a private pipeline and runs it. A document
// that cannot be rebuilt fails with the reason of the deserialize error.
func (r *Runner) RunSerialized(ctx context.Context, sp SerializedPipeline) RunResult {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	p, err := Deserialize(r.registry, sp)
	if err != nil {
		r.logger.Error("Cannot rebuild pipeline: %v", err)
		result := RunResult{
			ID:            uuid.New(),
			Status:        StatusFailed,
			Reason:        classify(err),
			Err:           err,
			ExecutionTime: time.Since(start),
		}
		r.finish(&result)
		return result
	}
	return r.Run(ctx, p.Snapshot())
}

// RunAsync runs a serialized pipeline on a worker and returns a channel that
// delivers exactly one result and is then closed. The worker owns its own
// copy of the pipeline; later changes to sp or to the pipeline it came from
// do not affect the run.
func (r *Runner) RunAsync(ctx context.Context, sp SerializedPipeline) <-chan RunResult {
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan RunResult, 1)
	sp = sp.Clone()

	go func() {
		defer close(done)
		if r.executor == nil {
			done <- r.RunSerialized(ctx, sp)
			return
		}

		start := time.Now()
		completion, err := r.executor.Execute(ctx, sp)
		var result RunResult
		if err != nil {
			r.logger.Error("Worker failed: %v", err)
			result = RunResult{
				ID:            uuid.New(),
				Status:        StatusFailed,
				Reason:        ReasonUnspecified,
				Err:           fmt.Errorf("worker: %w", err),
				ExecutionTime: time.Since(start),
			}
		} else {
			result = completion.Result()
		}
		r.finish(&result)
		done <- result
	}()

	return done
}

func (r *Runner) fold(ctx context.Context, s Snapshot) RunResult {
	start := time.Now()
	result := RunResult{ID: uuid.New()}

	if s.Empty() {
		r.logger.Info("Nothing to run")
		result.Status = StatusNothingToRun
		result.Err = ErrNothingToRun
		return result
	}

	r.logger.Info("Starting run %s with %d elements", result.ID, s.Len())

	// Build the middleware chain
	var handler ElementRunnerFunc = r.runElement

	// Apply middleware in reverse order
	for i := len(r.middleware) - 1; i >= 0; i-- {
		handler = r.middleware[i](handler)
	}

	var payload any
	for i, e := range s.elements {
		var next *Element
		if i+1 < len(s.elements) {
			next = s.elements[i+1].copy()
		}

		r.logger.Debug("Executing element %d/%d: %s", i+1, s.Len(), e.Name())
		out, err := handler(ctx, e, payload, next, i)
		if err != nil {
			result.Status = StatusFailed
			result.Reason = runFailureReason(err)
			result.Err = &RunError{Index: i, Element: e.Name(), Stage: e.TypeID(), Err: err}
			result.ExecutionTime = time.Since(start)
			return result
		}
		payload = out
		result.Executed++
	}

	result.Status = StatusCompleted
	result.ExecutionTime = time.Since(start)
	return result
}

// runFailureReason classifies an element error. Only parameter errors are
// singled out; everything else is unspecified.
func runFailureReason(err error) FailureReason {
	if classify(err) == ReasonParameterInvalid {
		return ReasonParameterInvalid
	}
	return ReasonUnspecified
}

// runElement is the core element execution logic
func (r *Runner) runElement(ctx context.Context, e *Element, input any, next *Element, index int) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("element panicked: %v", p)
		}
	}()
	return e.Run(ctx, input, next)
}

func (r *Runner) finish(result *RunResult) {
	switch result.Status {
	case StatusCompleted:
		r.logger.Info("Run %s completed in %v", result.ID, result.ExecutionTime.Round(time.Millisecond))
	case StatusFailed:
		r.logger.Error("Run %s failed (%s): %v", result.ID, result.Reason, result.Err)
	}
	r.notifier.Publish(Event{Kind: EventRunFinished, Result: result})
}

// LoggingMiddleware creates a middleware that logs every element execution
func LoggingMiddleware(logger Logger) ElementMiddleware {
	return func(next ElementRunnerFunc) ElementRunnerFunc {
		return func(ctx context.Context, e *Element, input any, nextElement *Element, index int) (any, error) {
			logger.Info("Middleware: Starting element %d %s", index, e.Name())

			start := time.Now()
			out, err := next(ctx, e, input, nextElement, index)
			duration := time.Since(start)

			if err != nil {
				logger.Error("Middleware: Element %d %s failed after %v: %v",
					index, e.Name(), duration.Round(time.Millisecond), err)
			} else {
				logger.Info("Middleware: Element %d %s completed in %v",
					index, e.Name(), duration.Round(time.Millisecond))
			}

			return out, err
		}
	}
}

// TimeLimitMiddleware creates a middleware that gives every element a context
// deadline. Elements that ignore their context are not interrupted.
func TimeLimitMiddleware(limit time.Duration) ElementMiddleware {
	return func(next ElementRunnerFunc) ElementRunnerFunc {
		return func(ctx context.Context, e *Element, input any, nextElement *Element, index int) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, limit)
			defer cancel()
			return next(ctx, e, input, nextElement, index)
		}
	}
}
