package stagepipe

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Executor runs a serialized pipeline on a worker and reports its outcome.
// The error return is reserved for transport failures; a pipeline that fails
// is reported through the Completion.
type Executor interface {
	Execute(ctx context.Context, sp SerializedPipeline) (Completion, error)
}

// Completion is the terminal status of a run as it crosses a worker boundary.
type Completion struct {
	RunID      string        `json:"run_id"`
	Status     RunStatus     `json:"status"`
	Reason     FailureReason `json:"reason,omitempty"`
	Message    string        `json:"message,omitempty"`
	Executed   int           `json:"executed"`
	DurationNS int64         `json:"duration_ns"`
}

// Completion converts the result to its wire form.
func (r RunResult) Completion() Completion {
	c := Completion{
		RunID:      r.ID.String(),
		Status:     r.Status,
		Reason:     r.Reason,
		Executed:   r.Executed,
		DurationNS: r.ExecutionTime.Nanoseconds(),
	}
	if r.Status == StatusFailed && r.Err != nil {
		c.Message = r.Err.Error()
	}
	return c
}

// Result rebuilds a RunResult. Failure causes are rebuilt so that errors.Is
// still matches the sentinel the reason was classified from.
func (c Completion) Result() RunResult {
	id, err := uuid.Parse(c.RunID)
	if err != nil {
		id = uuid.New()
	}
	r := RunResult{
		ID:            id,
		Status:        c.Status,
		Reason:        c.Reason,
		Executed:      c.Executed,
		ExecutionTime: time.Duration(c.DurationNS),
	}
	switch c.Status {
	case StatusFailed:
		r.Err = &WorkerError{Message: c.Message, cause: c.Reason.sentinel()}
	case StatusNothingToRun:
		r.Err = ErrNothingToRun
	case StatusCompleted:
	default:
		r.Status = StatusFailed
		r.Reason = ReasonUnspecified
		r.Err = fmt.Errorf("worker reported unknown status %q", c.Status)
	}
	return r
}

// WorkerError is a run failure reported by a remote worker.
type WorkerError struct {
	Message string
	cause   error
}

func (e *WorkerError) Error() string {
	if e.Message == "" {
		return "worker reported failure"
	}
	return e.Message
}

func (e *WorkerError) Unwrap() error { return e.cause }

// LocalExecutor runs pipelines in-process with its own Runner.
type LocalExecutor struct {
	runner *Runner
}

// NewLocalExecutor creates an executor backed by a Runner built from opts.
func NewLocalExecutor(opts ...RunnerOption) *LocalExecutor {
	return &LocalExecutor{runner: NewRunner(opts...)}
}

// Execute implements Executor.
func (e *LocalExecutor) Execute(ctx context.Context, sp SerializedPipeline) (Completion, error) {
	return e.runner.RunSerialized(ctx, sp).Completion(), nil
}

// WorkerType selects where asynchronous runs execute.
type WorkerType string

const (
	WorkerGoroutine WorkerType = "goroutine"
	WorkerProcess   WorkerType = "process"
	WorkerGRPC      WorkerType = "grpc"
)

// ParseWorkerType parses a worker type name.
func ParseWorkerType(s string) (WorkerType, error) {
	switch WorkerType(s) {
	case WorkerGoroutine, "":
		return WorkerGoroutine, nil
	case WorkerProcess:
		return WorkerProcess, nil
	case WorkerGRPC:
		return WorkerGRPC, nil
	}
	return "", fmt.Errorf("unknown worker type %q", s)
}

// WorkerConfig holds configuration for creating executors
type WorkerConfig struct {
	Type WorkerType
	// Command and Args start a process worker. Command defaults to the
	// running executable.
	Command string
	Args    []string
	Env     []string
	// GRPCAddress is the host:port of a gRPC worker.
	GRPCAddress string
	// Logger receives log lines forwarded by process workers.
	Logger Logger
	// RunnerOptions configure the runner of a goroutine worker.
	RunnerOptions []RunnerOption
}

// NewExecutor creates an executor based on the configuration
func NewExecutor(config WorkerConfig) (Executor, error) {
	switch config.Type {
	case WorkerGoroutine, "":
		return NewLocalExecutor(config.RunnerOptions...), nil
	case WorkerProcess:
		command := config.Command
		if command == "" {
			exe, err := os.Executable()
			if err != nil {
				return nil, fmt.Errorf("failed to find executable path: %w", err)
			}
			command = exe
		}
		return &ProcessExecutor{
			Command: command,
			Args:    config.Args,
			Env:     config.Env,
			Logger:  config.Logger,
		}, nil
	case WorkerGRPC:
		address := config.GRPCAddress
		if address == "" {
			address = GRPCAddressFromEnv()
		}
		client, err := NewGRPCExecutor(address)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown worker type %q", config.Type)
	}
}

// WorkerTypeFromEnv returns the worker type from the STAGEPIPE_WORKER
// environment variable. Defaults to goroutine if not set or invalid.
func WorkerTypeFromEnv() WorkerType {
	t, err := ParseWorkerType(os.Getenv("STAGEPIPE_WORKER"))
	if err != nil {
		return WorkerGoroutine
	}
	return t
}

// GRPCAddressFromEnv returns the gRPC worker address from the environment.
// Defaults to localhost:50061.
func GRPCAddressFromEnv() string {
	address := os.Getenv("STAGEPIPE_GRPC_ADDRESS")
	if address == "" {
		address = "localhost"
	}

	port := 50061
	if portStr := os.Getenv("STAGEPIPE_GRPC_PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}

	return fmt.Sprintf("%s:%d", address, port)
}
