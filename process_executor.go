package stagepipe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Broker writes messages as JSON lines to a worker's output stream.
type Broker struct {
	mu     sync.Mutex
	output io.Writer
}

// NewBroker creates a broker writing to output.
func NewBroker(output io.Writer) *Broker {
	return &Broker{output: output}
}

// Send marshals payload and writes one message line.
func (b *Broker) Send(msgType MessageType, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	data, err := json.Marshal(Message{Type: msgType, Payload: payloadBytes})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	data = append(data, '\n')

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.output.Write(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// BrokerLogger is a Logger that forwards every line to the parent through a
// Broker.
type BrokerLogger struct {
	broker *Broker
}

// NewBrokerLogger creates a logger sending through broker.
func NewBrokerLogger(broker *Broker) *BrokerLogger {
	return &BrokerLogger{broker: broker}
}

func (l *BrokerLogger) send(level, format string, args ...interface{}) {
	_ = l.broker.Send(MessageTypeLog, LogPayload{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (l *BrokerLogger) Debug(format string, args ...interface{}) { l.send("debug", format, args...) }
func (l *BrokerLogger) Info(format string, args ...interface{})  { l.send("info", format, args...) }
func (l *BrokerLogger) Warn(format string, args ...interface{})  { l.send("warn", format, args...) }
func (l *BrokerLogger) Error(format string, args ...interface{}) { l.send("error", format, args...) }

// ProcessExecutor runs every pipeline in a fresh child process. The child
// receives the JSON pipeline document on stdin and answers with JSON lines on
// stdout: any number of log messages followed by one completion message.
// The child must call ServeProcessWorker with a registry holding the same
// stage types as the parent.
type ProcessExecutor struct {
	Command string
	Args    []string
	// Env is appended to the parent environment.
	Env []string
	// Logger receives forwarded worker log lines.
	Logger Logger
}

// Execute implements Executor.
func (e *ProcessExecutor) Execute(ctx context.Context, sp SerializedPipeline) (Completion, error) {
	doc, err := MarshalPipeline(sp)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to serialize pipeline: %w", err)
	}

	logger := e.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}

	cmd := exec.CommandContext(ctx, e.Command, e.Args...)
	cmd.Env = append(os.Environ(), e.Env...)
	cmd.Stdin = bytes.NewReader(doc)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Completion{}, fmt.Errorf("failed to open worker stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Completion{}, fmt.Errorf("failed to start worker process: %w", err)
	}

	completion, received, listenErr := listenWorker(stdout, logger)
	// Drain anything left so Wait does not block on a full pipe.
	_, _ = io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()

	switch {
	case received:
		return completion, nil
	case listenErr != nil:
		return Completion{}, fmt.Errorf("failed to read worker output: %w", listenErr)
	case waitErr != nil:
		return Completion{}, fmt.Errorf("worker process exited with error: %w: %s", waitErr, strings.TrimSpace(stderr.String()))
	default:
		return Completion{}, errors.New("worker process exited without a completion")
	}
}

func listenWorker(r io.Reader, logger Logger) (Completion, bool, error) {
	decoder := json.NewDecoder(r)
	for {
		var msg Message
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				return Completion{}, false, nil
			}
			return Completion{}, false, fmt.Errorf("failed to decode message: %w", err)
		}

		switch msg.Type {
		case MessageTypeLog:
			var entry LogPayload
			if err := json.Unmarshal(msg.Payload, &entry); err != nil {
				continue
			}
			logWorkerLine(logger, entry)
		case MessageTypeCompletion:
			var c Completion
			if err := json.Unmarshal(msg.Payload, &c); err != nil {
				return Completion{}, false, fmt.Errorf("failed to decode completion: %w", err)
			}
			return c, true, nil
		}
	}
}

func logWorkerLine(logger Logger, entry LogPayload) {
	switch entry.Level {
	case "debug":
		logger.Debug("[worker] %s", entry.Message)
	case "warn":
		logger.Warn("[worker] %s", entry.Message)
	case "error":
		logger.Error("[worker] %s", entry.Message)
	default:
		logger.Info("[worker] %s", entry.Message)
	}
}

// ServeProcessWorker is the entrypoint of a worker child process. It reads one
// pipeline document from in, runs it with a runner whose registry is reg, and
// writes log and completion messages to out. Pipeline failures are reported
// in the completion; the returned error only covers I/O problems.
func ServeProcessWorker(ctx context.Context, reg *Registry, in io.Reader, out io.Writer, opts ...RunnerOption) error {
	broker := NewBroker(out)
	logger := NewBrokerLogger(broker)

	doc, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("worker failed to read pipeline: %w", err)
	}

	var result RunResult
	sp, err := UnmarshalPipeline(doc)
	if err != nil {
		logger.Error("Cannot decode pipeline: %v", err)
		result = RunResult{ID: uuid.New(), Status: StatusFailed, Reason: classify(err), Err: err}
	} else {
		runnerOpts := append([]RunnerOption{WithRegistry(reg), WithLogger(logger)}, opts...)
		start := time.Now()
		result = NewRunner(runnerOpts...).RunSerialized(ctx, sp)
		logger.Debug("Worker finished in %v", time.Since(start).Round(time.Millisecond))
	}

	if err := broker.Send(MessageTypeCompletion, result.Completion()); err != nil {
		return fmt.Errorf("worker failed to send completion: %w", err)
	}
	return nil
}
