package stagepipe

import (
	"context"
	"encoding/json"
)

// MessageType is a string that defines the purpose of a worker message.
type MessageType string

const (
	// MessageTypeLog carries a log line from a worker to its parent.
	MessageTypeLog MessageType = "log"
	// MessageTypeCompletion is the final message from a worker with the outcome.
	MessageTypeCompletion MessageType = "completion"
)

// Message is the unit of communication between a parent and a worker process.
// Messages are written as one JSON object per line.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// LogPayload is the payload of a MessageTypeLog message.
type LogPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// ElementRunnerFunc is the core function type for executing one element of a
// run. index is the position of the element and next the element after it.
type ElementRunnerFunc func(ctx context.Context, element *Element, input any, next *Element, index int) (any, error)

// ElementMiddleware represents a function that wraps element execution.
// It allows performing operations before and after an element runs,
// with information about the element's position in the pipeline.
type ElementMiddleware func(next ElementRunnerFunc) ElementRunnerFunc

// Logger provides a simple interface for pipeline logging
type Logger interface {
	// Debug logs a message at debug level
	Debug(format string, args ...interface{})

	// Info logs a message at info level
	Info(format string, args ...interface{})

	// Warn logs a message at warning level
	Warn(format string, args ...interface{})

	// Error logs a message at error level
	Error(format string, args ...interface{})
}
