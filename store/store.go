package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/davidroman0O/stagepipe"
)

var (
	// ErrNotFound is returned when no pipeline is saved under a name.
	ErrNotFound = errors.New("pipeline not found")
	// ErrInvalidName is returned for empty or whitespace-only names.
	ErrInvalidName = errors.New("pipeline name cannot be empty")
)

// Entry is a saved pipeline.
type Entry struct {
	Name      string
	Pipeline  stagepipe.SerializedPipeline
	UpdatedAt time.Time
}

// Store persists serialized pipelines under unique names.
type Store interface {
	// Save creates or replaces the pipeline saved under name.
	Save(ctx context.Context, name string, sp stagepipe.SerializedPipeline) error
	// Load returns the pipeline saved under name, or ErrNotFound.
	Load(ctx context.Context, name string) (Entry, error)
	// List returns every saved pipeline ordered by name.
	List(ctx context.Context) ([]Entry, error)
	// Delete removes the pipeline saved under name, or returns ErrNotFound.
	Delete(ctx context.Context, name string) error
	// Close releases the store's resources.
	Close() error
}

func checkName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	return name, nil
}

func notFound(name string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, name)
}
