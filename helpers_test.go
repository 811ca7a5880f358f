package stagepipe

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSource = "test"

func testID(name string) TypeID {
	return TypeID{ImplSource: testSource, ImplType: name}
}

func testType(name string, cat StageCategory, params ParamList, fn StageFunc) StageType {
	return StageType{
		ID:          testID(name),
		Category:    cat,
		DisplayName: name,
		Params:      params,
		New:         func() StageImpl { return fn },
	}
}

func passthrough(ctx context.Context, params ParamList, input any, next *Element) (any, error) {
	return input, nil
}

// plainType is a pre-processor without parameters.
func plainType() StageType {
	return testType("plain", PreProcessor, nil, passthrough)
}

// appendStage appends its "tag" parameter to the []string payload.
func appendStage(ctx context.Context, params ParamList, input any, next *Element) (any, error) {
	tag, err := params.Str("tag")
	if err != nil {
		return nil, err
	}
	in, _ := input.([]string)
	out := append(append([]string{}, in...), tag)
	return out, nil
}

// defaultTestTypes covers the four categories with small deterministic stages.
func defaultTestTypes() []StageType {
	return []StageType{
		testType("extract", Extractor, ParamList{{Name: "tag", Type: ParamStr, Value: "x"}}, appendStage),
		testType("pre", PreProcessor, ParamList{
			{Name: "tag", Type: ParamStr, Value: "p"},
			{Name: "limit", Type: ParamInt, Value: 3},
		}, appendStage),
		testType("sort", Sorter, ParamList{{Name: "tag", Type: ParamStr, Value: "s"}}, appendStage),
		testType("post", PostProcessor, ParamList{{Name: "tag", Type: ParamStr, Value: "o"}}, appendStage),
	}
}

func newTestRegistry(t *testing.T, types ...StageType) *Registry {
	t.Helper()
	if len(types) == 0 {
		types = defaultTestTypes()
	}
	reg := NewRegistry()
	for _, st := range types {
		require.NoError(t, reg.Register(st))
	}
	return reg
}

func mustInstantiate(t *testing.T, reg *Registry, name string) *Element {
	t.Helper()
	e, err := reg.Instantiate(testID(name))
	require.NoError(t, err)
	return e
}

// mustAdd adds a fresh element of the named type and returns the inserted instance.
func mustAdd(t *testing.T, p *Pipeline, reg *Registry, name string) *Element {
	t.Helper()
	added, err := p.Add(mustInstantiate(t, reg, name))
	require.NoError(t, err)
	return added
}

func categoriesOf(elems []*Element) []StageCategory {
	out := make([]StageCategory, len(elems))
	for i, e := range elems {
		out[i] = e.Category()
	}
	return out
}

// eventRecorder collects events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

// memoryLogger records formatted lines per level.
type memoryLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *memoryLogger) add(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+": "+fmt.Sprintf(format, args...))
}

func (l *memoryLogger) Debug(format string, args ...interface{}) { l.add("debug", format, args...) }
func (l *memoryLogger) Info(format string, args ...interface{})  { l.add("info", format, args...) }
func (l *memoryLogger) Warn(format string, args ...interface{})  { l.add("warn", format, args...) }
func (l *memoryLogger) Error(format string, args ...interface{}) { l.add("error", format, args...) }

func (l *memoryLogger) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}
