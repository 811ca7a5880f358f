package stagepipe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChildExecutor(t *testing.T, logger Logger) *ProcessExecutor {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	return &ProcessExecutor{
		Command: exe,
		Env:     []string{"STAGEPIPE_EXEC_CHILD=1"},
		Logger:  logger,
	}
}

func childPipeline(t *testing.T, names ...string) SerializedPipeline {
	t.Helper()
	reg := newTestRegistry(t, childTestTypes()...)
	p := NewPipeline()
	for _, name := range names {
		mustAdd(t, p, reg, name)
	}
	return p.Serialize()
}

func TestProcessExecutorCompletes(t *testing.T) {
	logger := &memoryLogger{}
	runner := NewRunner(WithExecutor(newChildExecutor(t, logger)))

	sp := childPipeline(t, "extract", "pre", "sort", "post")
	result := <-runner.RunAsync(context.Background(), sp)

	// Check results
	require.True(t, result.Success(), "run failed: %v", result.Err)
	assert.Equal(t, 4, result.Executed)

	lines := strings.Join(logger.snapshot(), "\n")
	assert.Contains(t, lines, "[worker] Starting run")
}

func TestProcessExecutorMatchesLocalWithoutParameters(t *testing.T) {
	sp := childPipeline(t, "extract", "plain")
	reg := newTestRegistry(t, childTestTypes()...)

	local := NewRunner(WithRegistry(reg)).RunSerialized(context.Background(), sp)
	remote := <-NewRunner(WithExecutor(newChildExecutor(t, nil))).RunAsync(context.Background(), sp)

	// Check results
	require.True(t, local.Success(), "local run failed: %v", local.Err)
	require.True(t, remote.Success(), "worker run failed: %v", remote.Err)
	assert.Equal(t, local.Executed, remote.Executed)
}

func TestProcessExecutorReportsFailureReason(t *testing.T) {
	runner := NewRunner(WithExecutor(newChildExecutor(t, nil)))

	result := <-runner.RunAsync(context.Background(), childPipeline(t, "extract", "reject"))
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, ReasonParameterInvalid, result.Reason)
	assert.True(t, errors.Is(result.Err, ErrParameterInvalid))
	assert.Contains(t, result.Err.Error(), "threshold must be positive")
	assert.Equal(t, 1, result.Executed)

	result = <-runner.RunAsync(context.Background(), childPipeline(t, "crash"))
	assert.Equal(t, ReasonUnspecified, result.Reason)
}

func TestProcessExecutorUnknownStage(t *testing.T) {
	runner := NewRunner(WithExecutor(newChildExecutor(t, nil)))

	sp := childPipeline(t, "extract")
	sp[0].StageImplTypeName = "not-registered"
	result := <-runner.RunAsync(context.Background(), sp)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, ReasonStageUnavailable, result.Reason)
	assert.True(t, errors.Is(result.Err, ErrStageUnavailable))
}

func TestProcessExecutorEmptyPipeline(t *testing.T) {
	runner := NewRunner(WithExecutor(newChildExecutor(t, nil)))

	result := <-runner.RunAsync(context.Background(), SerializedPipeline{})
	assert.Equal(t, StatusNothingToRun, result.Status)
	assert.True(t, errors.Is(result.Err, ErrNothingToRun))
}

func TestProcessExecutorMissingBinary(t *testing.T) {
	exec := &ProcessExecutor{Command: "/nonexistent/stagepipe-worker"}
	_, err := exec.Execute(context.Background(), SerializedPipeline{})
	assert.Error(t, err)

	runner := NewRunner(WithExecutor(exec))
	result := <-runner.RunAsync(context.Background(), SerializedPipeline{})
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, ReasonUnspecified, result.Reason)
}

func TestServeProcessWorkerProtocol(t *testing.T) {
	reg := newTestRegistry(t)
	doc, err := MarshalPipeline(buildTestPipeline(t, reg).Serialize())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, ServeProcessWorker(context.Background(), reg, bytes.NewReader(doc), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.NotEmpty(t, lines)

	// Every line is a message; only the last is the completion
	for _, line := range lines[:len(lines)-1] {
		var msg Message
		require.NoError(t, json.Unmarshal([]byte(line), &msg))
		assert.Equal(t, MessageTypeLog, msg.Type)
	}

	var last Message
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &last))
	require.Equal(t, MessageTypeCompletion, last.Type)

	var c Completion
	require.NoError(t, json.Unmarshal(last.Payload, &c))
	assert.Equal(t, StatusCompleted, c.Status)
	assert.Equal(t, 5, c.Executed)
}

func TestServeProcessWorkerInvalidDocument(t *testing.T) {
	var out bytes.Buffer
	err := ServeProcessWorker(context.Background(), NewRegistry(), strings.NewReader(`{"not": "a pipeline"}`), &out)
	require.NoError(t, err)

	completion, received, err := listenWorker(&out, NewDefaultLogger())
	require.NoError(t, err)
	require.True(t, received)
	assert.Equal(t, StatusFailed, completion.Status)
	assert.Equal(t, ReasonInvalidPipeline, completion.Reason)
}

func TestListenWorkerForwardsLogs(t *testing.T) {
	var buf bytes.Buffer
	broker := NewBroker(&buf)
	require.NoError(t, broker.Send(MessageTypeLog, LogPayload{Level: "warn", Message: "disk almost full"}))
	require.NoError(t, broker.Send(MessageTypeLog, LogPayload{Level: "debug", Message: "detail"}))

	logger := &memoryLogger{}
	_, received, err := listenWorker(&buf, logger)

	// Check results
	require.NoError(t, err)
	assert.False(t, received)
	assert.Equal(t, []string{"warn: [worker] disk almost full", "debug: [worker] detail"}, logger.snapshot())
}
