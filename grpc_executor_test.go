package stagepipe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startGRPCWorker(t *testing.T, reg *Registry) *GRPCWorkerServer {
	t.Helper()
	server := NewGRPCWorkerServer(reg)
	require.NoError(t, server.Listen("127.0.0.1:0"))
	go func() { _ = server.Serve() }()
	t.Cleanup(server.Stop)
	return server
}

func TestGRPCExecutorRunsPipeline(t *testing.T) {
	reg := newTestRegistry(t)
	server := startGRPCWorker(t, reg)

	client, err := NewGRPCExecutor(server.Addr())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runner := NewRunner(WithRegistry(reg), WithExecutor(client))
	result := <-runner.RunAsync(ctx, buildTestPipeline(t, reg).Serialize())

	// Check results
	require.True(t, result.Success(), "run failed: %v", result.Err)
	assert.Equal(t, 5, result.Executed)
}

func TestGRPCExecutorRunsParameterlessStages(t *testing.T) {
	reg := newTestRegistry(t, append(defaultTestTypes(), plainType())...)
	server := startGRPCWorker(t, reg)

	client, err := NewGRPCExecutor(server.Addr())
	require.NoError(t, err)
	defer client.Close()

	p := NewPipeline()
	mustAdd(t, p, reg, "extract")
	mustAdd(t, p, reg, "plain")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	local := NewRunner(WithRegistry(reg)).RunPipeline(ctx, p)
	remote := <-NewRunner(WithRegistry(reg), WithExecutor(client)).RunAsync(ctx, p.Serialize())

	// Check results
	require.True(t, remote.Success(), "run failed: %v", remote.Err)
	assert.Equal(t, local.Status, remote.Status)
	assert.Equal(t, local.Executed, remote.Executed)
}

func TestGRPCExecutorReportsFailures(t *testing.T) {
	reg := newTestRegistry(t, append(defaultTestTypes(),
		failingType("broken", PostProcessor, ErrParameterInvalid))...)
	server := startGRPCWorker(t, reg)

	client, err := NewGRPCExecutor(server.Addr())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p := NewPipeline()
	mustAdd(t, p, reg, "extract")
	mustAdd(t, p, reg, "broken")

	c, err := client.Execute(ctx, p.Serialize())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, c.Status)
	assert.Equal(t, ReasonParameterInvalid, c.Reason)
	assert.Equal(t, 1, c.Executed)

	// A stage the worker does not know
	sp := p.Serialize()
	sp[0].StageImplSourceID = "other"
	c, err = client.Execute(ctx, sp)
	require.NoError(t, err)
	result := c.Result()
	assert.Equal(t, ReasonStageUnavailable, result.Reason)
	assert.True(t, errors.Is(result.Err, ErrStageUnavailable))
}

func TestGRPCExecutorUnreachable(t *testing.T) {
	client, err := NewGRPCExecutor("127.0.0.1:1")
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result := <-NewRunner(WithExecutor(client)).RunAsync(ctx, SerializedPipeline{})
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, ReasonUnspecified, result.Reason)
}

func TestGRPCWorkerServerListenTwice(t *testing.T) {
	server := NewGRPCWorkerServer(NewRegistry())
	assert.Equal(t, "", server.Addr())
	assert.Error(t, server.Serve())

	require.NoError(t, server.Listen("127.0.0.1:0"))
	assert.NotEmpty(t, server.Addr())
	assert.Error(t, server.Listen("127.0.0.1:0"))
	server.Stop()
}

func TestNewExecutor(t *testing.T) {
	e, err := NewExecutor(WorkerConfig{})
	require.NoError(t, err)
	assert.IsType(t, &LocalExecutor{}, e)

	e, err = NewExecutor(WorkerConfig{Type: WorkerProcess, Command: "/bin/worker", Args: []string{"worker"}})
	require.NoError(t, err)
	pe, ok := e.(*ProcessExecutor)
	require.True(t, ok)
	assert.Equal(t, "/bin/worker", pe.Command)

	e, err = NewExecutor(WorkerConfig{Type: WorkerGRPC, GRPCAddress: "127.0.0.1:50061"})
	require.NoError(t, err)
	assert.IsType(t, &GRPCExecutor{}, e)
	require.NoError(t, e.(*GRPCExecutor).Close())

	_, err = NewExecutor(WorkerConfig{Type: "thread"})
	assert.Error(t, err)
}

func TestWorkerEnvironment(t *testing.T) {
	t.Setenv("STAGEPIPE_WORKER", "grpc")
	t.Setenv("STAGEPIPE_GRPC_ADDRESS", "worker.internal")
	t.Setenv("STAGEPIPE_GRPC_PORT", "6000")

	assert.Equal(t, WorkerGRPC, WorkerTypeFromEnv())
	assert.Equal(t, "worker.internal:6000", GRPCAddressFromEnv())

	t.Setenv("STAGEPIPE_WORKER", "bogus")
	t.Setenv("STAGEPIPE_GRPC_ADDRESS", "")
	t.Setenv("STAGEPIPE_GRPC_PORT", "not-a-port")
	assert.Equal(t, WorkerGoroutine, WorkerTypeFromEnv())
	assert.Equal(t, "localhost:50061", GRPCAddressFromEnv())
}

func TestLocalExecutor(t *testing.T) {
	reg := newTestRegistry(t)
	e := NewLocalExecutor(WithRegistry(reg))

	c, err := e.Execute(context.Background(), buildTestPipeline(t, reg).Serialize())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, c.Status)
	assert.Equal(t, 5, c.Executed)
}
