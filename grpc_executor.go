package stagepipe

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const workerRunMethod = "/stagepipe.Worker/Run"

// workerService is the server side of the stagepipe.Worker service. Run takes
// a JSON pipeline document and answers with a JSON Completion, both carried
// in BytesValue wrappers.
type workerService interface {
	Run(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

func workerRunHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(workerService).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: workerRunMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(workerService).Run(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

var workerServiceDesc = grpc.ServiceDesc{
	ServiceName: "stagepipe.Worker",
	HandlerType: (*workerService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: workerRunHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stagepipe/worker",
}

// GRPCWorkerServer serves pipeline runs over gRPC.
type GRPCWorkerServer struct {
	mu       deadlock.Mutex
	runner   *Runner
	server   *grpc.Server
	listener net.Listener
}

// NewGRPCWorkerServer creates a worker server whose runner rebuilds pipelines
// from reg.
func NewGRPCWorkerServer(reg *Registry, opts ...RunnerOption) *GRPCWorkerServer {
	runnerOpts := append([]RunnerOption{WithRegistry(reg)}, opts...)
	s := &GRPCWorkerServer{
		runner: NewRunner(runnerOpts...),
		server: grpc.NewServer(),
	}
	s.server.RegisterService(&workerServiceDesc, s)
	return s
}

// Run implements the stagepipe.Worker/Run method.
func (s *GRPCWorkerServer) Run(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var result RunResult
	sp, err := UnmarshalPipeline(in.GetValue())
	if err != nil {
		s.runner.logger.Error("Cannot decode pipeline: %v", err)
		result = RunResult{ID: uuid.New(), Status: StatusFailed, Reason: classify(err), Err: err}
	} else {
		result = s.runner.RunSerialized(ctx, sp)
	}

	data, err := json.Marshal(result.Completion())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to marshal completion: %v", err)
	}
	return wrapperspb.Bytes(data), nil
}

// Listen binds the server to address. Use port 0 to pick a free port.
func (s *GRPCWorkerServer) Listen(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return fmt.Errorf("server already listening on %s", s.listener.Addr())
	}
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = lis
	return nil
}

// Addr returns the bound address, or "" before Listen.
func (s *GRPCWorkerServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve accepts connections until Stop is called.
func (s *GRPCWorkerServer) Serve() error {
	s.mu.Lock()
	lis := s.listener
	s.mu.Unlock()
	if lis == nil {
		return fmt.Errorf("server is not listening")
	}
	return s.server.Serve(lis)
}

// Stop gracefully stops the server and releases the listener.
func (s *GRPCWorkerServer) Stop() {
	s.server.GracefulStop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// GRPCExecutor sends pipelines to a GRPCWorkerServer.
type GRPCExecutor struct {
	conn *grpc.ClientConn
}

// NewGRPCExecutor creates a client for the worker at address. The connection
// is established lazily on the first Execute.
func NewGRPCExecutor(address string) (*GRPCExecutor, error) {
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker client: %w", err)
	}
	return &GRPCExecutor{conn: conn}, nil
}

// Execute implements Executor.
func (e *GRPCExecutor) Execute(ctx context.Context, sp SerializedPipeline) (Completion, error) {
	doc, err := MarshalPipeline(sp)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to serialize pipeline: %w", err)
	}

	out := new(wrapperspb.BytesValue)
	if err := e.conn.Invoke(ctx, workerRunMethod, wrapperspb.Bytes(doc), out); err != nil {
		return Completion{}, fmt.Errorf("worker call failed: %w", err)
	}

	var c Completion
	if err := json.Unmarshal(out.GetValue(), &c); err != nil {
		return Completion{}, fmt.Errorf("failed to decode completion: %w", err)
	}
	return c, nil
}

// Close closes the client connection.
func (e *GRPCExecutor) Close() error {
	return e.conn.Close()
}
