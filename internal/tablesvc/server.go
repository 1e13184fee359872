package tablesvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"corpstore/internal/storage"
)

// Server implements TablesServer over a storage backend.
type Server struct {
	backend storage.Backend
	log     *slog.Logger
}

// NewServer creates a table server for backend.
func NewServer(backend storage.Backend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{backend: backend, log: logger}
}

// GetRecord returns the record named by the request, or NotFound.
func (s *Server) GetRecord(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id := req.GetValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	rec, ok, err := s.backend.GetRecord(ctx, id)
	if err != nil {
		return nil, s.toStatus(methodGetRecord, err)
	}
	if !ok {
		return nil, status.Errorf(codes.NotFound, "record %q not found", id)
	}
	return recordToStruct(rec), nil
}

// PutRecord replaces the record carried by the request.
func (s *Server) PutRecord(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	rec, err := structToRecord(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.backend.PutRecord(ctx, rec); err != nil {
		return nil, s.toStatus(methodPutRecord, err)
	}
	s.log.Debug("record stored", "id", rec.ID)
	return &emptypb.Empty{}, nil
}

// ListRecords returns every record.
func (s *Server) ListRecords(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	records, err := s.backend.ListRecords(ctx)
	if err != nil {
		return nil, s.toStatus(methodListRecords, err)
	}
	items := make([]*structpb.Struct, 0, len(records))
	for _, rec := range records {
		items = append(items, recordToStruct(rec))
	}
	return listOf(items), nil
}

// AppendLog appends the log entry carried by the request.
func (s *Server) AppendLog(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	entry, err := structToLogEntry(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.backend.AppendLog(ctx, entry); err != nil {
		return nil, s.toStatus(methodAppendLog, err)
	}
	return &emptypb.Empty{}, nil
}

// ListLog returns every log entry in append order.
func (s *Server) ListLog(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	entries, err := s.backend.ListLog(ctx)
	if err != nil {
		return nil, s.toStatus(methodListLog, err)
	}
	items := make([]*structpb.Struct, 0, len(entries))
	for _, e := range entries {
		items = append(items, logEntryToStruct(e))
	}
	return listOf(items), nil
}

func (s *Server) toStatus(method string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, storage.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	}
	s.log.Error("table operation failed", "method", method, "error", err)
	return status.Error(codes.Internal, err.Error())
}

// NewGRPCServer builds a grpc.Server carrying the table service, the
// standard health service and reflection.
func NewGRPCServer(backend storage.Backend, logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	gs := grpc.NewServer(opts...)
	RegisterTablesServer(gs, NewServer(backend, logger))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	// grpcurl support
	reflection.Register(gs)
	return gs, hs
}

// Serve runs the table service on lis until ctx is cancelled, then stops
// gracefully. The backend is not closed.
func Serve(ctx context.Context, lis net.Listener, backend storage.Backend, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	gs, hs := NewGRPCServer(backend, logger)

	logger.Info("table service listening", "addr", lis.Addr().String())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- gs.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		hs.Shutdown()
		gs.GracefulStop()
		err := <-serveErr
		logger.Info("table service stopped")
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve tables: %w", err)
	case err := <-serveErr:
		hs.Shutdown()
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve tables: %w", err)
	}
}
