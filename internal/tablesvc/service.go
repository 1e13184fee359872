package tablesvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "corpstore.tables.v1.Tables"

// Method names.
const (
	methodGetRecord   = "GetRecord"
	methodPutRecord   = "PutRecord"
	methodListRecords = "ListRecords"
	methodAppendLog   = "AppendLog"
	methodListLog     = "ListLog"
)

// TablesServer is the server API of the table service.
type TablesServer interface {
	GetRecord(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	PutRecord(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	ListRecords(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	AppendLog(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	ListLog(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
}

// RegisterTablesServer registers srv on s.
func RegisterTablesServer(s grpc.ServiceRegistrar, srv TablesServer) {
	s.RegisterService(&tablesServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

var tablesServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TablesServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: methodGetRecord,
			Handler: unaryHandler(methodGetRecord, func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) },
				func(s TablesServer, ctx context.Context, in *wrapperspb.StringValue) (proto.Message, error) {
					return s.GetRecord(ctx, in)
				}),
		},
		{
			MethodName: methodPutRecord,
			Handler: unaryHandler(methodPutRecord, func() *structpb.Struct { return new(structpb.Struct) },
				func(s TablesServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
					return s.PutRecord(ctx, in)
				}),
		},
		{
			MethodName: methodListRecords,
			Handler: unaryHandler(methodListRecords, func() *emptypb.Empty { return new(emptypb.Empty) },
				func(s TablesServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
					return s.ListRecords(ctx, in)
				}),
		},
		{
			MethodName: methodAppendLog,
			Handler: unaryHandler(methodAppendLog, func() *structpb.Struct { return new(structpb.Struct) },
				func(s TablesServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
					return s.AppendLog(ctx, in)
				}),
		},
		{
			MethodName: methodListLog,
			Handler: unaryHandler(methodListLog, func() *emptypb.Empty { return new(emptypb.Empty) },
				func(s TablesServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
					return s.ListLog(ctx, in)
				}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "corpstore/tables/v1/tables.proto",
}

// unaryHandler adapts a typed call into a grpc.MethodHandler, running any
// configured interceptor the way generated code does.
func unaryHandler[Req proto.Message](
	method string,
	newReq func() Req,
	call func(TablesServer, context.Context, Req) (proto.Message, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(TablesServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(s, ctx, req.(Req))
		})
	}
}
