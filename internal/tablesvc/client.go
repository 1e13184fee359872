package tablesvc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"corpstore/internal/storage"
)

// Client is a storage.Backend backed by a remote table service.
type Client struct {
	conn *grpc.ClientConn
}

var _ storage.Backend = (*Client)(nil)

// Dial connects to the table service at addr and waits, bounded by ctx,
// until its health check reports SERVING.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	resp, err := healthpb.NewHealthClient(conn).Check(ctx,
		&healthpb.HealthCheckRequest{Service: ServiceName},
		grpc.WaitForReady(true),
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("table service %s unreachable: %w", addr, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		_ = conn.Close()
		return nil, fmt.Errorf("table service %s is %s", addr, resp.GetStatus())
	}

	return &Client{conn: conn}, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out proto.Message) error {
	if err := c.conn.Invoke(ctx, fullMethod(method), in, out); err != nil {
		return fmt.Errorf("tables %s: %w", method, err)
	}
	return nil
}

// GetRecord fetches one record. NotFound maps to ok == false.
func (c *Client) GetRecord(ctx context.Context, id string) (storage.Record, bool, error) {
	out := new(structpb.Struct)
	err := c.conn.Invoke(ctx, fullMethod(methodGetRecord), wrapperspb.String(id), out)
	if status.Code(err) == codes.NotFound {
		return storage.Record{}, false, nil
	}
	if err != nil {
		return storage.Record{}, false, fmt.Errorf("tables %s: %w", methodGetRecord, err)
	}
	rec, err := structToRecord(out)
	if err != nil {
		return storage.Record{}, false, err
	}
	return rec, true, nil
}

func (c *Client) PutRecord(ctx context.Context, rec storage.Record) error {
	return c.invoke(ctx, methodPutRecord, recordToStruct(rec), new(emptypb.Empty))
}

func (c *Client) ListRecords(ctx context.Context) ([]storage.Record, error) {
	out := new(structpb.ListValue)
	if err := c.invoke(ctx, methodListRecords, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	items, err := structsOf(out)
	if err != nil {
		return nil, err
	}
	records := make([]storage.Record, 0, len(items))
	for _, s := range items {
		rec, err := structToRecord(s)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (c *Client) AppendLog(ctx context.Context, entry storage.LogEntry) error {
	return c.invoke(ctx, methodAppendLog, logEntryToStruct(entry), new(emptypb.Empty))
}

func (c *Client) ListLog(ctx context.Context) ([]storage.LogEntry, error) {
	out := new(structpb.ListValue)
	if err := c.invoke(ctx, methodListLog, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	items, err := structsOf(out)
	if err != nil {
		return nil, err
	}
	entries := make([]storage.LogEntry, 0, len(items))
	for _, s := range items {
		e, err := structToLogEntry(s)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Close closes the connection. The remote backend stays open.
func (c *Client) Close() error {
	return c.conn.Close()
}
