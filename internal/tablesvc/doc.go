// Package tablesvc exposes the two corporate tables over gRPC.
//
// The service corpstore.tables.v1.Tables is described by hand and carries
// protobuf well-known types (structpb, wrapperspb, emptypb), so it needs no
// generated code. Server publishes any storage.Backend; Client implements
// storage.Backend against a remote Server, which is what the "remote"
// storage mode uses.
package tablesvc
