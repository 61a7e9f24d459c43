// Package api defines the wire envelope and RPC surface shared by
// JobService and WorkflowService: request/response types and the gRPC
// service descriptors that transport them.
//
// Every message here is a plain Go struct with json tags rather than a
// protoc-generated type. No protoc invocation is available in this
// environment, so the transport codec is JSON instead of the protobuf wire
// format; the gRPC service descriptors below are the same low-level
// grpc.ServiceDesc/MethodDesc/StreamDesc machinery protoc-gen-go-grpc
// would otherwise emit, hand-written against the JSON codec (see
// DESIGN.md for why google.golang.org/protobuf itself is not wired).
package api

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

// jsonCodec implements encoding.Codec by marshaling every message as JSON.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
