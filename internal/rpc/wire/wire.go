// Package wire defines the over-the-wire contract for the control
// plane's single generic RPC surface. Every component - placement
// center, journal server, mqtt broker - exposes exactly one gRPC
// method, Invoke, that carries an Envelope; the envelope's Service and
// Interface fields pick which handler on the receiving end processes
// Data. This mirrors the shape of a protoc-gen-go-grpc generated
// client/server pair without requiring a .proto toolchain: Envelope is
// JSON-encoded through a custom grpc codec registered under the
// "json" content-subtype, instead of protobuf wire encoding.
package wire

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// Service names, one per cluster-facing component.
const (
	ServicePlacement = "placement"
	ServiceJournal   = "journal"
	ServiceBroker    = "broker"
)

// Interface names. Placement center.
const (
	InterfaceRegisterNode   = "RegisterNode"
	InterfaceUnregisterNode = "UnregisterNode"
	InterfaceHeartbeat      = "Heartbeat"
	InterfaceNodeList       = "NodeList"
	InterfaceUpdateCache    = "UpdateCache"
)

// Interface names. Journal server.
const (
	InterfaceCreateShard           = "CreateShard"
	InterfaceDeleteShard           = "DeleteShard"
	InterfaceListShard             = "ListShard"
	InterfaceDeleteShardFile       = "DeleteShardFile"
	InterfaceGetShardDeleteStatus  = "GetShardDeleteStatus"
	InterfaceCreateSegment         = "CreateSegment"
	InterfaceDeleteSegment         = "DeleteSegment"
	InterfaceListSegment           = "ListSegment"
	InterfaceUpdateSegmentStatus   = "UpdateSegmentStatus"
	InterfaceDeleteSegmentFile     = "DeleteSegmentFile"
	InterfaceGetSegmentDeleteStatus = "GetSegmentDeleteStatus"
	InterfaceGetSegmentOffsets     = "GetSegmentOffsets"
)

// Interface names. Broker cache.
const (
	InterfaceCreateUser    = "CreateUser"
	InterfaceDeleteUser    = "DeleteUser"
	InterfaceCreateTopic   = "CreateTopic"
	InterfaceDeleteTopic   = "DeleteTopic"
	InterfaceSaveSession   = "SaveSession"
	InterfaceDeleteSession = "DeleteSession"
)

// Envelope is the single message type carried by the Invoke RPC.
// Service/Interface select the handler; Data holds the JSON-encoded
// request or reply body; Error carries an application-level failure
// that the retrying client distinguishes from a transport failure.
type Envelope struct {
	Service   string          `json:"service"`
	Interface string          `json:"interface"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *AppError       `json:"error,omitempty"`
}

// AppError is a typed application error returned inside an Envelope
// reply, as opposed to a transport-level gRPC status error.
type AppError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// EncodeData marshals v into Data.
func (e *Envelope) EncodeData(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e.Data = b
	return nil
}

// DecodeData unmarshals Data into v.
func (e *Envelope) DecodeData(v interface{}) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// codecName is the gRPC content-subtype this package registers its
// codec under ("application/grpc+json").
const codecName = "json"

// jsonCodec implements encoding.Codec (formerly encoding.Codec in
// grpc-go's public codec registry) using plain encoding/json instead
// of protobuf wire format, since the envelope is a hand-written Go
// struct rather than a generated protobuf message.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// CallOption returns the grpc.CallOption that selects the json codec
// for a single RPC invocation.
func CallOption() grpc.CallOption {
	return grpc.CallContentSubtype(codecName)
}

// InvokeServer is implemented by every component's RPC handler.
type InvokeServer interface {
	Invoke(ctx context.Context, req *Envelope) (*Envelope, error)
}
