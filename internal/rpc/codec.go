// Package rpc holds what both the management-API client and the
// directory client need: a gRPC codec and the outgoing-metadata
// convention. The concrete wire messages live in the management and
// directory subpackages.
//
// The management and directory services' .proto definitions are not part
// of this module's scope (spec.md §1 treats them as opaque, external
// collaborators); rather than hand-writing brittle fake
// protoc-gen-go output, calls are made over a real *grpc.ClientConn using
// a JSON codec, so the transport, dialing, TLS, and metadata handling are
// all genuine gRPC, only the wire encoding is swapped.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is passed to grpc.CallContentSubtype so every call in this
// module negotiates the JSON codec registered in init.
const CodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements encoding.Codec by delegating to encoding/json. Its
// Name must be lowercase: gRPC lowercases the content-subtype it negotiates
// before looking the codec up.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return CodecName }
