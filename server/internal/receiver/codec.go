package receiver

import (
	"encoding/json"

	"google.golang.org/grpc"
)

// Codec marshals gRPC messages as JSON.
type Codec struct{}

// Marshal implements encoding.Codec.
func (Codec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

// Unmarshal implements encoding.Codec.
func (Codec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

// Name implements encoding.Codec.
func (Codec) Name() string { return "json" }

// ServerOptions returns the options a grpc.Server needs to serve this package.
func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{grpc.ForceServerCodec(Codec{})}
}
