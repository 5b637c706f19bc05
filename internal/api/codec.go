package api

import (
	"encoding/json"

	"connectrpc.com/connect"
	"github.com/klauspost/compress/gzip"
)

const (
	codecName       = "json"
	compressionName = "gzip"
)

// jsonCodec marshals plain Go structs. It takes the place of connect's
// protobuf JSON codec, the messages here are not generated from protobuf.
type jsonCodec struct{}

var _ connect.Codec = jsonCodec{}

func (jsonCodec) Name() string { return codecName }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	return json.Unmarshal(data, msg)
}

func newDecompressor() connect.Decompressor {
	return &gzip.Reader{}
}

func newCompressor() connect.Compressor {
	return gzip.NewWriter(nil)
}

// HandlerOptions returns the codec and compression options for account service handlers.
func HandlerOptions() []connect.HandlerOption {
	return []connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithCompression(compressionName, newDecompressor, newCompressor),
	}
}

// ClientOptions returns the codec and compression options for account service clients.
func ClientOptions() []connect.ClientOption {
	return []connect.ClientOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithAcceptCompression(compressionName, newDecompressor, newCompressor),
		connect.WithSendCompression(compressionName),
	}
}
