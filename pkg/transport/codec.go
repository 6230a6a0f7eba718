package transport

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// gobCodecName is the content-subtype registered with gRPC's codec
// registry and requested via grpc.CallContentSubtype on every stream
// this package opens.
const gobCodecName = "gob"

// gobCodec lets the transport exchange plain Go structs (pkg/sps's
// message types) over gRPC streams without a protoc-generated message
// set: gRPC's encoding.Codec interface only asks for Marshal/Unmarshal
// over interface{}, so gob serves just as well as a protobuf codec
// would.
type gobCodec struct{}

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}
	return nil
}

func (gobCodec) Name() string { return gobCodecName }

func init() {
	encoding.RegisterCodec(gobCodec{})
}
