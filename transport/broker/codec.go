package broker

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is registered with grpc-go's global codec registry so
// WireEnvelope travels over the wire without a protoc-generated
// Marshal/Unmarshal — the pack's retrieval did not include compiled
// .proto output for a bidirectional event-bus service, and hand-
// writing one without protoc would produce types that do not satisfy
// proto.Message, which grpc-go's default codec requires. A named
// codec is the idiomatic escape hatch grpc-go itself documents for
// exactly this situation.
const jsonCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
