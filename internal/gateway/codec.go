package gateway

// #region imports
import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// #endregion

// #region json-codec

const codecName = "json"

// jsonCodec marshals capability requests and responses as JSON frames.
// The skill service speaks plain JSON; no generated protobuf stubs exist
// for it, so calls go through the generic grpc codec registry.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode json frame: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// #endregion json-codec
