package transport

import (
	"fmt"
)

// Message is the raw payload the transport moves. Services own the
// framing inside it; the codec just passes bytes through.
type Message []byte

// rawCodec satisfies grpc encoding.Codec for Message values. The peer
// service descriptors are hand-written against byte payloads, so no
// generated message types exist to marshal.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	msg, ok := v.(*Message)
	if !ok {
		return nil, fmt.Errorf("raw codec: marshal %T, want *transport.Message", v)
	}
	return *msg, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	msg, ok := v.(*Message)
	if !ok {
		return fmt.Errorf("raw codec: unmarshal into %T, want *transport.Message", v)
	}
	*msg = append(Message(nil), data...)
	return nil
}

func (rawCodec) Name() string { return "raw" }
