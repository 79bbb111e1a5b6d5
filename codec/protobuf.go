package codec

import (
	"errors"

	"google.golang.org/protobuf/proto"
)

// Protobuf stores proto messages. Messages are marshaled deterministically so
// equal values produce equal payloads.
type Protobuf[T proto.Message] struct {
	new func() T // e.g. func() *shoppb.Shop { return &shoppb.Shop{} }
}

var errNoConstructor = errors.New("codec: protobuf codec has no message constructor")

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	if c.new == nil {
		var zero T
		return zero, errNoConstructor
	}
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}
