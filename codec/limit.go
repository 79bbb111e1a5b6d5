package codec

import (
	"errors"
	"fmt"
)

// ErrTooLarge is returned by LimitCodec.Decode for oversized payloads.
var ErrTooLarge = errors.New("codec: payload too large")

// LimitCodec wraps another codec and refuses to decode payloads larger than
// MaxDecode bytes. Encode is forwarded unchanged. MaxDecode <= 0 disables the
// check.
//
// The cache store is shared with other processes; a bounded decode keeps a
// foreign or corrupted entry from turning into an unbounded allocation.
type LimitCodec[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

func (c LimitCodec[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }
func (c LimitCodec[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
