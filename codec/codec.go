// Package codec converts cached values to and from the payload bytes carried
// inside a cache envelope. Any codec is acceptable as long as Decode(Encode(v))
// reproduces v.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
