package codec

// Bytes is an identity codec for []byte values.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }
func (Bytes) Decode(b []byte) ([]byte, error) {
	// payloads alias the store buffer; hand out a private copy
	return append([]byte(nil), b...), nil
}

// String stores Go strings as their UTF-8 bytes.
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }
