package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version     byte = 1
	kindPlain   byte = 1
	kindLogical byte = 2

	// magic(4) | ver(1) | kind(1) | expiry(i64 be) | vlen(u32 be)
	headerLen = 4 + 1 + 1 + 8 + 4
)

var (
	ErrCorrupt = errors.New("guardcache: corrupt entry")
	magic4     = [...]byte{'G', 'C', 'E', 'V'}
)

// Envelope is a decoded cache entry. Expiry is only meaningful when
// Logical reports true.
type Envelope struct {
	Expiry  time.Time
	Payload []byte
	logical bool
}

// Logical reports whether the entry carries a logical expiry.
func (e Envelope) Logical() bool { return e.logical }

// Expired reports whether the logical expiry is at or before now.
// Entries without a logical expiry never expire logically.
func (e Envelope) Expired(now time.Time) bool {
	return e.logical && !now.Before(e.Expiry)
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// EncodePlain frames a payload that relies on the store's native TTL.
func EncodePlain(payload []byte) []byte {
	return encode(kindPlain, 0, payload)
}

// EncodeLogical frames a payload together with its logical expiry.
// Both fields are always written in one buffer.
func EncodeLogical(expiry time.Time, payload []byte) []byte {
	return encode(kindLogical, expiry.UnixNano(), payload)
}

func encode(kind byte, expiry int64, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(headerLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kind)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], uint64(expiry))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// Decode parses an entry produced by EncodePlain or EncodeLogical.
// The returned payload aliases b.
func Decode(b []byte) (Envelope, error) {
	if len(b) < headerLen || !hasMagic(b) || b[4] != version {
		return Envelope{}, ErrCorrupt
	}
	kind := b[5]
	if kind != kindPlain && kind != kindLogical {
		return Envelope{}, ErrCorrupt
	}

	off := 6
	nanos := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return Envelope{}, ErrCorrupt
	}

	var env Envelope
	switch kind {
	case kindLogical:
		env.logical = true
		env.Expiry = time.Unix(0, nanos)
	case kindPlain:
		if nanos != 0 {
			return Envelope{}, ErrCorrupt
		}
	}
	env.Payload = b[off : off+vlen]
	return env, nil
}
