package codec

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type shop struct {
	ID        int64     `json:"id" msgpack:"id" cbor:"id"`
	Name      string    `json:"name" msgpack:"name" cbor:"name"`
	Score     float64   `json:"score" msgpack:"score" cbor:"score"`
	Tags      []string  `json:"tags" msgpack:"tags" cbor:"tags"`
	UpdatedAt time.Time `json:"updatedAt" msgpack:"updatedAt" cbor:"updatedAt"`
}

func sampleShop() shop {
	return shop{
		ID:        1,
		Name:      "103 Tea House",
		Score:     4.7,
		Tags:      []string{"tea", "dessert"},
		UpdatedAt: time.Date(2021, 12, 22, 10, 30, 0, 123456789, time.UTC),
	}
}

func roundTrip[V any](t *testing.T, c Codec[V], v V) V {
	t.Helper()
	b, err := c.Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return got
}

func TestStructCodecsRoundTrip(t *testing.T) {
	want := sampleShop()
	codecs := map[string]Codec[shop]{
		"json":      JSON[shop]{},
		"msgpack":   Msgpack[shop]{},
		"cbor":      MustCBOR[shop](false),
		"cbor-det":  MustCBOR[shop](true),
		"limit-big": LimitCodec[shop]{Inner: JSON[shop]{}, MaxDecode: 1 << 20},
	}
	for name, c := range codecs {
		t.Run(name, func(t *testing.T) {
			got := roundTrip(t, c, want)
			if !got.UpdatedAt.Equal(want.UpdatedAt) {
				t.Fatalf("time mismatch: got %v want %v", got.UpdatedAt, want.UpdatedAt)
			}
			got.UpdatedAt = want.UpdatedAt
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", got, want)
			}
		})
	}
}

func TestDeterministicCBORIsStable(t *testing.T) {
	c := MustCBOR[map[string]int](true)
	a, err := c.Encode(map[string]int{"b": 2, "a": 1, "c": 3})
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Encode(map[string]int{"c": 3, "a": 1, "b": 2})
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Fatalf("deterministic encodings differ: %x vs %x", a, b)
	}
}

func TestLimitCodecRejectsOversized(t *testing.T) {
	c := LimitCodec[shop]{Inner: JSON[shop]{}, MaxDecode: 8}
	b, err := c.Encode(sampleShop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Decode(b); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestProtobufRoundTrip(t *testing.T) {
	c := NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })
	msg, err := structpb.NewStruct(map[string]any{"id": 7, "name": "Noodle Bar", "open": true})
	if err != nil {
		t.Fatal(err)
	}
	got := roundTrip[*structpb.Struct](t, c, msg)
	if !proto.Equal(got, msg) {
		t.Fatalf("protobuf mismatch: got %v want %v", got, msg)
	}

	var zero Protobuf[*structpb.Struct]
	if _, err := zero.Decode(nil); err == nil {
		t.Fatalf("expected error from codec without constructor")
	}
}

func TestRawCodecs(t *testing.T) {
	in := []byte("payload")
	out := roundTrip[[]byte](t, Bytes{}, in)
	if string(out) != "payload" {
		t.Fatalf("bytes: got %q", out)
	}
	out[0] = 'P'
	if in[0] != 'p' {
		t.Fatalf("Bytes.Decode must not alias its input")
	}
	if s := roundTrip[string](t, String{}, "héllo"); s != "héllo" {
		t.Fatalf("string: got %q", s)
	}
}

func TestJSONDecodeError(t *testing.T) {
	if _, err := (JSON[shop]{}).Decode([]byte("{not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}
