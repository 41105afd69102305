// Package codec is the encoding seam between the transport and the wire.
//
// The changes endpoint speaks CBOR, but the transport only depends on these
// interfaces, so tests and alternative deployments can swap the frame
// encoding without touching the websocket machinery.
package codec

import "io"

// Encoder writes successive values to an underlying stream.
type Encoder interface {
	Encode(v any) error
}

// Decoder reads successive values from an underlying stream.
type Decoder interface {
	Decode(v any) error
}

// Marshaler encodes request and notification frames.
type Marshaler interface {
	Marshal(v any) ([]byte, error)
	NewEncoder(w io.Writer) Encoder
}

// Unmarshaler decodes request and notification frames.
type Unmarshaler interface {
	Unmarshal(data []byte, dst any) error
	NewDecoder(r io.Reader) Decoder
}
