package codec

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// CBOR is the default wire codec. Timestamps are encoded as RFC 3339 text so
// payloads stay debuggable with generic CBOR tooling.
type CBOR struct {
	em cbor.EncMode
	dm cbor.DecMode
}

var (
	_ Marshaler   = (*CBOR)(nil)
	_ Unmarshaler = (*CBOR)(nil)
)

// NewCBOR returns the codec used by the websocket transport.
func NewCBOR() *CBOR {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return &CBOR{em: em, dm: dm}
}

func (c *CBOR) Marshal(v any) ([]byte, error) {
	return c.em.Marshal(v)
}

func (c *CBOR) NewEncoder(w io.Writer) Encoder {
	return c.em.NewEncoder(w)
}

func (c *CBOR) Unmarshal(data []byte, dst any) error {
	return c.dm.Unmarshal(data, dst)
}

func (c *CBOR) NewDecoder(r io.Reader) Decoder {
	return c.dm.NewDecoder(r)
}
