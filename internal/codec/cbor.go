package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Core deterministic encoding; text marshalers (machine status) go over
// the wire as strings so both codecs carry the same logical record.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	var err error
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBOR encodes payloads as compact binary CBOR.
type CBOR struct{}

func (CBOR) Marshal(v any) ([]byte, error)      { return encMode.Marshal(v) }
func (CBOR) Unmarshal(data []byte, v any) error { return decMode.Unmarshal(data, v) }
func (CBOR) Name() string                       { return NameCBOR }
