// Package codec holds the wire encodings used on the fleet transport.
package codec

import "fmt"

// Codec serializes protocol payloads to and from bytes.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	// Name returns the codec identifier used in configuration.
	Name() string
}

const (
	NameJSON = "json"
	NameCBOR = "cbor"
)

// Get returns a codec by name. An empty name selects JSON.
func Get(name string) (Codec, error) {
	switch name {
	case NameJSON, "":
		return JSON{}, nil
	case NameCBOR:
		return CBOR{}, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}
