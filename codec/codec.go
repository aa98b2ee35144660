// Package codec encodes workload records into the byte values stored by a
// backend.
package codec

import (
	"encoding/json"
	"fmt"
)

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Names accepted by ByName.
const (
	NameMsgpack = "msgpack"
	NameCBOR    = "cbor"
	NameJSON    = "json"
)

// ByName returns the codec registered under name.
func ByName[V any](name string) (Codec[V], error) {
	switch name {
	case NameMsgpack, "":
		return Msgpack[V]{}, nil
	case NameCBOR:
		return NewCBOR[V]()
	case NameJSON:
		return JSON[V]{}, nil
	default:
		return nil, fmt.Errorf("unknown codec: %s", name)
	}
}

type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
