// Package serializer defines the opaque byte <-> payload conversion port
// consumed by the persistence engine. The engine never inspects a blob it
// stores; it only asks the serializer to produce or consume one.
package serializer

// Serializer converts values to and from an opaque byte sequence. A
// round-trip (Serialize then Deserialize into the same shape) must
// reproduce an equal value.
type Serializer interface {
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte, out any) error
}
