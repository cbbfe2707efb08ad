package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSON is the default Serializer. It produces deterministic JSON: Go's
// encoding/json already sorts map[string]any keys, and HTML escaping is
// disabled so headers containing "<", ">" or "&" round-trip byte-for-byte
// regardless of escaping policy changes upstream.
//
// Unlike the teacher's RFC 8785 canonical JSON (internal/ir.MarshalCanonical),
// this serializer is not used for content-addressed identity: commit and
// stream identifiers here are client-generated UUIDs, not content hashes, so
// plain deterministic JSON is sufficient and avoids canonical JSON's
// restrictions (no floats, no null) that event/header payloads may need.
type JSON struct{}

// NewJSON constructs the default JSON serializer.
func NewJSON() JSON {
	return JSON{}
}

// Serialize encodes v as JSON with HTML escaping disabled.
func (JSON) Serialize(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("serializer: encode: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Deserialize decodes JSON data into out. Empty input decodes to a no-op
// (out is left at its zero value), matching the teacher's treatment of
// empty/"{}" blobs in internal/store/marshal.go.
func (JSON) Deserialize(data []byte, out any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("serializer: decode: %w", err)
	}
	return nil
}
