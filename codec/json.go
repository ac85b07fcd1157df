package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec. Embeddings encode as plain
// number arrays and float32 components round-trip exactly.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the codec used by the HTTP API and the CLI.
var Default Codec = GoJSON{}
