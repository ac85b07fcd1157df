// Package codec centralizes the encodings used at the edges of the matcher:
// JSON for API payloads and CLI output, and a compact binary form for
// embeddings kept in SQL columns.
//
// Stored bytes are tied to the codec that wrote them; changing the binary
// layout is a breaking change for existing databases.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Indented wraps a JSON codec so that Marshal output is indented for
// terminals. Unmarshal is passed through.
type Indented struct {
	Codec
}

// Marshal encodes v with the wrapped codec and indents the result.
func (c Indented) Marshal(v any) ([]byte, error) {
	b, err := c.Codec.Marshal(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, b, "", "  "); err != nil {
		return nil, fmt.Errorf("codec: indent %s output: %w", c.Codec.Name(), err)
	}
	return buf.Bytes(), nil
}
