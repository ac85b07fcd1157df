package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/lostboard/vismatch/embedding"
)

// ErrCorruptEmbedding is returned when binary embedding bytes are malformed.
var ErrCorruptEmbedding = errors.New("codec: corrupt embedding")

// AppendEmbedding appends the binary form of e to dst: a little-endian
// uint32 length followed by the IEEE-754 bits of every component. A nil or
// empty embedding encodes as nil so that SQL columns stay NULL.
func AppendEmbedding(dst []byte, e embedding.Embedding) []byte {
	if len(e) == 0 {
		return dst
	}
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(e)))
	for _, v := range e {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

// DecodeEmbedding is the inverse of AppendEmbedding. Empty input decodes to
// a nil (absent) embedding.
func DecodeEmbedding(b []byte) (embedding.Embedding, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b) < 4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorruptEmbedding, len(b))
	}
	n := binary.LittleEndian.Uint32(b)
	body := b[4:]
	if uint64(len(body)) != uint64(n)*4 {
		return nil, fmt.Errorf("%w: header says %d components, have %d bytes", ErrCorruptEmbedding, n, len(body))
	}
	e := make(embedding.Embedding, n)
	for i := range e {
		e[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
	}
	return e, nil
}
