package codec

import (
	"testing"

	"github.com/lostboard/vismatch/embedding"
	"github.com/lostboard/vismatch/item"
	"github.com/lostboard/vismatch/testutil"
)

func benchRecord() item.Record {
	rng := testutil.NewRNG(1)
	return item.Record{
		ID:        "4f1c0c53-0d4e-4a8b-9a77-3f0c0f1e9d21",
		Type:      item.Found,
		Title:     "Black umbrella",
		Station:   "Central",
		PhotoURL:  "https://drive.google.com/thumbnail?id=abc&sz=w1000",
		Embedding: rng.Embedding(embedding.ReferenceDim),
	}
}

func benchmarkCodecMarshal(b *testing.B, c Codec, v any) {
	b.Helper()
	b.ReportAllocs()

	warm, err := c.Marshal(v)
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(warm)))

	b.ResetTimer()
	for b.Loop() {
		if _, err := c.Marshal(v); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkCodecUnmarshal(b *testing.B, c Codec, data []byte) {
	b.Helper()
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))

	b.ResetTimer()
	for b.Loop() {
		var rec item.Record
		if err := c.Unmarshal(data, &rec); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCodecs(b *testing.B) {
	rec := benchRecord()
	data, err := JSON{}.Marshal(rec)
	if err != nil {
		b.Fatal(err)
	}

	for _, c := range []Codec{JSON{}, GoJSON{}} {
		b.Run(c.Name()+"/Marshal", func(b *testing.B) { benchmarkCodecMarshal(b, c, rec) })
		b.Run(c.Name()+"/Unmarshal", func(b *testing.B) { benchmarkCodecUnmarshal(b, c, data) })
	}

	b.Run("binary/Append", func(b *testing.B) {
		b.ReportAllocs()
		buf := make([]byte, 0, 4+4*len(rec.Embedding))
		for b.Loop() {
			buf = AppendEmbedding(buf[:0], rec.Embedding)
		}
	})
}
