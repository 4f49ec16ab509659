package deflate

import (
	"bytes"
	"fmt"
	"testing"
)

var benchInput = bytes.Repeat([]byte("Lorem ipsum dolor sit amet, consectetur adipiscing elit. "), 512)

func BenchmarkCompress(b *testing.B) {
	data := benchInput
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Compress(data, DefaultCompressOptions())
	}
}

func BenchmarkCompressBlockTypes(b *testing.B) {
	data := benchInput
	for _, blockType := range []BlockType{BlockStored, BlockFixed, BlockDynamic} {
		opts := &CompressOptions{BlockType: blockType, Lazy: 8}
		b.Run(fmt.Sprintf("Type=%s", blockType), func(b *testing.B) {
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = Compress(data, opts)
			}
		})
	}
}

func BenchmarkDecompress(b *testing.B) {
	enc, err := Compress(benchInput, DefaultCompressOptions())
	if err != nil {
		b.Fatal(err)
	}
	for _, strategy := range []BufferStrategy{BufferAdaptive, BufferBlock} {
		opts := &DecompressOptions{Strategy: strategy}
		b.Run(fmt.Sprintf("Strategy=%s", strategy), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(benchInput)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = Decompress(enc, opts)
			}
		})
	}
}

func BenchmarkStreamDecompress(b *testing.B) {
	enc, err := Compress(benchInput, DefaultCompressOptions())
	if err != nil {
		b.Fatal(err)
	}
	for _, chunk := range []int{64, 4096} {
		b.Run(fmt.Sprintf("Chunk=%d", chunk), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(benchInput)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				dec := NewStreamDecoder(nil)
				for off := 0; off < len(enc); off += chunk {
					_, _ = dec.Decompress(enc[off:min(off+chunk, len(enc))])
				}
			}
		})
	}
}
