package deflate

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripInput struct {
	Name string
	Data []byte
}

func seededBytes(seed int64, n int) []byte {
	data := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(data)

	return data
}

// textLike returns compressible pseudorandom text drawn from a small vocabulary.
func textLike(seed int64, n int) []byte {
	words := []string{"deflate ", "window ", "huffman ", "block ", "match ", "literal ", "stream ", "\n"}
	rng := rand.New(rand.NewSource(seed))

	var buf bytes.Buffer
	for buf.Len() < n {
		buf.WriteString(words[rng.Intn(len(words))])
	}

	return buf.Bytes()[:n]
}

func roundTripInputs() []roundTripInput {
	return []roundTripInput{
		{"empty", []byte{}},
		{"one_byte", []byte{0x42}},
		{"random", seededBytes(1, 10000)},
		{"repetitive", bytes.Repeat([]byte("abcdefgh"), 4096)},
		{"text", textLike(2, 100000)},
		{"window", textLike(3, WindowSize)},
		{"window_plus_one", textLike(4, WindowSize+1)},
		{"stored_limit", seededBytes(5, MaxStoredBlockSize+1)},
	}
}

func decodeOptions() map[string]*DecompressOptions {
	return map[string]*DecompressOptions{
		"default":       nil,
		"adaptive_tiny": {BufferSize: 1},
		"adaptive_resize": {
			BufferSize: 64,
			Resize:     true,
		},
		"adaptive_fixed_ratio": {BufferSize: 16, FixRatio: 1.5, AddRatio: 0.25},
		"block_small":          {Strategy: BufferBlock, BufferSize: 1024},
		"block_default":        {Strategy: BufferBlock},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, blockType := range []BlockType{BlockStored, BlockFixed, BlockDynamic} {
		for _, lazy := range []int{0, 8} {
			opts := &CompressOptions{BlockType: blockType, Lazy: lazy}
			for _, in := range roundTripInputs() {
				enc, err := Compress(in.Data, opts)
				require.NoError(t, err, "%s/%s", blockType, in.Name)

				for name, dopts := range decodeOptions() {
					dec, err := Decompress(enc, dopts)
					require.NoError(t, err, "%s/lazy=%d/%s/%s", blockType, lazy, in.Name, name)
					require.True(t, bytes.Equal(in.Data, dec), "%s/lazy=%d/%s/%s", blockType, lazy, in.Name, name)
				}
			}
		}
	}
}

func TestCompressNilOptions(t *testing.T) {
	raw := []byte("hello hello hello world")
	enc, err := Compress(raw, nil)
	require.NoError(t, err)

	// BFINAL=1, BTYPE=10.
	assert.Equal(t, byte(0x05), enc[0]&0x07)

	dec, err := Decompress(enc, nil)
	require.NoError(t, err)
	assert.Equal(t, raw, dec)
}

func TestCompressDeterministic(t *testing.T) {
	data := textLike(9, 50000)
	first, err := Compress(data, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		again, err := Compress(data, nil)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestCompressEmptyStored(t *testing.T) {
	enc, err := Compress(nil, &CompressOptions{BlockType: BlockStored})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0xFF, 0xFF}, enc)
}

func TestCompressStoredSplitsBlocks(t *testing.T) {
	data := seededBytes(6, 70000)
	enc, err := Compress(data, &CompressOptions{BlockType: BlockStored})
	require.NoError(t, err)
	assert.Len(t, enc, len(data)+2*5)

	var blocks []BlockInfo
	dec, err := Decompress(enc, &DecompressOptions{OnBlock: func(b BlockInfo) { blocks = append(blocks, b) }})
	require.NoError(t, err)
	assert.Equal(t, data, dec)

	want := []BlockInfo{
		{Index: 0, Final: false, Type: BlockStored, TypeName: "stored", InputBit: 0, OutputOffset: 0},
		{Index: 1, Final: true, Type: BlockStored, TypeName: "stored", InputBit: (5 + MaxStoredBlockSize) * 8, OutputOffset: MaxStoredBlockSize},
	}
	if diff := cmp.Diff(want, blocks); diff != "" {
		t.Errorf("block list mismatch (-want +got):\n%s", diff)
	}
}

func TestCompressIntoOutputBuffer(t *testing.T) {
	data := []byte("framed framed framed payload")
	header := []byte("HDR")

	opts := DefaultCompressOptions()
	opts.Output = append([]byte(nil), header...)
	opts.OutputOffset = len(header)
	framed, err := Compress(data, opts)
	require.NoError(t, err)
	require.Equal(t, header, framed[:len(header)])

	plain, err := Compress(data, nil)
	require.NoError(t, err)
	assert.Equal(t, plain, framed[len(header):])

	dec, err := Decompress(framed, &DecompressOptions{StartOffset: len(header)})
	require.NoError(t, err)
	assert.Equal(t, data, dec)
}

func TestCompressOutputBufferStaleBytes(t *testing.T) {
	data := []byte("stale bytes must not leak into the stream")
	buf := bytes.Repeat([]byte{0xFF}, 256)

	enc, err := Compress(data, &CompressOptions{BlockType: BlockFixed, Output: buf})
	require.NoError(t, err)

	plain, err := Compress(data, &CompressOptions{BlockType: BlockFixed})
	require.NoError(t, err)
	assert.Equal(t, plain, enc)
}

func TestCompressInvalidOptions(t *testing.T) {
	_, err := Compress([]byte("x"), &CompressOptions{BlockType: 3})
	assert.ErrorIs(t, err, ErrInvalidBlockType)

	_, err = Compress([]byte("x"), &CompressOptions{Lazy: -1})
	assert.ErrorIs(t, err, ErrInvalidOption)

	_, err = Compress([]byte("x"), &CompressOptions{Output: make([]byte, 2), OutputOffset: 3})
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestScenarioSequentialFixed(t *testing.T) {
	data := make([]byte, 23)
	for i := range data {
		data[i] = byte(i + 1)
	}

	enc, err := Compress(data, &CompressOptions{BlockType: BlockFixed})
	require.NoError(t, err)
	dec, err := Decompress(enc, nil)
	require.NoError(t, err)
	assert.Equal(t, data, dec)
}

func TestScenarioRandomDynamic(t *testing.T) {
	data := seededBytes(76543, 76543)

	enc, err := Compress(data, &CompressOptions{BlockType: BlockDynamic})
	require.NoError(t, err)
	dec, err := Decompress(enc, nil)
	require.NoError(t, err)
	assert.Equal(t, data, dec)

	ts := newLZ77Matcher(0).tokenize(data)
	emitted := 0
	for i := 0; i < len(ts.tokens); {
		emitted++
		if ts.tokens[i] > endOfBlock {
			i += matchTokenSlots
		} else {
			i++
		}
	}
	var sum uint32
	for _, f := range ts.litLenFreqs {
		sum += f
	}
	assert.Equal(t, uint32(emitted), sum)
}

func TestScenarioZeroesDynamic(t *testing.T) {
	data := make([]byte, 70000)

	enc, err := Compress(data, &CompressOptions{BlockType: BlockDynamic})
	require.NoError(t, err)
	assert.Less(t, len(enc), 1000)

	for name, dopts := range decodeOptions() {
		dec, err := Decompress(enc, dopts)
		require.NoError(t, err, name)
		require.Equal(t, data, dec, name)
	}
}

func TestBoundaryMatches(t *testing.T) {
	farMatch := append(append([]byte("XYZ"), make([]byte, WindowSize-3)...), "XYZ"...)
	inputs := []roundTripInput{
		{"length_3", []byte("abcXabc")},
		{"length_258", bytes.Repeat([]byte("a"), 1+MaxMatch)},
		{"distance_1", bytes.Repeat([]byte{7}, 40)},
		{"distance_32768", farMatch},
	}

	for _, in := range inputs {
		for _, blockType := range []BlockType{BlockFixed, BlockDynamic} {
			enc, err := Compress(in.Data, &CompressOptions{BlockType: blockType})
			require.NoError(t, err, in.Name)

			dec, err := Decompress(enc, nil)
			require.NoError(t, err, in.Name)
			assert.Equal(t, in.Data, dec, in.Name)

			dec, err = Decompress(enc, &DecompressOptions{Strategy: BufferBlock, BufferSize: 100})
			require.NoError(t, err, in.Name)
			assert.Equal(t, in.Data, dec, in.Name)
		}
	}
}

func TestDecompressStoredAfterHuffman(t *testing.T) {
	w := newBitWriter(nil, 0, 0)
	ts := newLZ77Matcher(0).tokenize([]byte("hi "))
	writeBlockHeader(w, false, BlockFixed)
	writeTokens(w, ts.tokens, fixedLitLenCodes, fixedLitLenLengths[:], fixedDistCodes, fixedDistLengths[:])
	writeStoredBlocks(w, []byte("there"))
	enc := w.finish()

	dec, err := Decompress(enc, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi there"), dec)

	got := decodeStream(t, enc, 1)
	assert.Equal(t, []byte("hi there"), got)
}

func TestDecompressPrefix(t *testing.T) {
	data := textLike(12, 5000)
	enc, err := Compress(data, nil)
	require.NoError(t, err)

	src := append(append([]byte{}, enc...), "TRAILER"...)

	_, err = Decompress(src, nil)
	assert.ErrorIs(t, err, ErrTrailingData)

	dec, consumed, err := DecompressPrefix(src, nil)
	require.NoError(t, err)
	assert.Equal(t, data, dec)
	assert.Equal(t, len(enc), consumed)
	assert.Equal(t, []byte("TRAILER"), src[consumed:])

	prefixed := append([]byte("xx"), src...)
	dec, consumed, err = DecompressPrefix(prefixed, &DecompressOptions{StartOffset: 2})
	require.NoError(t, err)
	assert.Equal(t, data, dec)
	assert.Equal(t, len(enc), consumed)
}

func TestDecompressErrors(t *testing.T) {
	valid, err := Compress(textLike(13, 2000), nil)
	require.NoError(t, err)

	fixedMatch := func(lit int, distSym int) []byte {
		w := newBitWriter(nil, 0, 0)
		writeBlockHeader(w, true, BlockFixed)
		if lit >= 0 {
			w.writeBits(uint32(fixedLitLenCodes[lit]), uint(fixedLitLenLengths[lit]), false)
		}
		w.writeBits(uint32(fixedLitLenCodes[257]), uint(fixedLitLenLengths[257]), false)
		w.writeBits(uint32(fixedDistCodes[distSym]), 5, false)
		w.writeBits(0, 16, false)
		return w.finish()
	}

	fixedSymbol := func(sym int) []byte {
		w := newBitWriter(nil, 0, 0)
		writeBlockHeader(w, true, BlockFixed)
		w.writeBits(uint32(fixedLitLenCodes[sym]), uint(fixedLitLenLengths[sym]), false)
		w.writeBits(0, 16, false)
		return w.finish()
	}

	dynamicHeader := func(hlit, hdist, hclen uint32, clLen uint32) []byte {
		w := newBitWriter(nil, 0, 0)
		writeBlockHeader(w, true, BlockDynamic)
		w.writeBits(hlit, 5, false)
		w.writeBits(hdist, 5, false)
		w.writeBits(hclen, 4, false)
		for i := uint32(0); i < hclen+4; i++ {
			w.writeBits(clLen, 3, false)
		}
		w.writeBits(0, 16, false)
		return w.finish()
	}

	cases := []struct {
		Name string
		Src  []byte
		Err  error
	}{
		{"empty", []byte{}, ErrUnexpectedEOF},
		{"truncated", valid[:len(valid)/2], ErrUnexpectedEOF},
		{"reserved_type", []byte{0x07}, ErrReservedBlockType},
		{"stored_nlen", []byte{0x01, 0x05, 0x00, 0x00, 0x00, 'a'}, ErrLengthVerify},
		{"stored_short", []byte{0x01, 0x05, 0x00, 0xFA, 0xFF, 'a'}, ErrUnexpectedEOF},
		{"distance_before_start", fixedMatch(-1, 0), ErrInvalidDistance},
		{"distance_too_far", fixedMatch('a', 1), ErrInvalidDistance},
		{"distance_symbol_30", fixedMatch('a', 30), ErrInvalidSymbol},
		{"length_symbol_286", fixedSymbol(286), ErrInvalidSymbol},
		{"length_symbol_287", fixedSymbol(287), ErrInvalidSymbol},
		{"hlit_too_large", dynamicHeader(30, 0, 0, 0), ErrCorruptHeader},
		{"hdist_too_large", dynamicHeader(0, 30, 0, 0), ErrCorruptHeader},
		{"code_length_oversubscribed", dynamicHeader(0, 0, 0, 1), ErrInvalidCodeLengths},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			_, err := Decompress(c.Src, nil)
			assert.ErrorIs(t, err, c.Err)

			_, err = Decompress(c.Src, &DecompressOptions{Strategy: BufferBlock})
			assert.ErrorIs(t, err, c.Err)
		})
	}
}

func TestDecompressRepeatWithoutPrevious(t *testing.T) {
	// Code length code: symbols 16 and 17 with one bit each.
	w := newBitWriter(nil, 0, 0)
	writeBlockHeader(w, true, BlockDynamic)
	w.writeBits(0, 5, false)
	w.writeBits(0, 5, false)
	w.writeBits(0, 4, false)
	w.writeBits(1, 3, false) // 16
	w.writeBits(1, 3, false) // 17
	w.writeBits(0, 3, false) // 18
	w.writeBits(0, 3, false) // 0
	w.writeBits(0, 1, false) // first symbol: 16
	w.writeBits(0, 16, false)

	_, err := Decompress(w.finish(), nil)
	assert.ErrorIs(t, err, ErrCorruptHeader)
}

func TestDecompressOptionErrors(t *testing.T) {
	_, err := Decompress([]byte{0x03, 0x00}, &DecompressOptions{Strategy: 7})
	assert.ErrorIs(t, err, ErrInvalidBufferStrategy)

	_, err = Decompress([]byte{0x03, 0x00}, &DecompressOptions{StartOffset: 3})
	assert.ErrorIs(t, err, ErrInvalidOption)

	_, err = Decompress([]byte{0x03, 0x00}, &DecompressOptions{FixRatio: -1})
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestDecompressOutputLimit(t *testing.T) {
	enc, err := Compress(make([]byte, 70000), nil)
	require.NoError(t, err)

	_, err = Decompress(enc, &DecompressOptions{BufferSize: 512, MaxOutputSize: 4096})
	assert.ErrorIs(t, err, ErrOutputTooLarge)

	dec, err := Decompress(enc, &DecompressOptions{BufferSize: 512, MaxOutputSize: 70000})
	require.NoError(t, err)
	assert.Len(t, dec, 70000)
}

func TestDecompressEmptyFixedBlock(t *testing.T) {
	// BFINAL=1, BTYPE=01, end-of-block code 0000000.
	dec, err := Decompress([]byte{0x03, 0x00}, nil)
	require.NoError(t, err)
	assert.Empty(t, dec)
}

func TestInteropDecodeWithFlate(t *testing.T) {
	for _, blockType := range []BlockType{BlockStored, BlockFixed, BlockDynamic} {
		for _, in := range roundTripInputs() {
			enc, err := Compress(in.Data, &CompressOptions{BlockType: blockType, Lazy: 16})
			require.NoError(t, err)

			dec, err := io.ReadAll(flate.NewReader(bytes.NewReader(enc)))
			require.NoError(t, err, "%s/%s", blockType, in.Name)
			require.True(t, bytes.Equal(in.Data, dec), "%s/%s", blockType, in.Name)
		}
	}
}

func TestInteropDecodeFlateOutput(t *testing.T) {
	levels := []int{flate.NoCompression, flate.BestSpeed, flate.DefaultCompression, flate.BestCompression, flate.HuffmanOnly}
	for _, level := range levels {
		for _, in := range roundTripInputs() {
			var buf bytes.Buffer
			fw, err := flate.NewWriter(&buf, level)
			require.NoError(t, err)

			half := len(in.Data) / 2
			_, err = fw.Write(in.Data[:half])
			require.NoError(t, err)
			// Flush emits an empty stored block mid-stream.
			require.NoError(t, fw.Flush())
			_, err = fw.Write(in.Data[half:])
			require.NoError(t, err)
			require.NoError(t, fw.Close())

			enc := buf.Bytes()
			dec, err := Decompress(enc, nil)
			require.NoError(t, err, "level %d/%s", level, in.Name)
			require.True(t, bytes.Equal(in.Data, dec), "level %d/%s", level, in.Name)

			dec, err = Decompress(enc, &DecompressOptions{Strategy: BufferBlock, BufferSize: 4096})
			require.NoError(t, err, "level %d/%s", level, in.Name)
			require.True(t, bytes.Equal(in.Data, dec), "level %d/%s", level, in.Name)

			require.True(t, bytes.Equal(in.Data, decodeStream(t, enc, 7)), "level %d/%s", level, in.Name)
		}
	}
}
