package deflate

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// maxGrowthFactor bounds a single adaptive growth step.
const maxGrowthFactor = 8

// Decompress decodes the raw DEFLATE stream that starts at opts.StartOffset
// and must end exactly at the end of src. Options nil means DefaultDecompressOptions().
func Decompress(src []byte, opts *DecompressOptions) ([]byte, error) {
	out, consumed, err := DecompressPrefix(src, opts)
	if err != nil {
		return nil, err
	}

	start := 0
	if opts != nil {
		start = opts.StartOffset
	}
	if start+consumed != len(src) {
		return nil, fmt.Errorf("%w: consumed=%d input=%d", ErrTrailingData, start+consumed, len(src))
	}

	return out, nil
}

// DecompressPrefix decodes one raw DEFLATE stream starting at opts.StartOffset.
// It returns the decompressed bytes and the number of input bytes consumed
// from StartOffset, a partially used last byte included. Bytes after the
// stream are ignored, so containers can continue with what follows.
func DecompressPrefix(src []byte, opts *DecompressOptions) ([]byte, int, error) {
	o, err := normalizeDecompressOptions(opts, len(src))
	if err != nil {
		return nil, 0, err
	}

	d := newDecoder(src, o)
	if err := d.run(); err != nil {
		return nil, d.br.consumed() - o.StartOffset, err
	}

	return d.result(), d.br.consumed() - o.StartOffset, nil
}

func normalizeDecompressOptions(opts *DecompressOptions, srcLen int) (*DecompressOptions, error) {
	if opts == nil {
		opts = DefaultDecompressOptions()
	}

	o := *opts
	if !o.Strategy.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBufferStrategy, int(o.Strategy))
	}
	if o.StartOffset < 0 || o.StartOffset > srcLen {
		return nil, fmt.Errorf("%w: start offset %d outside input of %d bytes", ErrInvalidOption, o.StartOffset, srcLen)
	}
	if o.FixRatio < 0 || o.AddRatio < 0 {
		return nil, fmt.Errorf("%w: negative growth ratio", ErrInvalidOption)
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.MaxOutputSize <= 0 {
		o.MaxOutputSize = DefaultMaxOutputSize
	}

	return &o, nil
}

// decoder is the single-shot decoder state.
type decoder struct {
	br   bitReader
	opts *DecompressOptions
	log  logrus.FieldLogger

	out  []byte
	op   int // Next write index in out.
	base int // Index in out where output starts: WindowSize for the block strategy, 0 otherwise.

	blocks  [][]byte // Flushed output, block strategy only.
	flushed int

	litLen *huffmanTable // Current literal/length table, used for growth estimates.
	index  int
}

func newDecoder(src []byte, opts *DecompressOptions) *decoder {
	d := &decoder{
		br:   bitReader{input: src, pos: opts.StartOffset},
		opts: opts,
		log:  loggerOrDiscard(opts.Logger),
	}

	switch opts.Strategy {
	case BufferBlock:
		d.out = make([]byte, WindowSize+opts.BufferSize+MaxMatch)
		d.base = WindowSize
	default:
		d.out = make([]byte, opts.BufferSize)
	}
	d.op = d.base

	return d
}

// produced is the number of output bytes decoded so far.
func (d *decoder) produced() int {
	return d.flushed + d.op - d.base
}

func (d *decoder) run() error {
	for {
		headerBit := d.br.bitOffset()
		v, err := d.br.readBits(3)
		if err != nil {
			return d.fail(err)
		}

		final := v&1 == 1
		t := BlockType(v >> 1)
		if !t.Valid() {
			return fmt.Errorf("%w at input bit %d", ErrReservedBlockType, headerBit)
		}
		d.announce(BlockInfo{
			Index:        d.index,
			Final:        final,
			Type:         t,
			TypeName:     t.String(),
			InputBit:     headerBit,
			OutputOffset: int64(d.produced()),
		})
		d.index++

		switch t {
		case BlockStored:
			err = d.storedBlock()
		case BlockFixed:
			err = d.huffmanBlock(fixedLitLenTable, fixedDistTable)
		case BlockDynamic:
			var lit, dist *huffmanTable
			lit, dist, err = readDynamicTables(&d.br)
			if err == nil {
				err = d.huffmanBlock(lit, dist)
			}
		}
		if err != nil {
			return d.fail(err)
		}

		if final {
			return nil
		}
	}
}

func (d *decoder) announce(info BlockInfo) {
	d.log.WithFields(logrus.Fields{
		"block": info.Index,
		"final": info.Final,
		"type":  info.Type,
	}).Debug("deflate block header")

	if d.opts.OnBlock != nil {
		d.opts.OnBlock(info)
	}
}

// fail turns running out of input into ErrUnexpectedEOF; single-shot decoding cannot wait for more.
func (d *decoder) fail(err error) error {
	if errors.Is(err, errNeedInput) {
		return fmt.Errorf("%w: at input offset %d", ErrUnexpectedEOF, d.br.pos)
	}

	return err
}

func (d *decoder) storedBlock() error {
	n, err := readStoredHeader(&d.br)
	if err != nil {
		return err
	}

	br := &d.br
	if br.pos+n > len(br.input) {
		return errNeedInput
	}
	for n > 0 {
		if err := d.ensure(1); err != nil {
			return err
		}
		c := copy(d.out[d.op:], br.input[br.pos:br.pos+n])
		d.op += c
		br.pos += c
		n -= c
	}

	return nil
}

func (d *decoder) huffmanBlock(lit, dist *huffmanTable) error {
	d.litLen = lit
	for {
		sym, err := d.br.readCode(lit)
		if err != nil {
			return err
		}

		switch {
		case sym < endOfBlock:
			if err := d.ensure(1); err != nil {
				return err
			}
			d.out[d.op] = byte(sym)
			d.op++
		case sym == endOfBlock:
			return nil
		default:
			length, distance, err := readLengthDistance(&d.br, sym, dist)
			if err != nil {
				return err
			}
			if distance > d.produced() {
				return fmt.Errorf("%w: distance %d with %d bytes of output", ErrInvalidDistance, distance, d.produced())
			}
			if err := d.ensure(length); err != nil {
				return err
			}
			// Byte by byte: a distance shorter than the length repeats the pattern.
			from := d.op - distance
			for i := 0; i < length; i++ {
				d.out[d.op+i] = d.out[from+i]
			}
			d.op += length
		}
	}
}

// ensure makes room for n more output bytes.
func (d *decoder) ensure(n int) error {
	if d.op+n <= len(d.out) {
		return nil
	}

	if d.opts.Strategy == BufferBlock {
		d.flushBlock()
		return nil
	}

	return d.expandAdaptive(n)
}

// flushBlock moves the output beyond the trailing window aside and slides the window to the front.
func (d *decoder) flushBlock() {
	block := make([]byte, d.op-WindowSize)
	copy(block, d.out[WindowSize:d.op])
	d.blocks = append(d.blocks, block)
	d.flushed += len(block)

	copy(d.out, d.out[d.op-WindowSize:d.op])
	d.op = WindowSize
}

// expandAdaptive grows the output buffer by a ratio estimated from the input
// consumed so far. Near the end of the input the ratio drops below 2 and the
// remaining output is estimated from the shortest literal/length code instead.
func (d *decoder) expandAdaptive(need int) error {
	consumed := d.br.pos - d.opts.StartOffset
	if consumed < 1 {
		consumed = 1
	}
	remaining := len(d.br.input) - d.br.pos

	ratio := float64(remaining)/float64(consumed) + 1
	if d.opts.FixRatio > 0 {
		ratio = d.opts.FixRatio
	}
	ratio += d.opts.AddRatio

	cur := len(d.out)
	var size int
	if ratio < 2 {
		minLen := 1
		if d.litLen != nil && d.litLen.minLen > 0 {
			minLen = int(d.litLen.minLen)
		}
		symbols := remaining / minLen
		estimate := symbols / 2 * MaxMatch
		if estimate < cur {
			size = cur + estimate
		} else {
			size = cur * 2
		}
	} else {
		size = int(float64(cur) * ratio)
	}

	if limit := cur * maxGrowthFactor; size > limit {
		size = limit
	}
	// Grow geometrically so many small steps stay linear overall.
	if floor := cur + cur/4; size < floor {
		size = floor
	}
	if size < d.op+need {
		size = d.op + need
	}
	if size > d.opts.MaxOutputSize {
		if d.op+need > d.opts.MaxOutputSize {
			return fmt.Errorf("%w: limit %d bytes", ErrOutputTooLarge, d.opts.MaxOutputSize)
		}
		size = d.opts.MaxOutputSize
	}

	d.log.WithFields(logrus.Fields{"from": cur, "to": size}).Debug("deflate output buffer grown")

	grown := make([]byte, size)
	copy(grown, d.out[:d.op])
	d.out = grown

	return nil
}

func (d *decoder) result() []byte {
	if d.opts.Strategy == BufferBlock {
		out := make([]byte, 0, d.produced())
		for _, b := range d.blocks {
			out = append(out, b...)
		}
		return append(out, d.out[WindowSize:d.op]...)
	}

	if d.opts.Resize {
		out := make([]byte, d.op)
		copy(out, d.out[:d.op])
		return out
	}

	return d.out[:d.op]
}

// readStoredHeader aligns to a byte boundary and reads and verifies LEN/NLEN.
func readStoredHeader(br *bitReader) (int, error) {
	br.alignToByte()
	if br.pos+4 > len(br.input) {
		return 0, errNeedInput
	}

	in := br.input[br.pos:]
	n := int(in[0]) | int(in[1])<<8
	nn := int(in[2]) | int(in[3])<<8
	if n != ^nn&0xffff {
		return 0, fmt.Errorf("%w: LEN=%#04x NLEN=%#04x", ErrLengthVerify, n, nn)
	}
	br.pos += 4

	return n, nil
}

// readDynamicTables reads a dynamic block header and builds its literal/length and distance tables.
func readDynamicTables(br *bitReader) (lit, dist *huffmanTable, err error) {
	v, err := br.readBits(14)
	if err != nil {
		return nil, nil, err
	}
	hlit := int(v&0x1f) + 257
	hdist := int(v>>5&0x1f) + 1
	hclen := int(v>>10) + 4
	if hlit > numLitLenSymbols || hdist > numDistSymbols {
		return nil, nil, fmt.Errorf("%w: HLIT=%d HDIST=%d", ErrCorruptHeader, hlit, hdist)
	}

	var clLens [numCodeLenCodes]uint8
	for i := 0; i < hclen; i++ {
		l, err := br.readBits(3)
		if err != nil {
			return nil, nil, err
		}
		clLens[codeLengthOrder[i]] = uint8(l)
	}
	clTable, err := buildHuffmanTable(clLens[:])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: code length code: %w", ErrCorruptHeader, err)
	}

	lengths := make([]uint8, hlit+hdist)
	var prev uint8
	for i := 0; i < len(lengths); {
		sym, err := br.readCode(clTable)
		if err != nil {
			return nil, nil, err
		}
		if sym < repeatPrevious {
			lengths[i] = uint8(sym)
			prev = uint8(sym)
			i++
			continue
		}

		var rep uint32
		var val uint8
		switch sym {
		case repeatPrevious:
			if i == 0 {
				return nil, nil, fmt.Errorf("%w: repeat with no previous length", ErrCorruptHeader)
			}
			rep, err = br.readBits(2)
			rep += 3
			val = prev
		case repeatZeroes:
			rep, err = br.readBits(3)
			rep += 3
		default:
			rep, err = br.readBits(7)
			rep += 11
		}
		if err != nil {
			return nil, nil, err
		}
		if i+int(rep) > len(lengths) {
			return nil, nil, fmt.Errorf("%w: repeat of %d overruns %d code lengths", ErrCorruptHeader, rep, len(lengths))
		}
		for end := i + int(rep); i < end; i++ {
			lengths[i] = val
		}
		prev = val
	}

	if lengths[endOfBlock] == 0 {
		return nil, nil, fmt.Errorf("%w: no end-of-block code", ErrCorruptHeader)
	}
	if lit, err = buildHuffmanTable(lengths[:hlit]); err != nil {
		return nil, nil, fmt.Errorf("%w: literal/length code: %w", ErrCorruptHeader, err)
	}
	if dist, err = buildHuffmanTable(lengths[hlit:]); err != nil {
		return nil, nil, fmt.Errorf("%w: distance code: %w", ErrCorruptHeader, err)
	}

	return lit, dist, nil
}

// readLengthDistance reads the rest of a match after its length symbol.
func readLengthDistance(br *bitReader, sym int, distTable *huffmanTable) (length, distance int, err error) {
	idx := sym - endOfBlock - 1
	if idx >= len(lengthBase) {
		return 0, 0, fmt.Errorf("%w: literal/length %d", ErrInvalidSymbol, sym)
	}
	extra, err := br.readBits(uint(lengthExtra[idx]))
	if err != nil {
		return 0, 0, err
	}
	length = int(lengthBase[idx]) + int(extra)

	dsym, err := br.readCode(distTable)
	if err != nil {
		return 0, 0, err
	}
	if dsym >= numDistSymbols {
		return 0, 0, fmt.Errorf("%w: distance %d", ErrInvalidSymbol, dsym)
	}
	extra, err = br.readBits(uint(distExtra[dsym]))
	if err != nil {
		return 0, 0, err
	}

	return length, int(distBase[dsym]) + int(extra), nil
}
