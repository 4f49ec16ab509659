package deflate

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// StreamState is the position of a StreamDecoder inside the block structure.
type StreamState int

// Stream states, in the order a block walks through them.
const (
	StateInitialized      StreamState = iota // Before the first block header.
	StateBlockHeaderStart                    // Reading BFINAL/BTYPE.
	StateBlockHeaderEnd                      // Block header read.
	StateBlockBodyStart                      // Reading LEN/NLEN or the code tables.
	StateBlockBodyEnd                        // Block body header read.
	StateDecodeBlockStart                    // Producing block data.
	StateDecodeBlockEnd                      // Block finished.
)

func (s StreamState) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateBlockHeaderStart:
		return "block-header-start"
	case StateBlockHeaderEnd:
		return "block-header-end"
	case StateBlockBodyStart:
		return "block-body-start"
	case StateBlockBodyEnd:
		return "block-body-end"
	case StateDecodeBlockStart:
		return "decode-block-start"
	case StateDecodeBlockEnd:
		return "decode-block-end"
	default:
		return fmt.Sprintf("StreamState(%d)", int(s))
	}
}

// StreamDecoder decodes a raw DEFLATE stream delivered in arbitrary chunks.
//
// Every step that can run out of input saves the reader position first and
// rolls back to it, so a block header, a code table or a whole match is
// either consumed completely or not at all. Decoding resumes on the next
// Decompress call. Errors other than running out of input are final.
type StreamDecoder struct {
	opts StreamOptions
	log  logrus.FieldLogger

	br   bitReader
	base int64 // Input bytes dropped from the front of br.input, skipped ones included.
	skip int   // StartOffset bytes still to skip.

	state      StreamState
	final      bool
	btype      BlockType
	storedLeft int
	litLen     *huffmanTable
	dist       *huffmanTable
	index      int

	out      []byte
	op       int // Next write index in out.
	sp       int // Start of output not yet returned.
	produced int64

	done bool
	err  error
}

// NewStreamDecoder returns a decoder waiting for its first chunk. Options nil means DefaultStreamOptions().
// A negative StartOffset makes every Decompress call fail with ErrInvalidOption.
func NewStreamDecoder(opts *StreamOptions) *StreamDecoder {
	if opts == nil {
		opts = DefaultStreamOptions()
	}

	o := *opts
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}

	d := &StreamDecoder{
		opts: o,
		log:  loggerOrDiscard(o.Logger),
		skip: o.StartOffset,
		out:  make([]byte, o.BufferSize),
	}
	if o.StartOffset < 0 {
		d.skip = 0
		d.err = fmt.Errorf("%w: negative start offset %d", ErrInvalidOption, o.StartOffset)
	}

	return d
}

// Decompress appends chunk to the pending input and decodes as far as it goes.
// It returns the output produced by this call, possibly empty when more input
// is needed. After the final block chunks are kept for Remaining and nothing
// more is decoded.
func (d *StreamDecoder) Decompress(chunk []byte) ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}

	d.feed(chunk)
	if d.done {
		return nil, nil
	}

	err := d.advance()
	out := d.take()
	if err != nil {
		d.err = err
		return out, err
	}
	d.compact()

	return out, nil
}

// Done reports whether the final block has been decoded.
func (d *StreamDecoder) Done() bool {
	return d.done
}

// State returns the current position in the block structure.
func (d *StreamDecoder) State() StreamState {
	return d.state
}

// BytesConsumed is the number of input bytes used so far, StartOffset and a
// partially read byte included.
func (d *StreamDecoder) BytesConsumed() int64 {
	return d.base + int64(d.br.consumed())
}

// BytesProduced is the number of output bytes decoded so far.
func (d *StreamDecoder) BytesProduced() int64 {
	return d.produced
}

// Remaining returns a copy of the input that has not been consumed. Once Done
// is true this is whatever followed the DEFLATE stream.
func (d *StreamDecoder) Remaining() []byte {
	rest := d.br.input[d.br.consumed():]
	out := make([]byte, len(rest))
	copy(out, rest)

	return out
}

// feed drops consumed input and appends chunk, skipping StartOffset bytes first.
func (d *StreamDecoder) feed(chunk []byte) {
	if d.skip > 0 {
		k := min(d.skip, len(chunk))
		chunk = chunk[k:]
		d.skip -= k
		d.base += int64(k)
	}

	// Only a partial byte may stay in the accumulator once its input is dropped.
	d.br.unreadBytes()
	if d.done {
		d.br.bits, d.br.nbits = 0, 0
	}
	cut := d.br.pos

	rest := d.br.input[cut:]
	buf := make([]byte, len(rest)+len(chunk))
	copy(buf, rest)
	copy(buf[len(rest):], chunk)

	d.base += int64(cut)
	d.br.input = buf
	d.br.pos = 0
}

func (d *StreamDecoder) advance() error {
	for {
		switch d.state {
		case StateInitialized, StateBlockHeaderStart:
			d.state = StateBlockHeaderStart
			if err := d.readBlockHeader(); err != nil {
				return d.suspend(err)
			}
			d.state = StateBlockHeaderEnd
		case StateBlockHeaderEnd, StateBlockBodyStart:
			d.state = StateBlockBodyStart
			if err := d.readBlockBody(); err != nil {
				return d.suspend(err)
			}
			d.state = StateBlockBodyEnd
		case StateBlockBodyEnd, StateDecodeBlockStart:
			d.state = StateDecodeBlockStart
			if err := d.decodeBlock(); err != nil {
				return d.suspend(err)
			}
			d.state = StateDecodeBlockEnd
		case StateDecodeBlockEnd:
			if d.final {
				d.done = true
				d.log.WithFields(logrus.Fields{
					"consumed": d.BytesConsumed(),
					"produced": d.produced,
				}).Debug("deflate stream finished")
				return nil
			}
			d.state = StateInitialized
		}
	}
}

// suspend swallows the need for more input; anything else is returned.
func (d *StreamDecoder) suspend(err error) error {
	if errors.Is(err, errNeedInput) {
		d.log.WithField("state", d.state).Debug("deflate stream waiting for input")
		return nil
	}

	return err
}

func (d *StreamDecoder) readBlockHeader() error {
	s := d.br.save()
	headerBit := d.base*8 + d.br.bitOffset()

	v, err := d.br.readBits(3)
	if err != nil {
		d.br.restore(s)
		return err
	}

	d.final = v&1 == 1
	d.btype = BlockType(v >> 1)
	if !d.btype.Valid() {
		return fmt.Errorf("%w at input bit %d", ErrReservedBlockType, headerBit)
	}

	info := BlockInfo{
		Index:        d.index,
		Final:        d.final,
		Type:         d.btype,
		TypeName:     d.btype.String(),
		InputBit:     headerBit,
		OutputOffset: d.produced,
	}
	d.index++

	d.log.WithFields(logrus.Fields{
		"block": info.Index,
		"final": info.Final,
		"type":  info.Type,
	}).Debug("deflate block header")
	if d.opts.OnBlock != nil {
		d.opts.OnBlock(info)
	}

	return nil
}

func (d *StreamDecoder) readBlockBody() error {
	s := d.br.save()

	switch d.btype {
	case BlockStored:
		n, err := readStoredHeader(&d.br)
		if err != nil {
			d.br.restore(s)
			return err
		}
		d.storedLeft = n
	case BlockFixed:
		d.litLen, d.dist = fixedLitLenTable, fixedDistTable
	case BlockDynamic:
		lit, dist, err := readDynamicTables(&d.br)
		if err != nil {
			d.br.restore(s)
			return err
		}
		d.litLen, d.dist = lit, dist
	}

	return nil
}

func (d *StreamDecoder) decodeBlock() error {
	if d.btype == BlockStored {
		return d.copyStored()
	}

	for {
		s := d.br.save()
		sym, err := d.br.readCode(d.litLen)
		if err != nil {
			d.br.restore(s)
			return err
		}

		switch {
		case sym < endOfBlock:
			d.reserve(1)
			d.out[d.op] = byte(sym)
			d.op++
			d.produced++
		case sym == endOfBlock:
			return nil
		default:
			length, distance, err := readLengthDistance(&d.br, sym, d.dist)
			if err != nil {
				d.br.restore(s)
				return err
			}
			if int64(distance) > d.produced {
				return fmt.Errorf("%w: distance %d with %d bytes of output", ErrInvalidDistance, distance, d.produced)
			}
			d.reserve(length)
			from := d.op - distance
			for i := 0; i < length; i++ {
				d.out[d.op+i] = d.out[from+i]
			}
			d.op += length
			d.produced += int64(length)
		}
	}
}

// copyStored copies as much of the stored block as the input holds.
func (d *StreamDecoder) copyStored() error {
	br := &d.br
	for d.storedLeft > 0 {
		avail := len(br.input) - br.pos
		if avail == 0 {
			return errNeedInput
		}

		n := min(avail, d.storedLeft)
		d.reserve(n)
		copy(d.out[d.op:], br.input[br.pos:br.pos+n])
		d.op += n
		br.pos += n
		d.storedLeft -= n
		d.produced += int64(n)
	}

	return nil
}

// reserve makes room for n more output bytes.
func (d *StreamDecoder) reserve(n int) {
	if d.op+n <= len(d.out) {
		return
	}

	grown := make([]byte, max(2*len(d.out), d.op+n))
	copy(grown, d.out[:d.op])
	d.out = grown
}

// take returns a copy of the output produced since the last call.
func (d *StreamDecoder) take() []byte {
	out := make([]byte, d.op-d.sp)
	copy(out, d.out[d.sp:d.op])
	d.sp = d.op

	return out
}

// compact keeps only the trailing window once the buffer passes BufferSize plus the window.
func (d *StreamDecoder) compact() {
	if d.op <= d.opts.BufferSize+WindowSize {
		return
	}

	copy(d.out, d.out[d.op-WindowSize:d.op])
	d.op = WindowSize
	d.sp = d.op
}
