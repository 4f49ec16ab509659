package deflate

import "math/bits"

// bitWriter packs bits LSB-first into a growable byte buffer.
type bitWriter struct {
	buf []byte // Output buffer; bytes before the start offset belong to the caller.
	pos int    // Index of the byte currently being filled.
	bit uint   // Bits already used in buf[pos] (0..7).
}

// newBitWriter writes into buf starting at offset. A nil buf gets a buffer of sizeHint bytes.
func newBitWriter(buf []byte, offset, sizeHint int) *bitWriter {
	if buf == nil {
		if sizeHint < 64 {
			sizeHint = 64
		}
		buf = make([]byte, offset+sizeHint)
	}
	if offset >= len(buf) {
		buf = growBuffer(buf, offset+1)
	}

	return &bitWriter{buf: buf, pos: offset}
}

// reverseBits returns the low n bits of v in reverse order.
// It uses bits.Reverse32 instead of a 256-entry byte-reversal table.
func reverseBits(v uint32, n uint) uint32 {
	if n == 0 {
		return 0
	}

	return bits.Reverse32(v) >> (32 - n)
}

// growBuffer returns a copy of buf at least need bytes long, doubling its size.
func growBuffer(buf []byte, need int) []byte {
	size := len(buf) * 2
	if size < need {
		size = need
	}
	grown := make([]byte, size)
	copy(grown, buf)

	return grown
}

// writeBits writes the low n bits of v (n <= 32). With reversed set, the n-bit
// pattern is flipped first so a code built MSB-first lands in stream order.
func (w *bitWriter) writeBits(v uint32, n uint, reversed bool) {
	if reversed {
		v = reverseBits(v, n)
	}

	for n > 0 {
		if w.pos >= len(w.buf) {
			w.buf = growBuffer(w.buf, w.pos+1)
		}
		if w.bit == 0 {
			// Caller-supplied buffers may hold stale bytes past the offset.
			w.buf[w.pos] = 0
		}

		take := 8 - w.bit
		if take > n {
			take = n
		}
		w.buf[w.pos] |= byte(v&(1<<take-1)) << w.bit
		v >>= take
		n -= take
		w.bit += take
		if w.bit == 8 {
			w.pos++
			w.bit = 0
		}
	}
}

// alignToByte pads the current byte with zero bits.
func (w *bitWriter) alignToByte() {
	if w.bit > 0 {
		w.pos++
		w.bit = 0
	}
}

// writeBytes appends raw bytes at a byte boundary.
func (w *bitWriter) writeBytes(p []byte) {
	w.alignToByte()
	if w.pos+len(p) > len(w.buf) {
		w.buf = growBuffer(w.buf, w.pos+len(p))
	}
	w.pos += copy(w.buf[w.pos:], p)
}

// finish flushes a partial trailing byte and returns the buffer truncated to the written bytes.
func (w *bitWriter) finish() []byte {
	w.alignToByte()

	return w.buf[:w.pos]
}
