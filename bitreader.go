package deflate

// bitReader consumes an input slice LSB-first through a bit accumulator.
// The accumulator never holds more than 23 bits, so a uint32 is enough.
type bitReader struct {
	input []byte
	pos   int    // Next input byte to load into the accumulator.
	bits  uint32 // Buffered bits, next bit in the LSB.
	nbits uint   // Number of valid bits in bits.
}

// readerState is a saved cursor; restoring it undoes every read since the save.
type readerState struct {
	pos   int
	bits  uint32
	nbits uint
}

func (br *bitReader) save() readerState {
	return readerState{pos: br.pos, bits: br.bits, nbits: br.nbits}
}

func (br *bitReader) restore(s readerState) {
	br.pos = s.pos
	br.bits = s.bits
	br.nbits = s.nbits
}

// need fills the accumulator up to n bits (n <= 16).
func (br *bitReader) need(n uint) bool {
	for br.nbits < n {
		if br.pos >= len(br.input) {
			return false
		}
		br.bits |= uint32(br.input[br.pos]) << br.nbits
		br.pos++
		br.nbits += 8
	}

	return true
}

// readBits returns the next n bits (n <= 16) as an integer, first bit in the LSB.
func (br *bitReader) readBits(n uint) (uint32, error) {
	if !br.need(n) {
		return 0, errNeedInput
	}

	v := br.bits & (1<<n - 1)
	br.bits >>= n
	br.nbits -= n

	return v, nil
}

// readCode decodes one symbol with t.
func (br *bitReader) readCode(t *huffmanTable) (int, error) {
	// A short fill is fine as long as the matched code fits in the bits we have.
	full := br.need(t.maxLen)

	entry := t.codes[br.bits&(1<<t.maxLen-1)]
	length := uint(entry >> 16)
	if length == 0 {
		if !full {
			return 0, errNeedInput
		}

		return 0, ErrInvalidCode
	}
	if length > br.nbits {
		return 0, errNeedInput
	}

	br.bits >>= length
	br.nbits -= length

	return int(entry & 0xffff), nil
}

// unreadBytes hands whole buffered bytes back to the input, leaving only the
// bits of a partially read byte in the accumulator.
func (br *bitReader) unreadBytes() {
	br.pos -= int(br.nbits / 8)
	br.nbits %= 8
	br.bits &= 1<<br.nbits - 1
}

// alignToByte drops the bits of a partially read byte and hands whole
// buffered bytes back to the input.
func (br *bitReader) alignToByte() {
	br.unreadBytes()
	br.bits = 0
	br.nbits = 0
}

// bitOffset is the position of the next unread bit in the input.
func (br *bitReader) bitOffset() int64 {
	return int64(br.pos)*8 - int64(br.nbits)
}

// consumed is the number of input bytes used so far, a partially read byte included.
func (br *bitReader) consumed() int {
	return br.pos - int(br.nbits/8)
}
