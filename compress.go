package deflate

import "fmt"

var (
	fixedLitLenCodes = canonicalCodes(fixedLitLenLengths[:])
	fixedDistCodes   = canonicalCodes(fixedDistLengths[:])
)

// Extra bits carried by the code length repeat symbols.
var repeatExtraBits = [numCodeLenCodes]uint{repeatPrevious: 2, repeatZeroes: 3, repeatZeroesL: 7}

// Compress compresses src into a raw DEFLATE stream. Options nil means DefaultCompressOptions().
//
// The whole input becomes one fixed or dynamic block, or as many stored blocks
// as the 65535-byte LEN limit requires; the last block carries the final bit.
func Compress(src []byte, opts *CompressOptions) ([]byte, error) {
	if opts == nil {
		opts = DefaultCompressOptions()
	}
	if !opts.BlockType.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBlockType, int(opts.BlockType))
	}
	if opts.Lazy < 0 {
		return nil, fmt.Errorf("%w: lazy=%d", ErrInvalidOption, opts.Lazy)
	}
	if opts.OutputOffset < 0 || (opts.Output != nil && opts.OutputOffset > len(opts.Output)) {
		return nil, fmt.Errorf("%w: output offset %d outside buffer of %d bytes", ErrInvalidOption, opts.OutputOffset, len(opts.Output))
	}

	// Stored output size is exact; coded output rarely exceeds the input.
	sizeHint := len(src) + 5*(len(src)/MaxStoredBlockSize+1) + 8
	w := newBitWriter(opts.Output, opts.OutputOffset, sizeHint)

	switch opts.BlockType {
	case BlockStored:
		writeStoredBlocks(w, src)
	case BlockFixed:
		ts := newLZ77Matcher(opts.Lazy).tokenize(src)
		writeFixedBlock(w, ts)
	case BlockDynamic:
		ts := newLZ77Matcher(opts.Lazy).tokenize(src)
		writeDynamicBlock(w, ts)
	}

	return w.finish(), nil
}

// writeBlockHeader writes BFINAL and BTYPE.
func writeBlockHeader(w *bitWriter, final bool, t BlockType) {
	bfinal := uint32(0)
	if final {
		bfinal = 1
	}
	w.writeBits(bfinal, 1, false)
	w.writeBits(uint32(t), 2, false) // #nosec G115 -- validated block type
}

// writeStoredBlocks splits src into stored blocks. Empty input still gets one final block.
func writeStoredBlocks(w *bitWriter, src []byte) {
	for first := true; first || len(src) > 0; first = false {
		n := len(src)
		if n > MaxStoredBlockSize {
			n = MaxStoredBlockSize
		}

		writeBlockHeader(w, n == len(src), BlockStored)
		w.alignToByte()
		w.writeBits(uint32(n), 16, false)          // #nosec G115 -- n <= 65535
		w.writeBits(uint32(^uint16(n)), 16, false) // #nosec G115 -- n <= 65535
		w.writeBytes(src[:n])
		src = src[n:]
	}
}

func writeFixedBlock(w *bitWriter, ts *tokenStream) {
	writeBlockHeader(w, true, BlockFixed)
	writeTokens(w, ts.tokens, fixedLitLenCodes, fixedLitLenLengths[:], fixedDistCodes, fixedDistLengths[:])
}

func writeDynamicBlock(w *bitWriter, ts *tokenStream) {
	litLens := codeLengths(ts.litLenFreqs[:], maxLitLenCodeLength)
	distLens := codeLengths(ts.distFreqs[:], maxDistCodeLength)

	writeDynamicHeader(w, true, litLens, distLens)
	writeTokens(w, ts.tokens, canonicalCodes(litLens), litLens, canonicalCodes(distLens), distLens)
}

// writeDynamicHeader writes the block header and the code length tables for
// full-size litLens and distLens, trimming unused trailing symbols.
func writeDynamicHeader(w *bitWriter, final bool, litLens, distLens []uint8) {
	hlit := numLitLenSymbols
	for hlit > endOfBlock+1 && litLens[hlit-1] == 0 {
		hlit--
	}
	hdist := numDistSymbols
	for hdist > 1 && distLens[hdist-1] == 0 {
		hdist--
	}

	tree := encodeTreeLengths(litLens[:hlit], distLens[:hdist])
	clLens := codeLengths(tree.freqs[:], maxCodeLenCodeLength)
	clCodes := canonicalCodes(clLens)

	hclen := numCodeLenCodes
	for hclen > 4 && clLens[codeLengthOrder[hclen-1]] == 0 {
		hclen--
	}

	writeBlockHeader(w, final, BlockDynamic)
	w.writeBits(uint32(hlit-257), 5, false) // #nosec G115 -- 0..29
	w.writeBits(uint32(hdist-1), 5, false)  // #nosec G115 -- 0..29
	w.writeBits(uint32(hclen-4), 4, false)  // #nosec G115 -- 0..15
	for i := 0; i < hclen; i++ {
		w.writeBits(uint32(clLens[codeLengthOrder[i]]), 3, false)
	}

	for i := 0; i < len(tree.codes); i++ {
		sym := tree.codes[i]
		w.writeBits(uint32(clCodes[sym]), uint(clLens[sym]), false)
		if sym >= repeatPrevious {
			i++
			w.writeBits(uint32(tree.codes[i]), repeatExtraBits[sym], false)
		}
	}
}

// writeTokens writes a token stream with the given (bit-reversed) codes.
func writeTokens(w *bitWriter, tokens []uint16, litCodes []uint16, litLens []uint8, distCodes []uint16, distLens []uint8) {
	for i := 0; i < len(tokens); {
		sym := tokens[i]
		if int(sym) >= len(litLens) || litLens[sym] == 0 {
			panic(fmt.Sprintf("deflate: literal/length symbol %d has no code", sym))
		}
		w.writeBits(uint32(litCodes[sym]), uint(litLens[sym]), false)
		if sym <= endOfBlock {
			i++
			continue
		}

		w.writeBits(uint32(tokens[i+2]), uint(tokens[i+1]), false)
		d := tokens[i+3]
		if int(d) >= len(distLens) || distLens[d] == 0 {
			panic(fmt.Sprintf("deflate: distance symbol %d has no code", d))
		}
		w.writeBits(uint32(distCodes[d]), uint(distLens[d]), false)
		w.writeBits(uint32(tokens[i+5]), uint(tokens[i+4]), false)
		i += matchTokenSlots
	}
}
