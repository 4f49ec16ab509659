package deflate

import "fmt"

// huffmanTable is a flat decode table indexed by the next maxLen input bits
// (LSB-first). Each entry is codeLength<<16 | symbol; 0 marks an unused slot.
type huffmanTable struct {
	codes  []uint32
	maxLen uint
	minLen uint
}

// buildHuffmanTable builds a decode table from per-symbol code lengths (0 = unused).
// Over-subscribed length sets are rejected; incomplete ones are accepted.
func buildHuffmanTable(lengths []uint8) (*huffmanTable, error) {
	var count [maxLitLenCodeLength + 1]int
	var maxLen, minLen uint
	used := 0
	for _, l := range lengths {
		if l == 0 {
			continue
		}
		if int(l) > maxLitLenCodeLength {
			return nil, fmt.Errorf("%w: code length %d", ErrInvalidCodeLengths, l)
		}
		count[l]++
		used++
		if uint(l) > maxLen {
			maxLen = uint(l)
		}
		if minLen == 0 || uint(l) < minLen {
			minLen = uint(l)
		}
	}

	// Kraft check: left counts the codes still available at each length.
	left := 1
	for l := 1; l <= maxLitLenCodeLength; l++ {
		left <<= 1
		left -= count[l]
		if left < 0 {
			return nil, ErrInvalidCodeLengths
		}
	}

	t := &huffmanTable{
		codes:  make([]uint32, 1<<maxLen),
		maxLen: maxLen,
		minLen: minLen,
	}
	if used == 0 {
		return t, nil
	}

	// Bucket the symbols by length, keeping symbol order inside a bucket.
	code := uint32(0)
	for l := uint(1); l <= maxLen; l++ {
		for sym, sl := range lengths {
			if uint(sl) != l {
				continue
			}
			entry := uint32(l)<<16 | uint32(sym) // #nosec G115 -- sym < 288
			rev := reverseBits(code, l)
			for i := rev; i < uint32(len(t.codes)); i += 1 << l {
				t.codes[i] = entry
			}
			code++
		}
		code <<= 1
	}

	if used == 1 {
		// A lone code owns the whole table.
		entry := t.codes[0]
		for i := range t.codes {
			t.codes[i] = entry
		}
	}

	return t, nil
}

// mustBuildHuffmanTable is for the compile-time fixed tables.
func mustBuildHuffmanTable(lengths []uint8) *huffmanTable {
	t, err := buildHuffmanTable(lengths)
	if err != nil {
		panic("deflate: bad fixed huffman lengths: " + err.Error())
	}

	return t
}

var (
	fixedLitLenTable = mustBuildHuffmanTable(fixedLitLenLengths[:])
	fixedDistTable   = mustBuildHuffmanTable(fixedDistLengths[:])
)
