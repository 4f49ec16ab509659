package deflate

import (
	"fmt"
	"sort"
)

// DEFLATE format constants (RFC 1951).
const (
	WindowSize = 32768 // Maximum backward distance of a match.
	MinMatch   = 3     // Shortest encodable match.
	MaxMatch   = 258   // Longest encodable match.

	MaxStoredBlockSize = 65535 // LEN field is 16 bits.
)

const (
	endOfBlock = 256

	numLitLenSymbols = 286 // Literal/length alphabet size usable in a dynamic block.
	numDistSymbols   = 30
	numCodeLenCodes  = 19

	maxLitLenCodeLength  = 15
	maxDistCodeLength    = 7
	maxCodeLenCodeLength = 7

	// Match tokens occupy this many slots in the token stream.
	matchTokenSlots = 6
)

// codeLengthOrder is the transmission order of the code length alphabet (RFC 1951, 3.2.7).
var codeLengthOrder = [numCodeLenCodes]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

// Length codes 257..285 (RFC 1951, 3.2.5).
var (
	lengthBase = [29]uint16{
		3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31,
		35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258,
	}
	lengthExtra = [29]uint8{
		0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2,
		3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0,
	}
)

// Distance codes 0..29 (RFC 1951, 3.2.5).
var (
	distBase = [numDistSymbols]uint16{
		1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193,
		257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145, 8193, 12289, 16385, 24577,
	}
	distExtra = [numDistSymbols]uint8{
		0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6,
		7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
	}
)

// lengthCodeIndex maps a match length to its index in lengthBase.
var lengthCodeIndex [MaxMatch + 1]uint8

func init() {
	code := 0
	for l := MinMatch; l < MaxMatch; l++ {
		for code+1 < len(lengthBase)-1 && int(lengthBase[code+1]) <= l {
			code++
		}
		lengthCodeIndex[l] = uint8(code)
	}
	// 258 has its own code even though 284 + 31 would reach it.
	lengthCodeIndex[MaxMatch] = uint8(len(lengthBase) - 1)
}

// lengthCode returns the length symbol (257..285), extra bit count and extra value for a match length.
func lengthCode(length int) (code uint16, nbits uint8, extra uint16) {
	if length < MinMatch || length > MaxMatch {
		panic(fmt.Sprintf("deflate: invalid match length %d", length))
	}

	i := lengthCodeIndex[length]

	return uint16(i) + endOfBlock + 1, lengthExtra[i], uint16(length) - lengthBase[i]
}

// distCode returns the distance symbol (0..29), extra bit count and extra value for a distance.
func distCode(dist int) (code uint16, nbits uint8, extra uint16) {
	if dist < 1 || dist > WindowSize {
		panic(fmt.Sprintf("deflate: invalid match distance %d", dist))
	}

	// First base strictly greater than dist, minus one.
	i := sort.Search(len(distBase), func(i int) bool { return int(distBase[i]) > dist }) - 1

	return uint16(i), distExtra[i], uint16(dist - int(distBase[i])) // #nosec G115 -- dist-base < 8192
}

// Fixed Huffman code lengths (RFC 1951, 3.2.6).
var (
	fixedLitLenLengths = func() (l [288]uint8) {
		for i := range l {
			switch {
			case i < 144:
				l[i] = 8
			case i < 256:
				l[i] = 9
			case i < 280:
				l[i] = 7
			default:
				l[i] = 8
			}
		}

		return l
	}()
	// Distance symbols 30 and 31 have codes but never occur in valid data.
	fixedDistLengths = func() (l [numDistSymbols + 2]uint8) {
		for i := range l {
			l[i] = 5
		}

		return l
	}()
)
