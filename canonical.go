package deflate

import (
	"container/heap"
	"fmt"
)

// symbolFreq is one heap entry: a symbol and its frequency.
type symbolFreq struct {
	sym  int
	freq uint32
}

// freqHeap is a max-heap on frequency; equal frequencies pop lower symbols first.
type freqHeap []symbolFreq

func (h freqHeap) Len() int { return len(h) }
func (h freqHeap) Less(i, j int) bool {
	if h[i].freq != h[j].freq {
		return h[i].freq > h[j].freq
	}

	return h[i].sym < h[j].sym
}
func (h freqHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *freqHeap) Push(x any)   { *h = append(*h, x.(symbolFreq)) }
func (h *freqHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]

	return x
}

// codeLengths computes optimal code lengths no longer than limit for freqs.
// Symbols with zero frequency get length 0; a lone symbol gets length 1.
func codeLengths(freqs []uint32, limit int) []uint8 {
	lengths := make([]uint8, len(freqs))

	h := make(freqHeap, 0, len(freqs))
	for sym, f := range freqs {
		if f > 0 {
			h = append(h, symbolFreq{sym: sym, freq: f})
		}
	}
	heap.Init(&h)

	switch h.Len() {
	case 0:
		return lengths
	case 1:
		lengths[h[0].sym] = 1
		return lengths
	}
	if h.Len() > 1<<limit {
		panic(fmt.Sprintf("deflate: %d symbols do not fit in %d-bit codes", h.Len(), limit))
	}

	// Pop in descending order, then hand package-merge the ascending view.
	desc := make([]symbolFreq, 0, h.Len())
	for h.Len() > 0 {
		desc = append(desc, heap.Pop(&h).(symbolFreq))
	}
	n := len(desc)
	weights := make([]uint64, n)
	for i := range weights {
		weights[i] = uint64(desc[n-1-i].freq)
	}

	for i, l := range packageMerge(weights, limit) {
		lengths[desc[n-1-i].sym] = l
	}

	return lengths
}

// pmItem is a coin in the package-merge lists: a leaf (symbol index) or a package of two items.
type pmItem struct {
	weight uint64
	leaf   int // Index into the weight slice, or -1 for a package.
}

// packageMerge returns length-limited optimal code lengths for weights sorted
// ascending (len(weights) >= 2, len(weights) <= 1<<limit).
func packageMerge(weights []uint64, limit int) []uint8 {
	n := len(weights)

	leaves := make([]pmItem, n)
	for i, w := range weights {
		leaves[i] = pmItem{weight: w, leaf: i}
	}

	// levels[limit-1] holds the leaves alone; every level above merges the
	// leaves with the pairwise packages of the level below it.
	levels := make([][]pmItem, limit)
	levels[limit-1] = leaves
	for j := limit - 2; j >= 0; j-- {
		below := levels[j+1]
		packages := make([]pmItem, 0, len(below)/2)
		for k := 0; k+1 < len(below); k += 2 {
			packages = append(packages, pmItem{weight: below[k].weight + below[k+1].weight, leaf: -1})
		}
		levels[j] = mergeItems(leaves, packages)
	}

	// Select the cheapest 2n-2 items of the top level and walk the selected
	// packages down: every time a leaf is selected its code grows by one bit.
	lengths := make([]uint8, n)
	take := 2*n - 2
	for j := 0; j < limit && take > 0; j++ {
		packages := 0
		for _, it := range levels[j][:take] {
			if it.leaf >= 0 {
				lengths[it.leaf]++
			} else {
				packages++
			}
		}
		take = 2 * packages
	}

	return lengths
}

// mergeItems merges two weight-sorted lists; on equal weight leaves go first.
func mergeItems(leaves, packages []pmItem) []pmItem {
	out := make([]pmItem, 0, len(leaves)+len(packages))
	i, j := 0, 0
	for i < len(leaves) && j < len(packages) {
		if leaves[i].weight <= packages[j].weight {
			out = append(out, leaves[i])
			i++
		} else {
			out = append(out, packages[j])
			j++
		}
	}
	out = append(out, leaves[i:]...)
	out = append(out, packages[j:]...)

	return out
}

// canonicalCodes assigns canonical codes to lengths and returns them bit-reversed,
// ready for LSB-first output.
func canonicalCodes(lengths []uint8) []uint16 {
	var count [maxLitLenCodeLength + 1]uint32
	for _, l := range lengths {
		if l > 0 {
			count[l]++
		}
	}

	var next [maxLitLenCodeLength + 1]uint32
	code := uint32(0)
	for l := 1; l <= maxLitLenCodeLength; l++ {
		code = (code + count[l-1]) << 1
		next[l] = code
	}

	codes := make([]uint16, len(lengths))
	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		codes[sym] = uint16(reverseBits(next[l], uint(l))) // #nosec G115 -- l <= 15
		next[l]++
	}

	return codes
}

// Code length alphabet repeat symbols (RFC 1951, 3.2.7).
const (
	repeatPrevious = 16 // Previous length 3..6 times, 2 extra bits.
	repeatZeroes   = 17 // Zero 3..10 times, 3 extra bits.
	repeatZeroesL  = 18 // Zero 11..138 times, 7 extra bits.
)

// treeSymbols is a run-length encoded code length sequence. Repeat symbols
// (16, 17, 18) are followed by their extra-bit value in the next slot.
type treeSymbols struct {
	codes []uint8
	freqs [numCodeLenCodes]uint32
}

// encodeTreeLengths run-length encodes the concatenated literal/length and distance code lengths.
func encodeTreeLengths(litLen, dist []uint8) treeSymbols {
	src := make([]uint8, 0, len(litLen)+len(dist))
	src = append(src, litLen...)
	src = append(src, dist...)

	var ts treeSymbols
	ts.codes = make([]uint8, 0, len(src)*2)

	emit := func(sym uint8) {
		ts.codes = append(ts.codes, sym)
		ts.freqs[sym]++
	}
	emitRepeat := func(sym uint8, extra int) {
		ts.codes = append(ts.codes, sym, uint8(extra)) // #nosec G115 -- extra <= 127
		ts.freqs[sym]++
	}

	for i := 0; i < len(src); {
		j := 1
		for i+j < len(src) && src[i+j] == src[i] {
			j++
		}
		value := src[i]
		run := j
		i += j

		if value == 0 {
			if run < 3 {
				for ; run > 0; run-- {
					emit(0)
				}
				continue
			}
			for run > 0 {
				rpt := repeatChunk(run, 138)
				if rpt <= 10 {
					emitRepeat(repeatZeroes, rpt-3)
				} else {
					emitRepeat(repeatZeroesL, rpt-11)
				}
				run -= rpt
			}
			continue
		}

		// The first occurrence is sent literally; only the repeats are folded.
		emit(value)
		run--
		if run < 3 {
			for ; run > 0; run-- {
				emit(value)
			}
			continue
		}
		for run > 0 {
			rpt := repeatChunk(run, 6)
			emitRepeat(repeatPrevious, rpt-3)
			run -= rpt
		}
	}

	return ts
}

// repeatChunk picks the next repeat count for a run, capped at limit, so the
// remainder never ends up as 1 or 2 (too short to repeat).
func repeatChunk(run, limit int) int {
	rpt := run
	if rpt > limit {
		rpt = limit
	}
	if rpt > run-3 && rpt < run {
		rpt = run - 3
	}

	return rpt
}
