package deflate

// tokenStream is the matcher output: literals (0..255) take one slot, the
// end-of-block marker (256) one slot, and a match six slots:
// length code, length extra bit count, length extra value,
// distance code, distance extra bit count, distance extra value.
// A leading value above 256 marks a match.
type tokenStream struct {
	tokens      []uint16
	litLenFreqs [numLitLenSymbols]uint32
	distFreqs   [numDistSymbols]uint32
}

func (ts *tokenStream) literal(b byte) {
	ts.tokens = append(ts.tokens, uint16(b))
	ts.litLenFreqs[b]++
}

func (ts *tokenStream) match(length, dist int) {
	lc, lbits, lextra := lengthCode(length)
	dc, dbits, dextra := distCode(dist)
	ts.tokens = append(ts.tokens, lc, uint16(lbits), lextra, dc, uint16(dbits), dextra)
	ts.litLenFreqs[lc]++
	ts.distFreqs[dc]++
}

func (ts *tokenStream) end() {
	ts.tokens = append(ts.tokens, endOfBlock)
	ts.litLenFreqs[endOfBlock]++
}

// lz77Match is a match candidate.
type lz77Match struct {
	length   int
	distance int
}

// lz77Matcher finds back references through hash chains keyed by the next
// three bytes. Chains are ordered oldest first.
type lz77Matcher struct {
	lazy   int
	chains map[uint32][]int
}

func newLZ77Matcher(lazy int) *lz77Matcher {
	return &lz77Matcher{
		lazy:   lazy,
		chains: make(map[uint32][]int),
	}
}

// tokenize runs the matcher over data and returns the terminated token stream.
func (m *lz77Matcher) tokenize(data []byte) *tokenStream {
	ts := &tokenStream{tokens: make([]uint16, 0, len(data)+1)}

	var prev lz77Match
	hasPrev := false
	skip := 0

	// offset is 0 for a match starting at pos, -1 for a deferred one from pos-1.
	writeMatch := func(mt lz77Match, offset int) {
		ts.match(mt.length, mt.distance)
		skip = mt.length + offset - 1
		hasPrev = false
	}

	n := len(data)
	for pos := 0; pos < n; pos++ {
		canMatch := pos+MinMatch <= n
		var key uint32
		if canMatch {
			key = uint32(data[pos])<<16 | uint32(data[pos+1])<<8 | uint32(data[pos+2])
		}

		if skip > 0 {
			skip--
			if canMatch {
				m.chains[key] = append(m.chains[key], pos)
			}
			continue
		}

		if !canMatch {
			if hasPrev {
				writeMatch(prev, -1)
				continue
			}
			ts.literal(data[pos])
			continue
		}

		chain := m.evict(key, pos)
		switch {
		case len(chain) > 0:
			best := m.longest(data, pos, chain)
			switch {
			case hasPrev && prev.length < best.length:
				ts.literal(data[pos-1])
				writeMatch(best, 0)
			case hasPrev:
				writeMatch(prev, -1)
			case best.length < m.lazy:
				prev = best
				hasPrev = true
			default:
				writeMatch(best, 0)
			}
		case hasPrev:
			writeMatch(prev, -1)
		default:
			ts.literal(data[pos])
		}

		m.chains[key] = append(chain, pos)
	}

	ts.end()

	return ts
}

// evict drops chain entries that fell out of the window and returns the rest.
func (m *lz77Matcher) evict(key uint32, pos int) []int {
	chain := m.chains[key]
	drop := 0
	for drop < len(chain) && pos-chain[drop] > WindowSize {
		drop++
	}
	if drop > 0 {
		chain = chain[drop:]
		m.chains[key] = chain
	}

	return chain
}

// longest scans the chain from the most recent candidate and returns the
// longest match. Only a strictly longer match replaces the current best, so
// the nearest candidate wins ties.
func (m *lz77Matcher) longest(data []byte, pos int, chain []int) lz77Match {
	limit := len(data) - pos
	if limit > MaxMatch {
		limit = MaxMatch
	}

	var best lz77Match
	for i := len(chain) - 1; i >= 0; i-- {
		cand := chain[i]

		// The key guarantees MinMatch equal bytes.
		l := MinMatch
		if best.length > MinMatch {
			// Check the tail first: a candidate that cannot reach the
			// current best length is rejected without a forward scan.
			tailOK := true
			for k := best.length - 1; k >= MinMatch; k-- {
				if data[cand+k] != data[pos+k] {
					tailOK = false
					break
				}
			}
			if !tailOK {
				continue
			}
			l = best.length
		}

		for l < limit && data[cand+l] == data[pos+l] {
			l++
		}
		if l > best.length {
			best = lz77Match{length: l, distance: pos - cand}
		}
		if best.length == limit {
			break
		}
	}

	return best
}
