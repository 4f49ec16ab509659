package deflate

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// BlockType selects how the encoder codes a block.
type BlockType int

// Block type constants; values match the BTYPE field of the block header.
const (
	BlockStored  BlockType = iota // No compression, raw bytes in <=65535 byte chunks.
	BlockFixed                    // LZ77 + fixed Huffman codes.
	BlockDynamic                  // LZ77 + Huffman codes built from the data.
)

// Valid reports whether t is one of the defined block types.
func (t BlockType) Valid() bool {
	return t >= BlockStored && t <= BlockDynamic
}

func (t BlockType) String() string {
	switch t {
	case BlockStored:
		return "stored"
	case BlockFixed:
		return "fixed"
	case BlockDynamic:
		return "dynamic"
	default:
		return fmt.Sprintf("BlockType(%d)", int(t))
	}
}

// ParseBlockType parses "stored", "fixed" or "dynamic".
func ParseBlockType(s string) (BlockType, error) {
	for t := BlockStored; t <= BlockDynamic; t++ {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrInvalidBlockType, s)
}

// BufferStrategy selects how the single-shot decoder manages its output buffer.
type BufferStrategy int

// Buffer strategy constants.
const (
	// BufferAdaptive grows one buffer by a ratio estimated from the input consumed so far.
	BufferAdaptive BufferStrategy = iota
	// BufferBlock keeps a fixed window-sized ring and flushes completed blocks aside.
	BufferBlock
)

// Valid reports whether s is one of the defined strategies.
func (s BufferStrategy) Valid() bool {
	return s == BufferAdaptive || s == BufferBlock
}

func (s BufferStrategy) String() string {
	switch s {
	case BufferAdaptive:
		return "adaptive"
	case BufferBlock:
		return "block"
	default:
		return fmt.Sprintf("BufferStrategy(%d)", int(s))
	}
}

// ParseBufferStrategy parses "adaptive" or "block".
func ParseBufferStrategy(s string) (BufferStrategy, error) {
	for _, v := range []BufferStrategy{BufferAdaptive, BufferBlock} {
		if strings.EqualFold(s, v.String()) {
			return v, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrInvalidBufferStrategy, s)
}

// Defaults used when an option is left zero.
const (
	DefaultBufferSize    = 0x8000  // Initial output buffer (adaptive) or block size (block strategy).
	DefaultMaxOutputSize = 1 << 30 // Hard ceiling for adaptive growth.
)

// CompressOptions configures Compress.
type CompressOptions struct {
	// BlockType selects stored, fixed or dynamic coding. There is no automatic selection.
	BlockType BlockType
	// Lazy is the match length below which a match is deferred by one position
	// in case the next position matches longer. 0 disables lazy matching.
	Lazy int
	// Output, if non-nil, is the buffer the compressed stream is written into,
	// starting at OutputOffset. Bytes before OutputOffset are kept as they are.
	Output []byte
	// OutputOffset is the write position inside Output.
	OutputOffset int
}

// DefaultCompressOptions returns options for dynamic Huffman blocks without lazy matching.
func DefaultCompressOptions() *CompressOptions {
	return &CompressOptions{
		BlockType: BlockDynamic,
	}
}

// BlockInfo describes one block header seen by a decoder.
type BlockInfo struct {
	Index        int       `csv:"index"`
	Final        bool      `csv:"final"`
	Type         BlockType `csv:"-"`
	TypeName     string    `csv:"type"`
	InputBit     int64     `csv:"input_bit"`     // Bit offset of the block header in the input.
	OutputOffset int64     `csv:"output_offset"` // Decompressed bytes produced before this block.
}

// DecompressOptions configures Decompress and DecompressPrefix.
type DecompressOptions struct {
	// StartOffset is the index in src where the DEFLATE stream begins.
	StartOffset int
	// BufferSize is the initial output size (adaptive) or the flush block size (block).
	BufferSize int
	// Strategy selects the output buffer strategy.
	Strategy BufferStrategy
	// Resize returns an exact-capacity copy of the output instead of a slice of the working buffer.
	Resize bool
	// FixRatio, when positive, replaces the estimated adaptive growth ratio.
	FixRatio float64
	// AddRatio is added to the adaptive growth ratio.
	AddRatio float64
	// MaxOutputSize is the hard ceiling of adaptive growth; 0 means DefaultMaxOutputSize.
	MaxOutputSize int
	// Logger receives debug output; nil discards it.
	Logger logrus.FieldLogger
	// OnBlock, if set, is called after every block header.
	OnBlock func(BlockInfo)
}

// DefaultDecompressOptions returns options for adaptive buffering from the start of the input.
func DefaultDecompressOptions() *DecompressOptions {
	return &DecompressOptions{
		BufferSize:    DefaultBufferSize,
		Strategy:      BufferAdaptive,
		MaxOutputSize: DefaultMaxOutputSize,
	}
}

// StreamOptions configures a StreamDecoder.
type StreamOptions struct {
	// StartOffset bytes are skipped from the beginning of the input before decoding.
	StartOffset int
	// BufferSize is the amount of output kept beyond the trailing window before compaction.
	BufferSize int
	// Logger receives debug output; nil discards it.
	Logger logrus.FieldLogger
	// OnBlock, if set, is called after every block header.
	OnBlock func(BlockInfo)
}

// DefaultStreamOptions returns default streaming options.
func DefaultStreamOptions() *StreamOptions {
	return &StreamOptions{
		BufferSize: DefaultBufferSize,
	}
}

// discardLogger is used when no logger is configured.
var discardLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)

	return l
}()

func loggerOrDiscard(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return discardLogger
	}

	return l
}
