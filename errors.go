package deflate

import "errors"

// Package errors. Use errors.New for static messages, fmt.Errorf when values are needed.
var (
	ErrInvalidBlockType      = errors.New("invalid block type selector")
	ErrInvalidBufferStrategy = errors.New("invalid buffer strategy selector")
	ErrInvalidOption         = errors.New("invalid option value")

	ErrUnexpectedEOF      = errors.New("unexpected end of deflate stream")
	ErrReservedBlockType  = errors.New("reserved block type")
	ErrLengthVerify       = errors.New("stored block length verify failed")
	ErrCorruptHeader      = errors.New("corrupt dynamic block header")
	ErrInvalidCodeLengths = errors.New("over-subscribed huffman code lengths")
	ErrInvalidCode        = errors.New("unresolvable huffman code")
	ErrInvalidSymbol      = errors.New("invalid literal/length or distance symbol")
	ErrInvalidDistance    = errors.New("match distance reaches before start of output")
	ErrOutputTooLarge     = errors.New("decompressed output exceeds size limit")
	ErrTrailingData       = errors.New("trailing bytes after deflate stream")
	ErrNilReader          = errors.New("reader is nil")
)

// errNeedInput reports that a decoding step ran out of input. The streaming
// decoder suspends on it; single-shot decoding turns it into ErrUnexpectedEOF.
var errNeedInput = errors.New("need more input")
