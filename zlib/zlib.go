// Package zlib implements the RFC 1950 zlib format on top of package deflate.
package zlib

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/adler32"

	"github.com/woozymasta/deflate"
)

const (
	methodDeflate = 8
	maxWindowBits = 7 // CINFO: log2(window size) - 8.
	flagDict      = 0x20

	headerSize  = 2
	trailerSize = 4
)

// Package errors.
var (
	ErrHeader     = errors.New("invalid zlib header")
	ErrDictionary = errors.New("zlib preset dictionary not supported")
	ErrChecksum   = errors.New("zlib adler-32 mismatch")
)

// header returns CMF and FLG for a 32 KiB window. FLEVEL follows the block type.
func header(t deflate.BlockType) (byte, byte) {
	cmf := byte(maxWindowBits<<4 | methodDeflate)

	var level byte
	switch t {
	case deflate.BlockStored:
		level = 0
	case deflate.BlockFixed:
		level = 1
	default:
		level = 2
	}

	flg := level << 6
	if rem := (uint16(cmf)<<8 | uint16(flg)) % 31; rem != 0 {
		flg += byte(31 - rem)
	}

	return cmf, flg
}

// Compress writes src as a zlib stream. Options nil means deflate.DefaultCompressOptions().
func Compress(src []byte, opts *deflate.CompressOptions) ([]byte, error) {
	o := deflate.DefaultCompressOptions()
	if opts != nil {
		*o = *opts
	}

	cmf, flg := header(o.BlockType)
	head := make([]byte, headerSize, headerSize+len(src)/2+trailerSize)
	head[0], head[1] = cmf, flg
	o.Output = head
	o.OutputOffset = headerSize

	out, err := deflate.Compress(src, o)
	if err != nil {
		return nil, err
	}

	return binary.BigEndian.AppendUint32(out, adler32.Checksum(src)), nil
}

// Decompress decodes a zlib stream that fills src exactly. Options nil means
// deflate.DefaultDecompressOptions(); StartOffset is ignored.
func Decompress(src []byte, opts *deflate.DecompressOptions) ([]byte, error) {
	if len(src) < headerSize+trailerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeader, len(src))
	}

	cmf, flg := src[0], src[1]
	if cmf&0x0f != methodDeflate {
		return nil, fmt.Errorf("%w: compression method %d", ErrHeader, cmf&0x0f)
	}
	if cmf>>4 > maxWindowBits {
		return nil, fmt.Errorf("%w: window size 2^%d", ErrHeader, cmf>>4+8)
	}
	if (uint16(cmf)<<8|uint16(flg))%31 != 0 {
		return nil, fmt.Errorf("%w: header check bits", ErrHeader)
	}
	if flg&flagDict != 0 {
		return nil, ErrDictionary
	}

	o := deflate.DefaultDecompressOptions()
	if opts != nil {
		*o = *opts
	}
	o.StartOffset = headerSize

	out, consumed, err := deflate.DecompressPrefix(src, o)
	if err != nil {
		return nil, err
	}

	off := headerSize + consumed
	switch rest := len(src) - off; {
	case rest < trailerSize:
		return nil, fmt.Errorf("%w: truncated adler-32", deflate.ErrUnexpectedEOF)
	case rest > trailerSize:
		return nil, fmt.Errorf("%w: %d bytes after adler-32", deflate.ErrTrailingData, rest-trailerSize)
	}

	if want, got := binary.BigEndian.Uint32(src[off:]), adler32.Checksum(out); got != want {
		return nil, fmt.Errorf("%w: got %#08x, want %#08x", ErrChecksum, got, want)
	}

	return out, nil
}
