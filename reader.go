package deflate

import (
	"fmt"
	"io"
)

// ReadSize is the chunk size Reader pulls from its source.
const ReadSize = 4096

// Reader is an io.Reader over a raw DEFLATE stream read from another io.Reader.
// It feeds a StreamDecoder in ReadSize chunks and stops at the final block, so
// bytes after the stream stay available through Remaining.
type Reader struct {
	src     io.Reader      // The compressed source.
	dec     *StreamDecoder // The decoder fed from src.
	buf     []byte         // Read buffer for src.
	pending []byte         // Decoded bytes not yet returned.
	err     error          // Sticky error, io.EOF once drained.
}

// NewReader returns a Reader decoding from r. Options nil means DefaultStreamOptions().
func NewReader(r io.Reader, opts *StreamOptions) *Reader {
	return &Reader{
		src: r,
		dec: NewStreamDecoder(opts),
		buf: make([]byte, ReadSize),
	}
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		if r.dec.Done() {
			r.err = io.EOF
			continue
		}
		r.fill()
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]

	return n, nil
}

// fill reads one chunk from the source and decodes it.
func (r *Reader) fill() {
	n, err := r.src.Read(r.buf)

	out, derr := r.dec.Decompress(r.buf[:n])
	r.pending = out
	if derr != nil {
		r.err = derr
		return
	}

	switch {
	case err == io.EOF:
		if !r.dec.Done() {
			r.err = fmt.Errorf("%w: source ended after %d bytes: %w", ErrUnexpectedEOF, r.dec.BytesConsumed(), io.ErrUnexpectedEOF)
		}
	case err != nil:
		r.err = err
	}
}

// BytesConsumed is the number of source bytes used by the DEFLATE stream so far.
func (r *Reader) BytesConsumed() int64 {
	return r.dec.BytesConsumed()
}

// Remaining returns source bytes read past the end of the stream.
func (r *Reader) Remaining() []byte {
	return r.dec.Remaining()
}

// DecompressFromReader decodes one raw DEFLATE stream from r and returns the
// output and the number of source bytes the stream occupied.
func DecompressFromReader(r io.Reader, opts *StreamOptions) ([]byte, int64, error) {
	if r == nil {
		return nil, 0, ErrNilReader
	}

	zr := NewReader(r, opts)
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, zr.BytesConsumed(), err
	}

	return out, zr.BytesConsumed(), nil
}
