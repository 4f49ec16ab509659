/*
Package deflate implements the DEFLATE compressed data format (RFC 1951).

Format: a sequence of blocks, each with a 3-bit header (BFINAL, BTYPE).
Stored blocks carry up to 65535 raw bytes after LEN/NLEN. Fixed and dynamic
blocks carry LZ77 literals and (length, distance) back references coded with
canonical Huffman codes; dynamic blocks transmit their code lengths first.
Bits are packed LSB-first; Huffman codes are sent most significant bit first.
Sliding window: 32768 bytes; match length 3..258.

The encoder writes the whole input as one fixed or dynamic block, or as stored
blocks when BlockStored is selected. Code lengths are computed by
package-merge and limited to 15 bits (literal/length) and 7 bits (distance).

Use Compress(src, opts) with nil for default (dynamic Huffman, no lazy matching).
Use Decompress(src, opts) to decode a stream that fills src exactly.
Use DecompressPrefix(src, opts) to decode one stream and get consumed bytes.
Use NewStreamDecoder(opts) to decode input that arrives in arbitrary chunks.
Use NewReader(r, opts) or DecompressFromReader(r, opts) to decode from an io.Reader.
Set DecompressOptions.Strategy to BufferBlock to decode with a fixed-size buffer.
Set DecompressOptions.OnBlock or StreamOptions.OnBlock to observe block headers.

The gzip and zlib subpackages add RFC 1952 and RFC 1950 framing.

# Examples

Round-trip compress and decompress:

	enc, err := deflate.Compress(data, nil)
	if err != nil {
		return err
	}
	dec, err := deflate.Decompress(enc, nil)
	if err != nil {
		return err
	}
	// dec equals data

Compress with fixed Huffman codes and lazy matching:

	opts := &deflate.CompressOptions{BlockType: deflate.BlockFixed, Lazy: 8}
	enc, err := deflate.Compress(data, opts)

Compress after a container header already in the output buffer:

	opts := deflate.DefaultCompressOptions()
	opts.Output = header
	opts.OutputOffset = len(header)
	framed, err := deflate.Compress(data, opts)

Decode one stream and continue with the bytes after it:

	out, consumed, err := deflate.DecompressPrefix(src, nil)
	if err != nil {
		return err
	}
	trailer := src[consumed:]

Decode chunks as they arrive:

	dec := deflate.NewStreamDecoder(nil)
	for chunk := range chunks {
		out, err := dec.Decompress(chunk)
		if err != nil {
			return err
		}
		w.Write(out)
	}
	if !dec.Done() {
		return deflate.ErrUnexpectedEOF
	}

Decode with a fixed 64 KiB working buffer:

	opts := &deflate.DecompressOptions{Strategy: deflate.BufferBlock, BufferSize: 1 << 16}
	out, err := deflate.Decompress(src, opts)
*/
package deflate
