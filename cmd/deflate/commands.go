package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/woozymasta/deflate"
	"github.com/woozymasta/deflate/gzip"
	"github.com/woozymasta/deflate/zlib"
)

const (
	formatRaw  = "raw"
	formatGzip = "gzip"
	formatZlib = "zlib"

	deflateReadSize = deflate.ReadSize
)

var errUsage = errors.New("usage error")

func inputPath(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("%w: expected one INPUT argument, got %d", errUsage, c.NArg())
	}

	return c.Args().First(), nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}

	return os.ReadFile(path)
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}

	return os.Open(path)
}

func writeOutput(c *cli.Context, data []byte) error {
	path := c.String("output")
	if path == "-" {
		_, err := c.App.Writer.Write(data)
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

func compressAction(c *cli.Context, log *logrus.Logger) error {
	path, err := inputPath(c)
	if err != nil {
		return err
	}
	blockType, err := deflate.ParseBlockType(c.String("block-type"))
	if err != nil {
		return err
	}
	src, err := readInput(path)
	if err != nil {
		return err
	}

	opts := &deflate.CompressOptions{BlockType: blockType, Lazy: c.Int("lazy")}

	var out []byte
	switch format := c.String("format"); format {
	case formatRaw:
		out, err = deflate.Compress(src, opts)
	case formatGzip:
		out, err = gzip.Compress(src, gzipHeader(path), opts)
	case formatZlib:
		out, err = zlib.Compress(src, opts)
	default:
		return fmt.Errorf("%w: unknown format %q", errUsage, format)
	}
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"input":  len(src),
		"output": len(out),
		"type":   blockType,
	}).Info("compressed")

	return writeOutput(c, out)
}

func decompressAction(c *cli.Context, log *logrus.Logger) error {
	path, err := inputPath(c)
	if err != nil {
		return err
	}
	strategy, err := deflate.ParseBufferStrategy(c.String("strategy"))
	if err != nil {
		return err
	}
	format := c.String("format")

	if c.Bool("stream") {
		if format != formatRaw {
			return fmt.Errorf("%w: --stream supports the raw format only", errUsage)
		}
		return streamDecompress(c, path, log)
	}

	src, err := readInput(path)
	if err != nil {
		return err
	}
	opts := &deflate.DecompressOptions{Strategy: strategy, Logger: log}

	var out []byte
	switch format {
	case formatRaw:
		out, err = deflate.Decompress(src, opts)
	case formatGzip:
		out, err = gzip.Decompress(src, opts)
	case formatZlib:
		out, err = zlib.Decompress(src, opts)
	default:
		return fmt.Errorf("%w: unknown format %q", errUsage, format)
	}
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"input":  len(src),
		"output": len(out),
	}).Info("decompressed")

	return writeOutput(c, out)
}

func streamDecompress(c *cli.Context, path string, log *logrus.Logger) error {
	size := c.Int("chunk-size")
	if size <= 0 {
		return fmt.Errorf("%w: chunk size %d", errUsage, size)
	}

	in, err := openInput(path)
	if err != nil {
		return err
	}
	defer in.Close()

	var w io.Writer = c.App.Writer
	if out := c.String("output"); out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	dec := deflate.NewStreamDecoder(&deflate.StreamOptions{Logger: log})
	buf := make([]byte, size)
	for !dec.Done() {
		n, rerr := in.Read(buf)
		out, err := dec.Decompress(buf[:n])
		if err != nil {
			return err
		}
		if _, err := w.Write(out); err != nil {
			return err
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}
	if !dec.Done() {
		return fmt.Errorf("%w: input ended after %d bytes", deflate.ErrUnexpectedEOF, dec.BytesConsumed())
	}

	log.WithFields(logrus.Fields{
		"input":  dec.BytesConsumed(),
		"output": dec.BytesProduced(),
	}).Info("decompressed")

	return nil
}

func inspectAction(c *cli.Context, log *logrus.Logger) error {
	path, err := inputPath(c)
	if err != nil {
		return err
	}
	src, err := readInput(path)
	if err != nil {
		return err
	}

	var blocks []deflate.BlockInfo
	opts := &deflate.DecompressOptions{
		StartOffset: c.Int("offset"),
		Logger:      log,
		OnBlock:     func(b deflate.BlockInfo) { blocks = append(blocks, b) },
	}
	out, consumed, err := deflate.DecompressPrefix(src, opts)
	if err != nil {
		return err
	}

	w := c.App.Writer
	if c.Bool("csv") {
		return gocsv.Marshal(&blocks, w)
	}

	fmt.Fprintf(w, "%-6s %-6s %-8s %12s %12s\n", "INDEX", "FINAL", "TYPE", "INPUT_BIT", "OUTPUT")
	for _, b := range blocks {
		fmt.Fprintf(w, "%-6d %-6t %-8s %12d %12d\n", b.Index, b.Final, b.TypeName, b.InputBit, b.OutputOffset)
	}
	fmt.Fprintf(w, "%d blocks, %d bytes in, %d bytes out\n", len(blocks), consumed, len(out))

	return nil
}

func gzipHeader(path string) *gzip.Header {
	h := &gzip.Header{OS: gzip.OSUnknown}
	if path != "-" {
		h.Name = filepath.Base(path)
	}

	return h
}
