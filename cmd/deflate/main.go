// Command deflate compresses, decompresses and inspects raw DEFLATE, gzip and zlib data.
package main

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := newApp(os.Stdout, logrus.StandardLogger())
	if err := app.Run(os.Args); err != nil {
		logrus.Fatalf("fatal error: %s", err)
	}
}

func newApp(stdout io.Writer, log *logrus.Logger) *cli.App {
	formatFlag := &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   formatRaw,
		Usage:   "container format: raw, gzip or zlib",
		EnvVars: []string{"DEFLATE_FORMAT"},
	}
	outputFlag := &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Value:   "-",
		Usage:   "output file, - for stdout",
	}

	return &cli.App{
		Name:   "deflate",
		Usage:  "Compress, decompress and inspect DEFLATE streams",
		Writer: stdout,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "enable debug logging",
				EnvVars: []string{"DEFLATE_DEBUG"},
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				log.SetLevel(logrus.DebugLevel)
				log.Debug("debug mode enabled")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "compress",
				Usage:     "Compress a file",
				ArgsUsage: "INPUT",
				Flags: []cli.Flag{
					formatFlag,
					outputFlag,
					&cli.StringFlag{
						Name:    "block-type",
						Aliases: []string{"t"},
						Value:   "dynamic",
						Usage:   "block type: stored, fixed or dynamic",
						EnvVars: []string{"DEFLATE_BLOCK_TYPE"},
					},
					&cli.IntFlag{
						Name:    "lazy",
						Usage:   "defer matches shorter than this by one byte, 0 disables",
						EnvVars: []string{"DEFLATE_LAZY"},
					},
				},
				Action: func(c *cli.Context) error {
					return compressAction(c, log)
				},
			},
			{
				Name:      "decompress",
				Usage:     "Decompress a file",
				ArgsUsage: "INPUT",
				Flags: []cli.Flag{
					formatFlag,
					outputFlag,
					&cli.StringFlag{
						Name:    "strategy",
						Value:   "adaptive",
						Usage:   "output buffer strategy: adaptive or block",
						EnvVars: []string{"DEFLATE_STRATEGY"},
					},
					&cli.BoolFlag{
						Name:  "stream",
						Usage: "decode raw input chunk by chunk with the streaming decoder",
					},
					&cli.IntFlag{
						Name:    "chunk-size",
						Value:   deflateReadSize,
						Usage:   "input chunk size for --stream",
						EnvVars: []string{"DEFLATE_CHUNK_SIZE"},
					},
				},
				Action: func(c *cli.Context) error {
					return decompressAction(c, log)
				},
			},
			{
				Name:      "inspect",
				Usage:     "List the blocks of a raw DEFLATE stream",
				ArgsUsage: "INPUT",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "offset",
						Usage: "byte offset where the stream starts",
					},
					&cli.BoolFlag{
						Name:  "csv",
						Usage: "print the block list as CSV",
					},
				},
				Action: func(c *cli.Context) error {
					return inspectAction(c, log)
				},
			},
		},
	}
}
