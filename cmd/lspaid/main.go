// Command lspaid is the stdio-transport LSP daemon: it wires internal/mirror,
// internal/orchestrator and internal/lspglue together and speaks JSON-RPC
// over stdin/stdout until the client disconnects or sends exit.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/lspaid/internal/logging"
	"github.com/standardbeagle/lspaid/internal/lspglue"
	"github.com/standardbeagle/lspaid/internal/mirror"
)

// version is stamped by the release pipeline via -ldflags; unset builds
// report "dev".
var version = "dev"

func main() {
	app := &cli.App{
		Name:    "lspaid",
		Usage:   "LSP daemon providing AI-assisted completion and generation",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Logging filter: error, warn, info, debug (overrides " + logging.EnvVar + ")",
			},
			&cli.BoolFlag{
				Name:  "build-trees",
				Usage: "Maintain tree-sitter parse trees alongside the rope mirror",
			},
		},
		Action: runServer,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "lspaid: %v\n", err)
		os.Exit(1)
	}
}

func runServer(c *cli.Context) error {
	if level := c.String("log-level"); level != "" {
		logging.SetDefault(logging.New(level, os.Stderr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := mirror.New(c.Bool("build-trees"))
	server := lspglue.NewServer(m)

	if err := server.Run(ctx); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}
