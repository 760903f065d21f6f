// Package main provides the conntrack CLI: the tracker server and an operator client
// for its Status API.
//
// Start the server:
//
//	conntrack serve --config configs/config.yaml
//
// Inspect and drive it:
//
//	conntrack ctl list --status alive,stale
//	conntrack ctl register nick@irc.example.org
//	conntrack ctl beat nick@irc.example.org --interval 10s
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Build information, set with -ldflags "-X main.version=..."
var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := newLogger(os.Stderr, "info", false)

	if err := buildRootCmd().Execute(); err != nil {
		logger.Fatal().Err(err).Msg("Command failed")
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "conntrack",
		Short: "Track the liveness of proxied IRC connections",
		Long: `conntrack keeps an in-memory registry of IRC sessions, ages them from
periodic heartbeats and reports their status over a REST API.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildCtlCmd(),
		buildConfigCmd(),
	)
	return rootCmd
}

// newLogger builds the process logger: JSON lines by default, a console writer when
// pretty is set. Unknown levels fall back to info.
func newLogger(out io.Writer, level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
