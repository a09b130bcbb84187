// Package cli wires the euterpe command line.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/wenqinglim/euterpe/internal/logging"
)

// Version is stamped at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

func Execute() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type globalFlags struct {
	logLevel          string
	includePercussion bool
	mergeRepeated     bool
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	cmd := &cobra.Command{
		Use:          "euterpe",
		Short:        "Harmonic complexity of MIDI files via chord transition entropy",
		Version:      Version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "Log level for command output: debug|info|warn|error")
	cmd.PersistentFlags().BoolVar(&g.includePercussion, "include-percussion", false, "Count notes on the General MIDI percussion channel")
	cmd.PersistentFlags().BoolVar(&g.mergeRepeated, "merge-repeated", false, "Merge adjacent identical chords before counting transitions")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(entropyCmd(&g))
	cmd.AddCommand(chordsCmd(&g))
	cmd.AddCommand(buildMatrixCmd(&g))
	return cmd
}

func (g *globalFlags) logger(cmd *cobra.Command) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.logLevel)); err != nil {
		level = slog.LevelWarn
	}
	return logging.New(logging.Config{Level: level, Format: "text", Output: cmd.ErrOrStderr()})
}
