package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wenqinglim/euterpe/internal/service"
	"github.com/wenqinglim/euterpe/internal/storage"
)

type chordLine struct {
	Start uint64   `json:"start"`
	End   uint64   `json:"end"`
	Names []string `json:"names"`
}

func chordsCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	var top int

	c := &cobra.Command{
		Use:   "chords FILE",
		Short: "Print the chord sequence of a MIDI file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			name, data, err := storage.NewSourceResolver("", storage.WithAnyScheme()).ReadFile(ctx, args[0])
			if err != nil {
				return err
			}

			analyzer := service.NewAnalyzer(nil, service.AnalyzerConfig{SkipPercussion: !g.includePercussion}, g.logger(cmd))
			analysis, err := analyzer.Chords(ctx, name, data, g.analyzeOptions())
			if err != nil {
				return err
			}

			lines := make([]chordLine, len(analysis.Chords))
			for i, ch := range analysis.Chords {
				lines[i] = chordLine{Start: ch.Start, End: ch.End, Names: ch.PitchNames()}
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), lines)
			}

			w := cmd.OutOrStdout()
			for _, l := range lines {
				fmt.Fprintf(w, "%8d %8d  %s\n", l.Start, l.End, strings.Join(l.Names, " "))
			}
			if top > 0 {
				fmt.Fprintln(w)
				for _, t := range analysis.Transitions.Top(top) {
					fmt.Fprintf(w, "%4d  %s\n", t.Count, t.Key)
				}
			}
			return nil
		},
	}

	c.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")
	c.Flags().IntVar(&top, "top", 0, "Also print the N most common transitions")
	return c
}
