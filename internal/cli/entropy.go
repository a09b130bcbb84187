package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path"

	"github.com/spf13/cobra"

	"github.com/wenqinglim/euterpe/internal/service"
	"github.com/wenqinglim/euterpe/internal/storage"
)

type entropyOutput struct {
	File                 string  `json:"file"`
	ChordCount           int     `json:"chord_count"`
	TotalTransitions     int     `json:"total_transitions"`
	UniqueTransitions    int     `json:"unique_transitions"`
	Entropy              float64 `json:"entropy"`
	NormalizedEntropy    float64 `json:"normalized_entropy"`
	MostCommonTransition string  `json:"most_common_transition,omitempty"`
	MostCommonCount      int     `json:"most_common_count,omitempty"`
	Matrix               string  `json:"matrix,omitempty"`
	RelativeEntropy      float64 `json:"relative_entropy,omitempty"`
	UnseenTransitions    int     `json:"unseen_transitions,omitempty"`
	Score                float64 `json:"score"`
}

func entropyCmd(g *globalFlags) *cobra.Command {
	var matrixPath string
	var normalized bool
	var asJSON bool

	c := &cobra.Command{
		Use:   "entropy FILE",
		Short: "Print the chord transition entropy of a MIDI file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := g.logger(cmd)

			name, data, err := storage.NewSourceResolver("", storage.WithAnyScheme()).ReadFile(ctx, args[0])
			if err != nil {
				return err
			}

			opts := g.analyzeOptions()
			if matrixPath != "" {
				m, err := storage.ReadMatrix(ctx, matrixPath)
				if err != nil {
					return err
				}
				opts.Matrix = m
				opts.MatrixName = path.Base(matrixPath)
			}

			analyzer := service.NewAnalyzer(nil, service.AnalyzerConfig{SkipPercussion: !g.includePercussion}, logger)
			analysis, err := analyzer.Analyze(ctx, name, data, opts)
			if err != nil {
				return err
			}

			out := entropyOutput{
				File:                 name,
				ChordCount:           analysis.Report.ChordCount,
				TotalTransitions:     analysis.Report.TotalTransitions,
				UniqueTransitions:    analysis.Report.UniqueTransitions,
				Entropy:              analysis.Report.Entropy,
				NormalizedEntropy:    analysis.Report.NormalizedEntropy,
				MostCommonTransition: analysis.Report.MostCommonTransition,
				MostCommonCount:      analysis.Report.MostCommonCount,
				Score:                analysis.Report.Entropy,
			}
			if normalized {
				out.Score = analysis.Report.NormalizedEntropy
			}
			if rel := analysis.Relative; rel != nil {
				out.Matrix = matrixPath
				out.RelativeEntropy = rel.Entropy
				out.UnseenTransitions = rel.UnseenTransitions
				out.Score = rel.Entropy
				if normalized {
					out.RelativeEntropy = rel.NormalizedEntropy
					out.Score = rel.NormalizedEntropy
				}
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			printEntropy(cmd.OutOrStdout(), out, normalized)
			return nil
		},
	}

	c.Flags().StringVarP(&matrixPath, "matrix", "m", "", "Global transition matrix JSON to score against")
	c.Flags().BoolVar(&normalized, "normalized", false, "Divide by log2 of the number of distinct transitions")
	c.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")
	return c
}

func printEntropy(w io.Writer, out entropyOutput, normalized bool) {
	fmt.Fprintf(w, "File:               %s\n", out.File)
	fmt.Fprintf(w, "Chords:             %d\n", out.ChordCount)
	fmt.Fprintf(w, "Transitions:        %d (%d unique)\n", out.TotalTransitions, out.UniqueTransitions)
	fmt.Fprintf(w, "Entropy:            %.6f\n", out.Entropy)
	fmt.Fprintf(w, "Normalized entropy: %.6f\n", out.NormalizedEntropy)
	if out.MostCommonTransition != "" {
		fmt.Fprintf(w, "Most common:        %s x%d\n", out.MostCommonTransition, out.MostCommonCount)
	}
	if out.Matrix != "" {
		label := "Relative entropy:  "
		if normalized {
			label = "Relative (norm.):  "
		}
		fmt.Fprintf(w, "%s %.6f (%d unseen)\n", label, out.RelativeEntropy, out.UnseenTransitions)
	}
}

func (g *globalFlags) analyzeOptions() service.AnalyzeOptions {
	skip := !g.includePercussion
	return service.AnalyzeOptions{MergeRepeated: g.mergeRepeated, SkipPercussion: &skip}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
