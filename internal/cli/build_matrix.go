package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wenqinglim/euterpe/internal/harmony"
	"github.com/wenqinglim/euterpe/internal/service"
	"github.com/wenqinglim/euterpe/internal/storage"
)

func buildMatrixCmd(g *globalFlags) *cobra.Command {
	var output string
	var pattern string
	var workers int

	c := &cobra.Command{
		Use:   "build-matrix FILE|DIR...",
		Short: "Build a global chord transition matrix from MIDI files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := g.logger(cmd)

			builder := service.NewCorpusBuilder(nil, storage.NewSourceResolver("", storage.WithAnyScheme()), nil, nil,
				service.BuilderConfig{Workers: workers, SkipPercussion: !g.includePercussion}, logger)

			collection, err := builder.Collect(ctx, nil, service.CorpusRequest{
				Sources:       args,
				Pattern:       pattern,
				MergeRepeated: g.mergeRepeated,
			})
			if err != nil {
				return err
			}
			total := collection.Counts.Total()
			if total == 0 {
				logger.Warn("no transitions found in any input file, writing an empty matrix")
			}

			matrix := harmony.MatrixFromCounts(collection.Counts)
			if err := storage.WriteMatrix(ctx, output, matrix); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Files:       %d processed, %d failed\n", collection.Processed, len(collection.Failures))
			fmt.Fprintf(w, "Transitions: %d (%d unique)\n", total, len(matrix))
			fmt.Fprintf(w, "Matrix:      %s\n", output)
			for _, f := range collection.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %s\n", f.Source, f.Reason)
			}
			return nil
		},
	}

	c.Flags().StringVarP(&output, "output", "o", "", "Where to write the matrix JSON (required)")
	c.Flags().StringVar(&pattern, "pattern", "", "Only include files matching this glob, relative to each directory (e.g. \"**/bach/*.mid\")")
	c.Flags().IntVar(&workers, "workers", service.DefaultWorkers, "Files processed concurrently")
	_ = c.MarkFlagRequired("output")
	return c
}
