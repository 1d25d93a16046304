package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/invoice-pipeline/internal/intake"
	"github.com/JaimeStill/invoice-pipeline/internal/tracker"
)

func processCmd(load configLoader) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "process <file>...",
		Short: "Run files through the pipeline and print each result",
		Long: `Validate, extract and match each file synchronously. Files run
concurrently and results print in argument order.

Examples:
  intakectl process invoice-0412.pdf scans/*.jpg
  intakectl process --source email inbox/attachment.png`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subs := make([]intake.FileSubmission, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				name := filepath.Base(path)
				subs = append(subs, intake.NewSubmission(name, intake.ContentTypeFor(name), data, intake.ParseSource(source)))
			}

			s, err := openSession(cmd.Context(), load)
			if err != nil {
				return err
			}
			defer s.Close()

			results, batchErr := s.domain.Pipeline.ProcessBatch(cmd.Context(), subs)
			if err := printJSON(cmd.OutOrStdout(), results); err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				if r.Status != tracker.OverallCompleted {
					failed++
				}
			}
			if batchErr != nil {
				return batchErr
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files did not complete", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", string(intake.SourceManual), "submission source (manual, email, drive)")

	return cmd
}
