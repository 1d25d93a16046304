package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func statusCmd(load configLoader) *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "status [file-id]",
		Short: "Print the processing record of a file, or stage counts when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id uuid.UUID
			if len(args) == 1 {
				parsed, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid file id %q: %w", args[0], err)
				}
				id = parsed
			}

			s, err := openSession(cmd.Context(), load)
			if err != nil {
				return err
			}
			defer s.Close()

			if id == uuid.Nil {
				stats, err := s.domain.Tracker.Stats(cmd.Context(), time.Now().Add(-since))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stats)
			}

			rec, err := s.domain.Tracker.GetStatus(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}

	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "window for stage counts")

	return cmd
}
