package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/invoice-pipeline/internal/deadletter"
	"github.com/JaimeStill/invoice-pipeline/pkg/pagination"
)

func dlqCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dlq",
		Aliases: []string{"dead-letters"},
		Short:   "Triage dead-lettered files",
	}

	cmd.AddCommand(dlqListCmd(load))
	cmd.AddCommand(dlqResolveCmd(load))
	cmd.AddCommand(dlqReprocessCmd(load))
	cmd.AddCommand(dlqPurgeCmd(load))

	return cmd
}

func dlqListCmd(load configLoader) *cobra.Command {
	var (
		status   string
		page     int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-letter entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), load)
			if err != nil {
				return err
			}
			defer s.Close()

			filters := deadletter.Filters{Status: deadletter.Status(status)}
			if status == "all" {
				filters = deadletter.Filters{}
			}

			req := pagination.PageRequest{Page: page, PageSize: pageSize}
			req.Normalize(s.cfg.API.Pagination)

			result, err := s.domain.DeadLetters.List(cmd.Context(), req, filters)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&status, "status", string(deadletter.StatusPendingReview), "entry status, or all")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "entries per page (default from config)")

	return cmd
}

func dlqResolveCmd(load configLoader) *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "resolve <file-id>",
		Short: "Close an entry without reprocessing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid file id %q: %w", args[0], err)
			}

			s, err := openSession(cmd.Context(), load)
			if err != nil {
				return err
			}
			defer s.Close()

			entry, err := s.domain.Pipeline.Resolve(cmd.Context(), id, deadletter.ResolveCommand{ResolutionNotes: notes})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entry)
		},
	}

	cmd.Flags().StringVarP(&notes, "notes", "n", "", "resolution notes")

	return cmd
}

func dlqReprocessCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess <file-id>",
		Short: "Re-inject the stored payload of an entry as a new file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid file id %q: %w", args[0], err)
			}

			s, err := openSession(cmd.Context(), load)
			if err != nil {
				return err
			}
			defer s.Close()

			newID, err := s.domain.Pipeline.Reprocess(cmd.Context(), id)
			if err != nil {
				return err
			}

			// Close drains the pool, so the new record is final once it returns.
			if err := s.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reprocessed %s as %s\n", id, newID)
			return nil
		},
	}
}

func dlqPurgeCmd(load configLoader) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete resolved and reprocessed entries past retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), load)
			if err != nil {
				return err
			}
			defer s.Close()

			retention := olderThan
			if retention == 0 {
				retention = s.cfg.DeadLetter.RetentionDuration()
			}

			sweeper := deadletter.NewSweeper(s.domain.DeadLetters, retention, time.Hour, s.infra.Logger)
			n, err := sweeper.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d entries\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "retention window (default from config)")

	return cmd
}
