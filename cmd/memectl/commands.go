package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/timmy/memetag/internal/domain"
	"github.com/timmy/memetag/internal/service"
	"github.com/timmy/memetag/internal/source"
)

var errClearNotConfirmed = errors.New("refusing to clear the index without --yes")

func newDumpCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "List every meme record, including untagged ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			memes, err := a.Ingest.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), memes, func(w io.Writer) {
				for _, m := range memes {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.AssetPath, m.Status, strings.Join(m.Tags, ","))
				}
				fmt.Fprintf(w, "%d memes\n", len(memes))
			})
		},
	}
}

func newRetagCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retag <id>",
		Short: "Run text recognition again for one meme",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			meme, err := a.Ingest.Retag(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), meme, func(w io.Writer) {
				fmt.Fprintf(w, "%s retagged: %s\n", meme.ID, strings.Join(meme.Tags, ", "))
			})
		},
	}
}

func newDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one meme with its original and thumbnail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			if err := a.Ingest.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s deleted\n", args[0])
			return nil
		},
	}
}

func newClearCommand(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every index record; image files are kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errClearNotConfirmed
			}
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			n, err := a.Ingest.ConfirmClear(cmd.Context(), a.Ingest.RequestClear())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d records removed; run rescan to restore them\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm clearing the index")
	return cmd
}

func newRetagAllCommand(opts *rootOptions) *cobra.Command {
	return newJobCommand(opts, "retag-all", "Retag every meme", domain.JobRetagAll,
		func(ctx context.Context, s *service.IngestService, args []string) (interface{}, service.JobOutcome, error) {
			summary, err := s.RetagAll(ctx)
			if summary == nil {
				return nil, service.JobOutcome{}, err
			}
			return summary, summary.Outcome(), err
		})
}

func newRescanCommand(opts *rootOptions) *cobra.Command {
	return newJobCommand(opts, "rescan", "Index image files that have no record", domain.JobRescan,
		func(ctx context.Context, s *service.IngestService, args []string) (interface{}, service.JobOutcome, error) {
			summary, err := s.Rescan(ctx)
			if summary == nil {
				return nil, service.JobOutcome{}, err
			}
			return summary, summary.Outcome(), err
		})
}

func newThumbnailsCommand(opts *rootOptions) *cobra.Command {
	return newJobCommand(opts, "thumbnails", "Create missing thumbnails", domain.JobThumbnails,
		func(ctx context.Context, s *service.IngestService, args []string) (interface{}, service.JobOutcome, error) {
			summary, err := s.RegenerateThumbnails(ctx)
			if summary == nil {
				return nil, service.JobOutcome{}, err
			}
			return summary, summary.Outcome(), err
		})
}

func newImportCommand(opts *rootOptions) *cobra.Command {
	cmd := newJobCommand(opts, "import <dir>", "Ingest every image below a local directory", domain.JobImport,
		func(ctx context.Context, s *service.IngestService, args []string) (interface{}, service.JobOutcome, error) {
			summary, err := s.Import(ctx, source.NewDirectory(args[0]))
			if summary == nil {
				return nil, service.JobOutcome{}, err
			}
			return summary, summary.Outcome(), err
		})
	cmd.Long = `Ingest every image below a local directory through the regular upload path.
Folder and file name parts become manual tags; images already indexed are skipped.`
	cmd.Args = cobra.ExactArgs(1)
	return cmd
}

type batchFunc func(ctx context.Context, s *service.IngestService, args []string) (interface{}, service.JobOutcome, error)

// newJobCommand runs a batch operation as a recorded maintenance job.
func newJobCommand(opts *rootOptions, use, short string, kind domain.JobKind, run batchFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			var summary interface{}
			job, _, err := a.Runner.Run(cmd.Context(), kind, "memectl", func(ctx context.Context) (service.JobOutcome, error) {
				var outcome service.JobOutcome
				var runErr error
				summary, outcome, runErr = run(ctx, a.Ingest, args)
				return outcome, runErr
			})
			if job == nil {
				return err
			}
			if emitErr := opts.emit(cmd.OutOrStdout(), map[string]interface{}{"job": job, "summary": summary}, func(w io.Writer) {
				printJob(w, job)
			}); emitErr != nil {
				return emitErr
			}
			return err
		},
	}
}

func newJobsCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Show recent maintenance jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			jobs, err := a.Jobs.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), jobs, func(w io.Writer) {
				for i := range jobs {
					printJob(w, &jobs[i])
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of jobs to show")
	return cmd
}

func newQueryCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query [words...]",
		Short: "Search by tag and print signed URLs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			results, err := a.Query.Query(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), results, func(w io.Writer) {
				for _, r := range results {
					fmt.Fprintf(w, "%s\t%s\t%s\n", r.MemeID, strings.Join(r.Tags, ","), r.ImageURL)
				}
			})
		},
	}
}

func printJob(w io.Writer, job *domain.MaintenanceJob) {
	duration := "running"
	if job.CompletedAt != nil {
		duration = job.CompletedAt.Sub(job.StartedAt).Round(time.Millisecond).String()
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\tok=%d skipped=%d failed=%d\n",
		job.StartedAt.Format(time.RFC3339), job.Kind, job.Status, duration, job.Succeeded, job.Skipped, job.Failed)
	if job.ErrorLog != "" {
		for _, line := range strings.Split(strings.TrimSpace(job.ErrorLog), "\n") {
			fmt.Fprintf(w, "\t%s\n", line)
		}
	}
}
