package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jo-hoe/gosubgen/internal/common"
	"github.com/jo-hoe/gosubgen/internal/config"
	"github.com/jo-hoe/gosubgen/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the transcription history",
	}
	cmd.AddCommand(newJobsListCommand(ctx))
	cmd.AddCommand(newJobsShowCommand(ctx))
	return cmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent transcription jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store jobs.Store) error {
				list, err := store.ListJobs(limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No jobs recorded")
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, j := range list {
					rows = append(rows, []string{
						j.ID,
						string(j.Stage),
						j.Provider,
						humanize.Time(j.CreatedAt),
						formatDuration(j),
						j.Path,
					})
				}
				fmt.Fprintln(out, renderTable([]column{
					{Header: "ID"},
					{Header: "Stage"},
					{Header: "Source"},
					{Header: "Created"},
					{Header: "Took", Align: alignRight},
					{Header: "Path", MaxWidth: pathWidth},
				}, rows))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", common.DefaultHistoryLimit, "Maximum number of jobs to show")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one transcription job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store jobs.Store) error {
				j, err := store.GetJob(args[0])
				if err != nil {
					return fmt.Errorf("job %s: %w", args[0], err)
				}
				rows := [][]string{
					{"ID", j.ID},
					{"Stage", string(j.Stage)},
					{"Source", j.Provider + "/" + j.Event},
					{"Path", j.Path},
					{"Subtitle", j.ArtifactPath},
					{"Created", formatTime(&j.CreatedAt)},
					{"Started", formatTime(j.StartedAt)},
					{"Completed", formatTime(j.CompletedAt)},
					{"Took", formatDuration(j)},
				}
				if j.ErrorMessage != nil && *j.ErrorMessage != "" {
					rows = append(rows, []string{"Error", *j.ErrorMessage})
				}
				fmt.Fprintln(cmd.OutOrStdout(), fieldTable("Field", "Value", rows))
				return nil
			})
		},
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime) + " (" + humanize.Time(*t) + ")"
}

func formatDuration(j *jobs.Job) string {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return "-"
	}
	return j.CompletedAt.Sub(*j.StartedAt).Round(time.Second).String()
}
