package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/animagen/animagen/internal/client"
	"github.com/animagen/animagen/internal/handler/dto"
)

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var (
		req      dto.GenerateRequest
		wait     bool
		interval time.Duration
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Queue a new animation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Prompt = args[0]

			resp, err := opts.client().Generate(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Task %s queued (%s)\n", resp.TaskID, resp.Status)

			if !wait {
				return nil
			}
			return waitForTask(cmd, opts, resp.TaskID, interval, timeout)
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Style, "style", "", "animation style: mathematical, educational, scientific, presentation, creative")
	f.StringVar(&req.Quality, "quality", "", "render quality: low_quality, medium_quality, high_quality, production_quality")
	f.IntVar(&req.Duration, "duration", 0, "target duration in seconds (5-30)")
	f.StringVar(&req.BackgroundColor, "background", "", "background color, for example #000000")
	f.StringVar(&req.CallbackURL, "callback", "", "URL notified when the task finishes")
	f.BoolVar(&wait, "wait", false, "poll until the task finishes")
	addWaitFlags(cmd, &interval, &timeout)

	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the status of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.client().Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), st)
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status response")

	return cmd
}

func newWaitCmd(opts *rootOptions) *cobra.Command {
	var interval, timeout time.Duration

	cmd := &cobra.Command{
		Use:   "wait <task-id>",
		Short: "Poll a task until it completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return waitForTask(cmd, opts, args[0], interval, timeout)
		},
	}
	addWaitFlags(cmd, &interval, &timeout)

	return cmd
}

func newDownloadCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <task-id>",
		Short: "Download the rendered video of a completed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]

			dir := "."
			if output != "" {
				dir = filepath.Dir(output)
			}
			tmp, err := os.CreateTemp(dir, ".animagen-*")
			if err != nil {
				return fmt.Errorf("create output file: %w", err)
			}
			defer os.Remove(tmp.Name())

			name, err := opts.client().Download(cmd.Context(), taskID, tmp)
			if cerr := tmp.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("close output file: %w", cerr)
			}
			if err != nil {
				return err
			}

			target := output
			if target == "" {
				target = name
			}
			if err := os.Rename(tmp.Name(), target); err != nil {
				return fmt.Errorf("save %s: %w", target, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: server-suggested name)")

	return cmd
}

func newPromptCmd(opts *rootOptions) *cobra.Command {
	var codeOnly bool

	cmd := &cobra.Command{
		Use:   "prompt <task-id>",
		Short: "Show the refined prompt and generated Manim code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rp, err := opts.client().RefinedPrompt(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if codeOnly {
				fmt.Fprintln(cmd.OutOrStdout(), rp.ManimCode)
				return nil
			}
			return printJSON(cmd.OutOrStdout(), rp)
		},
	}
	cmd.Flags().BoolVar(&codeOnly, "code", false, "print only the Manim code")

	return cmd
}

func newEventsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "events <task-id>",
		Short: "Show the status history of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := opts.client().Events(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range events.Events {
				fmt.Fprintf(out, "%s  %-10s %3d%%  %s\n", e.CreatedAt.Format(time.RFC3339), e.Status, e.Progress, e.Message)
			}
			return nil
		},
	}
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		cursor string
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().List(cmd.Context(), cursor, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, resp)
			}

			ids := make([]string, 0, len(resp.Tasks))
			for id := range resp.Tasks {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool {
				return resp.Tasks[ids[i]].CreatedAt.After(resp.Tasks[ids[j]].CreatedAt)
			})

			fmt.Fprintf(out, "%d tasks total\n", resp.TotalTasks)
			for _, id := range ids {
				t := resp.Tasks[id]
				fmt.Fprintf(out, "%s  %-10s %3d%%  %s\n", id, t.Status, t.Progress, t.Prompt)
			}
			if resp.NextCursor != "" {
				fmt.Fprintf(out, "next page: --cursor %s\n", resp.NextCursor)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cursor, "cursor", "", "cursor from a previous page")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size (server default 50)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw list response")

	return cmd
}

func newCleanupCmd(opts *rootOptions) *cobra.Command {
	var hours int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove old tasks and files (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if hours < 1 {
				return errors.New("--hours must be at least 1")
			}
			res, err := opts.client().Cleanup(cmd.Context(), hours)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "remove tasks older than this many hours")

	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show storage usage (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := opts.client().StorageStats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func addWaitFlags(cmd *cobra.Command, interval, timeout *time.Duration) {
	cmd.Flags().DurationVar(interval, "interval", client.DefaultPollInterval, "polling interval")
	cmd.Flags().DurationVar(timeout, "timeout", 15*time.Minute, "give up after this long")
}

func waitForTask(cmd *cobra.Command, opts *rootOptions, taskID string, interval, timeout time.Duration) error {
	ctx := cmd.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out := cmd.OutOrStdout()
	last := -1
	st, err := opts.client().Wait(ctx, taskID, interval, func(st *dto.StatusResponse) {
		if st.Progress != last {
			last = st.Progress
			fmt.Fprintf(out, "[%3d%%] %s\n", st.Progress, st.Message)
		}
	})
	if err != nil {
		return err
	}

	printStatus(out, st)
	return nil
}

func printStatus(w io.Writer, st *dto.StatusResponse) {
	fmt.Fprintf(w, "Task:     %s\n", st.TaskID)
	fmt.Fprintf(w, "Status:   %s (%d%%)\n", st.Status, st.Progress)
	fmt.Fprintf(w, "Message:  %s\n", st.Message)
	if st.ErrorMessage != nil {
		fmt.Fprintf(w, "Error:    %s\n", *st.ErrorMessage)
	}
	if st.FileURL != nil {
		fmt.Fprintf(w, "File:     %s\n", *st.FileURL)
	}
	if st.ProcessingTime != nil {
		fmt.Fprintf(w, "Took:     %.1fs\n", *st.ProcessingTime)
	}
}
