package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/dynamic-splash/internal/service"
	"github.com/MimeLyc/dynamic-splash/internal/splash"
)

func newSyncCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch the splash config once and cache the selected image",
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withApp(func(a *app) error {
				runner, err := a.newRunner(newCron())
				if err != nil {
					return err
				}
				run, err := runner.Trigger(cmd.Context(), service.SourceManual)
				out := cmd.OutOrStdout()
				if err != nil {
					fmt.Fprintf(out, "sync failed: %v\n", err)
					return err
				}
				meta := a.manager.Meta()
				fmt.Fprintf(out, "splash %q (%s) ready at %s in %s\n",
					meta.ImageName, meta.ConfigVersion, meta.LocalPath, run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
				return nil
			})
		},
	}
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	var asJSON bool
	var runs int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored splash metadata and recent sync runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withApp(func(a *app) error {
				out := cmd.OutOrStdout()
				meta := a.manager.Meta()
				if asJSON {
					return writeJSON(out, meta)
				}

				fmt.Fprintf(out, "storage key: %s (%s)\n", a.manager.StorageKey(), a.cfg.Storage.Backend)
				fmt.Fprintf(out, "status:      %s\n", meta.Status)
				if meta.UpdatedAt > 0 {
					fmt.Fprintf(out, "updated:     %s\n", humanize.Time(time.UnixMilli(meta.UpdatedAt)))
				}
				switch meta.Status {
				case splash.StatusReady:
					fmt.Fprintf(out, "image:       %s (%s)\n", meta.ImageName, meta.ConfigVersion)
					fmt.Fprintf(out, "window:      %s .. %s\n", meta.StartAt, meta.EndAt)
					fmt.Fprintf(out, "local path:  %s\n", meta.LocalPath)
				case splash.StatusError:
					fmt.Fprintf(out, "last error:  %s\n", meta.LastError)
				}

				if a.runs == nil || runs <= 0 {
					return nil
				}
				recent, err := a.runs.RecentRuns(cmd.Context(), runs)
				if err != nil {
					return err
				}
				for _, run := range recent {
					line := fmt.Sprintf("  #%d %s %s %s", run.ID, humanize.Time(run.StartedAt), run.Source, run.Status)
					if run.Error != "" {
						line += ": " + run.Error
					}
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the stored metadata as JSON")
	cmd.Flags().IntVar(&runs, "runs", 5, "number of recent runs to list (sqlite backend only)")
	return cmd
}

func newPlanCmd(flags *rootFlags) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print what a launch would display",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				t, ok := splash.ParseTime(at)
				if !ok {
					return fmt.Errorf("invalid --at %q", at)
				}
				now = t
			}
			return flags.withApp(func(a *app) error {
				return writeJSON(cmd.OutOrStdout(), a.manager.Plan(cmd.Context(), now))
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate at this time instead of now (ISO-8601)")
	return cmd
}

func newClearCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the cached image and reset the stored metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withApp(func(a *app) error {
				res := a.manager.Clear(cmd.Context())
				if !res.OK {
					return fmt.Errorf("clear: %w", res.Err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "splash metadata cleared")
				return nil
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
