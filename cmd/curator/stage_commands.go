package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"curator/internal/api"
	"curator/internal/config"
)

func newTriggerCommand(ctx *commandContext) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "trigger [stage...]",
		Short: "Mark stages as having pending work",
		Long:  "Triggers the named stages so their next tick processes pending tasks. With --all every registered stage is triggered.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return errors.New("name at least one stage or pass --all")
			}
			return ctx.withClient(func(client *api.Client) error {
				var triggered []string
				if all {
					resp, err := client.TriggerAll(cmd.Context())
					if err != nil {
						return err
					}
					triggered = resp.Triggered
				} else {
					for _, name := range args {
						resp, err := client.Trigger(cmd.Context(), strings.TrimSpace(name))
						if err != nil {
							return err
						}
						triggered = append(triggered, resp.Triggered...)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Triggered %d stage(s): %s\n", len(triggered), strings.Join(triggered, ", "))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Trigger every registered stage")
	return cmd
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [path]",
		Short: "Stage new, changed and deleted files",
		Long:  "Runs a staging pass over the library roots, or over a single file or directory below a root.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req api.ScanRequest
			if len(args) == 1 {
				path, err := config.ExpandPath(args[0])
				if err != nil {
					return err
				}
				req.Path = path
			}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Scan(cmd.Context(), req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Scanned %d file(s): %d enqueued, %d held, %d deleted\n",
					resp.Scanned, resp.Enqueued, resp.Held, resp.Deleted)
				if len(resp.Stages) > 0 {
					fmt.Fprintf(out, "Triggered: %s\n", strings.Join(resp.Stages, ", "))
				}
				return nil
			})
		},
	}
}

func newRecheckCommand(ctx *commandContext) *cobra.Command {
	var stages []string
	var olderThan string
	var includeErrors bool
	cmd := &cobra.Command{
		Use:   "recheck",
		Short: "Re-queue finished tasks so their stages run again",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Recheck(cmd.Context(), api.RecheckRequest{
					Stages:        stages,
					OlderThan:     strings.TrimSpace(olderThan),
					IncludeErrors: includeErrors,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(resp.Requeued) == 0 {
					fmt.Fprintln(out, "No tasks re-queued")
					return nil
				}
				names := make([]string, 0, len(resp.Requeued))
				for name := range resp.Requeued {
					names = append(names, name)
				}
				sort.Strings(names)
				rows := make([][]string, 0, len(names))
				for _, name := range names {
					rows = append(rows, []string{name, fmt.Sprint(resp.Requeued[name])})
				}
				fmt.Fprint(out, renderTable(requeueColumns, rows))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&stages, "stage", "s", nil, "Stage to recheck (repeatable; default all)")
	cmd.Flags().StringVar(&olderThan, "older-than", "", "Only tasks finished before this age, e.g. 72h or 30d")
	cmd.Flags().BoolVar(&includeErrors, "include-errors", false, "Also retry failed tasks")
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [stage]",
		Short: "Re-queue failed tasks",
		Long:  "Moves tasks in the error status back to updated and wakes their stages. Without a stage every stage is retried.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = strings.TrimSpace(args[0])
			}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Retry(cmd.Context(), name)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.Retried == 0 {
					fmt.Fprintln(out, "No failed tasks")
					return nil
				}
				fmt.Fprintf(out, "Re-queued %d failed task(s)\n", resp.Retried)
				return nil
			})
		},
	}
}

func newJobCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "job <name>",
		Short: "Run a periodic job now",
		Long:  "Runs one of the daemon's scheduled jobs (trigger-all, recheck, staging) immediately, outside its schedule.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.RunJob(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Ran job %s\n", resp.Job)
				return nil
			})
		},
	}
}
