package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/picoalign/internal/db"
	"github.com/banshee-data/picoalign/internal/report"
	"github.com/banshee-data/picoalign/internal/simplex"
)

func newRunsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded alignment runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := db.Open(a.cfg.GetDatabase())
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer store.Close()

			runs, err := store.ListRuns(limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTARTED\tDIM\tSTATUS\tITER\tEVALS\tBEST COST")
			for _, r := range runs {
				cost := "-"
				if r.BestCost != nil {
					cost = fmt.Sprintf("%.6g", *r.BestCost)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%d\t%s\n", r.ID, r.StartedAt.Format(time.DateTime),
					r.Dim, r.Status, r.Iterations, r.Evaluations, cost)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list (0 for all)")
	cmd.AddCommand(newRunsShowCmd(a), newRunsExportCmd(a), newRunsDeleteCmd(a))
	return cmd
}

func newRunsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a run and its search history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := db.Open(a.cfg.GetDatabase())
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer store.Close()

			run, err := store.GetRun(args[0])
			if err != nil {
				return err
			}
			rows, err := store.History(run.ID)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "run %s (%s)\n", run.ID, run.Status)
			fmt.Fprintf(a.out, "transport %s, sensor %s, %d axes\n", run.Transport, run.Sensor, run.Dim)
			if run.Best != nil {
				fmt.Fprintf(a.out, "best %v\n", run.Best)
			}
			if run.FinalSignal != nil {
				fmt.Fprintf(a.out, "final signal %.4f\n", *run.FinalSignal)
			}
			if run.Error != "" {
				fmt.Fprintf(a.out, "error: %s\n", run.Error)
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ITER\tELAPSED\tSIGNAL\tPOSITION")
			ref := run.Params.ReferenceSignal
			if ref == 0 {
				ref = 1
			}
			for _, h := range rows {
				fmt.Fprintf(tw, "%d\t%.3fs\t%.4f\t%v\n", h.Iteration, h.ElapsedSeconds, -h.Cost/ref, h.Position)
			}
			return tw.Flush()
		},
	}
}

func newRunsExportCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Write the CSV, PNG and HTML results of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := db.Open(a.cfg.GetDatabase())
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer store.Close()

			run, err := store.GetRun(args[0])
			if err != nil {
				return err
			}
			rows, err := store.History(run.ID)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = a.cfg.GetOutputDir()
			}
			files, err := report.Export(dir, run.ID, historyFromRows(rows),
				run.Params.ReferenceSignal, run.Params.NoImprovementThreshold)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "wrote %s, %s, %s\n", files.CSV, files.PNG, files.HTML)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "output", "o", "", "output directory (default from config)")
	return cmd
}

func newRunsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a recorded run and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := db.Open(a.cfg.GetDatabase())
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer store.Close()

			if err := store.DeleteRun(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted run %s\n", args[0])
			return nil
		},
	}
}

func historyFromRows(rows []db.HistoryRow) []simplex.HistoryEntry {
	out := make([]simplex.HistoryEntry, len(rows))
	for i, h := range rows {
		out[i] = simplex.HistoryEntry{
			Iteration: h.Iteration,
			Elapsed:   time.Duration(h.ElapsedSeconds * float64(time.Second)),
			Cost:      h.Cost,
			Position:  h.Position,
		}
	}
	return out
}
