package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/picoalign/internal/align"
	"github.com/banshee-data/picoalign/internal/db"
	"github.com/banshee-data/picoalign/internal/monitoring"
	"github.com/banshee-data/picoalign/internal/report"
	"github.com/banshee-data/picoalign/internal/simplex"
)

type alignFlags struct {
	dim      int
	rehome   bool
	noExport bool
}

func newAlignCmd(a *app) *cobra.Command {
	var f alignFlags
	cmd := &cobra.Command{
		Use:   "align",
		Short: "Home the axes and search for the best coupling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.runAlign(ctx, f)
		},
	}
	cmd.Flags().IntVar(&f.dim, "dim", 0, "number of axes to search, starting at axis 1 (default from config, all axes)")
	cmd.Flags().BoolVar(&f.rehome, "rehome", false, "define the best position as home when done")
	cmd.Flags().BoolVar(&f.noExport, "no-export", false, "skip writing CSV, PNG and HTML results")
	return cmd
}

func (a *app) runAlign(ctx context.Context, f alignFlags) error {
	r, err := a.openController(ctx)
	if err != nil {
		return err
	}
	defer r.Close()
	if err := a.openSensor(r); err != nil {
		return err
	}
	if err := a.applyMotion(r); err != nil {
		return fmt.Errorf("failed to set motion parameters: %w", err)
	}

	dim := f.dim
	if dim == 0 {
		dim = a.cfg.GetDim()
	}
	if dim == 0 {
		dim = r.controller.Axes()
	}
	params := a.cfg.SimplexConfig()
	aligner, err := align.NewAligner(r.controller, r.sampler, a.clock, align.Options{
		Simplex:         params,
		Dim:             dim,
		SettleDelay:     a.cfg.GetSettleDelay(),
		SkipFinalSample: !a.cfg.GetFinalSample(),
		Rehome:          f.rehome || a.cfg.GetRehome(),
		Observer: func(s simplex.Snapshot) {
			best := s.Vertices[0]
			fmt.Fprintf(a.out, "iteration %3d  evaluations %3d  signal %.4f  at %v\n",
				s.Iteration, s.Evaluations, -best.Cost/params.ReferenceSignal, best.Point)
		},
	})
	if err != nil {
		return err
	}

	store, err := db.Open(a.cfg.GetDatabase())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	runID, err := store.CreateRun(db.NewRun{
		StartedAt: a.clock.Now(),
		Dim:       dim,
		Params:    params,
		Transport: r.transport,
		Sensor:    r.sensor,
	})
	if err != nil {
		return err
	}
	monitoring.Logf("align: run %s started", runID)

	rep, runErr := aligner.Run(ctx)
	if err := a.recordRun(store, runID, rep, runErr); err != nil {
		monitoring.Logf("align: failed to record run %s: %v", runID, err)
	}
	if runErr != nil {
		return fmt.Errorf("alignment run %s failed: %w", runID, runErr)
	}

	res := rep.Result
	fmt.Fprintf(a.out, "\nrun %s: %s after %d iterations, %d evaluations in %s\n",
		runID, res.Reason, res.Iterations, res.Evaluations, rep.Duration.Round(time.Millisecond))
	fmt.Fprintf(a.out, "best position %v, signal %.4f\n", res.Best, -res.BestCost/params.ReferenceSignal)
	if rep.HasFinalSignal {
		fmt.Fprintf(a.out, "final signal %.4f (%.1f%% of reference)\n", rep.FinalSignal, 100*rep.Efficiency)
	}
	if rep.Rehomed {
		fmt.Fprintln(a.out, "best position defined as home")
	}

	if f.noExport {
		return nil
	}
	files, err := report.Export(a.cfg.GetOutputDir(), runID, res.History,
		params.ReferenceSignal, params.NoImprovementThreshold)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %s, %s, %s\n", files.CSV, files.PNG, files.HTML)
	return nil
}

// recordRun stores the history and outcome of a finished or failed run.
func (a *app) recordRun(store *db.DB, runID string, rep *align.Report, runErr error) error {
	outcome := db.RunOutcome{FinishedAt: a.clock.Now(), Status: simplex.StopFailed.String(), Err: runErr}
	if rep != nil && rep.Result != nil {
		res := rep.Result
		if err := store.AppendHistory(runID, res.History); err != nil {
			return err
		}
		outcome.Status = res.Reason.String()
		if runErr != nil && res.Reason != simplex.StopCanceled {
			outcome.Status = simplex.StopFailed.String()
		}
		outcome.Iterations = res.Iterations
		outcome.Evaluations = res.Evaluations
		if len(res.Best) > 0 {
			outcome.Best = res.Best
			outcome.BestCost = res.BestCost
		}
		if rep.HasFinalSignal {
			v := rep.FinalSignal
			outcome.FinalSignal = &v
		}
	}
	return store.FinishRun(runID, outcome)
}
