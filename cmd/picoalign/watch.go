package main

import (
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/banshee-data/picoalign/internal/picomotor"
)

func newWatchCmd(a *app) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll motion state, positions and the error code until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openController(cmd.Context())
			if err != nil {
				return err
			}
			defer r.Close()

			mon := picomotor.NewHealthMonitor(r.controller, a.clock, a.cfg.GetHealthInterval())
			if once {
				rep := mon.Poll()
				printHealth(a.out, rep)
				return rep.Err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			for rep := range mon.Run(ctx) {
				printHealth(a.out, rep)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "poll a single time and exit")
	return cmd
}

func printHealth(w io.Writer, rep picomotor.HealthReport) {
	var b strings.Builder
	b.WriteString(rep.At.Format("15:04:05.000"))
	for _, ax := range rep.Axes {
		state := "moving"
		if ax.MotionDone {
			state = "idle"
		}
		fmt.Fprintf(&b, "  %d:%d(%s)", ax.Axis, ax.Position, state)
	}
	if rep.Err != nil {
		fmt.Fprintf(&b, "  %v", rep.Err)
	} else {
		fmt.Fprintf(&b, "  error=%d", rep.ErrorCode)
	}
	fmt.Fprintln(w, b.String())
}
