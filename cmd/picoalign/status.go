package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/banshee-data/picoalign/internal/picomotor"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the controller identity and the motor on every axis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openController(cmd.Context())
			if err != nil {
				return err
			}
			defer r.Close()

			st, err := r.controller.Describe()
			printStatus(a.out, st)
			return err
		},
	}
}

func printStatus(w io.Writer, st picomotor.Status) {
	if st.Identity.Model != "" {
		fmt.Fprintf(w, "controller: %s\n", st.Identity)
	}
	for i, mt := range st.Motors {
		fmt.Fprintf(w, "axis %d: %s\n", i+1, mt)
	}
}
