package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/picoalign/internal/picomotor"
)

const cheatSheet = `Picomotor command line
----------------------
AB       abort motion on every axis
xACnn    set axis x acceleration to nn steps/s² (1-200000)
xVAnn    set axis x velocity to nn steps/s (1-2000)
xMV+/-   move axis x indefinitely in the + or - direction
xPAnn    move axis x to absolute position nn
xPRnn    move axis x by nn steps
xTP?     query the position of axis x
xMD?     query whether axis x has stopped
xQM?     query the motor type of axis x
ST       stop all motion
SM       save settings
RS       restart the controller
VE?      controller identity
TE?      last error code

help prints this sheet, quit or exit leaves.
`

func newConsoleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Send raw controller commands interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openController(cmd.Context())
			if err != nil {
				return err
			}
			defer r.Close()
			return a.console(r.controller.Session())
		},
	}
}

// console reads commands line by line until quit or EOF. Malformed lines
// are reported and nothing is sent. A transport failure ends the console.
func (a *app) console(s *picomotor.Session) error {
	fmt.Fprint(a.out, cheatSheet)
	scanner := bufio.NewScanner(a.in)
	for {
		fmt.Fprint(a.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(a.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit":
			return nil
		case "help":
			fmt.Fprint(a.out, cheatSheet)
			continue
		}

		reply, err := s.Command(line)
		var terr *picomotor.TransportError
		switch {
		case errors.Is(err, picomotor.ErrMalformedCommand):
			fmt.Fprintf(a.out, "not sent: %v\n", err)
		case errors.As(err, &terr):
			return err
		case err != nil:
			fmt.Fprintf(a.out, "error: %v\n", err)
		case reply != "":
			fmt.Fprintln(a.out, reply)
		}
	}
}
