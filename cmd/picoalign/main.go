// Command picoalign aligns a picomotor actuator stack against a feedback
// signal and keeps a record of every run.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(newApp()).Execute(); err != nil {
		os.Exit(1)
	}
}
