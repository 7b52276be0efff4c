package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/picoalign/internal/config"
	"github.com/banshee-data/picoalign/internal/monitoring"
	"github.com/banshee-data/picoalign/internal/serialport"
	"github.com/banshee-data/picoalign/internal/timeutil"
)

// app is the state shared by every subcommand.
type app struct {
	configPath string
	dev        bool
	verbose    bool

	cfg      *config.Config
	clock    timeutil.Clock
	ports    serialport.Factory
	in       io.Reader
	out      io.Writer
	flushLog func()
}

func newApp() *app {
	return &app{
		clock: timeutil.RealClock{},
		ports: serialport.NewRealFactory(),
		in:    os.Stdin,
		out:   os.Stdout,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "picoalign",
		Short: "Closed-loop picomotor alignment",
		Long: `picoalign drives a New Focus 8742 style picomotor controller and
searches for the actuator position that maximizes a feedback signal using a
Nelder-Mead simplex.

The serial transport reaches controllers behind a USB-serial bridge or the
RS-232 port; the 8742's native USB port is not a serial device. Use the tcp
transport for the Ethernet port.

With --dev the controller is simulated and the signal comes from a synthetic
Gaussian coupling model, so every command works without hardware.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.flushLog != nil {
				a.flushLog()
			}
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a JSON or YAML config file (default "+config.DefaultConfigPath+" when present)")
	root.PersistentFlags().BoolVar(&a.dev, "dev", false, "use a simulated controller and a synthetic sensor")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging, including wire traffic")

	root.AddCommand(
		newAlignCmd(a),
		newStatusCmd(a),
		newConsoleCmd(a),
		newWatchCmd(a),
		newRunsCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) setup() error {
	flush, err := monitoring.Configure(a.verbose)
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	a.flushLog = flush

	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.dev {
		kind := config.SensorSynthetic
		cfg.Sensor.Kind = &kind
		monitoring.Logf("dev mode: simulated controller, synthetic sensor")
	}
	a.cfg = cfg
	return nil
}

// loadConfig reads path, or the default config file when path is empty and
// the file exists. With neither, every setting takes its default.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); errors.Is(err, os.ErrNotExist) {
			return config.Empty(), nil
		}
		path = config.DefaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	monitoring.Debugf("loaded config from %s", path)
	return cfg, nil
}
