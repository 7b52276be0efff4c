package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/banshee-data/picoalign/internal/config"
	"github.com/banshee-data/picoalign/internal/monitoring"
	"github.com/banshee-data/picoalign/internal/picomotor"
	"github.com/banshee-data/picoalign/internal/sensor"
)

const transportSim = "sim"

// rig is an open controller and, for alignment, a sensor.
type rig struct {
	controller *picomotor.Controller
	sim        *picomotor.Simulator
	sampler    sensor.Sampler

	transport string
	sensor    string
	closers   []io.Closer
}

// openController connects to the controller named by the config, or to a
// simulator in dev mode.
func (a *app) openController(ctx context.Context) (*rig, error) {
	axes := a.cfg.GetAxes()
	r := &rig{}

	if a.dev {
		r.sim = picomotor.NewSimulator(axes)
		r.controller = picomotor.NewController(picomotor.NewSession(r.sim), axes)
		r.transport = transportSim
		return r, nil
	}

	switch kind := a.cfg.GetTransportKind(); kind {
	case config.TransportSerial:
		port, err := a.ports.Open(a.cfg.GetPort(), a.cfg.PortOptions())
		if err != nil {
			return nil, a.portError("controller", a.cfg.GetPort(), err)
		}
		r.closers = append(r.closers, port)
		r.controller = picomotor.NewController(picomotor.NewSession(picomotor.NewPortTransport(port)), axes)
		r.transport = kind + ":" + a.cfg.GetPort()
	case config.TransportTCP:
		link, err := picomotor.DialTCP(ctx, a.cfg.GetAddress(), a.cfg.GetReadTimeout())
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, link)
		r.controller = picomotor.NewController(picomotor.NewSession(picomotor.NewPortTransport(link)), axes)
		r.transport = kind + ":" + a.cfg.GetAddress()
	default:
		return nil, fmt.Errorf("unknown transport kind %q", kind)
	}
	monitoring.Logf("connected to controller over %s", r.transport)
	return r, nil
}

// openSensor attaches the configured sensor to r.
func (a *app) openSensor(r *rig) error {
	switch kind := a.cfg.GetSensorKind(); kind {
	case config.SensorSynthetic:
		if r.sim == nil {
			return errors.New("the synthetic sensor needs the simulated controller (--dev)")
		}
		g := sensor.NewGaussian(r.sim, a.cfg.GetSyntheticCenter(), a.cfg.GetSyntheticWidth())
		if noise := a.cfg.GetSyntheticNoise(); noise > 0 {
			g.WithNoise(noise, a.cfg.GetSyntheticSeed())
		}
		r.sampler = g
		r.sensor = kind
	case config.SensorSCPI:
		port, err := a.ports.Open(a.cfg.GetSensorPort(), a.cfg.SensorPortOptions())
		if err != nil {
			return a.portError("sensor", a.cfg.GetSensorPort(), err)
		}
		meter := sensor.NewSCPIMeter(port, a.cfg.GetSensorQuery())
		r.closers = append(r.closers, meter)
		r.sampler = meter
		r.sensor = kind + ":" + a.cfg.GetSensorPort()
	default:
		return fmt.Errorf("unknown sensor kind %q", kind)
	}
	monitoring.Logf("sensor: %s", r.sensor)
	return nil
}

// portError wraps a failed open with the ports that are present.
func (a *app) portError(role, path string, err error) error {
	available, listErr := a.ports.List()
	switch {
	case listErr != nil:
		monitoring.Debugf("failed to list serial ports: %v", listErr)
		return fmt.Errorf("failed to open %s port %s: %w", role, path, err)
	case len(available) == 0:
		return fmt.Errorf("failed to open %s port %s (no serial ports found): %w", role, path, err)
	default:
		return fmt.Errorf("failed to open %s port %s (available: %s): %w",
			role, path, strings.Join(available, ", "), err)
	}
}

// applyMotion sets velocity and acceleration on every axis when configured.
func (a *app) applyMotion(r *rig) error {
	v, acc := a.cfg.GetVelocity(), a.cfg.GetAcceleration()
	for axis := 1; axis <= r.controller.Axes(); axis++ {
		if v > 0 {
			if err := r.controller.SetVelocity(axis, v); err != nil {
				return err
			}
		}
		if acc > 0 {
			if err := r.controller.SetAcceleration(axis, acc); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *rig) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
