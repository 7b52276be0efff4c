package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/picoalign/internal/db"
	"github.com/banshee-data/picoalign/internal/picomotor"
	"github.com/banshee-data/picoalign/internal/sensor"
	"github.com/banshee-data/picoalign/internal/serialport"
)

const benchConfig = `
transport:
  kind: serial
  port: /dev/ttyUSB0
  read_timeout: 50ms
sensor:
  kind: scpi
  port: /dev/ttyUSB1
  query: "MEAS:POW?"
search:
  initial_step: 50
  max_iterations: 60
velocity: 1500
acceleration: 50000
settle_delay: 500ms
database: %DIR%/runs.db
output_dir: %DIR%/out
`

// bench is a controller and a power meter behind mock serial ports. The
// controller port answers like an 8742; the meter reports a Gaussian of the
// controller's positions.
type bench struct {
	ports      *serialport.MockFactory
	sim        *picomotor.Simulator
	controller *serialport.TestableSerialPort
	meter      *serialport.TestableSerialPort
}

func newBench() *bench {
	sim := picomotor.NewSimulator(4)
	controller := serialport.NewTestableSerialPort()
	controller.Respond = func(written []byte) []byte {
		if err := sim.WriteFrame(written); err != nil {
			return nil
		}
		reply, err := sim.ReadFrame(picomotor.MaxReplyLen)
		if err != nil {
			return nil
		}
		return reply
	}

	model := sensor.NewGaussian(sim, []float64{120, -80, 40, 200}, 300)
	meter := serialport.NewTestableSerialPort()
	meter.Respond = func(written []byte) []byte {
		if string(written) != "MEAS:POW?\n" {
			return []byte("-113,\"Undefined header\"\n")
		}
		v, err := model.Sample(context.Background())
		if err != nil {
			return nil
		}
		return []byte(strconv.FormatFloat(v, 'g', -1, 64) + "\n")
	}

	return &bench{
		ports: &serialport.MockFactory{Ports: map[string]serialport.Porter{
			"/dev/ttyUSB0": controller,
			"/dev/ttyUSB1": meter,
		}},
		sim:        sim,
		controller: controller,
		meter:      meter,
	}
}

func writeBenchConfig(t *testing.T) (path, dir string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "bench.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.ReplaceAll(benchConfig, "%DIR%", dir)), 0o644))
	return path, dir
}

func TestAlign_SerialControllerAndSCPIMeter(t *testing.T) {
	cfgPath, dir := writeBenchConfig(t)
	b := newBench()

	out, err := runCLIWithPorts(t, b.ports, "", "--config", cfgPath, "align", "--no-export")
	require.NoError(t, err)
	assert.Contains(t, out, "goal_sustained after 6 iterations, 14 evaluations")

	require.Len(t, b.ports.OpenCalls, 2)
	assert.Equal(t, "/dev/ttyUSB0", b.ports.OpenCalls[0].Path)
	assert.Equal(t, "/dev/ttyUSB1", b.ports.OpenCalls[1].Path)
	assert.Equal(t, 50*time.Millisecond, b.controller.ReadTimeout)

	assert.Equal(t, []int{59, -153, 40, 134}, b.sim.Positions())
	frames := strings.Join(b.sim.Frames(), "")
	assert.Contains(t, frames, "1>1 VA 1500\r")
	assert.Contains(t, frames, "1>4 AC 50000\r")
	assert.Contains(t, frames, "1>1 DH\r")
	assert.True(t, b.controller.Closed, "controller port closed")
	assert.True(t, b.meter.Closed, "meter port closed")

	store, err := db.Open(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "serial:/dev/ttyUSB0", runs[0].Transport)
	assert.Equal(t, "scpi:/dev/ttyUSB1", runs[0].Sensor)
	assert.Equal(t, 14, runs[0].Evaluations)
}

func TestStatus_SerialController(t *testing.T) {
	cfgPath, _ := writeBenchConfig(t)
	b := newBench()
	b.sim.SetMotor(3, picomotor.TinyMotor)

	out, err := runCLIWithPorts(t, b.ports, "", "--config", cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "controller: New_Focus 8742 v2.2 08/01/13 13991")
	assert.Contains(t, out, "axis 3: 'Tiny' Motor")
	assert.Equal(t, "VE?\r", string(b.controller.GetWrittenData()[:4]))
	assert.Len(t, b.ports.OpenCalls, 1, "status does not open the meter")
}

func TestConsole_SerialController(t *testing.T) {
	cfgPath, _ := writeBenchConfig(t)
	b := newBench()

	out, err := runCLIWithPorts(t, b.ports, "2PA-40\n2TP?\nquit\n", "--config", cfgPath, "console")
	require.NoError(t, err)
	assert.Contains(t, out, "> -40\n")
	assert.Equal(t, "1>2 PA -40\r1>2 TP?\r", string(b.controller.GetWrittenData()))
}

func TestConsole_TransportFailureEnds(t *testing.T) {
	cfgPath, _ := writeBenchConfig(t)
	b := newBench()
	boom := errors.New("device unplugged")
	b.controller.WriteError = boom

	_, err := runCLIWithPorts(t, b.ports, "VE?\nVE?\n", "--config", cfgPath, "console")
	var terr *picomotor.TransportError
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, boom)
}

func TestStatus_PortOpenFailureListsPorts(t *testing.T) {
	cfgPath, _ := writeBenchConfig(t)
	denied := errors.New("permission denied")
	ports := &serialport.MockFactory{Error: denied, Available: []string{"/dev/ttyS0", "/dev/ttyUSB3"}}

	_, err := runCLIWithPorts(t, ports, "", "--config", cfgPath, "status")
	require.Error(t, err)
	assert.ErrorIs(t, err, denied)
	assert.Contains(t, err.Error(), "failed to open controller port /dev/ttyUSB0")
	assert.Contains(t, err.Error(), "available: /dev/ttyS0, /dev/ttyUSB3")
}

func TestStatus_PortOpenFailureNoPorts(t *testing.T) {
	cfgPath, _ := writeBenchConfig(t)
	ports := &serialport.MockFactory{Error: errors.New("no such file or directory")}

	_, err := runCLIWithPorts(t, ports, "", "--config", cfgPath, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no serial ports found")
}

func TestAlign_MeterPortMissing(t *testing.T) {
	cfgPath, _ := writeBenchConfig(t)
	b := newBench()
	delete(b.ports.Ports, "/dev/ttyUSB1")
	b.ports.ListError = errors.New("no sysfs")

	_, err := runCLIWithPorts(t, b.ports, "", "--config", cfgPath, "align")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open sensor port /dev/ttyUSB1")
	assert.True(t, b.controller.Closed, "controller port closed after sensor failure")
}
