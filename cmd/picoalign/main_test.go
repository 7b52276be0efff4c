package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/picoalign/internal/config"
	"github.com/banshee-data/picoalign/internal/db"
	"github.com/banshee-data/picoalign/internal/serialport"
	"github.com/banshee-data/picoalign/internal/timeutil"
)

const devConfig = `
sensor:
  kind: synthetic
  center: [120, -80, 40, 200]
  width: 300
search:
  initial_step: 50
  max_iterations: 60
settle_delay: 500ms
database: %DIR%/runs.db
output_dir: %DIR%/out
`

// writeDevConfig writes a noiseless dev config rooted at a temp directory.
func writeDevConfig(t *testing.T) (path, dir string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "picoalign.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.ReplaceAll(devConfig, "%DIR%", dir)), 0o644))
	return path, dir
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return runCLIWithPorts(t, serialport.NewRealFactory(), stdin, args...)
}

func runCLIWithPorts(t *testing.T, ports serialport.Factory, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{
		clock: timeutil.NewMockClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		ports: ports,
		in:    strings.NewReader(stdin),
		out:   &out,
	}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetErr(io.Discard)
	err := root.Execute()
	return out.String(), err
}

func TestAlign_DevRun(t *testing.T) {
	cfgPath, dir := writeDevConfig(t)

	out, err := runCLI(t, "", "--dev", "--config", cfgPath, "align")
	require.NoError(t, err)
	assert.Contains(t, out, "goal_sustained after 6 iterations, 14 evaluations")
	assert.Contains(t, out, "final signal")

	store, err := db.Open(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, "goal_sustained", run.Status)
	assert.Equal(t, 6, run.Iterations)
	assert.Equal(t, 14, run.Evaluations)
	assert.Equal(t, "sim", run.Transport)
	assert.Equal(t, "synthetic", run.Sensor)
	assert.Equal(t, 4, run.Dim)
	require.NotNil(t, run.FinalSignal)
	assert.InDelta(t, 0.928, *run.FinalSignal, 0.01)

	rows, err := store.History(run.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 6)

	for _, ext := range []string{".csv", ".png", ".html"} {
		_, err := os.Stat(filepath.Join(dir, "out", run.ID+ext))
		assert.NoError(t, err, ext)
	}
}

func TestAlign_NoExportAndPartialDim(t *testing.T) {
	cfgPath, dir := writeDevConfig(t)

	_, err := runCLI(t, "", "--dev", "--config", cfgPath, "align", "--dim", "2", "--no-export")
	require.NoError(t, err)

	store, err := db.Open(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Dim)

	_, err = os.Stat(filepath.Join(dir, "out"))
	assert.True(t, os.IsNotExist(err), "no export directory expected")
}

func TestAlign_RejectsDimBeyondAxes(t *testing.T) {
	cfgPath, _ := writeDevConfig(t)
	_, err := runCLI(t, "", "--dev", "--config", cfgPath, "align", "--dim", "5")
	assert.Error(t, err)
}

func TestStatus_Dev(t *testing.T) {
	cfgPath, _ := writeDevConfig(t)
	out, err := runCLI(t, "", "--dev", "--config", cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "controller: New_Focus 8742 v2.2 08/01/13 13991")
	assert.Contains(t, out, "axis 1: 'Standard' Motor")
	assert.Contains(t, out, "axis 4: 'Standard' Motor")
}

func TestConsole_Dev(t *testing.T) {
	cfgPath, _ := writeDevConfig(t)
	in := "VE?\n\n1PR+10\n1TP?\nbogus!\nhelp\nquit\nVE?\n"

	out, err := runCLI(t, in, "--dev", "--config", cfgPath, "console")
	require.NoError(t, err)
	assert.Contains(t, out, "New_Focus 8742 v2.2 08/01/13 13991")
	assert.Contains(t, out, "> 10\n")
	assert.Contains(t, out, "not sent:")
	assert.Contains(t, out, "malformed command")
	assert.Equal(t, 2, strings.Count(out, "Picomotor command line"))
	// Nothing after quit is executed.
	assert.Equal(t, 1, strings.Count(out, "New_Focus 8742"))
}

func TestConsole_EOFEnds(t *testing.T) {
	cfgPath, _ := writeDevConfig(t)
	out, err := runCLI(t, "TE?\n", "--dev", "--config", cfgPath, "console")
	require.NoError(t, err)
	assert.Contains(t, out, "> 0\n")
}

func TestWatch_Once(t *testing.T) {
	cfgPath, _ := writeDevConfig(t)
	out, err := runCLI(t, "", "--dev", "--config", cfgPath, "watch", "--once")
	require.NoError(t, err)
	assert.Contains(t, out, "09:00:00.000")
	assert.Contains(t, out, "1:0(idle)")
	assert.Contains(t, out, "4:0(idle)")
	assert.Contains(t, out, "error=0")
}

func TestRuns_ListShowExportDelete(t *testing.T) {
	cfgPath, dir := writeDevConfig(t)
	_, err := runCLI(t, "", "--dev", "--config", cfgPath, "align", "--no-export")
	require.NoError(t, err)

	out, err := runCLI(t, "", "--config", cfgPath, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "RUN")
	assert.Contains(t, out, "goal_sustained")

	store, err := db.Open(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	runs, err := store.ListRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	id := runs[0].ID
	require.NoError(t, store.Close())

	out, err = runCLI(t, "", "--config", cfgPath, "runs", "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, "run "+id+" (goal_sustained)")
	assert.Contains(t, out, "transport sim, sensor synthetic, 4 axes")
	assert.Contains(t, out, "ITER")

	exportDir := filepath.Join(dir, "exported")
	out, err = runCLI(t, "", "--config", cfgPath, "runs", "export", id, "-o", exportDir)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(exportDir, id+".csv"))
	_, err = os.Stat(filepath.Join(exportDir, id+".png"))
	assert.NoError(t, err)

	out, err = runCLI(t, "", "--config", cfgPath, "runs", "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted run "+id)

	_, err = runCLI(t, "", "--config", cfgPath, "runs", "show", id)
	assert.ErrorIs(t, err, db.ErrRunNotFound)
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "picoalign dev")
}

func TestLoadConfig_MissingDefaultGivesEmpty(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.TransportSerial, cfg.GetTransportKind())
	assert.Equal(t, 4, cfg.GetAxes())
}

func TestLoadConfig_BadPath(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestOpenSensor_SyntheticNeedsSimulator(t *testing.T) {
	kind := config.SensorSynthetic
	cfg := config.Empty()
	cfg.Sensor.Kind = &kind

	a := &app{cfg: cfg}
	err := a.openSensor(&rig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--dev")
}

func TestStatus_JSONConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"database": "`+filepath.ToSlash(filepath.Join(dir, "x.db"))+`"}`), 0o644))

	out, err := runCLI(t, "", "--dev", "--config", path, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "controller:")
}

func TestHelp_DescribesSerialTransport(t *testing.T) {
	out, err := runCLI(t, "", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "USB-serial bridge")
	assert.Contains(t, out, "native USB port is not a serial device")
}
