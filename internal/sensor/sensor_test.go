package sensor

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/picoalign/internal/serialport"
)

type fixedPositions []int

func (f fixedPositions) Positions() []int { return f }

func TestFunc(t *testing.T) {
	var s Sampler = Func(func(context.Context) (float64, error) { return 0.5, nil })
	v, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)
}

func TestGaussian(t *testing.T) {
	center := []float64{120, -80, 40, 200}

	t.Run("peak at center", func(t *testing.T) {
		g := NewGaussian(fixedPositions{120, -80, 40, 200}, center, 300)
		v, err := g.Sample(context.Background())
		require.NoError(t, err)
		assert.InDelta(t, 1.0, v, 1e-12)
	})

	t.Run("one width away", func(t *testing.T) {
		g := NewGaussian(fixedPositions{420, -80, 40, 200}, center, 300)
		v, err := g.Sample(context.Background())
		require.NoError(t, err)
		assert.InDelta(t, math.Exp(-0.5), v, 1e-12)
	})

	t.Run("missing axes read as zero", func(t *testing.T) {
		g := NewGaussian(fixedPositions{120}, []float64{120, 300}, 300)
		v, err := g.Sample(context.Background())
		require.NoError(t, err)
		assert.InDelta(t, math.Exp(-0.5), v, 1e-12)
	})

	t.Run("invalid width", func(t *testing.T) {
		_, err := NewGaussian(fixedPositions{0}, []float64{0}, 0).Sample(context.Background())
		assert.Error(t, err)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewGaussian(fixedPositions{0}, []float64{0}, 1).Sample(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestGaussian_NoiseIsBoundedAndSeeded(t *testing.T) {
	src := fixedPositions{0, 0}
	a := NewGaussian(src, []float64{0, 0}, 10).WithNoise(0.01, 7)
	b := NewGaussian(src, []float64{0, 0}, 10).WithNoise(0.01, 7)

	for i := 0; i < 50; i++ {
		va, err := a.Sample(context.Background())
		require.NoError(t, err)
		vb, err := b.Sample(context.Background())
		require.NoError(t, err)
		assert.Equal(t, va, vb)
		assert.InDelta(t, 1.0, va, 0.01)
	}
}

func newMeterPort(t *testing.T, reply string) *serialport.TestableSerialPort {
	t.Helper()
	port := serialport.NewTestableSerialPort()
	require.NoError(t, port.SetReadTimeout(50*time.Millisecond))
	port.Respond = func([]byte) []byte { return []byte(reply) }
	return port
}

func TestSCPIMeter_Sample(t *testing.T) {
	port := newMeterPort(t, "1.250E-03\r\n")
	m := NewSCPIMeter(port, "")

	v, err := m.Sample(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.25e-3, v, 1e-15)
	assert.Equal(t, "MEAS:POW?\n", string(port.GetWrittenData()))

	require.NoError(t, m.Close())
	assert.True(t, port.Closed)
}

func TestSCPIMeter_CustomQuery(t *testing.T) {
	port := newMeterPort(t, "0.5\n")
	m := NewSCPIMeter(port, "READ?")

	v, err := m.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)
	assert.Equal(t, "READ?\n", string(port.GetWrittenData()))
}

func TestSCPIMeter_Errors(t *testing.T) {
	t.Run("garbage reply", func(t *testing.T) {
		_, err := NewSCPIMeter(newMeterPort(t, "OVERRANGE\n"), "").Sample(context.Background())
		assert.ErrorIs(t, err, ErrNoReading)
	})

	t.Run("write failure", func(t *testing.T) {
		port := newMeterPort(t, "1\n")
		port.WriteError = errors.New("unplugged")
		_, err := NewSCPIMeter(port, "").Sample(context.Background())
		assert.ErrorContains(t, err, "unplugged")
	})

	t.Run("no reply", func(t *testing.T) {
		port := serialport.NewTestableSerialPort()
		_, err := NewSCPIMeter(port, "").Sample(context.Background())
		assert.Error(t, err)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		port := newMeterPort(t, "1\n")
		_, err := NewSCPIMeter(port, "").Sample(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, port.GetWrittenData())
	})
}
