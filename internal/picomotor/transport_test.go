package picomotor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/picoalign/internal/serialport"
)

func newTimeoutPort(t *testing.T) *serialport.TestableSerialPort {
	t.Helper()
	port := serialport.NewTestableSerialPort()
	require.NoError(t, port.SetReadTimeout(100*time.Millisecond))
	return port
}

func TestPortTransport_WriteFrame(t *testing.T) {
	port := newTimeoutPort(t)
	tr := NewPortTransport(port)

	require.NoError(t, tr.WriteFrame([]byte("1>1 PA 5\r")))
	assert.Equal(t, "1>1 PA 5\r", string(port.GetWrittenData()))

	port.ShortWrite = true
	assert.ErrorIs(t, tr.WriteFrame([]byte("VE?\r")), ErrWriteFailed)

	boom := errors.New("usb unplugged")
	port.WriteError = boom
	assert.ErrorIs(t, tr.WriteFrame([]byte("VE?\r")), boom)
}

func TestPortTransport_ReadFrame(t *testing.T) {
	t.Run("line terminated", func(t *testing.T) {
		port := newTimeoutPort(t)
		port.AddReadData([]byte("3\r\nleftover"))
		got, err := NewPortTransport(port).ReadFrame(MaxReplyLen)
		require.NoError(t, err)
		assert.Equal(t, "3\r\nleftover", string(got))
	})

	t.Run("timeout after partial data", func(t *testing.T) {
		port := newTimeoutPort(t)
		port.AddReadData([]byte("VE 1.0"))
		got, err := NewPortTransport(port).ReadFrame(MaxReplyLen)
		require.NoError(t, err)
		assert.Equal(t, "VE 1.0", string(got))
	})

	t.Run("no data", func(t *testing.T) {
		port := newTimeoutPort(t)
		_, err := NewPortTransport(port).ReadFrame(MaxReplyLen)
		assert.ErrorIs(t, err, ErrReplyTimeout)
	})

	t.Run("bounded by max", func(t *testing.T) {
		port := newTimeoutPort(t)
		port.AddReadData([]byte("0123456789"))
		got, err := NewPortTransport(port).ReadFrame(4)
		require.NoError(t, err)
		assert.Equal(t, "0123", string(got))
	})

	t.Run("eof after data", func(t *testing.T) {
		port := serialport.NewTestableSerialPort()
		port.AddReadData([]byte("42"))
		got, err := NewPortTransport(port).ReadFrame(MaxReplyLen)
		require.NoError(t, err)
		assert.Equal(t, "42", string(got))
	})

	t.Run("read error", func(t *testing.T) {
		port := newTimeoutPort(t)
		boom := errors.New("io error")
		port.ReadError = boom
		_, err := NewPortTransport(port).ReadFrame(MaxReplyLen)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("invalid max", func(t *testing.T) {
		_, err := NewPortTransport(newTimeoutPort(t)).ReadFrame(0)
		assert.Error(t, err)
	})
}
