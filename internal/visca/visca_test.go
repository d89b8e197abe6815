package visca

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptzctl/internal/ptz"
)

type captureConn struct {
	mu      sync.Mutex
	packets [][]byte
	err     error
	closed  bool
}

func (c *captureConn) Read(p []byte) (int, error) { return 0, errors.New("not implemented") }

func (c *captureConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.packets = append(c.packets, append([]byte(nil), p...))
	return len(p), nil
}

func (c *captureConn) Close() error {
	c.closed = true
	return nil
}

func newTestDevice(protocol string) (*Device, *captureConn) {
	conn := &captureConn{}
	d := newDevice(conn, protocol)
	d.minInterval = 0
	return d, conn
}

func TestPanTiltDrive(t *testing.T) {
	ctx := context.Background()
	d, conn := newTestDevice("tcp")

	require.NoError(t, d.Velocity(ctx, ptz.Pan, 0.2))
	require.NoError(t, d.Velocity(ctx, ptz.Tilt, -0.5))
	require.NoError(t, d.Stop(ctx, ptz.Pan))

	assert.Equal(t, [][]byte{
		{0x81, 0x01, 0x06, 0x01, 0x04, 0x01, 0x02, 0x03, 0xFF},
		// Pan keeps moving while tilt starts.
		{0x81, 0x01, 0x06, 0x01, 0x04, 0x0A, 0x02, 0x02, 0xFF},
		// Stopping pan leaves tilt driving.
		{0x81, 0x01, 0x06, 0x01, 0x01, 0x0A, 0x03, 0x02, 0xFF},
	}, conn.packets)
}

func TestZoom(t *testing.T) {
	ctx := context.Background()
	d, conn := newTestDevice("tcp")

	require.NoError(t, d.Velocity(ctx, ptz.Zoom, 1))
	require.NoError(t, d.Velocity(ctx, ptz.Zoom, -0.5))
	require.NoError(t, d.Stop(ctx, ptz.Zoom))

	assert.Equal(t, [][]byte{
		{0x81, 0x01, 0x04, 0x07, 0x27, 0xFF},
		{0x81, 0x01, 0x04, 0x07, 0x33, 0xFF},
		{0x81, 0x01, 0x04, 0x07, 0x00, 0xFF},
	}, conn.packets)
}

func TestStopAll(t *testing.T) {
	ctx := context.Background()
	d, conn := newTestDevice("tcp")

	require.NoError(t, d.Velocity(ctx, ptz.Tilt, 1))
	require.NoError(t, d.Velocity(ctx, ptz.Zoom, 1))
	conn.packets = nil

	require.NoError(t, d.Stop(ctx))
	assert.Equal(t, [][]byte{
		{0x81, 0x01, 0x06, 0x01, 0x01, 0x01, 0x03, 0x03, 0xFF},
		{0x81, 0x01, 0x04, 0x07, 0x00, 0xFF},
	}, conn.packets)
}

func TestOverIPFraming(t *testing.T) {
	ctx := context.Background()
	d, conn := newTestDevice("udp")
	d.addr = 2

	require.NoError(t, d.Stop(ctx, ptz.Zoom))
	require.NoError(t, d.Stop(ctx, ptz.Zoom))

	require.Len(t, conn.packets, 2)
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x00, 0x82, 0x01, 0x04, 0x07, 0x00, 0xFF}, conn.packets[0])
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x01}, conn.packets[1][4:8], "sequence number increments")
}

func TestWriteErrorIsReturned(t *testing.T) {
	d, conn := newTestDevice("tcp")
	conn.err = errors.New("broken pipe")

	err := d.Velocity(context.Background(), ptz.Pan, 0.2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
}

func TestCommandsArePaced(t *testing.T) {
	ctx := context.Background()
	d, conn := newTestDevice("tcp")
	d.minInterval = 30 * time.Millisecond

	start := time.Now()
	require.NoError(t, d.Velocity(ctx, ptz.Pan, 0.2))
	require.NoError(t, d.Stop(ctx, ptz.Pan))
	require.NoError(t, d.Velocity(ctx, ptz.Pan, -0.2))

	assert.Len(t, conn.packets, 3, "no command may be dropped")
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestPacingHonoursContext(t *testing.T) {
	d, _ := newTestDevice("tcp")
	d.minInterval = time.Hour
	require.NoError(t, d.Velocity(context.Background(), ptz.Pan, 0.2))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Stop(ctx, ptz.Pan), context.DeadlineExceeded)
}

func TestDialUnsupportedProtocol(t *testing.T) {
	_, err := Dial(Config{Address: "localhost:1", Protocol: "carrier-pigeon"})
	assert.Error(t, err)
}
