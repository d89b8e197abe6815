package visca

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.bug.st/serial"

	"ptzctl/internal/ptz"
)

const (
	defaultMinInterval = 50 * time.Millisecond // Max 20 commands/sec
	writeTimeout       = 100 * time.Millisecond
	deadband           = 0.05
)

// Device drives a VISCA camera head. Pan and tilt share one drive command, so the
// current velocity of each axis is kept and every command carries both.
type Device struct {
	conn     io.ReadWriteCloser
	mu       sync.Mutex
	addr     int    // Camera address (1-7), default 1
	seqNum   uint32 // Sequence number for VISCA over IP
	protocol string

	pan, tilt, zoom float64

	// Commands are paced, never dropped: a lost stop would break the position estimate.
	lastSend    time.Time
	minInterval time.Duration
}

// Config for VISCA device
type Config struct {
	// For UDP: address like "192.168.1.100:52381"
	// For TCP: address like "192.168.1.100:5678"
	// For serial: device path like "/dev/ttyUSB0"
	Address  string
	Protocol string // "udp", "tcp" or "serial"
	Baud     int    // serial only, default 9600
	Camera   int    // camera address 1-7, default 1
}

// Dial opens the transport named by cfg.Protocol.
func Dial(cfg Config) (*Device, error) {
	protocol := cfg.Protocol
	if protocol == "" {
		protocol = "udp" // Default to UDP for VISCA over IP
	}

	var conn io.ReadWriteCloser
	switch protocol {
	case "udp", "tcp":
		c, err := net.DialTimeout(protocol, cfg.Address, 5*time.Second)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to VISCA over %s: %w", protocol, err)
		}
		conn = c
	case "serial":
		baud := cfg.Baud
		if baud == 0 {
			baud = 9600
		}
		port, err := serial.Open(cfg.Address, &serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open VISCA serial port %s: %w", cfg.Address, err)
		}
		conn = port
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", protocol)
	}

	d := newDevice(conn, protocol)
	if cfg.Camera >= 1 && cfg.Camera <= 7 {
		d.addr = cfg.Camera
	}
	return d, nil
}

func newDevice(conn io.ReadWriteCloser, protocol string) *Device {
	return &Device{
		conn:        conn,
		addr:        1,
		protocol:    protocol,
		minInterval: defaultMinInterval,
	}
}

// Close closes the VISCA connection
func (d *Device) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// Velocity drives one axis at a signed speed in [-1, 1].
func (d *Device) Velocity(ctx context.Context, axis ptz.Axis, speed float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch axis {
	case ptz.Pan:
		d.pan = speed
		return d.sendPanTilt(ctx)
	case ptz.Tilt:
		d.tilt = speed
		return d.sendPanTilt(ctx)
	case ptz.Zoom:
		d.zoom = speed
		return d.sendZoom(ctx)
	}
	return fmt.Errorf("visca: unknown axis %v", axis)
}

// Stop halts the given axes, or all of them.
func (d *Device) Stop(ctx context.Context, axes ...ptz.Axis) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(axes) == 0 {
		axes = ptz.Axes
	}
	var panTilt, zoom bool
	for _, a := range axes {
		switch a {
		case ptz.Pan:
			d.pan, panTilt = 0, true
		case ptz.Tilt:
			d.tilt, panTilt = 0, true
		case ptz.Zoom:
			d.zoom, zoom = 0, true
		}
	}
	if panTilt {
		if err := d.sendPanTilt(ctx); err != nil {
			return err
		}
	}
	if zoom {
		return d.sendZoom(ctx)
	}
	return nil
}

// sendPanTilt sends the Pan-Tilt Drive command for the current velocities.
func (d *Device) sendPanTilt(ctx context.Context) error {
	// VISCA Pan-Tilt Drive command: 01 06 01 VV WW XX YY
	// VV = pan speed (01-18), WW = tilt speed (01-14)
	// XX: 01=left, 02=right, 03=stop
	// YY: 01=up, 02=down, 03=stop
	panSpeed := byte(clampInt(int(abs(d.pan)*24), 1, 24))
	tiltSpeed := byte(clampInt(int(abs(d.tilt)*20), 1, 20))

	var panDir, tiltDir byte
	if d.pan < -deadband {
		panDir = 0x01 // Left
	} else if d.pan > deadband {
		panDir = 0x02 // Right
	} else {
		panDir = 0x03 // Stop
		panSpeed = 0x01
	}

	if d.tilt > deadband {
		tiltDir = 0x01 // Up
	} else if d.tilt < -deadband {
		tiltDir = 0x02 // Down
	} else {
		tiltDir = 0x03 // Stop
		tiltSpeed = 0x01
	}

	return d.send(ctx, []byte{0x01, 0x06, 0x01, panSpeed, tiltSpeed, panDir, tiltDir})
}

// sendZoom sends the variable-speed zoom command for the current zoom velocity.
func (d *Device) sendZoom(ctx context.Context) error {
	// VISCA Zoom command: 01 04 07 XY
	// X: 0=stop, 2=tele(in), 3=wide(out)
	// Y: speed 0-7
	var cmd byte
	if d.zoom > deadband {
		cmd = 0x20 | byte(clampInt(int(d.zoom*7), 0, 7))
	} else if d.zoom < -deadband {
		cmd = 0x30 | byte(clampInt(int(abs(d.zoom)*7), 0, 7))
	} else {
		cmd = 0x00
	}
	return d.send(ctx, []byte{0x01, 0x04, 0x07, cmd})
}

// buildVISCAPayload constructs a raw VISCA command (address + payload + terminator)
func (d *Device) buildVISCAPayload(payload []byte) []byte {
	// Address byte: 0x80 | address (1-7)
	cmd := make([]byte, 0, len(payload)+2)
	cmd = append(cmd, byte(0x80|d.addr))
	cmd = append(cmd, payload...)
	cmd = append(cmd, 0xFF) // Terminator
	return cmd
}

// buildVISCAOverIP wraps a VISCA payload in VISCA-over-IP framing
func (d *Device) buildVISCAOverIP(viscaPayload []byte) []byte {
	// VISCA over IP header (8 bytes):
	// Bytes 0-1: Message type (0x01 0x00 for command)
	// Bytes 2-3: Payload length (big endian)
	// Bytes 4-7: Sequence number (big endian)
	header := make([]byte, 8, 8+len(viscaPayload))
	header[0] = 0x01
	header[1] = 0x00
	binary.BigEndian.PutUint16(header[2:4], uint16(len(viscaPayload)))
	binary.BigEndian.PutUint32(header[4:8], d.seqNum)
	d.seqNum++

	return append(header, viscaPayload...)
}

// send frames and writes a command. Caller holds d.mu.
func (d *Device) send(ctx context.Context, payload []byte) error {
	if wait := d.minInterval - time.Since(d.lastSend); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}

	packet := d.buildVISCAPayload(payload)
	if d.protocol == "udp" {
		packet = d.buildVISCAOverIP(packet)
	}

	if nc, ok := d.conn.(net.Conn); ok {
		nc.SetWriteDeadline(time.Now().Add(writeTimeout))
	}
	_, err := d.conn.Write(packet)
	d.lastSend = time.Now()
	if err != nil {
		return fmt.Errorf("visca: write: %w", err)
	}
	return nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
