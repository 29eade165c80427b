// Package serial abstracts the serial line a temperature sensor is attached to.
package serial

import (
	"context"
	"errors"
	"fmt"
	"time"

	bugst "go.bug.st/serial"
)

// DefaultBaudRate is the line speed of the lab sensor firmware.
const DefaultBaudRate = 115200

// DefaultReadTimeout bounds a single Read so callers can observe cancellation.
const DefaultReadTimeout = 250 * time.Millisecond

var errEmptyPort = errors.New("serial port name cannot be empty")

// Transport is an open serial line.
// Read returns (0, nil) when the read timeout elapses without data.
type Transport interface {
	Read(p []byte) (int, error)
	Close() error
}

// Opener opens a Transport. Readers call it again after every transport failure.
type Opener interface {
	Open(ctx context.Context) (Transport, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context) (Transport, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context) (Transport, error) {
	return f(ctx)
}

// Config describes a physical serial port.
type Config struct {
	// Port is the OS device name, e.g. /dev/ttyUSB0 or COM3.
	Port string
	// BaudRate defaults to DefaultBaudRate.
	BaudRate int
	// ReadTimeout defaults to DefaultReadTimeout.
	ReadTimeout time.Duration
}

// PortOpener opens a physical port through go.bug.st/serial.
type PortOpener struct {
	cfg Config
}

// NewPortOpener validates cfg and fills in defaults.
func NewPortOpener(cfg Config) (*PortOpener, error) {
	if cfg.Port == "" {
		return nil, errEmptyPort
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	return &PortOpener{cfg: cfg}, nil
}

// Config returns the effective port configuration.
func (o *PortOpener) Config() Config {
	return o.cfg
}

// Open implements Opener. 8N1 framing.
func (o *PortOpener) Open(ctx context.Context) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	port, err := bugst.Open(o.cfg.Port, &bugst.Mode{
		BaudRate: o.cfg.BaudRate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", o.cfg.Port, err)
	}

	if err := port.SetReadTimeout(o.cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", o.cfg.Port, err)
	}

	return port, nil
}

// Ensure PortOpener implements Opener.
var _ Opener = (*PortOpener)(nil)
