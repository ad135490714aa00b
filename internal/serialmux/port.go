package serialmux

import (
	"io"
	"time"
)

// SerialPorter is the minimal interface needed for a serial port.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter is implemented by ports that support read timeouts.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}
