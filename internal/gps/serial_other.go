//go:build darwin || windows

package gps

import (
	"io"

	"github.com/jacobsa/go-serial/serial"
)

// openSerial opens the port through go-serial. These ports have no read
// deadlines, so only the per-sentence timeout applies.
func openSerial(path string, baud int) (io.ReadWriteCloser, error) {
	return serial.Open(serial.OpenOptions{
		PortName:        path,
		BaudRate:        uint(baud),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	})
}
