package core

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ErrDeviceBusy is returned by raw packet I/O while the TUN listener owns the device.
var ErrDeviceBusy = errors.New("device is owned by the running stack")

func (c *Core) rawFD(op string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.created == nil {
		return -1, &CodeError{Op: op, code: CodeNotCreated}
	}
	if c.listener != nil {
		return -1, &CodeError{Op: op, code: CodeFailed, Err: ErrDeviceBusy}
	}
	return c.created.params.FD, nil
}

// ReadPacket reads one packet from the created tunnel into buf and returns its
// length, or -1 with an error.
func (c *Core) ReadPacket(buf []byte) (int, error) {
	fd, err := c.rawFD("read")
	if err != nil {
		return -1, err
	}
	n, err := unix.Read(fd, buf)
	if err != nil {
		return -1, &CodeError{Op: "read", code: CodeFailed, Err: err}
	}
	c.packetsIn.Add(1)
	c.bytesIn.Add(uint64(n))
	return n, nil
}

// WritePacket writes buf as one packet to the created tunnel and returns the
// number of bytes written, or -1 with an error.
func (c *Core) WritePacket(buf []byte) (int, error) {
	fd, err := c.rawFD("write")
	if err != nil {
		return -1, err
	}
	n, err := unix.Write(fd, buf)
	if err != nil {
		return -1, &CodeError{Op: "write", code: CodeFailed, Err: err}
	}
	c.packetsOut.Add(1)
	c.bytesOut.Add(uint64(n))
	return n, nil
}
