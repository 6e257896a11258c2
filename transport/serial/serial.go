/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package serial is a reference transport.Transport implementation
// over a POSIX serial device (/dev/ttyUSB*, /dev/ttyACM*), configured
// for 115200 8N1 with no flow control via direct termios ioctls. It is
// built only for the CLI; the protocol core has no dependency on it.
package serial

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sys/unix"
)

// Port is a duplex transport over an opened serial device file.
type Port struct {
	f *os.File
}

// Open opens path and configures it for 115200 8N1, no flow control,
// raw mode (no line discipline processing).
func Open(path string) (*Port, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", path, err)
	}
	if err := configureRaw(int(f.Fd())); err != nil {
		f.Close()
		return nil, fmt.Errorf("serial: configure %s: %w", path, err)
	}
	return &Port{f: f}, nil
}

func (p *Port) Read(b []byte) (int, error)  { return p.f.Read(b) }
func (p *Port) Write(b []byte) (int, error) { return p.f.Write(b) }
func (p *Port) Close() error                { return p.f.Close() }

// configureRaw applies 115200 8N1 raw-mode termios settings via
// TCGETS2/TCSETS2, the same direct-ioctl technique used elsewhere in
// this module to read kernel-maintained socket state: fetch the
// current struct, mutate the fields that matter, write it back.
func configureRaw(fd int) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS2)
	if err != nil {
		return err
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	t.Cflag &^= unix.CBAUD | unix.CBAUDEX
	t.Cflag |= unix.BOTHER
	t.Ispeed = 115200
	t.Ospeed = 115200

	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	return unix.IoctlSetTermios(fd, unix.TCSETS2, t)
}

// ListPorts enumerates plausible serial device paths under /dev,
// backing the CLI's list-ports command.
func ListPorts() ([]string, error) {
	patterns := []string{"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/cu.usbserial*", "/dev/cu.usbmodem*"}
	var out []string
	for _, pat := range patterns {
		matches, err := filepath.Glob(pat)
		if err != nil {
			return nil, fmt.Errorf("serial: glob %s: %w", pat, err)
		}
		out = append(out, matches...)
	}
	sort.Strings(out)
	return out, nil
}
