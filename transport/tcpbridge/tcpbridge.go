/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package tcpbridge is a transport.Transport over a net.Conn, for
// Ethernet-attached UART-to-TCP bridges and terminal servers. It
// disables Nagle's algorithm (framed, latency-sensitive exchanges
// don't benefit from coalescing), tracks byte counters and the open
// timestamp the way a connection-health report would, and exposes
// raw kernel tcp_info diagnostics for troubleshooting a flaky bridge.
package tcpbridge

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/higebu/netfd"
	"golang.org/x/sys/unix"

	"github.com/runzeroinc/velctl/pkg/linux"
)

// Bridge is a duplex transport over a TCP connection to a serial
// bridge device.
type Bridge struct {
	conn net.Conn
	fd   int // -1 if conn is not a *net.TCPConn (e.g. a test fake).

	openedAt time.Time
	rxBytes  atomic.Int64
	txBytes  atomic.Int64
}

// Dial connects to addr (host:port) and configures the socket for
// low-latency framed traffic.
func Dial(addr string, timeout time.Duration) (*Bridge, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("tcpbridge: dial %s: %w", addr, err)
	}
	b := &Bridge{conn: conn, fd: -1, openedAt: time.Now()}
	if err := b.tune(); err != nil {
		conn.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bridge) tune() error {
	tcpConn, ok := b.conn.(*net.TCPConn)
	if !ok {
		return nil // not a real TCP conn (e.g. a test fake); nothing to tune.
	}
	b.fd = netfd.GetFdFromConn(tcpConn)
	if err := unix.SetsockoptInt(b.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return fmt.Errorf("tcpbridge: set TCP_NODELAY: %w", err)
	}
	tv := unix.Timeval{Sec: 5, Usec: 0}
	if err := unix.SetsockoptTimeval(b.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return fmt.Errorf("tcpbridge: set SO_RCVTIMEO: %w", err)
	}
	return nil
}

func (b *Bridge) Read(p []byte) (int, error) {
	n, err := b.conn.Read(p)
	b.rxBytes.Add(int64(n))
	return n, err
}

func (b *Bridge) Write(p []byte) (int, error) {
	n, err := b.conn.Write(p)
	b.txBytes.Add(int64(n))
	return n, err
}

func (b *Bridge) Close() error { return b.conn.Close() }

// Diagnostics reads the kernel's tcp_info for the underlying
// connection plus the byte counters and connection age tracked since
// Dial, for troubleshooting bridge stalls and retransmission. It
// returns (nil, nil) for non-TCP connections (e.g. a test fake).
func (b *Bridge) Diagnostics() (*Diagnostics, error) {
	if b.fd < 0 {
		return nil, nil
	}
	info, err := linux.GetTCPInfo(b.fd)
	if err != nil {
		return nil, fmt.Errorf("tcpbridge: getsockopt(TCP_INFO): %w", err)
	}
	return &Diagnostics{
		State:        info.State,
		Retransmits:  info.Retransmits,
		RTTMicros:    info.RTT,
		RTTVarMicros: info.RTTVar,
		TotalRetrans: info.TotalRetrans,
		Age:          time.Since(b.openedAt),
		RxBytes:      b.rxBytes.Load(),
		TxBytes:      b.txBytes.Load(),
	}, nil
}

// Diagnostics is a small, stable subset of Linux's tcp_info plus this
// bridge's own byte counters, enough to notice a link that is
// retransmitting, has a degraded RTT, or has gone idle.
type Diagnostics struct {
	State        uint8
	Retransmits  uint8
	RTTMicros    uint32
	RTTVarMicros uint32
	TotalRetrans uint32
	Age          time.Duration
	RxBytes      int64
	TxBytes      int64
}
