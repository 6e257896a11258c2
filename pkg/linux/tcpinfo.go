//go:build linux

/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * Portions are derived from of Linux's tcp.h, used under the syscall exception
 * (see https://spdx.org/licenses/Linux-syscall-note.html).
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package linux retrieves Linux kernel TCP_INFO diagnostics for a
// bridge socket: just the state/retransmit/RTT fields
// transport/tcpbridge needs to notice a stalled or retransmitting
// link, not the full per-connection field set a system-wide tcp_info
// exporter would scrape.
package linux

import (
	"errors"
	"syscall"
	"unsafe"
)

// rawTCPInfo mirrors the head of the kernel's struct tcp_info: the
// state/retransmit/RTT fields present since tcp_info was introduced
// (kernel 2.6.2), in their on-the-wire order and size so the layout
// lines up with what getsockopt(2) writes. Fields the kernel struct
// carries after tcpi_total_retrans are not declared here: the
// syscall below requests only sizeof(rawTCPInfo) bytes, so the kernel
// simply never writes them.
type rawTCPInfo struct {
	state        uint8
	caState      uint8
	retransmits  uint8
	probes       uint8
	backoff      uint8
	options      uint8
	wscale       uint8 // tcpi_snd_wscale:4, tcpi_rcv_wscale:4
	_            uint8 // tcpi_delivery_rate_app_limited:1, tcpi_fastopen_client_fail:2 (unused here)
	rto          uint32
	ato          uint32
	sndMSS       uint32
	rcvMSS       uint32
	unacked      uint32
	sacked       uint32
	lost         uint32
	retrans      uint32
	fackets      uint32
	lastDataSent uint32
	lastAckSent  uint32
	lastDataRecv uint32
	lastAckRecv  uint32
	pmtu         uint32
	rcvSSThresh  uint32
	rtt          uint32
	rttvar       uint32
	sndSSThresh  uint32
	sndCWnd      uint32
	advMSS       uint32
	reordering   uint32
	rcvRTT       uint32
	rcvSpace     uint32
	totalRetrans uint32
}

var sizeOfRawTCPInfo = unsafe.Sizeof(rawTCPInfo{})

// BridgeHealth is the subset of tcp_info this module surfaces as
// connection-health data for a MUP1 TCP bridge.
type BridgeHealth struct {
	State        uint8
	Retransmits  uint8
	RTT          uint32
	RTTVar       uint32
	TotalRetrans uint32
}

func (raw *rawTCPInfo) unpack() *BridgeHealth {
	return &BridgeHealth{
		State:        raw.state,
		Retransmits:  raw.retransmits,
		RTT:          raw.rtt,
		RTTVar:       raw.rttvar,
		TotalRetrans: raw.totalRetrans,
	}
}

// Errors from syscall package are private, so we define our own to match the errno.
var (
	EAGAIN error = syscall.EAGAIN
	EINVAL error = syscall.EINVAL
	ENOENT error = syscall.ENOENT
)

var ErrKernelTooOld = errors.New("tcp_info is not available on Linux prior to kernel 2.6.2")

// GetTCPInfo calls getsockopt(2) on Linux to retrieve tcp_info and
// unpacks the fields this module cares about into a BridgeHealth.
func GetTCPInfo(fd int) (*BridgeHealth, error) {
	if !kernelSupportsTCPInfo {
		return nil, ErrKernelTooOld
	}

	var value rawTCPInfo
	length := uint32(sizeOfRawTCPInfo)

	_, _, errNo := syscall.Syscall6(
		syscall.SYS_GETSOCKOPT,
		uintptr(fd),
		uintptr(syscall.SOL_TCP),
		uintptr(syscall.TCP_INFO),
		uintptr(unsafe.Pointer(&value)),
		uintptr(unsafe.Pointer(&length)),
		0,
	)
	if errNo != 0 {
		switch errNo {
		case syscall.EAGAIN:
			return nil, EAGAIN
		case syscall.EINVAL:
			return nil, EINVAL
		case syscall.ENOENT:
			return nil, ENOENT
		}
		return nil, errNo
	}

	return value.unpack(), nil
}
