//go:build linux

/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package linux

import (
	"fmt"

	"github.com/docker/docker/pkg/parsers/kernel"
)

// minTCPInfoKernel is the kernel version that introduced tcp_info
// (and every field this package reads from it: state, retransmits,
// rtt, rttvar, total_retrans have all been present since then).
var minTCPInfoKernel = kernel.VersionInfo{Kernel: 2, Major: 6, Minor: 2}

var kernelSupportsTCPInfo bool

func init() {
	v, err := kernel.GetKernelVersion()
	if err != nil {
		panic(fmt.Errorf("linux: error getting kernel version: %s", err))
	}
	kernelSupportsTCPInfo = kernel.CompareKernelVersion(*v, minTCPInfoKernel) >= 0
}
