/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package fwver parses and compares VelocityDRIVE-SP firmware version
// strings, reusing docker/docker's dotted-release parser (the same
// library pkg/linux uses to gate tcp_info access by kernel version) so
// capability gating follows one well-tested version-comparison rule
// throughout the module instead of a second hand-rolled one.
package fwver

import (
	"github.com/docker/docker/pkg/parsers/kernel"
)

// Capability names accepted by Supports.
const (
	CapabilityBlock2 = "block2"
	CapabilityTSN    = "tsn"
)

// requirements maps each capability to the minimum firmware version it needs.
var requirements = map[string]kernel.VersionInfo{
	CapabilityBlock2: {Kernel: 1, Major: 2, Minor: 0},
	CapabilityTSN:    {Kernel: 1, Major: 0, Minor: 0},
}

// Supports reports whether firmware version v is known to be at least
// the minimum required for capability. An unparsed or unrecognised
// version yields false rather than an error: the caller should treat
// this purely as a hint, never a hard gate, since the device itself is
// the authority on what it accepts.
func Supports(v string, capability string) bool {
	want, ok := requirements[capability]
	if !ok {
		return false
	}
	got, err := kernel.ParseRelease(v)
	if err != nil {
		return false
	}
	return kernel.CompareKernelVersion(*got, want) >= 0
}
