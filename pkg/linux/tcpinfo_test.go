/**
 * Copyright (c) 2022, Xerra Earth Observation Institute
 * See LICENSE.TXT in the root directory of this source tree.
 */

package linux

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestRawTCPInfoUnpack(t *testing.T) {
	raw := rawTCPInfo{
		state:        1,
		retransmits:  3,
		rtt:          12_500,
		rttvar:       2_000,
		totalRetrans: 7,
	}

	got := raw.unpack()
	assert.DeepEqual(t, got, &BridgeHealth{
		State:        1,
		Retransmits:  3,
		RTT:          12_500,
		RTTVar:       2_000,
		TotalRetrans: 7,
	})
}

func TestGetTCPInfoRejectsTooOldKernel(t *testing.T) {
	saved := kernelSupportsTCPInfo
	kernelSupportsTCPInfo = false
	defer func() { kernelSupportsTCPInfo = saved }()

	_, err := GetTCPInfo(0)
	assert.ErrorIs(t, err, ErrKernelTooOld)
}
