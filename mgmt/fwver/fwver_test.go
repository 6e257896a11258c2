/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package fwver

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestSupports(t *testing.T) {
	cases := []struct {
		name       string
		version    string
		capability string
		want       bool
	}{
		{"exact minimum", "1.2.0", CapabilityBlock2, true},
		{"above minimum", "1.3.0", CapabilityBlock2, true},
		{"above minimum patch", "1.2.5", CapabilityBlock2, true},
		{"below minimum", "1.1.9", CapabilityBlock2, false},
		{"older major", "0.9.0", CapabilityBlock2, false},
		{"unparseable version", "not-a-version", CapabilityBlock2, false},
		{"empty version", "", CapabilityBlock2, false},
		{"unknown capability", "9.9.9", "teleport", false},
		{"tsn minimum", "1.0.0", CapabilityTSN, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, Supports(tc.version, tc.capability), tc.want)
		})
	}
}
