/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package tsn

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/runzeroinc/velctl/cbor"
)

func TestGateParameterTableBuild(t *testing.T) {
	table := GateParameterTable{
		AdminCycleTime: Rational{Numerator: 1, Denominator: SecondDenominator},
		AdminBaseTime:  Rational{Numerator: 0, Denominator: SecondDenominator},
		AdminControlList: []GateEntry{
			{GateStatesMask: 0xFF, TimeIntervalNS: 500_000},
			{GateStatesMask: 0x0F, TimeIntervalNS: 500_000},
		},
	}

	v, err := table.Build()
	assert.NilError(t, err)
	m, ok := v.(*cbor.Map)
	assert.Assert(t, ok)
	assert.Equal(t, m.Len(), 3)
}

func TestCBSParametersBuild(t *testing.T) {
	v, err := CBSParameters{IdleSlope: -500}.Build()
	assert.NilError(t, err)
	m, ok := v.(*cbor.Map)
	assert.Assert(t, ok)
	assert.Equal(t, m.Len(), 1)
}

func TestPTPInstanceBuild(t *testing.T) {
	p := PTPInstance{InstanceIndex: 0, Domain: 1, Priority1: 128, Priority2: 128}
	v, err := p.Build()
	assert.NilError(t, err)
	m, ok := v.(*cbor.Map)
	assert.Assert(t, ok)
	assert.Equal(t, m.Len(), 2)
}
