/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package tsn builds the structured CBOR payloads for the TSN
// (Time-Sensitive Networking) YANG models: PTP instances, 802.1Qbv
// gate-parameter tables, and 802.1Qav credit-based shaper parameters.
// Each Build... function returns a cbor.Value ready to hand to
// mgmt.Client.YANGSet; this package knows nothing about transport or
// encoding.
package tsn

import "github.com/runzeroinc/velctl/cbor"

// SecondDenominator is the fixed denominator (nanoseconds per second)
// used for every Rational in this package's YANG models.
const SecondDenominator = 1_000_000_000

// Rational is a numerator/denominator pair, e.g. a cycle time
// expressed in whole seconds as numerator/1e9.
type Rational struct {
	Numerator   uint64
	Denominator uint64
}

// GateEntry is one admin-control-list entry: an 8-bit mask with one
// bit per traffic class 0..7, held open for TimeIntervalNS.
type GateEntry struct {
	GateStatesMask uint8
	TimeIntervalNS uint32
}

// GateParameterTable is the 802.1Qbv gate-parameter table for one
// bridge port.
type GateParameterTable struct {
	AdminCycleTime   Rational
	AdminBaseTime    Rational
	AdminControlList []GateEntry
}

// Build encodes t as a cbor.Value suitable for YANGSet against an
// ieee802-dot1q-bridge gate-parameter-table container.
func (t GateParameterTable) Build() (cbor.Value, error) {
	list := cbor.NewMap()
	for i, e := range t.AdminControlList {
		entry := cbor.NewMap()
		entry.Set("gate-states-value", uint64(e.GateStatesMask))
		entry.Set("time-interval-value", uint64(e.TimeIntervalNS))
		list.Set(int64(i), entry)
	}

	m := cbor.NewMap()
	m.Set("admin-cycle-time", rationalMap(t.AdminCycleTime))
	m.Set("admin-base-time", rationalMap(t.AdminBaseTime))
	m.Set("admin-control-list", list)
	return m, nil
}

// CBSParameters is the 802.1Qav credit-based-shaper configuration for
// one traffic class on a bridge port.
type CBSParameters struct {
	IdleSlope int32
}

// Build encodes c as a cbor.Value for the credit-based-shaper container.
func (c CBSParameters) Build() (cbor.Value, error) {
	m := cbor.NewMap()
	m.Set("idle-slope", int64(c.IdleSlope))
	return m, nil
}

// PTPInstance is the minimal ieee1588-ptp instance configuration this
// facade assembles: a numeric domain and the instance's default
// dataset priorities.
type PTPInstance struct {
	InstanceIndex uint32
	Domain        uint8
	Priority1     uint8
	Priority2     uint8
}

// Build encodes p as a cbor.Value for a ptp-instance list entry.
func (p PTPInstance) Build() (cbor.Value, error) {
	m := cbor.NewMap()
	m.Set("instance-index", uint64(p.InstanceIndex))
	m.Set("default-ds", defaultDSMap(p))
	return m, nil
}

func defaultDSMap(p PTPInstance) cbor.Value {
	m := cbor.NewMap()
	m.Set("domain-number", uint64(p.Domain))
	m.Set("priority1", uint64(p.Priority1))
	m.Set("priority2", uint64(p.Priority2))
	return m
}

func rationalMap(r Rational) cbor.Value {
	m := cbor.NewMap()
	m.Set("numerator", r.Numerator)
	m.Set("denominator", r.Denominator)
	return m
}
