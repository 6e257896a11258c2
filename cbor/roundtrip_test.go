/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package cbor

import (
	"math/big"
	"testing"

	"gotest.tools/v3/assert"
)

type fakeTable struct {
	byPath map[string]uint32
	bySID  map[uint32]string
}

func (f *fakeTable) SIDForPath(path string) (uint32, bool) {
	s, ok := f.byPath[path]
	return s, ok
}

func (f *fakeTable) PathForSID(sid uint32) (string, bool) {
	p, ok := f.bySID[sid]
	return p, ok
}

func newFakeTable() *fakeTable {
	return &fakeTable{
		byPath: map[string]uint32{"/ietf-interfaces:interfaces": 1000},
		bySID:  map[uint32]string{1000: "/ietf-interfaces:interfaces"},
	}
}

func TestScalarRoundTrip(t *testing.T) {
	enc := NewEncoder(nil)
	dec := NewDecoder(nil)

	cases := []Value{
		nil, true, false,
		uint64(0), uint64(23), uint64(24), uint64(255), uint64(256),
		uint64(65535), uint64(65536), uint64(1) << 40,
		int64(-1), int64(-24), int64(-1000),
		"hello", []byte{1, 2, 3},
		3.14159, float64(0),
	}
	for _, c := range cases {
		b, err := enc.Encode(c)
		assert.NilError(t, err)
		got, err := dec.Decode(b)
		assert.NilError(t, err)
		assert.DeepEqual(t, got, c)
	}
}

func TestTaggedRoundTrip(t *testing.T) {
	enc := NewEncoder(nil)
	dec := NewDecoder(nil)

	cases := []Value{
		Bits{0x01, 0x02},
		Enum("up"),
		IdentityRef("ianaift:ethernetCsmacd"),
		InstanceID("/if:interfaces/if:interface[name='eth0']"),
		SID(1000),
		DeltaSID(-5),
	}
	for _, c := range cases {
		b, err := enc.Encode(c)
		assert.NilError(t, err)
		got, err := dec.Decode(b)
		assert.NilError(t, err)
		assert.DeepEqual(t, got, c)
	}
}

func TestMapKeySIDSubstitution(t *testing.T) {
	tbl := newFakeTable()
	enc := NewEncoder(tbl)
	dec := NewDecoder(tbl)

	m := NewMap()
	m.Set("/ietf-interfaces:interfaces", uint64(2))

	b, err := enc.Encode(m)
	assert.NilError(t, err)

	// first byte: map(1) = 0xA1; key bytes should be tag(256) + uint(1000).
	assert.Equal(t, b[0], byte(0xA1))
	assert.Equal(t, b[1], byte(0xD9)) // tag, 2-byte arg (256 doesn't fit in 23)
	tagVal := uint16(b[2])<<8 | uint16(b[3])
	assert.Equal(t, tagVal, uint16(TagSID))

	got, err := dec.Decode(b)
	assert.NilError(t, err)
	gotMap, ok := got.(*Map)
	assert.Assert(t, ok)
	v, found := gotMap.Get("/ietf-interfaces:interfaces")
	assert.Assert(t, found)
	assert.Equal(t, v, uint64(2))
}

func TestMapCanonicalKeyOrder(t *testing.T) {
	enc := NewEncoder(nil)
	m := NewMap()
	m.Set("bb", uint64(1))
	m.Set("a", uint64(2))
	m.Set("c", uint64(3))

	b1, err := enc.Encode(m)
	assert.NilError(t, err)

	// re-encode from a map built in a different insertion order; bytes
	// must match, proving canonical order is stable under re-encoding.
	m2 := NewMap()
	m2.Set("c", uint64(3))
	m2.Set("a", uint64(2))
	m2.Set("bb", uint64(1))
	b2, err := enc.Encode(m2)
	assert.NilError(t, err)

	assert.DeepEqual(t, b1, b2)
}

func TestUnknownSIDKeyOpaque(t *testing.T) {
	dec := NewDecoder(nil)
	enc := NewEncoder(nil)

	m := NewMap()
	m.Set(SID(9999), uint64(1))
	b, err := enc.Encode(m)
	assert.NilError(t, err)

	got, err := dec.Decode(b)
	assert.NilError(t, err)
	gotMap := got.(*Map)
	_, found := gotMap.Get("SID:9999")
	assert.Assert(t, found)
}

func TestBigIntPreservesPrecisionBeyond2Pow53(t *testing.T) {
	enc := NewEncoder(nil)
	dec := NewDecoder(nil)

	// 2^53 + 1 cannot round-trip through float64 without loss.
	v := uint64(1)<<53 + 1
	b, err := enc.Encode(v)
	assert.NilError(t, err)

	got, err := dec.Decode(b)
	assert.NilError(t, err)
	bi, ok := got.(*big.Int)
	assert.Assert(t, ok)
	assert.Equal(t, bi.String(), "9007199254740993")
}
