/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package cbor

import (
	"fmt"
	"math"
	"math/big"
	"sort"
)

// SIDResolver resolves a YANG instance path to its numeric SID, as
// implemented by sid.Table. Declared locally so that package cbor does
// not import package sid.
type SIDResolver interface {
	SIDForPath(path string) (uint32, bool)
}

// Encoder encodes Value trees to canonical CBOR bytes per RFC 8949,
// substituting YANG-path map keys with tag-256 SIDs when a table is
// configured.
type Encoder struct {
	table SIDResolver
}

// NewEncoder constructs an Encoder. table may be nil, in which case no
// path-to-SID substitution is performed (plain text-string keys only).
func NewEncoder(table SIDResolver) *Encoder {
	return &Encoder{table: table}
}

// Encode renders v as canonical CBOR.
func (e *Encoder) Encode(v Value) ([]byte, error) {
	var buf []byte
	buf, err := e.encode(buf, v)
	if err != nil {
		return nil, fmt.Errorf("cbor: encode: %w", err)
	}
	return buf, nil
}

func (e *Encoder) encode(buf []byte, v Value) ([]byte, error) {
	switch tv := v.(type) {
	case nil:
		return appendSimple(buf, 22), nil
	case bool:
		if tv {
			return appendSimple(buf, 21), nil
		}
		return appendSimple(buf, 20), nil
	case uint:
		return appendHead(buf, majorUnsigned, uint64(tv)), nil
	case uint8:
		return appendHead(buf, majorUnsigned, uint64(tv)), nil
	case uint16:
		return appendHead(buf, majorUnsigned, uint64(tv)), nil
	case uint32:
		return appendHead(buf, majorUnsigned, uint64(tv)), nil
	case uint64:
		return appendHead(buf, majorUnsigned, tv), nil
	case int:
		return e.encode(buf, int64(tv))
	case int32:
		return e.encode(buf, int64(tv))
	case int64:
		if tv >= 0 {
			return appendHead(buf, majorUnsigned, uint64(tv)), nil
		}
		return appendHead(buf, majorNegative, uint64(-1-tv)), nil
	case *big.Int:
		return encodeBigInt(buf, tv)
	case float64:
		return appendFloat(buf, tv), nil
	case float32:
		return appendFloat(buf, float64(tv)), nil
	case []byte:
		buf = appendHead(buf, majorBytes, uint64(len(tv)))
		return append(buf, tv...), nil
	case string:
		buf = appendHead(buf, majorText, uint64(len(tv)))
		return append(buf, tv...), nil
	case []Value:
		buf = appendHead(buf, majorArray, uint64(len(tv)))
		for _, item := range tv {
			var err error
			buf, err = e.encode(buf, item)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	case *Map:
		return e.encodeMap(buf, tv)
	case Bits:
		buf = appendHead(buf, majorTag, TagBits)
		buf = appendHead(buf, majorBytes, uint64(len(tv)))
		return append(buf, tv...), nil
	case Enum:
		buf = appendHead(buf, majorTag, TagEnum)
		return e.encode(buf, string(tv))
	case IdentityRef:
		buf = appendHead(buf, majorTag, TagIdentityRef)
		return e.encode(buf, string(tv))
	case InstanceID:
		buf = appendHead(buf, majorTag, TagInstanceID)
		return e.encode(buf, string(tv))
	case SID:
		buf = appendHead(buf, majorTag, TagSID)
		return appendHead(buf, majorUnsigned, uint64(tv)), nil
	case DeltaSID:
		buf = appendHead(buf, majorTag, TagDeltaSID)
		return e.encode(buf, int64(tv))
	default:
		return nil, fmt.Errorf("cbor: unsupported Go type %T", v)
	}
}

// encodeMap emits map entries in canonical byte-wise key order,
// substituting a YANG-path string key for its tag-256 SID encoding
// when the table resolves it.
func (e *Encoder) encodeMap(buf []byte, m *Map) ([]byte, error) {
	type kv struct {
		keyBytes []byte
		valBytes []byte
	}
	entries := make([]kv, 0, m.Len())

	var encErr error
	m.Range(func(key, value Value) bool {
		keyOut := key
		if path, ok := key.(string); ok && e.table != nil {
			if s, found := e.table.SIDForPath(path); found {
				keyOut = SID(s)
			}
		}
		kb, err := e.encode(nil, keyOut)
		if err != nil {
			encErr = err
			return false
		}
		vb, err := e.encode(nil, value)
		if err != nil {
			encErr = err
			return false
		}
		entries = append(entries, kv{keyBytes: kb, valBytes: vb})
		return true
	})
	if encErr != nil {
		return nil, encErr
	}

	sort.Slice(entries, func(i, j int) bool {
		return lessBytes(entries[i].keyBytes, entries[j].keyBytes)
	})

	buf = appendHead(buf, majorMap, uint64(len(entries)))
	for _, e := range entries {
		buf = append(buf, e.keyBytes...)
		buf = append(buf, e.valBytes...)
	}
	return buf, nil
}

func lessBytes(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// appendHead writes a CBOR major-type/argument head using the minimum
// length encoding, per RFC 8949's rules for canonical encoding.
func appendHead(buf []byte, major byte, n uint64) []byte {
	top := major << 5
	switch {
	case n < 24:
		return append(buf, top|byte(n))
	case n <= 0xFF:
		return append(buf, top|24, byte(n))
	case n <= 0xFFFF:
		return append(buf, top|25, byte(n>>8), byte(n))
	case n <= 0xFFFFFFFF:
		return append(buf, top|26, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	default:
		return append(buf, top|27,
			byte(n>>56), byte(n>>48), byte(n>>40), byte(n>>32),
			byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}
}

func appendSimple(buf []byte, v byte) []byte {
	return append(buf, majorSimple<<5|v)
}

// appendFloat emits the double-precision IEEE-754 encoding by default.
// Narrowing to 16/32-bit on equivalence is permitted but not required;
// this implementation always emits the 64-bit form so precision is
// never a concern.
func appendFloat(buf []byte, f float64) []byte {
	bits := math.Float64bits(f)
	return append(buf, majorSimple<<5|27,
		byte(bits>>56), byte(bits>>48), byte(bits>>40), byte(bits>>32),
		byte(bits>>24), byte(bits>>16), byte(bits>>8), byte(bits))
}

// encodeBigInt emits v as a CBOR bignum (tag 2 for non-negative, tag 3
// for negative, RFC 8949 §3.4.3). It is used for *big.Int values only;
// a uint64 above 2^53 is still emitted as a plain unsigned integer.
func encodeBigInt(buf []byte, v *big.Int) ([]byte, error) {
	neg := v.Sign() < 0
	mag := new(big.Int).Abs(v)
	tag := uint64(2)
	if neg {
		// CBOR negative bignum represents -1-n for magnitude n.
		mag = mag.Sub(mag, big.NewInt(1))
		tag = 3
	}
	b := mag.Bytes()

	buf = appendHead(buf, majorTag, tag)
	buf = appendHead(buf, majorBytes, uint64(len(b)))
	buf = append(buf, b...)
	return buf, nil
}
