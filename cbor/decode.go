/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package cbor

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
)

// PathResolver resolves a numeric SID back to its textual YANG path, as
// implemented by sid.Table.
type PathResolver interface {
	PathForSID(sid uint32) (string, bool)
}

// Decoder decodes canonical (or ordinary) CBOR bytes into Value trees,
// resolving tag-256 SID map keys back to textual paths.
type Decoder struct {
	table PathResolver
}

// NewDecoder constructs a Decoder. table may be nil, in which case SID
// keys are exposed as the opaque string "SID:<n>".
func NewDecoder(table PathResolver) *Decoder {
	return &Decoder{table: table}
}

// Decode parses a single top-level CBOR value from b. Trailing bytes
// are an error: payloads are always complete, self-contained bodies.
func (d *Decoder) Decode(b []byte) (Value, error) {
	v, rest, err := d.decode(b)
	if err != nil {
		return nil, fmt.Errorf("cbor: decode: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("cbor: decode: %d trailing bytes", len(rest))
	}
	return v, nil
}

func (d *Decoder) decode(b []byte) (Value, []byte, error) {
	if len(b) == 0 {
		return nil, nil, fmt.Errorf("unexpected end of input")
	}
	major := b[0] >> 5
	minor := b[0] & 0x1F

	switch major {
	case majorUnsigned:
		n, rest, err := readArg(b, minor)
		if err != nil {
			return nil, nil, err
		}
		return argToValue(n), rest, nil

	case majorNegative:
		n, rest, err := readArg(b, minor)
		if err != nil {
			return nil, nil, err
		}
		if n > math.MaxInt64 {
			bi := new(big.Int).SetUint64(n)
			bi.Neg(bi.Add(bi, big.NewInt(1)))
			return bi, rest, nil
		}
		return -1 - int64(n), rest, nil

	case majorBytes:
		n, rest, err := readArg(b, minor)
		if err != nil {
			return nil, nil, err
		}
		if uint64(len(rest)) < n {
			return nil, nil, fmt.Errorf("byte string truncated")
		}
		out := make([]byte, n)
		copy(out, rest[:n])
		return out, rest[n:], nil

	case majorText:
		n, rest, err := readArg(b, minor)
		if err != nil {
			return nil, nil, err
		}
		if uint64(len(rest)) < n {
			return nil, nil, fmt.Errorf("text string truncated")
		}
		return string(rest[:n]), rest[n:], nil

	case majorArray:
		n, rest, err := readArg(b, minor)
		if err != nil {
			return nil, nil, err
		}
		items := make([]Value, 0, n)
		for i := uint64(0); i < n; i++ {
			var v Value
			v, rest, err = d.decode(rest)
			if err != nil {
				return nil, nil, err
			}
			items = append(items, v)
		}
		return items, rest, nil

	case majorMap:
		n, rest, err := readArg(b, minor)
		if err != nil {
			return nil, nil, err
		}
		m := NewMap()
		for i := uint64(0); i < n; i++ {
			var key, val Value
			key, rest, err = d.decode(rest)
			if err != nil {
				return nil, nil, err
			}
			val, rest, err = d.decode(rest)
			if err != nil {
				return nil, nil, err
			}
			m.Set(d.resolveKey(key), val)
		}
		return m, rest, nil

	case majorTag:
		n, rest, err := readArg(b, minor)
		if err != nil {
			return nil, nil, err
		}
		return d.decodeTagged(n, rest)

	case majorSimple:
		return d.decodeSimple(minor, b)

	default:
		return nil, nil, fmt.Errorf("unreachable major type %d", major)
	}
}

// resolveKey turns a decoded SID map key back into its textual path
// when the table knows it, otherwise exposes an opaque "SID:<n>" form;
// non-SID keys pass through unchanged.
func (d *Decoder) resolveKey(key Value) Value {
	s, ok := key.(SID)
	if !ok {
		return key
	}
	if d.table != nil {
		if path, found := d.table.PathForSID(uint32(s)); found {
			return path
		}
	}
	return fmt.Sprintf("SID:%d", uint32(s))
}

func (d *Decoder) decodeTagged(tag uint64, rest []byte) (Value, []byte, error) {
	switch tag {
	case TagBits:
		v, rest, err := d.decode(rest)
		if err != nil {
			return nil, nil, err
		}
		b, ok := v.([]byte)
		if !ok {
			return nil, nil, fmt.Errorf("tag 44 (bits) requires a byte string, got %T", v)
		}
		return Bits(b), rest, nil

	case TagEnum:
		v, rest, err := d.decode(rest)
		if err != nil {
			return nil, nil, err
		}
		s, ok := v.(string)
		if !ok {
			return nil, nil, fmt.Errorf("tag 45 (enumeration) requires a text string, got %T", v)
		}
		return Enum(s), rest, nil

	case TagIdentityRef:
		v, rest, err := d.decode(rest)
		if err != nil {
			return nil, nil, err
		}
		s, ok := v.(string)
		if !ok {
			return nil, nil, fmt.Errorf("tag 46 (identityref) requires a text string, got %T", v)
		}
		return IdentityRef(s), rest, nil

	case TagInstanceID:
		v, rest, err := d.decode(rest)
		if err != nil {
			return nil, nil, err
		}
		s, ok := v.(string)
		if !ok {
			return nil, nil, fmt.Errorf("tag 47 (instance-identifier) requires a text string, got %T", v)
		}
		return InstanceID(s), rest, nil

	case TagSID:
		v, rest, err := d.decode(rest)
		if err != nil {
			return nil, nil, err
		}
		n, ok := toUint64(v)
		if !ok {
			return nil, nil, fmt.Errorf("tag 256 (sid) requires an unsigned integer, got %T", v)
		}
		return SID(n), rest, nil

	case TagDeltaSID:
		v, rest, err := d.decode(rest)
		if err != nil {
			return nil, nil, err
		}
		n, ok := toInt64(v)
		if !ok {
			return nil, nil, fmt.Errorf("tag 257 (delta-sid) requires an integer, got %T", v)
		}
		return DeltaSID(n), rest, nil

	case 2: // positive bignum
		v, rest, err := d.decode(rest)
		if err != nil {
			return nil, nil, err
		}
		b, ok := v.([]byte)
		if !ok {
			return nil, nil, fmt.Errorf("tag 2 (bignum) requires a byte string, got %T", v)
		}
		return new(big.Int).SetBytes(b), rest, nil

	case 3: // negative bignum
		v, rest, err := d.decode(rest)
		if err != nil {
			return nil, nil, err
		}
		b, ok := v.([]byte)
		if !ok {
			return nil, nil, fmt.Errorf("tag 3 (bignum) requires a byte string, got %T", v)
		}
		bi := new(big.Int).SetBytes(b)
		bi.Neg(bi.Add(bi, big.NewInt(1)))
		return bi, rest, nil

	default:
		// unrecognised tag: decode and return the inner value untagged;
		// only 44/45/46/47/256/257 need special surfacing.
		return d.decode(rest)
	}
}

func (d *Decoder) decodeSimple(minor byte, b []byte) (Value, []byte, error) {
	switch minor {
	case 20:
		return false, b[1:], nil
	case 21:
		return true, b[1:], nil
	case 22:
		return nil, b[1:], nil
	case 25:
		if len(b) < 3 {
			return nil, nil, fmt.Errorf("half-float truncated")
		}
		return float64(halfToFloat32(binary.BigEndian.Uint16(b[1:3]))), b[3:], nil
	case 26:
		if len(b) < 5 {
			return nil, nil, fmt.Errorf("float32 truncated")
		}
		bits := binary.BigEndian.Uint32(b[1:5])
		return float64(math.Float32frombits(bits)), b[5:], nil
	case 27:
		if len(b) < 9 {
			return nil, nil, fmt.Errorf("float64 truncated")
		}
		bits := binary.BigEndian.Uint64(b[1:9])
		return math.Float64frombits(bits), b[9:], nil
	default:
		return nil, nil, fmt.Errorf("unsupported simple value %d", minor)
	}
}

// readArg reads the length/argument following a major-type byte whose
// low 5 bits are minor, returning the value and the remaining bytes
// (b with the head consumed).
func readArg(b []byte, minor byte) (uint64, []byte, error) {
	switch {
	case minor < 24:
		return uint64(minor), b[1:], nil
	case minor == 24:
		if len(b) < 2 {
			return 0, nil, fmt.Errorf("truncated 1-byte argument")
		}
		return uint64(b[1]), b[2:], nil
	case minor == 25:
		if len(b) < 3 {
			return 0, nil, fmt.Errorf("truncated 2-byte argument")
		}
		return uint64(binary.BigEndian.Uint16(b[1:3])), b[3:], nil
	case minor == 26:
		if len(b) < 5 {
			return 0, nil, fmt.Errorf("truncated 4-byte argument")
		}
		return uint64(binary.BigEndian.Uint32(b[1:5])), b[5:], nil
	case minor == 27:
		if len(b) < 9 {
			return 0, nil, fmt.Errorf("truncated 8-byte argument")
		}
		return binary.BigEndian.Uint64(b[1:9]), b[9:], nil
	default:
		return 0, nil, fmt.Errorf("reserved/invalid additional info %d", minor)
	}
}

// argToValue preserves magnitudes beyond 2^53 as *big.Int rather than
// silently handing back a uint64 that downstream float conversion
// could truncate.
func argToValue(n uint64) Value {
	const maxSafeInt = 1 << 53
	if n > maxSafeInt {
		return bigFromUint64(n)
	}
	return n
}

func toUint64(v Value) (uint64, bool) {
	switch tv := v.(type) {
	case uint64:
		return tv, true
	case int64:
		if tv >= 0 {
			return uint64(tv), true
		}
	case *big.Int:
		if tv.IsUint64() {
			return tv.Uint64(), true
		}
	}
	return 0, false
}

func toInt64(v Value) (int64, bool) {
	switch tv := v.(type) {
	case uint64:
		if tv <= math.MaxInt64 {
			return int64(tv), true
		}
	case int64:
		return tv, true
	case *big.Int:
		if tv.IsInt64() {
			return tv.Int64(), true
		}
	}
	return 0, false
}

// halfToFloat32 converts an IEEE-754 binary16 value to binary32, used
// only for decoding CBOR simple-value 25 (half-precision float), which
// this codec never emits but may legitimately receive from a device.
func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := int32(h>>10) & 0x1F
	frac := uint32(h) & 0x3FF

	var bits uint32
	switch {
	case exp == 0:
		if frac == 0 {
			bits = sign << 31
		} else {
			// subnormal: normalise by shifting the fraction left until
			// its implicit leading bit appears, decrementing exp to match.
			for frac&0x400 == 0 {
				frac <<= 1
				exp--
			}
			exp++
			frac &= 0x3FF
			bits = sign<<31 | uint32(exp+112)<<23 | frac<<13
		}
	case exp == 0x1F:
		bits = sign<<31 | 0xFF<<23 | frac<<13
	default:
		bits = sign<<31 | uint32(exp+112)<<23 | frac<<13
	}
	return math.Float32frombits(bits)
}
