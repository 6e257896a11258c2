/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package sid

import "fmt"

// Validate performs a simple client-side check of v against path's
// declared datatype: a coarse range/type check catching obvious
// mistakes (a string where a uint8 is expected, a negative value for
// an unsigned leaf) before the payload ever reaches the wire. It is
// deliberately not a full YANG type system: devices remain the
// authority on acceptance.
func (t *Table) Validate(path string, v any) error {
	e, ok := t.byPath[path]
	if !ok {
		return fmt.Errorf("sid: unknown path %q", path)
	}
	if e.Kind != Leaf && e.Kind != LeafList {
		return nil // only leaves carry a datatype to check against.
	}
	if e.Datatype == "" {
		return nil
	}
	return checkDatatype(e.Datatype, v)
}

func checkDatatype(datatype string, v any) error {
	switch datatype {
	case "boolean":
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("sid: expected boolean, got %T", v)
		}
	case "string", "identityref", "enumeration":
		if _, ok := v.(string); !ok {
			return fmt.Errorf("sid: expected string, got %T", v)
		}
	case "uint8":
		return checkUintRange(v, 0xFF)
	case "uint16":
		return checkUintRange(v, 0xFFFF)
	case "uint32":
		return checkUintRange(v, 0xFFFFFFFF)
	case "uint64":
		return checkUintRange(v, ^uint64(0))
	case "int32":
		return checkIntRange(v, -1<<31, 1<<31-1)
	default:
		return nil // unrecognised datatype: no opinion, device will validate.
	}
	return nil
}

func checkUintRange(v any, max uint64) error {
	n, ok := asUint64(v)
	if !ok {
		return fmt.Errorf("sid: expected an unsigned integer, got %T", v)
	}
	if n > max {
		return fmt.Errorf("sid: value %d exceeds range [0, %d]", n, max)
	}
	return nil
}

func checkIntRange(v any, min, max int64) error {
	n, ok := asInt64(v)
	if !ok {
		return fmt.Errorf("sid: expected a signed integer, got %T", v)
	}
	if n < min || n > max {
		return fmt.Errorf("sid: value %d outside range [%d, %d]", n, min, max)
	}
	return nil
}

func asUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case int:
		if n >= 0 {
			return uint64(n), true
		}
	case int64:
		if n >= 0 {
			return uint64(n), true
		}
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case uint64:
		return int64(n), true
	}
	return 0, false
}
