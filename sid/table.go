/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package sid implements a static, bidirectional YANG path <-> SID
// (Structure IDentifier, RFC 9254) table: a read-only lookup populated
// once at start-up from an embedded data table, supporting path<->SID
// resolution, regex search, and per-leaf metadata used for simple
// client-side validation.
package sid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind classifies a YANG schema node carried by a SID table entry.
type Kind int

const (
	Container Kind = iota
	List
	Leaf
	LeafList
	RPC
	Action
)

func (k Kind) String() string {
	switch k {
	case Container:
		return "container"
	case List:
		return "list"
	case Leaf:
		return "leaf"
	case LeafList:
		return "leaf-list"
	case RPC:
		return "rpc"
	case Action:
		return "action"
	default:
		return "unknown"
	}
}

func parseKind(s string) (Kind, error) {
	switch s {
	case "container":
		return Container, nil
	case "list":
		return List, nil
	case "leaf":
		return Leaf, nil
	case "leaf-list":
		return LeafList, nil
	case "rpc":
		return RPC, nil
	case "action":
		return Action, nil
	default:
		return 0, fmt.Errorf("sid: unknown kind %q", s)
	}
}

// Entry is one row of the SID table.
type Entry struct {
	SID      uint32
	Path     string
	Kind     Kind
	Datatype string
	Key      []string // list key leaf names, only meaningful for Kind == List
}

// ModuleRange is a named module's allocated SID range (e.g.
// ietf-interfaces 1000-1999).
type ModuleRange struct {
	Module string
	Low    uint32
	High   uint32
}

// Table is a static, read-only, bijective path<->SID map. It is built
// once at start-up and never mutated afterward.
type Table struct {
	byPath map[string]Entry
	bySID  map[uint32]Entry
	ranges []ModuleRange
}

// Load parses a CSV table (sid,path,kind,datatype,key) such as the one
// embedded via sids.csv, building the bidirectional map. A malformed
// row is an error: the table is meant to be static, vetted data.
func Load(data []byte) (*Table, error) {
	t := &Table{
		byPath: make(map[string]Entry),
		bySID:  make(map[uint32]Entry),
	}

	lines := strings.Split(string(data), "\n")
	for lineNo, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 4 {
			return nil, fmt.Errorf("sid: line %d: expected at least 4 fields, got %d", lineNo+1, len(fields))
		}
		sidVal, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("sid: line %d: bad sid %q: %w", lineNo+1, fields[0], err)
		}
		path := strings.TrimSpace(fields[1])
		kind, err := parseKind(strings.TrimSpace(fields[2]))
		if err != nil {
			return nil, fmt.Errorf("sid: line %d: %w", lineNo+1, err)
		}
		datatype := strings.TrimSpace(fields[3])

		var key []string
		if len(fields) > 4 && strings.TrimSpace(fields[4]) != "" {
			for _, k := range strings.Split(fields[4], "|") {
				key = append(key, strings.TrimSpace(k))
			}
		}

		e := Entry{SID: uint32(sidVal), Path: path, Kind: kind, Datatype: datatype, Key: key}
		if existing, ok := t.byPath[path]; ok {
			return nil, fmt.Errorf("sid: duplicate path %q (sids %d and %d)", path, existing.SID, e.SID)
		}
		if existing, ok := t.bySID[e.SID]; ok {
			return nil, fmt.Errorf("sid: duplicate sid %d (paths %q and %q)", e.SID, existing.Path, path)
		}
		t.byPath[path] = e
		t.bySID[e.SID] = e
	}

	t.ranges = append(t.ranges, moduleRanges...)
	return t, nil
}

// MustLoad is Load but panics on error, for package-level fixtures and
// the embedded default table.
func MustLoad(data []byte) *Table {
	t, err := Load(data)
	if err != nil {
		panic(err)
	}
	return t
}

// SIDForPath resolves a YANG instance path to its numeric SID.
func (t *Table) SIDForPath(path string) (uint32, bool) {
	e, ok := t.byPath[path]
	return e.SID, ok
}

// PathForSID resolves a numeric SID to its textual YANG path.
func (t *Table) PathForSID(sid uint32) (string, bool) {
	e, ok := t.bySID[sid]
	return e.Path, ok
}

// Entry returns the full entry for a path, if present.
func (t *Table) Entry(path string) (Entry, bool) {
	e, ok := t.byPath[path]
	return e, ok
}

// EntryBySID returns the full entry for a SID, if present.
func (t *Table) EntryBySID(sid uint32) (Entry, bool) {
	e, ok := t.bySID[sid]
	return e, ok
}

// Search returns all entries whose path matches re.
func (t *Table) Search(re *regexp.Regexp) []Entry {
	var out []Entry
	for _, e := range t.byPath {
		if re.MatchString(e.Path) {
			out = append(out, e)
		}
	}
	return out
}

// Len reports the number of populated rows.
func (t *Table) Len() int {
	return len(t.byPath)
}

// RangeForModule returns the static SID allocation range for module
// (ietf-interfaces 1000-1999, etc). ok is false for an unrecognised
// module name.
func (t *Table) RangeForModule(module string) (lo, hi uint32, ok bool) {
	for _, r := range t.ranges {
		if r.Module == module {
			return r.Low, r.High, true
		}
	}
	return 0, 0, false
}

// moduleRanges is the static module->SID-range allocation, used by
// RangeForModule to cross-check yang-library module coverage against
// the table regardless of which rows happen to be populated.
var moduleRanges = []ModuleRange{
	{Module: "ietf-interfaces", Low: 1000, High: 1999},
	{Module: "ieee802-dot1q-bridge", Low: 2000, High: 2999},
	{Module: "ieee1588-ptp", Low: 3000, High: 3999},
	{Module: "vendor-extensions", Low: 4000, High: 4299},
	{Module: "ietf-constrained-yang-library", Low: 29300, High: 29399},
}
