/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package mup1

import "strings"

// ParseAnnounce decodes an Announce frame's ASCII payload, a
// semicolon-separated list of "key=value" pairs the device emits on
// boot (e.g. "mup1;v=1.0;sid=..."), into a map. Empty entries are
// skipped and an entry without "=" is stored as a key with an empty
// value; nothing is treated as an error, since Announce is
// informational, not correlated to a pending request.
func ParseAnnounce(payload []byte) map[string]string {
	fields := strings.Split(string(payload), ";")
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			out[f] = ""
			continue
		}
		out[k] = v
	}
	return out
}
