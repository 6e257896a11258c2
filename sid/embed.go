/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package sid

import _ "embed"

//go:embed sids.csv
var defaultTableCSV []byte

// Default is the package's built-in SID table, loaded once at package
// init from the embedded data table.
var Default = MustLoad(defaultTableCSV)
