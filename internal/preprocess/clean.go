package preprocess

import (
	"strings"

	"bankml/adapters/tabular"
)

// missingMarkers are the cell spellings treated as missing, matching the
// default NA tokens of common dataframe readers.
var missingMarkers = map[string]bool{
	"":         true,
	"#N/A":     true,
	"#N/A N/A": true,
	"#NA":      true,
	"-1.#IND":  true,
	"-1.#QNAN": true,
	"-NaN":     true,
	"-nan":     true,
	"1.#IND":   true,
	"1.#QNAN":  true,
	"<NA>":     true,
	"N/A":      true,
	"NA":       true,
	"NULL":     true,
	"NaN":      true,
	"None":     true,
	"n/a":      true,
	"nan":      true,
	"null":     true,
}

// IsMissing reports whether a cell holds no value
func IsMissing(cell string) bool {
	return missingMarkers[strings.TrimSpace(cell)]
}

// DropMissing returns a copy of table without rows that contain a missing
// cell in any column, and the number of rows dropped. No imputation.
func DropMissing(table *tabular.Table) (*tabular.Table, int) {
	out := &tabular.Table{
		Headers: append([]string(nil), table.Headers...),
		Rows:    make([][]string, 0, len(table.Rows)),
	}
	for _, row := range table.Rows {
		complete := true
		for _, cell := range row {
			if IsMissing(cell) {
				complete = false
				break
			}
		}
		if complete {
			out.Rows = append(out.Rows, row)
		}
	}
	return out, len(table.Rows) - len(out.Rows)
}
