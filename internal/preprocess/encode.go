package preprocess

import (
	"fmt"
	"sort"
	"strconv"

	"bankml/adapters/tabular"
	"bankml/internal/errors"
)

const (
	indicatorOn  = "1"
	indicatorOff = "0"
)

// Encoded is a table after one-hot encoding with its label split off.
type Encoded struct {
	Features    *tabular.Table
	Labels      []int
	LabelColumn string
}

// IsNumericColumn reports whether every cell of column col parses as a float
func IsNumericColumn(table *tabular.Table, col int) bool {
	for _, row := range table.Rows {
		if _, err := strconv.ParseFloat(row[col], 64); err != nil {
			return false
		}
	}
	return true
}

// OneHot expands every categorical column of table into indicator columns
// named <column>_<category>, one per category except the lexicographically
// first, which is the dropped reference level. Numeric columns keep their
// relative order and come first; indicator blocks follow in original column
// order. Columns listed in skip are left out of the result entirely.
func OneHot(table *tabular.Table, skip ...string) *tabular.Table {
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}

	var numeric []int
	type block struct {
		col        int
		categories []string
	}
	var blocks []block

	for col, name := range table.Headers {
		if skipped[name] {
			continue
		}
		if IsNumericColumn(table, col) {
			numeric = append(numeric, col)
			continue
		}
		categories := Categories(table, col)
		if len(categories) > 1 {
			blocks = append(blocks, block{col: col, categories: categories[1:]})
		}
	}

	out := &tabular.Table{}
	for _, col := range numeric {
		out.Headers = append(out.Headers, table.Headers[col])
	}
	for _, b := range blocks {
		for _, c := range b.categories {
			out.Headers = append(out.Headers, table.Headers[b.col]+"_"+c)
		}
	}

	out.Rows = make([][]string, len(table.Rows))
	for i, row := range table.Rows {
		encoded := make([]string, 0, len(out.Headers))
		for _, col := range numeric {
			encoded = append(encoded, row[col])
		}
		for _, b := range blocks {
			for _, c := range b.categories {
				if row[b.col] == c {
					encoded = append(encoded, indicatorOn)
				} else {
					encoded = append(encoded, indicatorOff)
				}
			}
		}
		out.Rows[i] = encoded
	}
	return out
}

// Categories returns the sorted distinct values of column col
func Categories(table *tabular.Table, col int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, row := range table.Rows {
		if !seen[row[col]] {
			seen[row[col]] = true
			out = append(out, row[col])
		}
	}
	sort.Strings(out)
	return out
}

// Encode one-hot encodes the feature columns and derives the binary label
// as the <target>_<positive> indicator. The target is encoded on its own so
// that any of its categories can be the positive class. A missing target
// column, or a positive class that never occurs, is a data-shape error.
func Encode(table *tabular.Table, target, positive string) (*Encoded, error) {
	labelColumn := target + "_" + positive

	targetIdx := table.ColumnIndex(target)
	if targetIdx < 0 {
		return nil, errors.ValidationError(fmt.Sprintf("target column %q absent from table (columns: %v)", target, table.Headers))
	}

	categories := Categories(table, targetIdx)
	if i := sort.SearchStrings(categories, positive); i == len(categories) || categories[i] != positive {
		return nil, errors.ValidationError(fmt.Sprintf("label column %q absent after encoding (target categories: %v)", labelColumn, categories))
	}

	labels := make([]int, len(table.Rows))
	for i, row := range table.Rows {
		if row[targetIdx] == positive {
			labels[i] = 1
		}
	}

	return &Encoded{
		Features:    OneHot(table, target),
		Labels:      labels,
		LabelColumn: labelColumn,
	}, nil
}
