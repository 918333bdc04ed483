package model

import (
	"fmt"
	"strconv"

	"bankml/adapters/tabular"
	"bankml/internal/errors"

	"gonum.org/v1/gonum/mat"
)

// FeatureMatrix converts a table of numeric cells into a dense matrix.
// Boolean spellings True/False are accepted as 1/0.
func FeatureMatrix(table *tabular.Table) (*mat.Dense, error) {
	n, p := table.Len(), len(table.Headers)
	if n == 0 || p == 0 {
		return nil, errors.ValidationError("feature table is empty")
	}
	data := make([]float64, 0, n*p)
	for i, row := range table.Rows {
		for j, cell := range row {
			v, err := parseCell(cell)
			if err != nil {
				return nil, errors.ValidationError(fmt.Sprintf("row %d column %s: %v", i+1, table.Headers[j], err))
			}
			data = append(data, v)
		}
	}
	return mat.NewDense(n, p, data), nil
}

// LabelVector converts 0/1 labels to the float form Fit consumes
func LabelVector(labels []int) []float64 {
	out := make([]float64, len(labels))
	for i, v := range labels {
		out[i] = float64(v)
	}
	return out
}

func parseCell(cell string) (float64, error) {
	switch cell {
	case "True", "true":
		return 1, nil
	case "False", "false":
		return 0, nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("not numeric: %q", cell)
	}
	return v, nil
}
