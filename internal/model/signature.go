package model

import (
	"encoding/json"
	"math"

	"bankml/internal/errors"

	"gonum.org/v1/gonum/mat"
)

// ColumnSpec describes one named input column
type ColumnSpec struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// TensorSpec describes an unnamed tensor output
type TensorSpec struct {
	Type       string `json:"type"`
	TensorSpec struct {
		Dtype string `json:"dtype"`
		Shape []int  `json:"shape"`
	} `json:"tensor-spec"`
}

// Signature is the expected input/output schema of a model
type Signature struct {
	Inputs  []ColumnSpec
	Outputs []TensorSpec
}

// InputExample holds a few real input rows in split orientation
type InputExample struct {
	Columns []string    `json:"columns"`
	Data    [][]float64 `json:"data"`
}

// InferSignature derives the schema from training features and the model's
// predictions on them. A column whose values are all integral is typed long,
// otherwise double; predictions are an int64 vector.
func InferSignature(featureNames []string, X *mat.Dense, predictions []int) (*Signature, error) {
	n, p := X.Dims()
	if len(featureNames) != p {
		return nil, errors.ValidationError("feature names do not match matrix columns")
	}
	if len(predictions) != n {
		return nil, errors.ValidationError("prediction count does not match matrix rows")
	}

	sig := &Signature{}
	for j, name := range featureNames {
		typ := "long"
		for i := 0; i < n; i++ {
			if v := X.At(i, j); v != math.Trunc(v) {
				typ = "double"
				break
			}
		}
		sig.Inputs = append(sig.Inputs, ColumnSpec{Type: typ, Name: name, Required: true})
	}

	out := TensorSpec{Type: "tensor"}
	out.TensorSpec.Dtype = "int64"
	out.TensorSpec.Shape = []int{-1}
	sig.Outputs = []TensorSpec{out}
	return sig, nil
}

// InputsJSON renders the input schema the way MLmodel files store it
func (s *Signature) InputsJSON() (string, error) {
	b, err := json.Marshal(s.Inputs)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode signature inputs")
	}
	return string(b), nil
}

// OutputsJSON renders the output schema the way MLmodel files store it
func (s *Signature) OutputsJSON() (string, error) {
	b, err := json.Marshal(s.Outputs)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode signature outputs")
	}
	return string(b), nil
}

// NewInputExample takes the first rows of X (at most limit)
func NewInputExample(featureNames []string, X *mat.Dense, limit int) *InputExample {
	n, p := X.Dims()
	if limit > n {
		limit = n
	}
	ex := &InputExample{Columns: append([]string(nil), featureNames...)}
	for i := 0; i < limit; i++ {
		row := make([]float64, p)
		mat.Row(row, i, X)
		ex.Data = append(ex.Data, row)
	}
	return ex
}
