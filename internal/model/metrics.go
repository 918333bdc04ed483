package model

import (
	"fmt"

	"bankml/internal/errors"
)

// Accuracy is the fraction of predictions equal to the true label
func Accuracy(yTrue, yPred []int) (float64, error) {
	if err := checkLengths(yTrue, yPred); err != nil {
		return 0, err
	}
	c := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			c++
		}
	}
	return float64(c) / float64(len(yTrue)), nil
}

// PrecisionRecallF1 computes binary metrics for the positive class 1.
// Undefined ratios are reported as 0.
func PrecisionRecallF1(yTrue, yPred []int) (prec, rec, f1 float64, err error) {
	if err = checkLengths(yTrue, yPred); err != nil {
		return 0, 0, 0, err
	}
	tp, fp, fn := 0, 0, 0
	for i := range yTrue {
		switch {
		case yPred[i] == 1 && yTrue[i] == 1:
			tp++
		case yPred[i] == 1 && yTrue[i] == 0:
			fp++
		case yPred[i] == 0 && yTrue[i] == 1:
			fn++
		}
	}
	if tp+fp > 0 {
		prec = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		rec = float64(tp) / float64(tp+fn)
	}
	if prec+rec > 0 {
		f1 = 2 * prec * rec / (prec + rec)
	}
	return prec, rec, f1, nil
}

// F1 is the harmonic mean of precision and recall for class 1
func F1(yTrue, yPred []int) (float64, error) {
	_, _, f1, err := PrecisionRecallF1(yTrue, yPred)
	return f1, err
}

func checkLengths(yTrue, yPred []int) error {
	if len(yTrue) != len(yPred) {
		return errors.ValidationError(fmt.Sprintf("label length %d differs from prediction length %d", len(yTrue), len(yPred)))
	}
	if len(yTrue) == 0 {
		return errors.ValidationError("cannot score an empty partition")
	}
	return nil
}
