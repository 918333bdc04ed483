package config

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"bankml/internal/errors"
)

// Hyperparameters is the validated form of model.params. Only the options
// listed in recognizedParams are accepted.
type Hyperparameters struct {
	MaxIter      int
	C            float64
	Tol          float64
	Penalty      string
	FitIntercept bool
	LearningRate float64
	ClassWeight  string

	configured map[string]string
}

var recognizedParams = []string{
	"C",
	"class_weight",
	"fit_intercept",
	"learning_rate",
	"max_iter",
	"penalty",
	"tol",
}

// DefaultHyperparameters returns the classifier's own defaults.
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		MaxIter:      100,
		C:            1.0,
		Tol:          1e-4,
		Penalty:      "l2",
		FitIntercept: true,
		LearningRate: 0.5,
		configured:   map[string]string{},
	}
}

// ParseHyperparameters validates a raw params mapping. Unknown keys and
// out-of-range values are rejected.
func ParseHyperparameters(raw map[string]interface{}) (Hyperparameters, error) {
	h := DefaultHyperparameters()

	var unknown []string
	for key := range raw {
		if !isRecognized(key) {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return h, errors.ConfigInvalid(fmt.Sprintf("unknown hyperparameters: %s (recognized: %s)",
			strings.Join(unknown, ", "), strings.Join(recognizedParams, ", ")))
	}

	for key, value := range raw {
		var err error
		switch key {
		case "max_iter":
			h.MaxIter, err = toInt(value)
			if err == nil && h.MaxIter <= 0 {
				err = fmt.Errorf("must be > 0")
			}
		case "C":
			h.C, err = toFloat(value)
			if err == nil && h.C <= 0 {
				err = fmt.Errorf("must be > 0")
			}
		case "tol":
			h.Tol, err = toFloat(value)
			if err == nil && h.Tol < 0 {
				err = fmt.Errorf("must be >= 0")
			}
		case "learning_rate":
			h.LearningRate, err = toFloat(value)
			if err == nil && h.LearningRate <= 0 {
				err = fmt.Errorf("must be > 0")
			}
		case "fit_intercept":
			b, ok := value.(bool)
			if !ok {
				err = fmt.Errorf("must be a boolean")
			}
			h.FitIntercept = b
		case "penalty":
			h.Penalty, err = toEnum(value, "l2", "none")
		case "class_weight":
			if value == nil {
				h.ClassWeight = ""
				break
			}
			h.ClassWeight, err = toEnum(value, "", "balanced")
		}
		if err != nil {
			return h, errors.ConfigInvalid(fmt.Sprintf("hyperparameter %s=%v: %v", key, value, err))
		}
		h.configured[key] = formatParam(value)
	}

	return h, nil
}

// Params returns the configured hyperparameters as tracking parameters,
// exactly as the operator wrote them.
func (h Hyperparameters) Params() map[string]string {
	out := make(map[string]string, len(h.configured))
	for k, v := range h.configured {
		out[k] = v
	}
	return out
}

func isRecognized(key string) bool {
	for _, k := range recognizedParams {
		if k == key {
			return true
		}
	}
	return false
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("must be an integer")
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("must be an integer")
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("must be a number")
		}
		return f, nil
	}
	return 0, fmt.Errorf("must be a number")
}

func toEnum(v interface{}, allowed ...string) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("must be one of %q", allowed)
	}
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	return "", fmt.Errorf("must be one of %q", allowed)
}

func formatParam(v interface{}) string {
	switch n := v.(type) {
	case nil:
		return "None"
	case bool:
		if n {
			return "True"
		}
		return "False"
	case float64:
		return formatFloat(n)
	}
	return fmt.Sprint(v)
}

// formatFloat renders floats the way Python's repr does: integral values
// keep a ".0" and exponents appear below 1e-4 and from 1e16.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case f == 0:
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.LastIndexByte(sci, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return sci
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
