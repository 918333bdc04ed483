package config

import (
	"testing"

	"bankml/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHyperparameters_Defaults(t *testing.T) {
	h, err := ParseHyperparameters(map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, 100, h.MaxIter)
	assert.Equal(t, 1.0, h.C)
	assert.Equal(t, 1e-4, h.Tol)
	assert.Equal(t, "l2", h.Penalty)
	assert.True(t, h.FitIntercept)
	assert.Equal(t, "", h.ClassWeight)
}

func TestParseHyperparameters_AllRecognized(t *testing.T) {
	h, err := ParseHyperparameters(map[string]interface{}{
		"max_iter":      500,
		"C":             0.5,
		"tol":           1e-6,
		"penalty":       "none",
		"fit_intercept": false,
		"learning_rate": 0.1,
		"class_weight":  "balanced",
	})
	require.NoError(t, err)
	assert.Equal(t, 500, h.MaxIter)
	assert.Equal(t, 0.5, h.C)
	assert.Equal(t, 1e-6, h.Tol)
	assert.Equal(t, "none", h.Penalty)
	assert.False(t, h.FitIntercept)
	assert.Equal(t, 0.1, h.LearningRate)
	assert.Equal(t, "balanced", h.ClassWeight)

	assert.Equal(t, map[string]string{
		"max_iter":      "500",
		"C":             "0.5",
		"tol":           "1e-06",
		"penalty":       "none",
		"fit_intercept": "False",
		"learning_rate": "0.1",
		"class_weight":  "balanced",
	}, h.Params())
}

func TestParseHyperparameters_RejectsUnknownKeys(t *testing.T) {
	_, err := ParseHyperparameters(map[string]interface{}{
		"max_iter": 100,
		"solver":   "lbfgs",
		"n_jobs":   4,
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
	assert.Contains(t, err.Error(), "n_jobs, solver")
}

func TestParseHyperparameters_RejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"zero max_iter":       {"max_iter": 0},
		"fractional max_iter": {"max_iter": 1.5},
		"string max_iter":     {"max_iter": "many"},
		"negative C":          {"C": -1.0},
		"negative tol":        {"tol": -0.1},
		"unknown penalty":     {"penalty": "l1"},
		"non-bool intercept":  {"fit_intercept": "yes"},
		"unknown weight":      {"class_weight": "auto"},
		"zero learning rate":  {"learning_rate": 0},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseHyperparameters(raw)
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}
}

func TestParseHyperparameters_FloatParamsLogLikePython(t *testing.T) {
	h, err := ParseHyperparameters(map[string]interface{}{
		"C":        1.0,
		"tol":      0.0001,
		"max_iter": 100,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"C": "1.0", "tol": "0.0001", "max_iter": "100"}, h.Params())

	cases := map[float64]string{
		1.0:     "1.0",
		100.0:   "100.0",
		0.5:     "0.5",
		1e-6:    "1e-06",
		1.5e-7:  "1.5e-07",
		1e6:     "1000000.0",
		1e16:    "1e+16",
		-2.0:    "-2.0",
		0.0:     "0.0",
		123.456: "123.456",
	}
	for in, want := range cases {
		assert.Equal(t, want, formatParam(in), "%v", in)
	}
}

func TestParseHyperparameters_NullClassWeight(t *testing.T) {
	h, err := ParseHyperparameters(map[string]interface{}{"class_weight": nil})
	require.NoError(t, err)
	assert.Equal(t, "", h.ClassWeight)
	assert.Equal(t, "None", h.Params()["class_weight"])
}
